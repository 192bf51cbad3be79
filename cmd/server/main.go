package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-message-gateway/driver"
	"github.com/jrsteele09/go-message-gateway/driver/driverfake"
	"github.com/jrsteele09/go-message-gateway/hub"
	"github.com/jrsteele09/go-message-gateway/internal/config"
	"github.com/jrsteele09/go-message-gateway/internal/metrics"
	"github.com/jrsteele09/go-message-gateway/server"
	"github.com/jrsteele09/go-message-gateway/sessions"
	"github.com/jrsteele09/go-message-gateway/token"
	"github.com/jrsteele09/go-message-gateway/token/memrepo"
	"github.com/jrsteele09/go-message-gateway/webhook"
)

const fakePairingDelay = 5 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.Load()
	if err != nil {
		return fmt.Errorf("config.Load: %w", err)
	}
	setupLogging(c)
	displayAppname(c.GetAppName())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	if c.GetMasterToken() == "" {
		log.Warn().Msg("ACCESS_TOKEN is not set: master access is disabled and no tokens can be issued over HTTP")
	}
	tokens, err := token.NewRegistry(memrepo.New(),
		token.WithMasterSecret(c.GetMasterToken()),
		token.WithLogger(log.With().Str("component", "tokens").Logger()),
		token.WithMetrics(m),
	)
	if err != nil {
		return err
	}

	sessionRegistry := sessions.NewRegistry(
		sessions.WithCapacity(c.GetMessageBufferSize()),
		sessions.WithMetrics(m),
	)
	eventHub, err := hub.New(tokens, sessionRegistry,
		hub.WithLogger(log.With().Str("component", "hub").Logger()),
		hub.WithMetrics(m),
	)
	if err != nil {
		return err
	}
	sessionRegistry.SetPublisher(eventHub)

	sink := newWebhookSink(c, m)
	factory, err := driverFactory(c)
	if err != nil {
		return err
	}
	adapter, err := driver.NewAdapter(factory, sessionRegistry,
		driver.WithNotifier(sink),
		driver.WithLogger(log.With().Str("component", "driver").Logger()),
		driver.WithMetrics(m),
	)
	if err != nil {
		return err
	}

	handler, err := server.New(c, server.Dependencies{
		Tokens:   tokens,
		Sessions: sessionRegistry,
		Hub:      eventHub,
		Adapter:  adapter,
		Gatherer: reg,
	})
	if err != nil {
		return err
	}

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go tokens.RunSweeper(sweepCtx, c.GetTokenSweepInterval())

	httpServer := &http.Server{Addr: c.GetPort(), Handler: handler}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- listenAndServe(httpServer)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-waitForStopSignal():
	}

	stopSweeper()
	return shutdown(c, httpServer, adapter, sink)
}

func setupLogging(c config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func newWebhookSink(c config.Config, m *metrics.Metrics) *webhook.Sink {
	url := ""
	if c.GetWebhookEnabled() {
		url = c.GetWebhookURL()
		if url == "" {
			log.Warn().Msg("WEBHOOK_ENABLED is set without WEBHOOK_URL; webhook disabled")
		}
	}
	return webhook.New(url,
		webhook.WithTimeout(c.GetWebhookTimeout()),
		webhook.WithLogger(log.With().Str("component", "webhook").Logger()),
		webhook.WithMetrics(m),
	)
}

func driverFactory(c config.Config) (driver.Factory, error) {
	switch c.GetDriver() {
	case "fake":
		log.Warn().Msg("using the in-memory fake driver; sessions pair automatically and send nowhere")
		return driverfake.NewPool(driverfake.WithAutoPair("fake-pairing-code", fakePairingDelay)).Factory(), nil
	default:
		return nil, fmt.Errorf("unknown driver %q", c.GetDriver())
	}
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(c config.Config, server *http.Server, adapter *driver.Adapter, sink *webhook.Sink) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.GetShutdownTimeout())
	defer cancel()

	var returnError error
	if err := server.Shutdown(ctx); err != nil {
		returnError = fmt.Errorf("server.Shutdown: %w", err)
	}
	adapter.Shutdown(ctx)
	sink.Wait(ctx)
	return returnError
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
