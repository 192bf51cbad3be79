package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-message-gateway/hub"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var (
	errConnClosed    = errors.New("connection closed")
	errSendQueueFull = errors.New("send queue full")
)

// command is one inbound frame: {"event": "...", "data": {...}}.
type command struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type commandData struct {
	Token    string `json:"token"`
	ClientID string `json:"clientId"`
}

// wsConn adapts a WebSocket to hub.Conn. Send only enqueues; a single writer
// goroutine owns the socket for writing.
type wsConn struct {
	id   string
	ws   *websocket.Conn
	send chan hub.Event

	closeOnce sync.Once
	done      chan struct{}
}

var _ hub.Conn = (*wsConn)(nil)

func newWSConn(ws *websocket.Conn, queue int) *wsConn {
	if queue <= 0 {
		queue = 64
	}
	return &wsConn{
		id:   uuid.NewString(),
		ws:   ws,
		send: make(chan hub.Event, queue),
		done: make(chan struct{}),
	}
}

func (c *wsConn) ID() string {
	return c.id
}

func (c *wsConn) Send(event hub.Event) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.send <- event:
		return nil
	default:
		return errSendQueueFull
	}
}

func (c *wsConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case event := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(event); err != nil {
				log.Debug().Err(err).Str("conn", c.id).Msg("websocket write failed")
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

// WebSocketHandler upgrades the request and serves hub commands until the peer goes away.
func (s *Server) WebSocketHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug().Err(err).Msg("websocket upgrade failed")
			return
		}

		conn := newWSConn(ws, s.sendQueue)
		s.hub.Connect(conn)
		go conn.writePump()

		s.readLoop(conn)

		s.hub.Close(conn.ID())
		conn.close()
	}
}

func (s *Server) readLoop(conn *wsConn) {
	conn.ws.SetReadLimit(maxMessageSize)
	_ = conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Str("conn", conn.ID()).Msg("websocket closed unexpectedly")
			}
			return
		}
		_ = conn.ws.SetReadDeadline(time.Now().Add(pongWait))

		var cmd command
		if err := json.Unmarshal(frame, &cmd); err != nil {
			_ = conn.Send(hub.Event{Name: hub.EventError, Data: hub.ErrorData{Error: "malformed frame"}})
			continue
		}
		s.dispatch(conn, cmd)
	}
}

func (s *Server) dispatch(conn *wsConn, cmd command) {
	var data commandData
	if len(cmd.Data) > 0 {
		if err := json.Unmarshal(cmd.Data, &data); err != nil {
			_ = conn.Send(hub.Event{Name: hub.EventError, Data: hub.ErrorData{Error: "malformed data", Message: err.Error()}})
			return
		}
	}

	var err error
	switch cmd.Event {
	case hub.CommandAuthenticate:
		err = s.hub.Authenticate(conn.ID(), data.Token)
	case hub.CommandSubscribe:
		err = s.hub.Subscribe(conn.ID(), data.ClientID)
	case hub.CommandUnsubscribe:
		err = s.hub.Unsubscribe(conn.ID(), data.ClientID)
	case hub.CommandListClients:
		_, err = s.hub.ListVisibleSessions(conn.ID())
	default:
		_ = conn.Send(hub.Event{Name: hub.EventError, Data: hub.ErrorData{Error: "unknown event", Message: cmd.Event}})
		return
	}
	if err != nil {
		log.Debug().Err(err).Str("conn", conn.ID()).Str("event", cmd.Event).Msg("websocket command rejected")
	}
}
