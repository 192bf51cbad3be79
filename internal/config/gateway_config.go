package config

import "time"

type GatewayConfig interface {
	GetMessageBufferSize() int
	GetDefaultQueryLimit() int
	GetLatestMessagesLimit() int
	GetTokenSweepInterval() time.Duration
	GetWebsocketSendQueue() int
	GetShutdownTimeout() time.Duration
}

type Gateway struct{}

var _ GatewayConfig = Gateway{}

func (Gateway) GetMessageBufferSize() int {
	return GetEnvInt("MESSAGE_BUFFER_SIZE", 1000)
}

func (Gateway) GetDefaultQueryLimit() int {
	return 50
}

func (Gateway) GetLatestMessagesLimit() int {
	return 10
}

func (Gateway) GetTokenSweepInterval() time.Duration {
	return GetEnvDuration("TOKEN_SWEEP_INTERVAL", time.Hour)
}

func (Gateway) GetWebsocketSendQueue() int {
	return GetEnvInt("WS_SEND_QUEUE", 64)
}

func (Gateway) GetShutdownTimeout() time.Duration {
	return 10 * time.Second
}
