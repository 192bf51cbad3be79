package config

import "time"

type WebhookConfig interface {
	GetWebhookEnabled() bool
	GetWebhookURL() string
	GetWebhookTimeout() time.Duration
}

type Webhook struct{}

var _ WebhookConfig = Webhook{}

func (Webhook) GetWebhookEnabled() bool {
	return GetEnvBool("WEBHOOK_ENABLED", false)
}

func (Webhook) GetWebhookURL() string {
	return GetEnv("WEBHOOK_URL", "")
}

func (Webhook) GetWebhookTimeout() time.Duration {
	return GetEnvDuration("WEBHOOK_TIMEOUT", 10*time.Second)
}
