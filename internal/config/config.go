package config

import (
	"github.com/joho/godotenv"
)

type Config interface {
	EnvConfig
	CorsConfig
	GatewayConfig
	WebhookConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetMasterToken() string
	GetDriver() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	Gateway
	Webhook
}

func New() Config {
	return mainConfig{}
}

// Load reads an optional .env file into the process environment before building the Config.
// Variables already present in the environment take precedence over the file.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && len(files) > 0 {
		return nil, err
	}
	return New(), nil
}
