package main

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Config is the environment configuration of akvsctl.
type Config struct {
	Addr       string        `env:"AKVS_ADDR,default=127.0.0.1:7700"`
	SerialPort string        `env:"AKVS_SERIAL_PORT"`
	Baud       int           `env:"AKVS_BAUD,default=9600"`
	Parity     string        `env:"AKVS_PARITY,default=none"`
	StopBits   string        `env:"AKVS_STOP_BITS,default=1"`
	QUIC       bool          `env:"AKVS_QUIC"`
	Timeout    time.Duration `env:"AKVS_TIMEOUT,default=100ms"`
	LogLevel   string        `env:"AKVS_LOG_LEVEL,default=info"`
}

// LoadConfig reads .env.local when present, then the process environment.
func LoadConfig(ctx context.Context) (*Config, error) {
	cfg := Config{}

	if err := godotenv.Load(".env.local"); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
