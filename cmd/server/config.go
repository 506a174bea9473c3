package main

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Host                 string        `env:"HOST,default=localhost"`
	Port                 int           `env:"PORT,default=11111" validate:"gte=1,lte=65535"`
	DebugPort            int           `env:"DEBUG_PORT,default=8081" validate:"gte=1,lte=65535"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,required=true" validate:"required"`
	LogLevel             string        `env:"LOG_LEVEL,default=INFO"`
	MaxPayloadBytes      uint32        `env:"MAX_PAYLOAD_BYTES,default=16777216" validate:"gt=0"`
	SessionQueueCapacity int           `env:"SESSION_QUEUE_CAPACITY,default=256" validate:"gt=0"`
	HandshakeTimeout     time.Duration `env:"HANDSHAKE_TIMEOUT,default=10s" validate:"gt=0"`
	WriteTimeout         time.Duration `env:"WRITE_TIMEOUT,default=30s" validate:"gt=0"`
	MaxNicknameLength    int           `env:"MAX_NICKNAME_LENGTH,default=32" validate:"gt=0"`
}

func loadConfig() (Config, error) {
	// A missing .env file is fine; the environment takes over.
	_ = godotenv.Load()

	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return config, fmt.Errorf("config error: %w", err)
	}
	if err := validator.New().Struct(&config); err != nil {
		return config, fmt.Errorf("config validation: %w", err)
	}
	return config, nil
}
