package main

import (
	"fmt"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

type Config struct {
	ServerAddress string `env:"CHAT_SERVER_ADDR,default=localhost:11111"`
	Nickname      string `env:"NICKNAME"`
	FilesDir      string `env:"FILES_DIR,default=FILES"`
	ImagesDir     string `env:"IMAGES_DIR,default=IMAGES"`
	LogLevel      string `env:"LOG_LEVEL,default=INFO"`
}

func loadConfig() (Config, error) {
	_ = godotenv.Load()

	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return config, fmt.Errorf("config error: %w", err)
	}
	return config, nil
}
