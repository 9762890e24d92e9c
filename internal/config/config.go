// Package config loads process settings from the environment (and an optional
// .env file) and validates them.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// DefaultWelcome is shown to every client right after it picks a name.
const DefaultWelcome = "Welcome to the Server. Use /help for a list of commands."

var validate = validator.New()

// Server holds the relay server settings.
type Server struct {
	Addr         string        `env:"RELAY_ADDR,default=:8080" validate:"required"`
	LogLevel     string        `env:"RELAY_LOG_LEVEL,default=INFO" validate:"required,oneof=DEBUG INFO WARN ERROR"`
	Welcome      string        `env:"RELAY_WELCOME"`
	HistorySize  int           `env:"RELAY_HISTORY_SIZE,default=10" validate:"min=1"`
	WriteTimeout time.Duration `env:"RELAY_WRITE_TIMEOUT,default=10s" validate:"gte=0"`
}

// Client holds the terminal client settings.
type Client struct {
	ServerAddr string `env:"RELAY_SERVER_ADDR,default=localhost:8080" validate:"required"`
}

// LoadServer reads Server settings. Missing keys take their defaults.
func LoadServer() (Server, error) {
	_ = godotenv.Load()

	var cfg Server
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Server{}, fmt.Errorf("config: %w", err)
	}
	if cfg.Welcome == "" {
		cfg.Welcome = DefaultWelcome
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate normalises the log level and checks every field. Call it again
// after overriding fields from flags.
func (c *Server) Validate() error {
	c.LogLevel = strings.ToUpper(c.LogLevel)
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// LoadClient reads Client settings.
func LoadClient() (Client, error) {
	_ = godotenv.Load()

	var cfg Client
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Client{}, fmt.Errorf("config: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return Client{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
