package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mama165/sdk-go/logs"

	"relay/internal/config"
	"relay/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run returns once a client has issued /closeServer, or with the error that
// kept the server from starting.
func run() error {
	cfg, err := config.LoadServer()
	if err != nil {
		return err
	}

	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "TCP address to listen on")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "DEBUG, INFO, WARN or ERROR")
	flag.StringVar(&cfg.Welcome, "welcome", cfg.Welcome, "initial welcome message")
	flag.IntVar(&cfg.HistorySize, "history", cfg.HistorySize, "number of recent messages replayed to new clients")
	flag.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "per-message write deadline (0 disables)")
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logs.GetLoggerFromString(cfg.LogLevel)

	srv := server.New(server.Options{
		Welcome:      cfg.Welcome,
		HistorySize:  cfg.HistorySize,
		WriteTimeout: cfg.WriteTimeout,
	}, log)

	if err := srv.ListenAndServe(cfg.Addr); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}
