package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/v4link/internal/config"
	"github.com/danmuck/v4link/internal/logging"
	"github.com/danmuck/v4link/internal/observability"
)

func main() {
	configPath := flag.String("config", "", "path to v4linkd TOML config (defaults built in)")
	transportFlag := flag.String("transport", "", "override transport: tcp|serial|stdio")
	listen := flag.String("listen", "", "override tcp listen address")
	port := flag.String("port", "", "override serial port")
	flag.Parse()

	if err := run(*configPath, *transportFlag, *listen, *port); err != nil {
		fmt.Fprintf(os.Stderr, "v4linkd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, transportName, listen, port string) error {
	cfg, err := loadDaemonConfig(configPath)
	if err != nil {
		return err
	}
	if transportName != "" {
		cfg.Transport = transportName
	}
	if listen != "" {
		cfg.ListenAddr = listen
	}
	if port != "" {
		cfg.Serial.Port = port
	}
	if err := config.ValidateDaemonConfig(cfg); err != nil {
		return err
	}
	observability.InitLogger(cfg.Name, logging.ProfileRuntime)

	d, err := newDaemon(cfg)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return d.run(ctx)
}
