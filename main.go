package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/zhoukaigo/docling-serve/internal/config"
	"github.com/zhoukaigo/docling-serve/internal/logger"
)

// main parses a handful of flags that default from the environment,
// builds the logger, and runs the server until an interrupt asks it to
// stop.
func main() {
	logFormat := flag.String("log-format", envOrDefault("LOG_FORMAT", "text"), `log output format: "text" or "json"`)
	flag.Parse()

	logger.Init(*logFormat)

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runServer(ctx, cfg); err != nil {
		logger.Fatal(logger.Main, "server exited with error", "error", err)
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
