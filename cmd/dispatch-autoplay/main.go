package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/DispatchBox/config"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file, using the environment as is")
	}

	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("config parse failed: %v", err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err = RunAutoplay(ctx, cfg, defaultAutoplayFactories(), runOpts{swaggerPath: os.Getenv("swaggerPath")})
	if err != nil && !errors.Is(err, context.Canceled) {
		panic(err)
	}
}
