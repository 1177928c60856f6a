package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ashita-ai/archdoc"
	"github.com/ashita-ai/archdoc/ui"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	var level slog.Level
	if v := os.Getenv("ARCHDOC_LOG_LEVEL"); v != "" {
		if err := level.UnmarshalText([]byte(v)); err != nil {
			fmt.Fprintf(os.Stderr, "invalid ARCHDOC_LOG_LEVEL %q, using info\n", v)
			level = slog.LevelInfo
		}
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	opts := []archdoc.Option{
		archdoc.WithVersion(version),
		archdoc.WithLogger(logger),
	}

	// Non-nil only when built with -tags ui.
	uiFS, err := ui.DistFS()
	if err != nil {
		return fmt.Errorf("ui: %w", err)
	}
	if uiFS != nil {
		opts = append(opts, archdoc.WithUI(uiFS))
	}

	app, err := archdoc.New(ctx, opts...)
	if err != nil {
		return err
	}
	return app.Run(ctx)
}
