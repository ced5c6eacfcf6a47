package main

import (
	"fmt"
	"log/slog"

	"github.com/tailored-agentic-units/board-assistant/board"
	"github.com/tailored-agentic-units/board-assistant/chat"
	"github.com/tailored-agentic-units/board-assistant/kernel"
	"github.com/tailored-agentic-units/board-assistant/notify"
	"github.com/tailored-agentic-units/board-assistant/observability"
)

// app is the wired service.
type app struct {
	cfg    *Config
	kernel *kernel.Kernel
	boards *board.Service
	chat   *chat.Service
}

func newApp(cfg *Config, logger *slog.Logger) (*app, error) {
	observer, err := observability.Resolve(cfg.Observers, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve observers: %w", err)
	}

	k, err := kernel.New(&cfg.Kernel, kernel.WithObserver(observer))
	if err != nil {
		return nil, fmt.Errorf("failed to create kernel: %w", err)
	}

	boards := board.NewService(cfg.Board.Boards...)
	svc := chat.New(k,
		chat.WithToolset(board.Toolset(boards)),
		chat.WithAccess(boards),
		chat.WithNotifier(notify.New(&cfg.Notify, logger)),
		chat.WithLogger(logger),
	)

	return &app{cfg: cfg, kernel: k, boards: boards, chat: svc}, nil
}

func (a *app) Close() error { return a.kernel.Close() }

func loadApp() (*app, *slog.Logger, error) {
	logger := newLogger()

	cfg, err := LoadConfig(configFile)
	if err != nil {
		return nil, nil, err
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return a, logger, nil
}
