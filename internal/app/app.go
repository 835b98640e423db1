// Package app assembles the bot: logger, record store, AI client, transport
// adapter and dispatcher, built from configuration and run until the context
// is canceled.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"onboardbot/internal/ai"
	"onboardbot/internal/config"
	"onboardbot/internal/database"
	"onboardbot/internal/dispatch"
	"onboardbot/internal/engine"
	"onboardbot/internal/logger"
	"onboardbot/internal/store"
	"onboardbot/internal/transport"
	"onboardbot/internal/transport/telegram"
	"onboardbot/internal/transport/whatsapp"
)

// App holds the assembled runtime pieces.
type App struct {
	cfg        *config.Config
	db         *sqlx.DB
	aiClient   *ai.Client
	client     transport.Client
	dispatcher *dispatch.Dispatcher

	fatal chan error
}

// New bootstraps infrastructure from cfg: logger first, then store, AI and
// transport. Nothing is connected to the chat network yet; Run does that.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: nil config provided")
	}
	if err := logger.InitLogger(cfg); err != nil {
		return nil, fmt.Errorf("app: logger init failed: %w", err)
	}

	a := &App{cfg: cfg, fatal: make(chan error, 1)}

	st, err := a.buildStore(ctx)
	if err != nil {
		return nil, err
	}

	aiClient, err := ai.New(ctx, cfg.AI.APIKey, cfg.AI.Model)
	if err != nil {
		a.closeDB()
		return nil, fmt.Errorf("app: ai init failed: %w", err)
	}
	a.aiClient = aiClient

	a.dispatcher = dispatch.New(st, a, aiClient, engine.New(), func(err error) {
		select {
		case a.fatal <- err:
		default:
		}
	})

	switch cfg.Transport.Mode {
	case config.TransportTelegram:
		a.client = telegram.New(cfg.Telegram.Token, cfg.Telegram.LongPollTimeoutSeconds, a.dispatcher.HandleMessage)
	default:
		a.client = whatsapp.New(cfg.WhatsApp.SessionDB, a.dispatcher.HandleMessage)
	}

	return a, nil
}

// buildStore constructs and initializes the configured record store backend.
func (a *App) buildStore(ctx context.Context) (store.Store, error) {
	var st store.Store
	switch a.cfg.Storage.Backend {
	case config.BackendPostgres:
		if err := database.RunMigrations(a.cfg.Database); err != nil {
			return nil, fmt.Errorf("app: migrations failed: %w", err)
		}
		db, err := database.Connect(a.cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("app: database initialization failed: %w", err)
		}
		a.db = db
		st = store.NewPostgresStore(db, a.cfg.Storage.Dir)
	default:
		st = store.NewFileStore(a.cfg.Storage.Dir)
	}

	if err := st.Init(ctx); err != nil {
		a.closeDB()
		return nil, fmt.Errorf("app: store init failed: %w", err)
	}
	logger.STORE.Info("store ready",
		slog.String("event", "store.ready"),
		slog.String("backend", a.cfg.Storage.Backend),
		slog.String("dir", a.cfg.Storage.Dir),
	)
	return st, nil
}

// Send implements the dispatcher's sender over the active transport.
func (a *App) Send(ctx context.Context, to, text string) error {
	return a.client.Send(ctx, to, text)
}

// Run connects the transport and blocks until ctx is canceled or the
// dispatcher reports a fatal storage condition. Resources are released on
// the way out.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	if err := a.client.Start(ctx); err != nil {
		return fmt.Errorf("app: transport start failed: %w", err)
	}
	logger.L.With("component", "app").Info("app ready",
		slog.String("event", "ready"),
		slog.String("transport", a.cfg.Transport.Mode),
	)

	select {
	case <-ctx.Done():
		logger.L.With("component", "app").Info("shutting down...",
			slog.String("event", "shutdown"),
		)
		return nil
	case err := <-a.fatal:
		return fmt.Errorf("app: dispatcher halted: %w", err)
	}
}

func (a *App) close() {
	if a.client != nil {
		if err := a.client.Close(); err != nil {
			logger.L.Warn("transport close failed", slog.String("err", err.Error()))
		}
	}
	if a.aiClient != nil {
		if err := a.aiClient.Close(); err != nil {
			logger.AI.Warn("ai close failed", slog.String("err", err.Error()))
		}
	}
	a.closeDB()
}

func (a *App) closeDB() {
	if a.db != nil {
		_ = a.db.Close()
		a.db = nil
	}
}
