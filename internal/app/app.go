// Package app assembles the cheerfeed services from a configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/tOgg1/cheerfeed/internal/config"
	"github.com/tOgg1/cheerfeed/internal/db"
	"github.com/tOgg1/cheerfeed/internal/events"
	"github.com/tOgg1/cheerfeed/internal/kv"
	"github.com/tOgg1/cheerfeed/internal/llm"
	"github.com/tOgg1/cheerfeed/internal/logging"
	"github.com/tOgg1/cheerfeed/internal/persona"
	"github.com/tOgg1/cheerfeed/internal/quota"
	"github.com/tOgg1/cheerfeed/internal/timeline"
)

// App holds the wired services. Close releases them in reverse order.
type App struct {
	Config    *config.Config
	KV        kv.Store
	Database  *db.DB
	Events    *db.EventRepository
	Publisher *events.InMemoryPublisher
	Quota     *quota.Tracker
	Generator llm.Generator
	Timeline  *timeline.Store

	logger  zerolog.Logger
	closers []func() error
}

// Options override collaborators, mostly for tests.
type Options struct {
	// KV replaces the configured storage backend.
	KV kv.Store

	// Generator replaces the configured LLM backend.
	Generator llm.Generator

	Clock clock.Clock
	Rand  rand.Source
}

// New opens storage, builds the generator and restores the timeline.
// Reveal chains for restored posts start immediately.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	a := &App{
		Config: cfg,
		logger: logging.Component("app"),
	}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	if opts.KV != nil {
		a.KV = opts.KV
	} else if err := a.openStorage(ctx); err != nil {
		return nil, err
	}

	pubOpts := []events.PublisherOption{}
	if a.Events != nil {
		pubOpts = append(pubOpts,
			events.WithRepository(a.Events),
			events.WithRetention(cfg.Storage.EventRetention, 100),
		)
	}
	a.Publisher = events.NewInMemoryPublisher(pubOpts...)
	a.closers = append(a.closers, func() error {
		a.Publisher.Close()
		return nil
	})

	if opts.Generator != nil {
		a.Generator = opts.Generator
	} else {
		gen, err := NewGenerator(ctx, cfg.LLM)
		if err != nil {
			return nil, err
		}
		a.Generator = gen
	}

	tracker, err := quota.NewTracker(ctx, cfg.Quota, a.KV, opts.Clock)
	if err != nil {
		return nil, fmt.Errorf("quota tracker: %w", err)
	}
	a.Quota = tracker

	store, err := timeline.New(ctx, timeline.Deps{
		KV:        a.KV,
		Quota:     tracker,
		Generator: a.Generator,
		Minter:    persona.NewMinter(opts.Rand),
		Publisher: a.Publisher,
		Clock:     opts.Clock,
		Rand:      opts.Rand,
	}, cfg.Timeline)
	if err != nil {
		return nil, fmt.Errorf("timeline: %w", err)
	}
	a.Timeline = store
	a.closers = append(a.closers, store.Close)
	store.Start()

	a.logger.Debug().
		Str("storage", cfg.Storage.Backend).
		Str("llm", cfg.LLM.Backend).
		Int("items", len(store.Items())).
		Msg("app ready")
	ok = true
	return a, nil
}

func (a *App) openStorage(ctx context.Context) error {
	cfg := a.Config
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		a.KV = kv.NewMemory()

	case config.BackendFile:
		store, err := kv.OpenFile(cfg.StoragePath())
		if err != nil {
			return fmt.Errorf("open file storage: %w", err)
		}
		a.KV = store
		a.closers = append(a.closers, store.Close)

	case config.BackendSQLite:
		database, err := db.Open(db.Config{
			Path:          cfg.StoragePath(),
			BusyTimeoutMs: cfg.Storage.BusyTimeoutMs,
			MaxOpenConns:  db.DefaultConfig().MaxOpenConns,
		})
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		a.Database = database
		a.closers = append(a.closers, database.Close)
		if _, err := database.MigrateUp(ctx); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		a.KV = db.NewKVRepository(database)
		a.Events = db.NewEventRepository(database)

	case config.BackendPostgres:
		store, err := kv.OpenPostgres(ctx, cfg.Storage.DSN)
		if err != nil {
			return fmt.Errorf("open postgres storage: %w", err)
		}
		a.KV = store
		a.closers = append(a.closers, store.Close)

	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	return nil
}

// NewGenerator builds the configured LLM backend.
func NewGenerator(ctx context.Context, cfg config.LLMConfig) (llm.Generator, error) {
	switch cfg.Backend {
	case config.LLMProxy:
		return llm.NewProxyClient(llm.ProxyConfig{
			URL:             cfg.ProxyURL,
			Timeout:         cfg.Timeout,
			BreakerFailures: uint32(max(cfg.BreakerFailures, 1)),
			BreakerTimeout:  cfg.BreakerTimeout,
		})
	case config.LLMGemini:
		return llm.NewGeminiGenerator(ctx, llm.GeminiConfig{
			APIKey: cfg.APIKey(),
			Model:  cfg.Model,
		})
	case config.LLMStatic:
		return llm.NewDemo(nil), nil
	default:
		return nil, fmt.Errorf("unknown llm backend %q", cfg.Backend)
	}
}

// Close shuts services down in reverse order of construction.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
