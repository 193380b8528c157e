package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/hazyhaar/proofledger/internal/chain"
	"github.com/hazyhaar/proofledger/internal/config"
	"github.com/hazyhaar/proofledger/internal/db"
	"github.com/hazyhaar/proofledger/internal/identity"
	"github.com/hazyhaar/proofledger/internal/kv"
	"github.com/hazyhaar/proofledger/internal/ledger"
	"github.com/hazyhaar/proofledger/internal/metrics"
	"github.com/hazyhaar/proofledger/internal/service"
	"github.com/hazyhaar/proofledger/pkg/audit"
	"github.com/hazyhaar/proofledger/pkg/trace"
)

// app is the wired ledger shared by every command.
type app struct {
	ledger    *ledger.Ledger
	endpoints service.Endpoints
	clock     chain.Clock
	metrics   *metrics.Collector
	auditLog  *audit.SQLiteLogger
	traces    *trace.Store
	closers   []func() error
}

func loadConfig(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	setupLogging(cfg.Log)
	return cfg
}

// setupLogging installs the default slog logger. Output goes to stderr so
// the MCP stdio transport keeps stdout to itself.
func setupLogging(c config.LogConfig) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if strings.EqualFold(c.Format, "json") {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

// newApp opens the configured backend and initializes the ledger. With
// transports set it also wires metrics and the audit trail into the
// endpoints.
func newApp(ctx context.Context, cfg *config.Config, transports bool) (*app, error) {
	a := &app{}
	store, sqlDB, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store.Close)

	opts := []ledger.Option{
		ledger.WithLogger(slog.Default().With("component", "ledger")),
		ledger.WithNamespace(cfg.Store.Namespace),
	}
	if transports && cfg.Metrics.Enabled {
		a.metrics = metrics.New()
		opts = append(opts, ledger.WithNotifier(a.metrics))
	}
	a.ledger = ledger.New(store, opts...)

	params, err := genesisParams(cfg.Ledger.Params)
	if err != nil {
		a.Close()
		return nil, err
	}
	if _, err := a.ledger.Init(ctx, params); err != nil {
		a.Close()
		return nil, fmt.Errorf("initializing ledger: %w", err)
	}

	genesis, _ := cfg.Chain.GenesisTime()
	interval, _ := cfg.Chain.Interval()
	a.clock = chain.NewWallClock(genesis, interval)

	var wrap service.Wrap
	if transports {
		if a.metrics != nil {
			wrap.Metrics = a.metrics.Middleware
		}
		if cfg.Audit.Enabled {
			logger, err := a.auditLogger(sqlDB)
			if err != nil {
				a.Close()
				return nil, err
			}
			rec := audit.Recorder{
				Logger:   logger,
				Classify: classify,
				Height:   func(context.Context) uint64 { return a.clock.Height() },
			}
			wrap.Audit = rec.Middleware
		}
		if cfg.Audit.TraceSQL && sqlDB != nil {
			ts := trace.NewStore(sqlDB.DB)
			if err := ts.Init(); err != nil {
				a.Close()
				return nil, fmt.Errorf("trace store: %w", err)
			}
			sqlDB.SetTracer(ts)
			a.traces = ts
			a.closers = append(a.closers, ts.Close)
		}
	}
	a.endpoints = service.New(a.ledger, a.clock, wrap)
	return a, nil
}

func (a *app) auditLogger(sqlDB *db.DB) (audit.Logger, error) {
	if sqlDB == nil {
		return audit.SlogLogger{Logger: slog.Default().With("component", "audit")}, nil
	}
	l := audit.NewSQLiteLogger(sqlDB.DB)
	if err := l.Init(); err != nil {
		return nil, fmt.Errorf("audit log: %w", err)
	}
	a.auditLog = l
	a.closers = append(a.closers, l.Close)
	return l, nil
}

// Close releases resources in reverse order of acquisition. Safe to call
// more than once.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("close", "error", err)
		}
	}
	a.closers = nil
}

func openStore(ctx context.Context, cfg *config.Config) (kv.Store, *db.DB, error) {
	switch cfg.Store.Backend {
	case "memory":
		slog.Warn("memory backend: state is lost on exit")
		return kv.NewMemory(), nil, nil
	case "redis":
		r, err := kv.OpenRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, kv.RedisOptions{
			LockKey:  cfg.Redis.LockKey,
			LeaseTTL: cfg.Redis.Lease(),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("opening redis: %w", err)
		}
		return r, nil, nil
	case "postgres":
		p, err := kv.OpenPostgres(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("opening postgres: %w", err)
		}
		return p, nil, nil
	default:
		d, err := db.Open(cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		return d, d, nil
	}
}

// genesisParams normalizes the identities written in the config file.
func genesisParams(p ledger.Params) (ledger.Params, error) {
	owner, err := identity.Normalize(string(p.Owner))
	if err != nil {
		return p, fmt.Errorf("ledger.owner: %w", err)
	}
	oracle, err := identity.Normalize(string(p.Oracle))
	if err != nil {
		return p, fmt.Errorf("ledger.oracle: %w", err)
	}
	p.Owner, p.Oracle = owner, oracle
	return p, nil
}

func classify(err error) string {
	if k, ok := ledger.KindOf(err); ok {
		return k.String()
	}
	return ""
}
