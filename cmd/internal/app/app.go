// Package app wires the Ripple server runtime: config, logging, HTTP routes,
// and the realtime engine with its two transport gateways.
//
// It is intentionally small and deterministic to keep behavior predictable.
package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"ripple/cmd/internal/realtime"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// App is the Ripple server runtime: it owns HTTP server wiring and the
// realtime engine's lifecycle.
type App struct {
	cfg Config
	log Logger

	dbPool    *pgxpool.Pool
	dbEnabled bool

	promReg *prometheus.Registry
	engine  *realtime.Engine
	ws      *realtime.WSGateway
	poll    *realtime.PollGateway
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := realtime.NewMetrics(promReg)

	var (
		dbPool    *pgxpool.Pool
		dbEnabled bool
		source    realtime.MembershipSource
		verifier  realtime.TokenVerifier
	)

	if cfg.DatabaseURL != "" {
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		dbPool = pool
		dbEnabled = true

		source, err = realtime.NewPostgresMembershipSource(pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		verifier, err = realtime.NewPostgresTokenVerifier(pool, cfg.TokenSchema, []byte(cfg.TokenHMACKey))
		if err != nil {
			pool.Close()
			return nil, err
		}
		log.Info("db.enabled.postgres_membership")
	} else {
		source = realtime.NewInMemoryMembershipSource()
		verifier = realtime.NewStaticTokenVerifier(parseStaticTokens(cfg.StaticTokens), []byte(cfg.TokenHMACKey))
		log.Info("db.disabled.inmemory_membership")
	}

	engine := realtime.NewEngine(log, source, realtime.EngineConfig{
		SendQueueSize:  cfg.SendQueueSize,
		LivenessWindow: cfg.LivenessWindow,
		SweepInterval:  cfg.SweepInterval,
	}, metrics)

	return &App{
		cfg:       cfg,
		log:       log,
		dbPool:    dbPool,
		dbEnabled: dbEnabled,
		promReg:   promReg,
		engine:    engine,
		ws:        realtime.NewWSGateway(log, engine, verifier),
		poll:      realtime.NewPollGateway(log, engine, verifier),
	}, nil
}

// Engine exposes the realtime facade to an embedding CRUD layer.
func (a *App) Engine() *realtime.Engine { return a.engine }

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.promReg, a.ws, a.poll)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           RequestLogger(mux, a.log),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 35*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 35*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.engine.Start(ctx)
	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.engine.Stop()
	if a.dbPool != nil {
		a.dbPool.Close()
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// parseStaticTokens parses "token=user,token2=user2" into a lookup map.
func parseStaticTokens(raw string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		token, userID, ok := strings.Cut(pair, "=")
		token = strings.TrimSpace(token)
		userID = strings.TrimSpace(userID)
		if !ok || token == "" || userID == "" {
			continue
		}
		out[token] = userID
	}
	return out
}
