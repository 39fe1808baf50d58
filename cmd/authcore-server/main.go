// Command authcore-server serves the authentication endpoints of the portal
// backed by Postgres (accounts), Redis (throttle and rate limits) and, when
// a bucket is configured, S3 (encrypted documents).
//
// Configuration comes from config.yaml (or $AUTHCORE_CONFIG) and AUTHCORE_*
// environment variables; see internal/configload.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/connectit/authcore"
	"github.com/connectit/authcore/accounts"
	"github.com/connectit/authcore/internal/configload"
	"github.com/connectit/authcore/internal/logging"
	"github.com/connectit/authcore/metrics/export/prometheus"
	"github.com/connectit/authcore/session"
	"github.com/connectit/authcore/vault"
	"github.com/redis/go-redis/v9"
)

func main() {
	settings, err := configload.Load(os.Getenv("AUTHCORE_CONFIG"))
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(settings.App.LogLevel, settings.App.ServiceName, settings.App.Env)
	if err := run(settings, logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(settings *configload.Settings, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := settings.EngineConfig()
	if err != nil {
		return err
	}

	// ---------- postgres ----------
	db, err := accounts.Open(ctx, settings.DB.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := accounts.RunMigrations(ctx, db); err != nil {
		return err
	}
	repo := accounts.NewRepository(db)

	// ---------- redis ----------
	rdb := redis.NewClient(&redis.Options{
		Addr:     settings.Redis.Addr,
		Password: settings.Redis.Password,
		DB:       settings.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return err
	}

	// ---------- audit ----------
	sinks := authcore.MultiSink{authcore.NewSlogSink(logger)}
	if settings.Auth.AuditFile != "" {
		f, err := os.OpenFile(settings.Auth.AuditFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return err
		}
		defer f.Close()
		sinks = append(sinks, authcore.NewJSONWriterSink(f))
	}

	// ---------- engine ----------
	builder := authcore.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccounts(repo).
		WithLogger(logger).
		WithAuditSink(sinks)

	if settings.Auth.SessionBinding == configload.BindingRedis {
		builder.WithSessionBindings(session.NewStore(rdb, cfg.Session.BindingPrefix, cfg.Session.MaxLifetime))
	}

	if settings.S3.Bucket != "" {
		backend, err := vault.NewS3Backend(ctx, settings.S3Config())
		if err != nil {
			return err
		}
		builder.WithDocumentBackend(backend)
	}

	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	report := engine.SecurityReport()
	logger.Info("engine ready",
		"session_binding", report.SessionBindingStore,
		"lockout_threshold", report.LockoutThreshold,
		"rate_limiting", report.RateLimitingActive,
		"audit", report.AuditEnabled,
	)

	// ---------- http ----------
	mux := http.NewServeMux()
	newAPI(engine, repo).routes(mux)
	mux.Handle("GET "+settings.App.MetricsPath, prometheus.Handler(engine))

	srv := &http.Server{
		Addr:         settings.App.HTTP.Addr,
		Handler:      mux,
		ReadTimeout:  settings.App.HTTP.ReadTimeout,
		WriteTimeout: settings.App.HTTP.WriteTimeout,
		IdleTimeout:  settings.App.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
