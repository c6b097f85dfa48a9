package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/authn"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/db"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/ratelimit"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/session"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/services/frontend/internal/config"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/services/frontend/internal/handlers"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/services/frontend/internal/upstream"
)

func main() {
	var configPath string
	cmd := &cobra.Command{
		Use:           "server",
		Short:         "Run the fish exports front end",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = os.Getenv("FES_CONFIG")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file (default $FES_CONFIG)")
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger, err := newLogger(cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	var pool *pgxpool.Pool
	if cfg.Storage.DatabaseURL != "" {
		pool, err = db.Connect(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := db.Migrate(ctx, pool); err != nil {
			return err
		}
	}

	sessions, closeSessions, err := newSessionStore(ctx, cfg, pool)
	if err != nil {
		return err
	}
	defer closeSessions()

	events := []authn.Recorder{authn.LogRecorder{Logger: logger}}
	if pool != nil {
		events = append(events, authn.PostgresRecorder{DB: pool})
	}

	retry := upstream.DefaultRetry()
	retry.MaxAttempts = cfg.Upstream.RetryAttempts
	docs := upstream.NewClient(cfg.Upstream.OrchestrationURL, cfg.Upstream.StaticToken,
		upstream.WithHTTPClient(newUpstreamHTTP()), upstream.WithTimeout(cfg.Upstream.Timeout), upstream.WithRetry(retry))
	ref := upstream.NewReferenceClient(cfg.Upstream.ReferenceURL, cfg.Upstream.ReferenceUsername, cfg.Upstream.ReferencePassword,
		upstream.WithHTTPClient(newUpstreamHTTP()), upstream.WithTimeout(cfg.Upstream.Timeout), upstream.WithRetry(retry))

	srv := handlers.New(handlers.Deps{
		Documents:      docs,
		Reference:      ref,
		Sessions:       sessions,
		Logger:         logger,
		Events:         authn.Multi(events...),
		AddressLimiter: ratelimit.New(cfg.AddressLookupPerMinute, time.Minute),
		SignedOutURL:   cfg.Server.SignedOutURL,
		Features: handlers.Features{
			UploadLandings: cfg.Features.UploadLandings,
			CopyVoid:       cfg.Features.CopyVoid,
		},
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", httpServer.Addr), zap.String("session_backend", cfg.Session.Backend))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newSessionStore(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (session.Store, func(), error) {
	codec, err := session.NewCodec(cfg.Session.Secrets...)
	if err != nil {
		return nil, nil, err
	}
	opts := session.CookieOptions{MaxAge: cfg.Session.TTL, Secure: cfg.Session.CookieSecure}
	switch cfg.Session.Backend {
	case config.SessionBackendRedis:
		rdb, err := session.NewRedisClient(ctx, cfg.Storage.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return session.NewRedisStore(rdb, codec, opts), func() { _ = rdb.Close() }, nil
	case config.SessionBackendPostgres:
		if pool == nil {
			return nil, nil, errors.New("postgres session backend requires DATABASE_URL")
		}
		return session.NewPostgresStore(pool, codec, opts), func() {}, nil
	default:
		return session.NewCookieStore(codec, opts), func() {}, nil
	}
}

// newUpstreamHTTP returns a client with a larger idle pool per host.
func newUpstreamHTTP() *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.MaxIdleConnsPerHost = 32
	tr.IdleConnTimeout = 90 * time.Second
	return &http.Client{Transport: tr}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}
