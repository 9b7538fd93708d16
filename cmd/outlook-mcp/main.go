// Command outlook-mcp runs the Outlook MCP gateway: a stateless HTTP
// server that exposes Microsoft Graph mail and calendar operations as
// MCP tools, authenticating callers by passing their Entra bearer
// tokens through to Graph.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/entragate/outlook-mcp/auth"
	"github.com/entragate/outlook-mcp/config"
	"github.com/entragate/outlook-mcp/graph"
	"github.com/entragate/outlook-mcp/httpauth"
	"github.com/entragate/outlook-mcp/internal/logctx"
	"github.com/entragate/outlook-mcp/outlooktools"
	"github.com/entragate/outlook-mcp/ratelimit"
	"github.com/entragate/outlook-mcp/ratelimit/memory"
	redisrl "github.com/entragate/outlook-mcp/ratelimit/redis"
	"github.com/entragate/outlook-mcp/server"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}

	log := slog.New(logctx.Handler{
		Handler: slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	})
	slog.SetDefault(log)

	userLimiter, err := newLimiter(ctx, cfg, cfg.RateLimitRequests, cfg.RateLimitWindow, "rl:user:")
	if err != nil {
		return err
	}
	defer userLimiter.Close()

	registerLimiter, err := newLimiter(ctx, cfg, cfg.RegisterLimitRequests, cfg.RegisterLimitWindow, "rl:reg:")
	if err != nil {
		return err
	}
	defer registerLimiter.Close()

	graphOpts := []graph.Option{graph.WithLogger(log)}
	if cfg.GraphBaseURL != "" {
		graphOpts = append(graphOpts, graph.WithBaseURL(cfg.GraphBaseURL))
	}
	gc := graph.NewClient(graphOpts...)
	tools := outlooktools.New(gc, log)

	parser := &auth.Parser{AllowedTenants: cfg.AllowedTenants, Logger: log}
	gate := httpauth.New(parser,
		httpauth.WithLogger(log),
		httpauth.WithRealm(cfg.ServerName),
		httpauth.WithUserLimiter(userLimiter),
	)

	h, err := server.New(ctx, server.Config{
		PublicEndpoint:  cfg.PublicEndpoint,
		ServerName:      cfg.ServerName,
		Version:         version,
		EntraTenant:     cfg.EntraTenant,
		Discover:        cfg.DiscoverAuthServer,
		Gate:            gate,
		Tools:           tools,
		RegisterLimiter: registerLimiter,
		Logger:          log,
	})
	if err != nil {
		return err
	}
	gate.SetResourceMetadataURL(h.ResourceMetadataURL())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server.start",
			slog.String("addr", cfg.ListenAddr),
			slog.String("endpoint", cfg.PublicEndpoint),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("server.shutdown.start")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("server.shutdown.ok")
	return nil
}

func newLimiter(ctx context.Context, cfg *config.Config, limit int, window time.Duration, prefix string) (ratelimit.Limiter, error) {
	if cfg.RedisAddr != "" {
		l, err := redisrl.NewFromAddr(ctx, cfg.RedisAddr, redisrl.Config{
			KeyPrefix: prefix,
			Limit:     limit,
			Window:    window,
		})
		if err != nil {
			return nil, fmt.Errorf("redis limiter: %w", err)
		}
		return l, nil
	}
	return memory.New(memory.Config{Limit: limit, Window: window}), nil
}
