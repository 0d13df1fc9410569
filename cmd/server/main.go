package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jimd-den/BlackPaper/internal/codec"
	"github.com/jimd-den/BlackPaper/internal/config"
	"github.com/jimd-den/BlackPaper/internal/handler"
	"github.com/jimd-den/BlackPaper/internal/hub"
	"github.com/jimd-den/BlackPaper/internal/relay"
	"github.com/jimd-den/BlackPaper/internal/service"
	"github.com/jimd-den/BlackPaper/internal/store/sqlite"
	"github.com/jimd-den/BlackPaper/internal/syncer"
	"github.com/jimd-den/BlackPaper/internal/watcher"
)

func main() {
	configPath := flag.String("config", "", "config file path (default: search standard locations)")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	dbPath := flag.String("db", "", "SQLite cache path (overrides config)")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	if err := run(log, *configPath, *addr, *dbPath); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger, configPath, addrOverride, dbOverride string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	log.Info("configuration loaded", "path", cfgPath, "config", cfg.Summary())

	if addrOverride != "" {
		cfg.Server.Addr = addrOverride
	}
	if dbOverride != "" {
		cfg.Database.Path = dbOverride
	}

	cache, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer cache.Close()
	log.Info("event cache opened", "path", cfg.Database.Path)

	dialCtx, dialCancel := context.WithTimeout(ctx, cfg.DialTimeout())
	pool, err := relay.NewPool(dialCtx, cfg.Relays, log)
	dialCancel()
	if err != nil {
		return err
	}
	relays := &switchableRelay{pool: pool}
	defer relays.Close()
	log.Info("relay pool connected", "relays", pool.Relays())

	bus := service.NewEventBus()
	deps := service.Deps{
		Relay:          relays,
		Cache:          cache,
		Bus:            bus,
		Log:            log,
		CollectWindow:  cfg.CollectWindow(),
		BlockedDomains: cfg.BlockedDomains,
	}

	sseHub := hub.New(log)
	sseHub.AttachBus(bus)
	go sseHub.Run(ctx)

	if cfg.Sync.Enabled {
		s := syncer.New(relays, cache, cfg.SyncInterval(), cfg.SyncLookback(), cfg.CollectWindow(), log)
		go s.Run(ctx)
		log.Info("background sync enabled", "interval", cfg.SyncInterval(), "lookback", cfg.SyncLookback())
	}

	mux := http.NewServeMux()
	h := handler.New(
		service.NewHypothesisService(deps),
		service.NewSourceService(deps),
		service.NewCommentService(deps),
		service.NewProfileService(deps),
		log,
	)
	h.Register(mux)
	mux.Handle("GET /api/events", sseHub)

	// Reconnect the pool when the relay list in the config file changes.
	if cfgPath != "" {
		w := watcher.New(cfgPath, func() {
			reloaded, _, err := config.LoadFromPath(cfgPath)
			if err != nil {
				log.Warn("ignoring config reload", "error", err)
				return
			}
			if err := relays.Swap(ctx, reloaded.Relays, reloaded.DialTimeout(), log); err != nil {
				log.Warn("relay reload failed, keeping current pool", "error", err)
				return
			}
			log.Info("relay pool reloaded", "relays", reloaded.Relays)
		}, log)
		go func() {
			if err := w.Watch(ctx); err != nil && ctx.Err() == nil {
				log.Warn("config watcher stopped", "error", err)
			}
		}()
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown", "error", err)
	}
	log.Info("server stopped")
	return nil
}

// loadConfig resolves the config: an explicit path must load, otherwise fall
// back to defaults when no file is found.
func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

// switchableRelay lets the config watcher replace the relay pool without
// restarting the services that hold it.
type switchableRelay struct {
	mu   sync.RWMutex
	pool *relay.Pool
}

func (s *switchableRelay) current() *relay.Pool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pool
}

func (s *switchableRelay) Publish(ctx context.Context, e *codec.Event) (relay.PublishResult, error) {
	return s.current().Publish(ctx, e)
}

func (s *switchableRelay) Collect(ctx context.Context, filters []codec.Filter, window time.Duration) ([]*codec.Event, error) {
	return s.current().Collect(ctx, filters, window)
}

// Swap dials a pool for the new relay list and retires the old one. The old
// pool stays in place when no new relay is reachable.
func (s *switchableRelay) Swap(ctx context.Context, urls []string, dialTimeout time.Duration, log *slog.Logger) error {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	next, err := relay.NewPool(dialCtx, urls, log)
	if err != nil {
		return err
	}

	s.mu.Lock()
	old := s.pool
	s.pool = next
	s.mu.Unlock()
	old.Close()
	return nil
}

func (s *switchableRelay) Close() {
	s.current().Close()
}
