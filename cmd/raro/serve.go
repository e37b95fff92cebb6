package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/raro-systems/raro/pkg/breaker"
	"github.com/raro-systems/raro/pkg/cachereg"
	"github.com/raro-systems/raro/pkg/config"
	"github.com/raro-systems/raro/pkg/eventbus"
	"github.com/raro-systems/raro/pkg/livelog"
	"github.com/raro-systems/raro/pkg/llmclient"
	"github.com/raro-systems/raro/pkg/noderegistry"
	"github.com/raro-systems/raro/pkg/observability"
	"github.com/raro-systems/raro/pkg/pattern"
	"github.com/raro-systems/raro/pkg/persistence"
	"github.com/raro-systems/raro/pkg/scheduler"
	raroserver "github.com/raro-systems/raro/pkg/server"
	"github.com/raro-systems/raro/pkg/signature"
	"github.com/raro-systems/raro/pkg/state"
	"github.com/raro-systems/raro/pkg/storage"
)

// ServeCmd starts the runtime kernel: every store, the event bus, the
// Circuit Breaker, the Pattern Engine, the LLM adapter client, and the
// HTTP/WS Surface, wired as the structured value design note in §9
// describes — one Kernel and one Server per process, not singletons.
type ServeCmd struct {
	Config      string `short:"c" help:"Path to kernel YAML config." type:"path"`
	ConfigType  string `help:"Config backend (file, consul, etcd)." default:"file"`
	Host        string `help:"Override configured listen host."`
	Port        int    `help:"Override configured listen port."`
	AdapterURL  string `help:"Override the LLM adapter service base URL."`
	RedisAddr   string `help:"Override the Redis persistence address."`
	StorageRoot string `help:"Override the file storage root."`
}

func (c *ServeCmd) Run() error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	obs, err := observability.NewManager(ctx, "raro-kernel")
	if err != nil {
		return fmt.Errorf("serve: init observability: %w", err)
	}
	defer obs.Shutdown(context.Background())

	var artifacts *persistence.Manager
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("serve: redis unreachable, persistence disabled", "addr", cfg.RedisAddr, "error", err)
			rdb = nil
			artifacts = persistence.New(nil)
		} else {
			artifacts = persistence.New(rdb)
			slog.Info("serve: persistence enabled", "addr", cfg.RedisAddr)
		}
	} else {
		artifacts = persistence.New(nil)
	}

	bus := eventbus.New(0)
	states := state.New(artifacts)
	nodes := noderegistry.New()
	signatures := signature.New()
	cache := cachereg.New()
	brk := breaker.New(states, bus)
	adapter := llmclient.NewAdapterClient(cfg.AdapterURL)
	layout := storage.New(cfg.StorageRoot)

	kernel := scheduler.New(states, nodes, signatures, cache, bus, brk, adapter, artifacts, layout)
	kernel.SetObservability(obs)

	if err := rehydrate(ctx, artifacts, states); err != nil {
		slog.Error("serve: rehydration failed", "error", err)
	}

	engine := pattern.New()
	engine.Register(pattern.OnFailureRequestApproval(func(_ context.Context, ev eventbus.Event) {
		slog.Warn("serve: run awaiting approval", "run_id", ev.RunID, "agent_id", ev.AgentID)
	}))
	go engine.Run(ctx, bus)

	bridge := livelog.New(rdb, bus)
	go bridge.Run(ctx)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	srv := raroserver.New(addr, kernel, signatures, bus, obs)

	errCh := make(chan error, 2)
	srv.Start(errCh)
	slog.Info("serve: kernel listening", "addr", addr, "adapter_url", cfg.AdapterURL)

	if cfg.MetricsAddr != "" {
		go func() {
			metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: obs.MetricsHandler(), ReadHeaderTimeout: 10 * time.Second}
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("serve: metrics listener: %w", err)
			}
		}()
		slog.Info("serve: metrics listening", "addr", cfg.MetricsAddr)
	}

	select {
	case <-ctx.Done():
		slog.Info("serve: shutting down")
	case err := <-errCh:
		slog.Error("serve: fatal error", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Stop(shutdownCtx)
}

func (c *ServeCmd) loadConfig() (*config.ServerConfig, error) {
	var cfg *config.ServerConfig
	if c.Config != "" {
		loader, err := config.NewLoader(config.LoaderOptions{
			Type: config.BackendType(c.ConfigType),
			Path: c.Config,
		})
		if err != nil {
			return nil, fmt.Errorf("serve: build config loader: %w", err)
		}
		cfg, err = loader.Load()
		if err != nil {
			return nil, fmt.Errorf("serve: load config: %w", err)
		}
	} else {
		cfg = &config.ServerConfig{}
		cfg.SetDefaults()
	}

	if c.Host != "" {
		cfg.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Port = c.Port
	}
	if c.AdapterURL != "" {
		cfg.AdapterURL = c.AdapterURL
	}
	if c.RedisAddr != "" {
		cfg.RedisAddr = c.RedisAddr
	}
	if c.StorageRoot != "" {
		cfg.StorageRoot = c.StorageRoot
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("serve: invalid config: %w", err)
	}
	return cfg, nil
}

// rehydrate implements §4.3/§6.6/S7's boot-time recovery: read every
// run the Persistence Layer still lists as active, demote any still
// "Running" to "Failed" (already done inside
// RehydrateActiveRuns), and install the result into the in-memory
// State Store so it is visible, though terminal. Each run's
// installation is independent of the others, so it fans out through
// an errgroup rather than a plain loop.
func rehydrate(ctx context.Context, artifacts *persistence.Manager, states *state.Store) error {
	runs, err := artifacts.RehydrateActiveRuns(ctx)
	if err != nil {
		return fmt.Errorf("rehydrate: %w", err)
	}
	if len(runs) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, run := range runs {
		run := run
		g.Go(func() error {
			states.Restore(run)
			if err := artifacts.Persist(gctx, run); err != nil {
				slog.Warn("serve: failed to persist rehydrated run", "run_id", run.RunID, "error", err)
			}
			slog.Info("serve: rehydrated run", "run_id", run.RunID, "status", run.Status)
			return nil
		})
	}
	return g.Wait()
}
