// Command zygoted is the invoker daemon: it wires the window registry,
// model table, fleet-state publisher, container pool, and its
// collaborators together and runs until a termination signal arrives.
// Startup order: load config, init observability, construct storage
// clients, construct the pool, start background loops, serve HTTP,
// wait for signal, shut down.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/oriys/zygote/internal/activationack"
	"github.com/oriys/zygote/internal/activationfeed"
	"github.com/oriys/zygote/internal/activationstore"
	"github.com/oriys/zygote/internal/backend"
	"github.com/oriys/zygote/internal/config"
	"github.com/oriys/zygote/internal/containerpool"
	"github.com/oriys/zygote/internal/dockerbackend"
	"github.com/oriys/zygote/internal/fleetstate"
	"github.com/oriys/zygote/internal/healthprobe"
	"github.com/oriys/zygote/internal/logcollect"
	"github.com/oriys/zygote/internal/logging"
	"github.com/oriys/zygote/internal/metrics"
	"github.com/oriys/zygote/internal/modeltable"
	"github.com/oriys/zygote/internal/tracing"
	"github.com/oriys/zygote/internal/window"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "zygoted",
		Short: "zygote invoker daemon",
		Long:  "Runs the container pool, window registry, model table, and fleet-state publisher for one invoker.",
		RunE:  runDaemon,
	}
	rootCmd.Flags().StringVar(&configFile, "config", "", "path to a JSON config file (optional, env vars override)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	var cfg *config.Config
	if configFile != "" {
		var err error
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}
	config.LoadFromEnv(cfg)

	logging.InitStructured(cfg.Logging.Format, cfg.Logging.Level)
	logging.Op().Info("zygoted starting", "http_addr", cfg.Daemon.HTTPAddr)

	var m *metrics.PrometheusMetrics
	if cfg.Metrics.Enabled {
		m = metrics.InitPrometheus(cfg.Metrics.Namespace)
	}

	if err := tracing.Init(context.Background(), tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: "zygoted",
		SampleRate:  cfg.Tracing.SampleRate,
	}); err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			logging.Op().Warn("tracing shutdown failed", "error", err)
		}
	}()

	redisClient := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
	})
	defer redisClient.Close()

	ctx := context.Background()
	store, err := activationstore.NewPostgresStore(ctx, cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("connect activation store: %w", err)
	}

	factory, err := dockerbackend.NewFactory(dockerbackend.Config{
		AgentTimeout: cfg.Docker.AgentTimeout,
		CPULimit:     cfg.Docker.CPULimit,
	})
	if err != nil {
		return fmt.Errorf("init docker backend: %w", err)
	}

	ack := activationack.NewRedisAcker(redisClient)
	feed := activationfeed.NewRedisFeed(redisClient, 200*time.Millisecond)
	fleet := fleetstate.NewRedisPublisher(redisClient)
	logs := logcollect.NewInMemoryCollector(10*time.Minute, func(ctx context.Context, transactionID string) (backend.ActivationResponse, error) {
		return backend.ActivationResponse{}, fmt.Errorf("no pending output cached for %s", transactionID)
	})

	windows := window.New()
	models := modeltable.New()

	invokerID := os.Getenv("ZYGOTE_INVOKER_ID")
	if invokerID == "" {
		host, _ := os.Hostname()
		invokerID = host
	}

	poolCfg := containerpool.Config{
		UnusedTimeout:                  cfg.Pool.UnusedTimeout,
		PrewarmExpirationCheckInterval: cfg.Pool.PrewarmExpirationCheckInterval,
		PrewarmExpirationVariance:      cfg.Pool.PrewarmExpirationVariance,
		UserMemoryMB:                   cfg.Pool.UserMemoryMB,
		ModelMemoryBudgetMB:            cfg.Pool.ModelMemoryBudgetMB,
		ColdStartThreshold:             cfg.Pool.ColdStartThreshold,
		RunBufferWarnInterval:          cfg.Pool.RunBufferWarnInterval,
		InvokerID:                      invokerID,
		HealthProbe: healthprobe.Config{
			CheckPeriod: cfg.HealthProbe.CheckPeriod,
			MaxFails:    cfg.HealthProbe.MaxFails,
		},
	}

	pool := containerpool.New(factory, ack, store, logs, feed, fleet, windows, models, m, poolCfg, defaultPrewarmConfigs(cfg))

	go pool.Loop()

	loopsCtx, cancelLoops := context.WithCancel(context.Background())
	pool.StartBackgroundLoops(loopsCtx)

	var httpServer *http.Server
	if cfg.Daemon.HTTPAddr != "" {
		httpServer = startControlServer(cfg.Daemon.HTTPAddr, pool)
		logging.Op().Info("control HTTP server started", "addr", cfg.Daemon.HTTPAddr)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logging.Op().Info("shutdown signal received")
	cancelLoops()
	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = httpServer.Shutdown(shutdownCtx)
		cancel()
	}
	return nil
}

// defaultPrewarmConfigs seeds a single static prewarm shape (python,
// 256 MB) so a freshly started invoker has warm capacity before the first activation
// arrives, matching spec.md §4.3's "on pool startup" sweep.
func defaultPrewarmConfigs(cfg *config.Config) []containerpool.PrewarmingConfig {
	return []containerpool.PrewarmingConfig{
		{
			InitialCount: 1,
			Kind:         "python",
			MemoryMB:     256,
			Reactive: &containerpool.ReactivePrewarmingConfig{
				MinCount:  1,
				MaxCount:  8,
				Threshold: cfg.Pool.ColdStartThreshold,
				Increment: 1,
			},
		},
	}
}

func startControlServer(addr string, pool *containerpool.Pool) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSONStats(w, pool.Stats())
	})

	mux.Handle("GET /metrics", metrics.Handler())

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Op().Error("control HTTP server stopped", "error", err)
		}
	}()
	return server
}

func writeJSONStats(w http.ResponseWriter, stats containerpool.Stats) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stats)
}
