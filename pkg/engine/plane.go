// Package engine assembles the Compute Plane and the Command Apply
// Pipeline into one in-process value: the EnginePlane. It replaces the
// teacher's global package-level server state with an explicit struct
// built once at startup and threaded through the HTTP/SSE bridge.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "modernc.org/sqlite"

	"github.com/uicp/engine/pkg/apply"
	"github.com/uicp/engine/pkg/artifacts"
	"github.com/uicp/engine/pkg/cache"
	"github.com/uicp/engine/pkg/compute"
	"github.com/uicp/engine/pkg/config"
	"github.com/uicp/engine/pkg/eventbus"
	"github.com/uicp/engine/pkg/kernel"
	"github.com/uicp/engine/pkg/observability"
	"github.com/uicp/engine/pkg/policy"
	"github.com/uicp/engine/pkg/queue"
	"github.com/uicp/engine/pkg/registry"
	"github.com/uicp/engine/pkg/runtime/sandbox"
)

// Plane is the fully wired engine: the Apply Engine sits behind the
// per-window Queue, and api.call's uicp://compute.call path is routed
// into the Scheduler, which shares an event bus and cache with it.
type Plane struct {
	Config    *config.Config
	Queue     *queue.Queue
	Apply     *apply.Engine
	Scheduler *compute.Scheduler
	Bus       *eventbus.Bus
	Cache     cache.Cache
	Registry  registry.Registry
	Gate      *policy.Gate
	Obs       *observability.Provider

	db     *sql.DB
	logger *slog.Logger
}

// Build constructs a Plane from cfg: it opens the sqlite cache index,
// selects an artifact store, loads the modules directory into a
// registry, and wires the Apply Engine and Compute Job Scheduler
// together through the Engine/Scheduler construction cycle resolved by
// Engine.SetComputeSubmitter.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Plane, error) {
	if logger == nil {
		logger = slog.Default()
	}

	for _, dir := range []string{cfg.WorkspaceRoot, cfg.ModulesDir, cfg.CacheDir, cfg.StateDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("engine: mkdir %s: %w", dir, err)
		}
	}

	gate, err := policy.NewGate(cfg.DevWriteDesktop)
	if err != nil {
		return nil, fmt.Errorf("engine: policy gate: %w", err)
	}

	blobStore, err := artifacts.NewStore(ctx, artifacts.Config{
		StorageType: artifacts.StoreType(cfg.ArtifactStorageType),
		DataDir:     cfg.ArtifactDataDir,
		S3Bucket:    cfg.ArtifactS3Bucket,
		S3Region:    cfg.ArtifactS3Region,
		S3Endpoint:  cfg.ArtifactS3Endpoint,
		S3Prefix:    cfg.ArtifactS3Prefix,
		GCSBucket:   cfg.ArtifactGCSBucket,
		GCSPrefix:   cfg.ArtifactGCSPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: artifact store: %w", err)
	}

	dbPath := fmt.Sprintf("%s/cache.db", cfg.CacheDir)
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("engine: open cache db: %w", err)
	}
	sqliteCache, err := cache.NewSQLiteCache(ctx, db, blobStore, cfg.CacheByteBudget)
	if err != nil {
		return nil, fmt.Errorf("engine: cache index: %w", err)
	}

	var keys registry.KeyStore
	reg, regErrs := registry.LoadModulesDir(cfg.ModulesDir, keys)
	for _, e := range regErrs {
		logger.Warn("module load skipped", "error", e)
	}

	var executor sandbox.Executor
	if cfg.SafeMode {
		executor = sandbox.NewInProcessExecutor()
	} else {
		rt, err := sandbox.NewRuntime(ctx)
		if err != nil {
			return nil, fmt.Errorf("engine: sandbox runtime: %w", err)
		}
		executor = rt
	}

	bus := eventbus.New()

	envHash, err := hostEnvHash()
	if err != nil {
		return nil, fmt.Errorf("engine: env hash: %w", err)
	}

	applyEngine := apply.New(apply.Dependencies{
		Gate:     gate,
		HTTP:     newHTTPDoer(gate),
		Files:    newLocalFileWriter(cfg.WorkspaceRoot, gate),
		Intents:  newNoopIntentDispatcher(logger),
		DevFlags: apply.DevFlags{SafeMode: cfg.SafeMode},
		EnvHash:  envHash,
	})

	scheduler := compute.New(reg, executor, sqliteCache, bus, applyEngine, cfg.WorkspaceRoot, cfg.SchedulerConcurrency, nil)

	var limiter kernel.LimiterStore
	switch cfg.LimiterBackend {
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("engine: UICP_LIMITER_BACKEND=redis requires REDIS_ADDR")
		}
		limiter = kernel.NewRedisLimiterStore(cfg.RedisAddr, "", 0)
	case "xtime":
		limiter = kernel.NewXTimeLimiterStore()
	default:
		limiter = kernel.NewInMemoryLimiterStore()
	}
	scheduler.WithBackpressure(limiter, kernel.BackpressurePolicy{
		RPM:   cfg.BackpressureRPM,
		Burst: cfg.BackpressureBurst,
	})

	applyEngine.SetComputeSubmitter(scheduler)

	q := queue.New(applyEngine.Run,
		queue.WithTTL(cfg.IdempotencyTTL),
		queue.WithCompactionThreshold(cfg.IdempotencyCompactionThreshold),
	)

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceName = "uicpd"
	obsCfg.Enabled = false
	obs, err := observability.New(ctx, obsCfg)
	if err != nil {
		return nil, fmt.Errorf("engine: observability: %w", err)
	}

	return &Plane{
		Config:    cfg,
		Queue:     q,
		Apply:     applyEngine,
		Scheduler: scheduler,
		Bus:       bus,
		Cache:     sqliteCache,
		Registry:  reg,
		Gate:      gate,
		Obs:       obs,
		db:        db,
		logger:    logger,
	}, nil
}

// Shutdown releases the telemetry exporters (bounded to 5 seconds) and
// the cache database handle. It does not wait for in-flight partitions
// or running compute jobs.
func (p *Plane) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if p.Obs != nil {
		if err := p.Obs.Shutdown(shutdownCtx); err != nil {
			p.logger.Warn("observability shutdown", "error", err)
		}
	}
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}
