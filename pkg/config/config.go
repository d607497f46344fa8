package config

import (
	"os"
	"runtime"
	"strconv"
	"time"
)

// Config holds engine-plane configuration, loaded once at process start.
type Config struct {
	Port     string
	LogLevel string
	LogFormat string // "json" | "text"

	WorkspaceRoot string
	ModulesDir    string
	CacheDir      string
	StateDir      string

	SchedulerConcurrency int

	IdempotencyTTL                 time.Duration
	IdempotencyCompactionThreshold int

	DevWriteDesktop bool
	SafeMode        bool

	TelemetryRingCapacity int
	TelemetryPerTraceCap  int

	CacheByteBudget int64

	ArtifactStorageType string // "fs" | "s3" | "gcs"
	ArtifactDataDir     string
	ArtifactS3Bucket    string
	ArtifactS3Region    string
	ArtifactS3Endpoint  string
	ArtifactS3Prefix    string
	ArtifactGCSBucket   string
	ArtifactGCSPrefix   string

	RedisAddr string

	// LimiterBackend selects the Scheduler's admission rate limiter:
	// "redis" (requires RedisAddr), "xtime" (golang.org/x/time/rate), or
	// "inmemory" (hand-rolled TokenBucket, the default).
	LimiterBackend    string
	BackpressureRPM   int
	BackpressureBurst int

	AdminTokenSecret string
}

// Load reads configuration from environment variables, falling back to
// sensible single-host defaults.
func Load() *Config {
	c := &Config{
		Port:      getenv("UICP_PORT", "8089"),
		LogLevel:  getenv("UICP_LOG_LEVEL", "INFO"),
		LogFormat: getenv("UICP_LOG_FORMAT", "json"),

		WorkspaceRoot: getenv("UICP_WORKSPACE_ROOT", "./workspace"),
		ModulesDir:    getenv("UICP_MODULES_DIR", "./workspace/modules"),
		CacheDir:      getenv("UICP_CACHE_DIR", "./workspace/cache"),
		StateDir:      getenv("UICP_STATE_DIR", "./workspace/state"),

		SchedulerConcurrency: envInt("UICP_SCHEDULER_CONCURRENCY", defaultConcurrency()),

		IdempotencyTTL:                 envDuration("UICP_IDEMPOTENCY_TTL", 15*time.Minute),
		IdempotencyCompactionThreshold: envInt("UICP_IDEMPOTENCY_COMPACTION_THRESHOLD", 1000),

		DevWriteDesktop: os.Getenv("UICP_DEV_WRITE_DESKTOP") == "true",
		SafeMode:        os.Getenv("UICP_SAFE_MODE") == "true",

		TelemetryRingCapacity: envInt("UICP_TELEMETRY_RING_CAPACITY", 200),
		TelemetryPerTraceCap:  envInt("UICP_TELEMETRY_PER_TRACE_CAP", 80),

		CacheByteBudget: envInt64("UICP_CACHE_BYTE_BUDGET", 512*1024*1024),

		ArtifactStorageType: getenv("UICP_ARTIFACT_STORAGE_TYPE", "fs"),
		ArtifactDataDir:     getenv("UICP_ARTIFACT_DATA_DIR", "./workspace"),
		ArtifactS3Bucket:    os.Getenv("UICP_ARTIFACT_S3_BUCKET"),
		ArtifactS3Region:    os.Getenv("UICP_ARTIFACT_S3_REGION"),
		ArtifactS3Endpoint:  os.Getenv("UICP_ARTIFACT_S3_ENDPOINT"),
		ArtifactS3Prefix:    os.Getenv("UICP_ARTIFACT_S3_PREFIX"),
		ArtifactGCSBucket:   os.Getenv("UICP_ARTIFACT_GCS_BUCKET"),
		ArtifactGCSPrefix:   os.Getenv("UICP_ARTIFACT_GCS_PREFIX"),

		RedisAddr: os.Getenv("REDIS_ADDR"),

		LimiterBackend:    getenv("UICP_LIMITER_BACKEND", "inmemory"),
		BackpressureRPM:   envInt("UICP_BACKPRESSURE_RPM", 120),
		BackpressureBurst: envInt("UICP_BACKPRESSURE_BURST", 20),

		AdminTokenSecret: os.Getenv("UICP_ADMIN_TOKEN_SECRET"),
	}
	return c
}

func defaultConcurrency() int {
	n := runtime.NumCPU()
	if n > 4 {
		return 4
	}
	if n < 1 {
		return 1
	}
	return n
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
