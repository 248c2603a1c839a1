package app

import (
	"strings"
	"time"

	"github.com/yungbote/attune-backend/internal/platform/envutil"
	"github.com/yungbote/attune-backend/internal/platform/logger"
)

type Config struct {
	Port        string
	ServiceName string
	CORSOrigins string
	MetricsAddr string

	WorkerConcurrency  int
	WorkerMaxAttempts  int
	WorkerRetryDelay   time.Duration
	WorkerStaleRunning time.Duration

	PatternSweepCron       string
	QueueCollectorInterval time.Duration
	ShutdownTimeout        time.Duration
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Port:                   envutil.String("PORT", "8080"),
		ServiceName:            envutil.String("SERVICE_NAME", "attune-backend"),
		CORSOrigins:            envutil.String("CORS_ALLOWED_ORIGINS", ""),
		MetricsAddr:            envutil.String("METRICS_ADDR", ""),
		WorkerConcurrency:      envutil.Int("WORKER_CONCURRENCY", 4),
		WorkerMaxAttempts:      envutil.Int("WORKER_MAX_ATTEMPTS", 5),
		WorkerRetryDelay:       envutil.Seconds("WORKER_RETRY_DELAY_SECONDS", 30*time.Second),
		WorkerStaleRunning:     envutil.Seconds("WORKER_STALE_RUNNING_SECONDS", 30*time.Minute),
		PatternSweepCron:       envutil.String("PATTERN_SWEEP_CRON", "0 3 * * *"),
		QueueCollectorInterval: envutil.Seconds("METRICS_QUEUE_INTERVAL_SECONDS", 15*time.Second),
		ShutdownTimeout:        envutil.Seconds("SHUTDOWN_TIMEOUT_SECONDS", 20*time.Second),
	}
	if strings.EqualFold(cfg.PatternSweepCron, "off") {
		cfg.PatternSweepCron = ""
	}
	log.Info("Config loaded",
		"port", cfg.Port,
		"worker_concurrency", cfg.WorkerConcurrency,
		"pattern_sweep_cron", cfg.PatternSweepCron,
		"metrics_enabled", cfg.MetricsAddr != "",
	)
	return cfg
}
