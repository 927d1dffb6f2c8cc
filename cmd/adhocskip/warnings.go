package main

import (
	"log"

	"github.com/djlord-it/adhoc-skipper/internal/config"
)

// logConfigWarnings logs operational warnings for risky or degraded configurations.
func logConfigWarnings(cfg *config.Config) {
	if cfg.SkipThresholdSeconds == 0 {
		log.Println("adhocskip: WARNING: SKIP_THRESHOLD_SECONDS=0 - every scheduled run that starts late by any amount will be skipped")
	}

	if cfg.DatabaseURL == "" {
		log.Println("adhocskip: WARNING: DATABASE_URL not set - decisions are logged but not audited; GET /decisions is disabled")
	}

	if cfg.RedisAddr == "" {
		log.Println("adhocskip: INFO: REDIS_ADDR not set - decision counters disabled")
	}

	if !cfg.MetricsEnabled {
		log.Println("adhocskip: WARNING: METRICS_ENABLED=false - skip rates and recorder failures are not observable")
	}

	if cfg.DatabaseURL == "" && cfg.RedisAddr == "" {
		log.Println("adhocskip: INFO: no recorder targets configured - decisions are consumed and dropped after logging")
	}
}
