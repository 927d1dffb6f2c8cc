package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	var errs ValidationErrors

	// SKIP_THRESHOLD_SECONDS must be a finite, non-negative number
	if cfg.SkipThresholdStr != "" {
		v, err := strconv.ParseFloat(cfg.SkipThresholdStr, 64)
		switch {
		case err != nil:
			errs = append(errs, ValidationError{
				Field:   "SKIP_THRESHOLD_SECONDS",
				Message: fmt.Sprintf("must be a number, got %q", cfg.SkipThresholdStr),
			})
		case math.IsNaN(v) || math.IsInf(v, 0):
			errs = append(errs, ValidationError{
				Field:   "SKIP_THRESHOLD_SECONDS",
				Message: "must be finite",
			})
		case v < 0:
			errs = append(errs, ValidationError{
				Field:   "SKIP_THRESHOLD_SECONDS",
				Message: "must not be negative",
			})
		}
	}

	errs = checkPositiveDuration(errs, "DB_OP_TIMEOUT", cfg.DBOpTimeoutStr)
	errs = checkPositiveDuration(errs, "DB_CONN_MAX_LIFETIME", cfg.DBConnMaxLifetimeStr)
	errs = checkPositiveDuration(errs, "HTTP_SHUTDOWN_TIMEOUT", cfg.HTTPShutdownTimeoutStr)
	errs = checkPositiveDuration(errs, "RECORDER_DRAIN_TIMEOUT", cfg.RecorderDrainTimeoutStr)
	errs = checkPositiveDuration(errs, "ANALYTICS_RETENTION", cfg.AnalyticsRetentionStr)
	errs = checkPositiveDuration(errs, "RECORDER_BREAKER_COOLDOWN", cfg.RecorderBreakerCooldownStr)

	if cfg.MetricsEnabled {
		if !strings.HasPrefix(cfg.MetricsPath, "/") {
			errs = append(errs, ValidationError{
				Field:   "METRICS_PATH",
				Message: fmt.Sprintf("must start with '/', got %q", cfg.MetricsPath),
			})
		}
		if port, err := strconv.Atoi(cfg.MetricsPort); err != nil || port < 1 || port > 65535 {
			errs = append(errs, ValidationError{
				Field:   "METRICS_PORT",
				Message: fmt.Sprintf("must be a port number between 1 and 65535, got %q", cfg.MetricsPort),
			})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func checkPositiveDuration(errs ValidationErrors, field, value string) ValidationErrors {
	if value == "" {
		return errs
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("invalid duration: %v", err),
		})
	}
	if d <= 0 {
		return append(errs, ValidationError{
			Field:   field,
			Message: "must be positive",
		})
	}
	return errs
}
