package main

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/djlord-it/adhoc-skipper/internal/config"
)

// captureLogOutput calls logConfigWarnings with the given config and returns
// the captured log output as a string.
func captureLogOutput(cfg *config.Config) string {
	var buf bytes.Buffer
	original := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(original)

	logConfigWarnings(cfg)
	return buf.String()
}

func TestLogConfigWarnings_FullyConfigured(t *testing.T) {
	cfg := &config.Config{
		SkipThresholdSeconds: 60,
		DatabaseURL:          "postgres://localhost/adhoc",
		RedisAddr:            "localhost:6379",
		MetricsEnabled:       true,
	}
	output := captureLogOutput(cfg)

	if output != "" {
		t.Errorf("expected no warnings, got: %s", output)
	}
}

func TestLogConfigWarnings_Bare(t *testing.T) {
	cfg := &config.Config{SkipThresholdSeconds: 60}
	output := captureLogOutput(cfg)

	for _, want := range []string{
		"WARNING: DATABASE_URL not set",
		"INFO: REDIS_ADDR not set",
		"WARNING: METRICS_ENABLED=false",
		"INFO: no recorder targets configured",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q, got: %s", want, output)
		}
	}

	if strings.Contains(output, "SKIP_THRESHOLD_SECONDS=0") {
		t.Error("did not expect zero-threshold warning, got:", output)
	}
}

func TestLogConfigWarnings_ZeroThreshold(t *testing.T) {
	cfg := &config.Config{
		SkipThresholdSeconds: 0,
		DatabaseURL:          "postgres://localhost/adhoc",
		MetricsEnabled:       true,
	}
	output := captureLogOutput(cfg)

	if !strings.Contains(output, "WARNING: SKIP_THRESHOLD_SECONDS=0") {
		t.Error("expected zero-threshold warning, got:", output)
	}
	if strings.Contains(output, "no recorder targets") {
		t.Error("did not expect no-targets info when DATABASE_URL is set, got:", output)
	}
}
