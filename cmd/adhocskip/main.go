package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/djlord-it/adhoc-skipper/internal/analytics"
	"github.com/djlord-it/adhoc-skipper/internal/api"
	"github.com/djlord-it/adhoc-skipper/internal/circuitbreaker"
	"github.com/djlord-it/adhoc-skipper/internal/classifier"
	"github.com/djlord-it/adhoc-skipper/internal/config"
	"github.com/djlord-it/adhoc-skipper/internal/gate"
	"github.com/djlord-it/adhoc-skipper/internal/metrics"
	"github.com/djlord-it/adhoc-skipper/internal/recorder"
	"github.com/djlord-it/adhoc-skipper/internal/store/postgres"
	"github.com/djlord-it/adhoc-skipper/internal/transport/channel"

	_ "github.com/lib/pq"
)

// Build-time variables set via -ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitSuccess       = 0
	exitRuntimeError  = 1
	exitInvalidConfig = 2
	exitSkipped       = 3
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitRuntimeError)
	}

	cmd := os.Args[1]

	switch cmd {
	case "serve":
		os.Exit(runServe())
	case "classify":
		os.Exit(runClassify(os.Args[2:], os.Stdout, os.Stderr, nil))
	case "validate":
		os.Exit(runValidate())
	case "config":
		os.Exit(runConfig())
	case "version":
		os.Exit(runVersion())
	case "--help", "-h", "help":
		printUsage()
		os.Exit(exitSuccess)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(exitRuntimeError)
	}
}

func printUsage() {
	fmt.Println(`adhocskip - skip stale scheduled runs, always allow manual runs

Usage:
  adhocskip <command> [flags]

Commands:
  serve      Start the classification HTTP API
  classify   Classify one invocation; exit 0 = proceed, 3 = skip
  validate   Validate configuration (no connections made)
  config     Print effective configuration as JSON (secrets masked)
  version    Print version information

Classify flags:
  --run-id ID              Run identifier ("manual__..." always proceeds)
  --scheduled-at TIME      Scheduled logical time (RFC3339)
  --cron EXPR              Derive the scheduled time from the latest cron slot
  --tz ZONE                IANA timezone for --cron (default: "UTC")
  --now TIME               Evaluation time (RFC3339, default: current time)
  --threshold SECONDS      Override SKIP_THRESHOLD_SECONDS

Environment Variables:
  SKIP_THRESHOLD_SECONDS    Max delay before a scheduled run is skipped (default: "60")
  HTTP_ADDR                 HTTP server address (default: ":8080", falls back to PORT)

  DATABASE_URL              PostgreSQL decision audit log (optional)
  REDIS_ADDR                Redis address for decision counters (optional)
  ANALYTICS_RETENTION       Counter retention (default: "24h")

  DB_OP_TIMEOUT             Database operation timeout (default: "5s")
  DB_MAX_OPEN_CONNS         Max open database connections (default: "10")
  DB_MAX_IDLE_CONNS         Max idle database connections (default: "2")
  DB_CONN_MAX_LIFETIME      Max connection lifetime (default: "30m")

  HTTP_SHUTDOWN_TIMEOUT     Graceful HTTP shutdown timeout (default: "10s")
  RECORDER_DRAIN_TIMEOUT    Recorder decision drain timeout (default: "30s")
  EVENTBUS_BUFFER_SIZE      Buffered decisions awaiting the recorder (default: "100")
  RECORDER_BREAKER_THRESHOLD  Consecutive write failures before a target is paused (default: "5", 0 disables)
  RECORDER_BREAKER_COOLDOWN   Pause before retrying a failing target (default: "30s")

  METRICS_ENABLED           Enable Prometheus metrics (default: "false")
  METRICS_PATH              Metrics endpoint path (default: "/metrics")
  METRICS_PORT              Metrics server port (default: "9090")`)
}

func runServe() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}

	logConfigWarnings(&cfg)

	c, err := classifier.New(classifier.Config{ThresholdSeconds: cfg.SkipThresholdSeconds})
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}

	// Initialize metrics sink (optional)
	var metricsSink metrics.Sink = metrics.NewNoopSink()
	var metricsServer *http.Server

	if cfg.MetricsEnabled {
		metricsSink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer)
		log.Printf("adhocskip: metrics enabled (port=%s, path=%s)", cfg.MetricsPort, cfg.MetricsPath)

		// Start metrics HTTP server on separate port
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.MetricsPath, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:    ":" + cfg.MetricsPort,
			Handler: metricsMux,
		}
		go func() {
			log.Printf("adhocskip: metrics server listening on :%s", cfg.MetricsPort)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("adhocskip: metrics server error: %v", err)
			}
		}()
	}

	rec := recorder.New().
		WithDrainTimeout(cfg.RecorderDrainTimeout).
		WithMetrics(metricsSink).
		WithCircuitBreaker(circuitbreaker.New(cfg.RecorderBreakerThreshold, cfg.RecorderBreakerCooldown))

	var store *postgres.Store
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
			return exitRuntimeError
		}
		defer db.Close()

		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
		db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)

		log.Printf("adhocskip: db pool configured (max_open=%d, max_idle=%d, max_lifetime=%s)",
			cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime)

		store = postgres.New(db, cfg.DBOpTimeout)
		if err := store.Ping(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
			return exitRuntimeError
		}
		if err := store.ProbeSchema(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return exitRuntimeError
		}
		rec = rec.WithStore(store)
		log.Println("adhocskip: decision audit log enabled")
	}

	var counters *analytics.RedisSink
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})
		defer redisClient.Close()
		counters = analytics.NewRedisSink(redisClient, cfg.AnalyticsRetention)
		rec = rec.WithAnalytics(counters)
		log.Printf("adhocskip: analytics enabled (redis=%s, retention=%s)", cfg.RedisAddr, cfg.AnalyticsRetention)
	}

	bus := channel.NewEventBus(cfg.EventBusBufferSize, channel.WithMetrics(metricsSink))

	g := gate.New(c).
		WithMetrics(metricsSink).
		WithRecorder(bus)

	apiHandler := api.NewHandler(g).WithMetrics(metricsSink)
	if store != nil {
		apiHandler = apiHandler.WithStore(store).WithHealthChecker(pinger{store})
	}
	if counters != nil {
		apiHandler = apiHandler.WithStats(counters)
	}

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: apiHandler,
	}

	go func() {
		log.Printf("adhocskip: http server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("adhocskip: http server error: %v", err)
		}
	}()

	recorderCtx, cancelRecorder := context.WithCancel(context.Background())
	var recorderWg sync.WaitGroup
	recorderWg.Add(1)
	go func() {
		defer recorderWg.Done()
		rec.Run(recorderCtx, bus.Channel())
	}()

	log.Printf("adhocskip: started (threshold=%gs, http=%s)", cfg.SkipThresholdSeconds, cfg.HTTPAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig

	log.Printf("adhocskip: received signal %v, shutting down", received)

	// Phase 1: Stop HTTP server (no new decisions emitted)
	log.Println("adhocskip: stopping http server...")
	httpShutdownCtx, httpShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer httpShutdownCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		log.Printf("adhocskip: http server shutdown error: %v", err)
	}
	log.Println("adhocskip: http server stopped")

	// Phase 2: Stop recorder (drains buffered decisions before returning)
	log.Println("adhocskip: stopping recorder (draining decisions)...")
	cancelRecorder()
	recorderWg.Wait()
	bus.Close()
	log.Println("adhocskip: recorder stopped")

	// Phase 3: Stop metrics server if running
	if metricsServer != nil {
		log.Println("adhocskip: stopping metrics server...")
		metricsShutdownCtx, metricsShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
		defer metricsShutdownCancel()
		if err := metricsServer.Shutdown(metricsShutdownCtx); err != nil {
			log.Printf("adhocskip: metrics server shutdown error: %v", err)
		}
		log.Println("adhocskip: metrics server stopped")
	}

	log.Println("adhocskip: stopped")
	return exitSuccess
}

// pinger adapts the store's Ping to api.HealthChecker.
type pinger struct {
	store *postgres.Store
}

func (p pinger) PingContext(ctx context.Context) error {
	return p.store.Ping(ctx)
}

func runValidate() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitInvalidConfig
	}

	fmt.Println("configuration valid")
	return exitSuccess
}

func runConfig() int {
	cfg := config.Load()

	data, err := cfg.MaskedJSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal config: %v\n", err)
		return exitRuntimeError
	}

	fmt.Println(string(data))
	return exitSuccess
}

func runVersion() int {
	fmt.Printf("adhocskip version %s (commit: %s)\n", version, commit)
	return exitSuccess
}
