package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/djlord-it/adhoc-skipper/internal/domain"
	"github.com/djlord-it/adhoc-skipper/internal/gate"
	"github.com/djlord-it/adhoc-skipper/internal/metrics"
)

// Pagination defaults and limits.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Route labels reported to MetricsSink.
const (
	routeClassify  = "/classify"
	routeDecisions = "/decisions"
	routeHealth    = "/health"
	routeStats     = "/stats"
	routeOther     = "other"
)

// Gate classifies invocations. Implemented by *gate.Gate.
type Gate interface {
	CheckAt(ctx context.Context, rec domain.InvocationRecord, now time.Time) (domain.Decision, error)
}

// DecisionReader reads the decision audit log. Implemented by the postgres store.
type DecisionReader interface {
	GetDecisionsByRunID(ctx context.Context, runID string, limit, offset int) ([]domain.Decision, error)
	GetDecisionsByRunIDAndOutcome(ctx context.Context, runID, outcome string, limit, offset int) ([]domain.Decision, error)
	ListDecisions(ctx context.Context, outcome string, limit, offset int) ([]domain.Decision, error)
}

// StatsReader reads per-minute decision counters. Implemented by
// *analytics.RedisSink.
type StatsReader interface {
	Count(ctx context.Context, outcome string, kind domain.RunKind, at time.Time) (int64, error)
}

// HealthChecker provides database health status for the /health endpoint.
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// MetricsSink records per-request metrics. Must be non-blocking.
type MetricsSink interface {
	RequestCompleted(route, statusClass string, duration time.Duration)
}

type Handler struct {
	gate    Gate
	store   DecisionReader // optional, nil = /decisions disabled
	stats   StatsReader    // optional, nil = /stats disabled
	db      HealthChecker  // optional
	metrics MetricsSink    // optional
	clock   func() time.Time
}

func NewHandler(g Gate) *Handler {
	return &Handler{gate: g, clock: time.Now}
}

// WithStore enables GET /decisions.
func (h *Handler) WithStore(s DecisionReader) *Handler {
	h.store = s
	return h
}

// WithStats enables GET /stats.
func (h *Handler) WithStats(s StatsReader) *Handler {
	h.stats = s
	return h
}

// WithHealthChecker sets the database health checker for verbose /health responses.
func (h *Handler) WithHealthChecker(db HealthChecker) *Handler {
	h.db = db
	return h
}

func (h *Handler) WithMetrics(m MetricsSink) *Handler {
	h.metrics = m
	return h
}

// WithClock sets the time source used when a request omits "now".
func (h *Handler) WithClock(clock func() time.Time) *Handler {
	h.clock = clock
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	route := routeOther

	switch {
	case r.URL.Path == "/health" && r.Method == http.MethodGet:
		route = routeHealth
		h.health(sw, r)

	case r.URL.Path == "/classify" && r.Method == http.MethodPost:
		route = routeClassify
		h.classify(sw, r)

	case r.URL.Path == "/decisions" && r.Method == http.MethodGet && h.store != nil:
		route = routeDecisions
		h.listDecisions(sw, r)

	case r.URL.Path == "/stats" && r.Method == http.MethodGet && h.stats != nil:
		route = routeStats
		h.minuteStats(sw, r)

	default:
		writeError(sw, http.StatusNotFound, "not found")
	}

	if h.metrics != nil {
		h.metrics.RequestCompleted(route, metrics.ClassifyStatus(sw.status), time.Since(start))
	}
}

// statusWriter captures the response status for metrics.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	verbose := r.URL.Query().Get("verbose") == "true"

	if !verbose || h.db == nil {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	resp := HealthResponse{
		Status:     "ok",
		Components: make(map[string]string),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		resp.Status = "degraded"
		resp.Components["database"] = "unhealthy: " + err.Error()
	} else {
		resp.Components["database"] = "healthy"
	}

	statusCode := http.StatusOK
	if resp.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, resp)
}

// maxRequestBodySize is the maximum allowed request body size (1MB).
const maxRequestBodySize = 1 << 20

func (h *Handler) classify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req ClassifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	rec, now, err := validateClassify(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if now.IsZero() {
		now = h.clock()
	}

	decision, err := h.gate.CheckAt(r.Context(), rec, now)
	switch {
	case err == nil, gate.IsSkip(err):
		writeJSON(w, http.StatusOK, toDecisionResponse(decision))
	case errors.Is(err, gate.ErrInvalidInvocation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("api: classify run=%q error: %v", rec.RunID, err)
		writeError(w, http.StatusInternalServerError, "failed to classify")
	}
}

func (h *Handler) listDecisions(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePagination(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q := r.URL.Query()
	runID := q.Get("run_id")
	outcome := q.Get("outcome")
	if err := validateOutcomeFilter(outcome); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var decisions []domain.Decision
	switch {
	case runID != "" && outcome != "":
		decisions, err = h.store.GetDecisionsByRunIDAndOutcome(r.Context(), runID, outcome, limit, offset)
	case runID != "":
		decisions, err = h.store.GetDecisionsByRunID(r.Context(), runID, limit, offset)
	default:
		decisions, err = h.store.ListDecisions(r.Context(), outcome, limit, offset)
	}
	if err != nil {
		log.Printf("api: list decisions error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list decisions")
		return
	}

	resp := ListDecisionsResponse{Decisions: make([]DecisionResponse, 0, len(decisions))}
	for _, d := range decisions {
		resp.Decisions = append(resp.Decisions, toDecisionResponse(d))
	}

	writeJSON(w, http.StatusOK, resp)
}

// minuteStats reports decision counts for the minute containing "at"
// (RFC 3339, default now), broken down by outcome and run kind.
func (h *Handler) minuteStats(w http.ResponseWriter, r *http.Request) {
	at := h.clock()
	if raw := r.URL.Query().Get("at"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "at must be an RFC 3339 timestamp")
			return
		}
		at = t
	}
	at = at.UTC().Truncate(time.Minute)

	resp := StatsResponse{Minute: formatTime(at), Counts: make(map[string]map[string]int64)}
	for _, outcome := range []string{domain.OutcomeProceed, domain.OutcomeSkip} {
		byKind := make(map[string]int64)
		for _, kind := range []domain.RunKind{domain.RunKindManual, domain.RunKindScheduled} {
			n, err := h.stats.Count(r.Context(), outcome, kind, at)
			if err != nil {
				log.Printf("api: stats outcome=%s kind=%s error: %v", outcome, kind, err)
				writeError(w, http.StatusInternalServerError, "failed to read stats")
				return
			}
			byKind[string(kind)] = n
			resp.Total += n
		}
		resp.Counts[outcome] = byKind
	}

	writeJSON(w, http.StatusOK, resp)
}

func toDecisionResponse(d domain.Decision) DecisionResponse {
	return DecisionResponse{
		DecisionID:       d.ID.String(),
		RunID:            d.RunID,
		Kind:             string(d.Kind),
		Outcome:          d.Outcome.String(),
		Reason:           d.Outcome.Reason(),
		DelaySeconds:     d.DelaySeconds,
		ThresholdSeconds: d.ThresholdSeconds,
		ScheduledAt:      formatTime(d.ScheduledAt),
		EvaluatedAt:      formatTime(d.EvaluatedAt),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: json encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
