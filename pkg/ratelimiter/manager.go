package ratelimiter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lowc1012/tiered-rate-limiter/internal/log"
	"github.com/lowc1012/tiered-rate-limiter/pkg/utils"
)

// Admission is the answer to CheckRateLimit. Remaining is nil when the
// request was let through without consulting the store (fail-open). Denied is
// set exactly when Allowed is false.
type Admission struct {
	Allowed   bool
	Remaining *int64
	Denied    *DeniedResponse
	Decision  Decision
}

// Manager is the admission API every protected handler goes through.
type Manager struct {
	limiter   Evaluator
	registry  *Registry
	extractor utils.Extractor
	metrics   MetricsRecorder
	logger    *zap.Logger
	now       func() time.Time
}

type ManagerOption func(*Manager)

func WithMetrics(m MetricsRecorder) ManagerOption {
	return func(mgr *Manager) {
		if m != nil {
			mgr.metrics = m
		}
	}
}

func WithLogger(l *zap.Logger) ManagerOption {
	return func(mgr *Manager) {
		if l != nil {
			mgr.logger = l
		}
	}
}

// WithExtractor changes how Middleware identifies clients. The default is
// utils.NewClientIPExtractor.
func WithExtractor(e utils.Extractor) ManagerOption {
	return func(mgr *Manager) {
		if e != nil {
			mgr.extractor = e
		}
	}
}

func WithClock(now func() time.Time) ManagerOption {
	return func(mgr *Manager) {
		if now != nil {
			mgr.now = now
		}
	}
}

func NewManager(limiter Evaluator, registry *Registry, opts ...ManagerOption) (*Manager, error) {
	if limiter == nil {
		return nil, errors.New("limiter is required")
	}
	if registry == nil {
		return nil, errors.New("preset registry is required")
	}

	m := &Manager{
		limiter:   limiter,
		registry:  registry,
		extractor: utils.NewClientIPExtractor(),
		metrics:   NoOpMetricsRecorder{},
		logger:    log.Logger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Registry returns the presets the manager resolves names against.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// CheckRateLimit evaluates presetName for identifier. Store failures are
// resolved by the preset's fail-open / fail-closed policy. It returns an error
// only for an unknown preset (ErrUnknownPreset) or when ctx itself ended
// before the check finished (wrapping ctx.Err()); the caller is gone then and
// there is nobody to answer.
func (m *Manager) CheckRateLimit(ctx context.Context, identifier, presetName string) (Admission, error) {
	preset, err := m.registry.Get(presetName)
	if err != nil {
		return Admission{}, err
	}

	now := m.now()
	started := time.Now()
	decision, err := m.limiter.Evaluate(ctx, identifier, preset, now)
	m.metrics.Observe(MetricLatency, time.Since(started).Seconds(), map[string]string{"preset": preset.Name})

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			m.logger.Debug("Rate limit check abandoned by caller",
				zap.String("preset", preset.Name),
				zap.String("identifier", identifier),
				zap.Error(ctxErr))
			return Admission{}, fmt.Errorf("preset %s: %w", preset.Name, ctxErr)
		}
		return m.backendFailure(preset, identifier, now, err), nil
	}

	result := "allow"
	if !decision.Allowed {
		result = "deny"
	}
	m.metrics.Add(MetricDecision, 1, map[string]string{
		"preset": preset.Name,
		"result": result,
		"reason": string(decision.Reason),
	})

	if decision.Allowed {
		remaining := decision.Remaining
		return Admission{Allowed: true, Remaining: &remaining, Decision: decision}, nil
	}

	m.logger.Debug("Request denied by rate limiter",
		zap.String("preset", preset.Name),
		zap.String("identifier", identifier),
		zap.String("reason", string(decision.Reason)),
		zap.Time("resetAt", decision.ResetAt))

	return Admission{
		Allowed:  false,
		Denied:   NewDeniedResponse(decision, preset.Description, now),
		Decision: decision,
	}, nil
}

func (m *Manager) backendFailure(preset LimitPreset, identifier string, now time.Time, err error) Admission {
	policy := "fail_closed"
	if preset.FailOpen {
		policy = "fail_open"
	}

	m.logger.Error("Rate limiter backend unavailable",
		zap.String("preset", preset.Name),
		zap.String("identifier", identifier),
		zap.String("policy", policy),
		zap.Error(err))
	m.metrics.Add(MetricBackendError, 1, map[string]string{"preset": preset.Name, "policy": policy})

	decision := Decision{
		Allowed: preset.FailOpen,
		Limit:   preset.Quota.Limit,
		Reason:  ReasonBackendUnavailable,
		Preset:  preset.Name,
	}
	if preset.FailOpen {
		return Admission{Allowed: true, Decision: decision}
	}

	resp := newUnavailableResponse(preset, now)
	decision.ResetAt = now.Add(backendRetryAfter)
	return Admission{Allowed: false, Denied: resp, Decision: decision}
}

// Middleware guards next with presetName, keyed by the manager's extractor
// (client IP unless WithExtractor says otherwise). It suits routers that take
// func(http.Handler) http.Handler, such as chi.
func (m *Manager) Middleware(presetName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return NewHTTPRateLimiterHandler(next, &Config{
			Extractor: m.extractor,
			Manager:   m,
			Preset:    presetName,
		})
	}
}

// Config defines the configuration for the rate limiter handler.
type Config struct {
	Extractor utils.Extractor
	Manager   *Manager
	Preset    string
}

type httpRateLimiterHandler struct {
	handler http.Handler
	config  *Config
}

// NewHTTPRateLimiterHandler wraps an existing http.Handler object performing rate limiting before
// sending the request to the wrapped handler. If any errors happen while trying to rate limit a request
// or if the request is denied, the rate limiting handler will send a response to the client and will not
// call the wrapped handler.
func NewHTTPRateLimiterHandler(originalHandler http.Handler, config *Config) http.Handler {
	if config.Extractor == nil {
		config.Extractor = utils.NewClientIPExtractor()
	}
	return &httpRateLimiterHandler{
		handler: originalHandler,
		config:  config,
	}
}

func (h *httpRateLimiterHandler) writeResponse(writer http.ResponseWriter, status int, msg string, args ...interface{}) {
	writer.Header().Set("Content-Type", "text/plain")
	writer.WriteHeader(status)
	if _, err := writer.Write([]byte(fmt.Sprintf(msg, args...))); err != nil {
		h.config.Manager.logger.Warn("Failed to write body to HTTP response", zap.Error(err))
	}
}

// ServeHTTP performs rate limiting with the configuration it was provided and if there were no errors
// and the request was allowed it is sent to the wrapped handler. Allowed responses carry the
// X-RateLimit-* headers so the client knows what state it is in.
func (h *httpRateLimiterHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	key, err := h.config.Extractor.Extract(request)
	if err != nil {
		h.writeResponse(writer, http.StatusBadRequest, "failed to collect rate limiting key from request: %v", err)
		return
	}

	admission, err := h.config.Manager.CheckRateLimit(request.Context(), key, h.config.Preset)
	if err != nil {
		// client went away mid-check
		if request.Context().Err() != nil {
			return
		}
		h.config.Manager.logger.Error("Failed to run rate limiting", zap.String("preset", h.config.Preset), zap.Error(err))
		h.writeResponse(writer, http.StatusInternalServerError, "failed to run rate limiting for request: %v", err)
		return
	}

	// denied: the limiter's response is the whole response, the wrapped handler never runs
	if !admission.Allowed {
		if err := admission.Denied.Write(writer); err != nil {
			h.config.Manager.logger.Warn("Failed to write denial response", zap.Error(err))
		}
		return
	}

	if admission.Remaining != nil {
		d := admission.Decision
		setLimitHeaders(writer.Header(), d.Limit, *admission.Remaining, d.ResetAt)
	}

	h.handler.ServeHTTP(writer, request)
}
