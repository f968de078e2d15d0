package httpapi

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"learnsync/core"
	"learnsync/leaderboard"
	"learnsync/platform"
)

// Options configures the HTTP API surface.
type Options struct {
	// PathPrefix, if set, is prepended to all routes (e.g., "/api").
	PathPrefix string
	// AllowCORSOrigin, if non-empty, enables basic CORS with the given origin (use "*" for any).
	AllowCORSOrigin string
	// APIKeys, if non-empty, enables static API key auth via Authorization: Bearer or X-API-Key.
	APIKeys []string
	// RateLimitEnabled toggles rate limiting.
	RateLimitEnabled bool
	// RateLimitRPM is the allowed requests per minute per client key.
	RateLimitRPM int
	// RateLimitBurst defines burst capacity.
	RateLimitBurst int
}

// NewMux builds an http.Handler exposing the sync and broadcast API plus the
// WebSocket stream.
// Routes:
//   - POST {prefix}/sync/auth            {tenant_code, email}
//   - GET  {prefix}/sync/bundle?user=&tenant=
//   - POST {prefix}/events               broadcast one event
//   - GET  {prefix}/events/replay?user=&tenant=&since=   poll-based catch-up
//   - GET  {prefix}/leaderboard/{tenant}?n=
//   - GET  {prefix}/registry/stats
//   - GET  {prefix}/healthz
//   - WS   {prefix}/ws
func NewMux(p *platform.Platform, ws http.Handler, opts Options) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(withPrefix(opts.PathPrefix, "/healthz"), func(w http.ResponseWriter, r *http.Request) {
		healthCheck(w, r, p)
	})

	if ws != nil {
		mux.Handle(withPrefix(opts.PathPrefix, "/ws"), ws)
	}

	mux.HandleFunc(withPrefix(opts.PathPrefix, "/sync/auth"), func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
			return
		}
		var req struct {
			TenantCode string `json:"tenant_code"`
			Email      string `json:"email"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body", "malformed JSON body", nil)
			return
		}
		res, err := p.Orchestrator.Authenticate(r.Context(), req.TenantCode, req.Email)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		if !res.OK {
			writeError(w, http.StatusUnauthorized, "auth_failed", res.Reason, nil)
			return
		}
		writeJSON(w, res)
	})

	mux.HandleFunc(withPrefix(opts.PathPrefix, "/sync/bundle"), func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
			return
		}
		user := core.UserID(r.URL.Query().Get("user"))
		tenant := core.TenantID(r.URL.Query().Get("tenant"))
		if user == "" || tenant == "" {
			writeError(w, http.StatusBadRequest, "invalid_params", "user and tenant are required", nil)
			return
		}
		bundle, err := p.Orchestrator.SyncBundle(r.Context(), user, tenant)
		if err != nil {
			writeError(w, http.StatusNotFound, "not_found", err.Error(), nil)
			return
		}
		writeJSON(w, bundle)
	})

	mux.HandleFunc(withPrefix(opts.PathPrefix, "/events"), func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
			return
		}
		var ev core.Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body", "malformed JSON body", nil)
			return
		}
		if ev.CreatedAt.IsZero() {
			ev.CreatedAt = time.Now().UTC()
		}
		delivered, err := p.Broadcast(r.Context(), ev)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_event", err.Error(), nil)
			return
		}
		writeJSON(w, map[string]any{"delivered": delivered})
	})

	mux.HandleFunc(withPrefix(opts.PathPrefix, "/events/replay"), func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
			return
		}
		user := core.UserID(r.URL.Query().Get("user"))
		tenant := core.TenantID(r.URL.Query().Get("tenant"))
		if user == "" || tenant == "" {
			writeError(w, http.StatusBadRequest, "invalid_params", "user and tenant are required", nil)
			return
		}
		var since time.Time
		if raw := r.URL.Query().Get("since"); raw != "" {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_since", "since must be RFC3339", nil)
				return
			}
			since = parsed
		}
		events := p.Buffer.CatchUp(user, tenant, since)
		writeJSON(w, map[string]any{"events": events})
	})

	mux.HandleFunc(withPrefix(opts.PathPrefix, "/leaderboard/"), func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
			return
		}
		path := strings.TrimPrefix(r.URL.Path, opts.PathPrefix)
		parts := split(path, '/')
		if len(parts) < 2 {
			writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
			return
		}
		tenant := core.TenantID(parts[1])
		n := 50
		if raw := r.URL.Query().Get("n"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				writeError(w, http.StatusBadRequest, "invalid_n", "n must be a positive integer", nil)
				return
			}
			n = parsed
		}
		entries := p.Boards.TopN(tenant, n)
		if entries == nil {
			entries = []leaderboard.Entry{}
		}
		writeJSON(w, map[string]any{"tenant": tenant, "entries": entries})
	})

	mux.HandleFunc(withPrefix(opts.PathPrefix, "/registry/stats"), func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
			return
		}
		writeJSON(w, p.Registry.StatsSnapshot())
	})

	var handler http.Handler = mux
	if opts.AllowCORSOrigin != "" {
		handler = withCORS(handler, opts.AllowCORSOrigin)
	}
	if len(opts.APIKeys) > 0 {
		handler = withAPIKeyAuth(handler, opts.APIKeys)
	}
	if opts.RateLimitEnabled && opts.RateLimitRPM > 0 && opts.RateLimitBurst > 0 {
		handler = withRateLimit(handler, opts.RateLimitRPM, opts.RateLimitBurst)
	}
	return handler
}

// Helpers

// healthCheck reports liveness plus a few cheap registry gauges.
func healthCheck(w http.ResponseWriter, _ *http.Request, p *platform.Platform) {
	stats := p.Registry.StatsSnapshot()
	writeJSON(w, map[string]any{
		"status":      "healthy",
		"connections": stats.Total,
		"tenants":     len(stats.Tenants),
	})
}

func withPrefix(prefix, path string) string {
	if prefix == "" || prefix == "/" {
		return path
	}
	if prefix[len(prefix)-1] == '/' {
		return prefix[:len(prefix)-1] + path
	}
	return prefix + path
}

func split(p string, sep rune) []string {
	var parts []string
	cur := make([]rune, 0, len(p))
	// trim leading '/'
	for len(p) > 0 && p[0] == '/' {
		p = p[1:]
	}
	for _, r := range p {
		if r == sep {
			if len(cur) > 0 {
				parts = append(parts, string(cur))
				cur = cur[:0]
			}
			continue
		}
		cur = append(cur, r)
	}
	if len(cur) > 0 {
		parts = append(parts, string(cur))
	}
	return parts
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiError{Code: code, Message: msg, Details: details})
}

// withCORS wraps a handler with a minimal CORS policy.
func withCORS(next http.Handler, origin string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Vary", "Origin")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withAPIKeyAuth enforces a shared API key list.
func withAPIKeyAuth(next http.Handler, apiKeys []string) http.Handler {
	allowed := make(map[string]struct{}, len(apiKeys))
	for _, k := range apiKeys {
		k = strings.TrimSpace(k)
		if k != "" {
			allowed[k] = struct{}{}
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := extractAPIKey(r)
		if key == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing API key", nil)
			return
		}
		if _, ok := allowed[key]; !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid API key", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit applies a simple token-bucket limiter per client key.
func withRateLimit(next http.Handler, rpm int, burst int) http.Handler {
	limiter := newRateLimiter(rpm, burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if !limiter.allow(key) {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractAPIKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return ""
}

// clientKey uses API key if present, otherwise remote IP.
func clientKey(r *http.Request) string {
	if key := extractAPIKey(r); key != "" {
		return key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type rateLimiter struct {
	rpm   float64
	burst float64
	mu    sync.Mutex
	b     map[string]*bucket
}

type bucket struct {
	tokens float64
	last   time.Time
}

func newRateLimiter(rpm, burst int) *rateLimiter {
	return &rateLimiter{
		rpm:   float64(rpm),
		burst: float64(burst),
		b:     make(map[string]*bucket),
	}
}

func (l *rateLimiter) allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.b[key]
	if !ok {
		l.b[key] = &bucket{tokens: l.burst - 1, last: now}
		return true
	}

	elapsed := now.Sub(b.last).Minutes()
	b.tokens += elapsed * l.rpm
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	if b.tokens < 1 {
		b.last = now
		return false
	}
	b.tokens--
	b.last = now
	return true
}
