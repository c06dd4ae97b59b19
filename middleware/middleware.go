package middleware

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	auth "bountypool-backend/storage/auth"
)

// Chain wraps h so that the first middleware listed runs first.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message, "code": code})
}

// CORS middleware
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Logging writes one JSON line per request.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w}

		next.ServeHTTP(wrapped, r)

		status := wrapped.statusCode
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		entry := map[string]interface{}{
			"ts":       start.UTC().Format(time.RFC3339Nano),
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   status,
			"duration": duration.String(),
		}
		if err := json.NewEncoder(log.Writer()).Encode(entry); err != nil {
			log.Printf("%s %s %d %v", r.Method, r.URL.Path, status, duration)
		}
	})
}

// Recovery turns a handler panic into a 500.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("panic recovered on %s %s: %v", r.Method, r.URL.Path, err)
				writeError(w, http.StatusInternalServerError, "Internal", "internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// SecurityHeaders middleware
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// RateLimit allows each remote address requests per window.
func RateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	limiter := newRateLimiter(requests, window)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.allow(clientAddr(r), time.Now()) {
				writeError(w, http.StatusTooManyRequests, "RateLimited", "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type rateClient struct {
	requests int
	window   time.Time
}

// rateLimiter counts requests per address in fixed windows. Addresses whose
// window has expired are swept at most once per window.
type rateLimiter struct {
	mu        sync.Mutex
	requests  int
	window    time.Duration
	clients   map[string]*rateClient
	lastSweep time.Time
}

func newRateLimiter(requests int, window time.Duration) *rateLimiter {
	return &rateLimiter{requests: requests, window: window, clients: make(map[string]*rateClient)}
}

func (l *rateLimiter) allow(addr string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastSweep) > l.window {
		for a, c := range l.clients {
			if now.Sub(c.window) > l.window {
				delete(l.clients, a)
			}
		}
		l.lastSweep = now
	}
	c, ok := l.clients[addr]
	if !ok || now.Sub(c.window) > l.window {
		l.clients[addr] = &rateClient{requests: 1, window: now}
		return true
	}
	c.requests++
	return c.requests <= l.requests
}

func (l *rateLimiter) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func clientAddr(r *http.Request) string {
	addr := r.RemoteAddr
	if i := strings.LastIndex(addr, ":"); i > 0 {
		return addr[:i]
	}
	return addr
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.statusCode != 0 {
		// Headers already written, ignore superfluous calls
		return
	}
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if rw.statusCode == 0 {
		rw.statusCode = http.StatusOK
	}
	return rw.ResponseWriter.Write(b)
}

// APIAuth requires a valid operator key on requests for which guarded
// returns true. A nil validator disables the check.
func APIAuth(validator auth.KeyValidator, guarded func(*http.Request) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if validator == nil || (guarded != nil && !guarded(r)) {
				next.ServeHTTP(w, r)
				return
			}

			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				authz := r.Header.Get("Authorization")
				if strings.HasPrefix(authz, "Bearer ") {
					apiKey = strings.TrimPrefix(authz, "Bearer ")
				}
			}

			if apiKey == "" {
				log.Printf("auth: missing API key for %s %s", r.Method, r.URL.Path)
				writeError(w, http.StatusUnauthorized, "ApiKeyRequired", "API key required")
				return
			}
			if !validator.Validate(r.Context(), apiKey) {
				log.Printf("auth: invalid API key for %s %s", r.Method, r.URL.Path)
				writeError(w, http.StatusForbidden, "ApiKeyInvalid", "invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// WritesOnly guards every method except GET, HEAD, and OPTIONS.
func WritesOnly(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}
