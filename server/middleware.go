// Package server middleware for authentication, rate limiting, and CORS.
package server

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type authConfig struct {
	adminUsername string
	adminPassword string
	adminToken    string
	enabled       bool
}

// loadAuthConfig reads ADMIN_USERNAME, ADMIN_PASSWORD and ADMIN_TOKEN.
func loadAuthConfig() *authConfig {
	username := os.Getenv("ADMIN_USERNAME")
	password := os.Getenv("ADMIN_PASSWORD")
	token := os.Getenv("ADMIN_TOKEN")

	enabled := (username != "" && password != "") || token != ""
	if !enabled {
		slog.Warn("admin authentication not configured, admin endpoints are disabled; set ADMIN_USERNAME+ADMIN_PASSWORD or ADMIN_TOKEN",
			slog.String("component", "http"))
	}
	return &authConfig{
		adminUsername: username,
		adminPassword: password,
		adminToken:    token,
		enabled:       enabled,
	}
}

// adminAuth protects admin endpoints with X-Admin-Token or Basic Auth.
// Admin endpoints drive a real payroll account, so an unconfigured server
// refuses them instead of running open.
func adminAuth(next http.Handler, cfg *authConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !cfg.enabled {
			http.Error(w, "admin endpoints disabled", http.StatusForbidden)
			return
		}

		if cfg.adminToken != "" {
			token := r.Header.Get("X-Admin-Token")
			if token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(cfg.adminToken)) == 1 {
				next.ServeHTTP(w, r)
				return
			}
		}

		if cfg.adminUsername != "" && cfg.adminPassword != "" {
			username, password, ok := r.BasicAuth()
			if ok {
				usernameMatch := subtle.ConstantTimeCompare([]byte(username), []byte(cfg.adminUsername)) == 1
				passwordMatch := subtle.ConstantTimeCompare([]byte(password), []byte(cfg.adminPassword)) == 1
				if usernameMatch && passwordMatch {
					next.ServeHTTP(w, r)
					return
				}
			}
		}

		w.Header().Set("WWW-Authenticate", `Basic realm="clockbot admin"`)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		slog.Warn("admin auth failed", slog.String("path", r.URL.Path), slog.String("remote_addr", r.RemoteAddr))
	})
}

type rateLimiterConfig struct {
	enabled       bool
	requestsPerIP int
	window        time.Duration
}

// loadRateLimiterConfig reads RATE_LIMIT_* variables. Enabled by default.
func loadRateLimiterConfig() *rateLimiterConfig {
	cfg := &rateLimiterConfig{
		enabled:       os.Getenv("RATE_LIMIT_ENABLED") != "0",
		requestsPerIP: 10,
		window:        time.Minute,
	}
	if n := getEnvInt("RATE_LIMIT_REQUESTS_PER_IP", 0); n > 0 {
		cfg.requestsPerIP = n
	}
	if n := getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 0); n > 0 {
		cfg.window = time.Duration(n) * time.Second
	}
	return cfg
}

// ipRateLimiter keeps one token bucket per client IP. The bucket holds
// requestsPerIP tokens and refills completely once per window.
type ipRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	cfg      *rateLimiterConfig
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPRateLimiter(ctx context.Context, cfg *rateLimiterConfig) *ipRateLimiter {
	rl := &ipRateLimiter{
		visitors: make(map[string]*visitor),
		cfg:      cfg,
	}
	go rl.cleanupLoop(ctx)
	return rl
}

func (rl *ipRateLimiter) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-ctx.Done():
			return
		}
	}
}

// cleanup drops visitors idle for two windows; their buckets are full by then.
func (rl *ipRateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := time.Now()
	for ip, v := range rl.visitors {
		if now.Sub(v.lastSeen) > rl.cfg.window*2 {
			delete(rl.visitors, ip)
		}
	}
}

func (rl *ipRateLimiter) allow(ip string) bool {
	if !rl.cfg.enabled {
		return true
	}
	rl.mu.Lock()
	v, ok := rl.visitors[ip]
	if !ok {
		every := rate.Every(rl.cfg.window / time.Duration(rl.cfg.requestsPerIP))
		v = &visitor{limiter: rate.NewLimiter(every, rl.cfg.requestsPerIP)}
		rl.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	rl.mu.Unlock()
	return v.limiter.Allow()
}

// clientIP prefers the first X-Forwarded-For hop and strips any port.
func clientIP(r *http.Request) string {
	ip := r.RemoteAddr
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		ip, _, _ = strings.Cut(forwarded, ",")
		ip = strings.TrimSpace(ip)
	}
	if host, _, err := net.SplitHostPort(ip); err == nil {
		return host
	}
	return strings.Trim(ip, "[]")
}

func rateLimitMiddleware(next http.Handler, limiter *ipRateLimiter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !limiter.allow(ip) {
			w.Header().Set("Retry-After", strconv.Itoa(int(limiter.cfg.window.Seconds())))
			http.Error(w, "Too Many Requests - rate limit exceeded", http.StatusTooManyRequests)
			slog.Warn("rate limit exceeded", slog.String("ip", ip), slog.String("path", r.URL.Path))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type corsConfig struct {
	allowedOrigins []string
	permissive     bool
}

// loadCORSConfig is permissive when ENV is empty or dev, unless CORS_PERMISSIVE says otherwise.
func loadCORSConfig() *corsConfig {
	mode := strings.ToLower(os.Getenv("ENV"))
	permissive := mode == "" || mode == "dev" || mode == "development"
	if v := os.Getenv("CORS_PERMISSIVE"); v != "" {
		permissive = v == "1" || v == "true"
	}

	var allowed []string
	for _, origin := range strings.Split(os.Getenv("CORS_ALLOWED_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			allowed = append(allowed, origin)
		}
	}
	if !permissive && len(allowed) == 0 {
		slog.Warn("CORS restricted mode enabled but no CORS_ALLOWED_ORIGINS configured - all CORS requests will be blocked")
	}
	return &corsConfig{allowedOrigins: allowed, permissive: permissive}
}

func withCORSConfig(next http.Handler, cfg *corsConfig) http.Handler {
	const (
		methods = "GET, POST, OPTIONS"
		headers = "Content-Type, Authorization, X-Admin-Token, X-Correlation-ID"
	)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if cfg.permissive {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", methods)
			w.Header().Set("Access-Control-Allow-Headers", headers)
		} else if origin != "" && isOriginAllowed(origin, cfg.allowedOrigins) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", methods)
			w.Header().Set("Access-Control-Allow-Headers", headers)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// isOriginAllowed supports exact origins and "*.example.com" wildcards.
func isOriginAllowed(origin string, allowedOrigins []string) bool {
	for _, allowed := range allowedOrigins {
		if origin == allowed {
			return true
		}
		if domain, ok := strings.CutPrefix(allowed, "*."); ok {
			if strings.HasSuffix(origin, "."+domain) || origin == "https://"+domain || origin == "http://"+domain {
				return true
			}
		}
	}
	return false
}

func getEnvInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}

func parseIntQuery(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
