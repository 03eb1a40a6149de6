package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/agentrooms/internal/metrics"
	"github.com/eldtechnologies/agentrooms/internal/ratelimit"
)

// RateLimit defines limits for an endpoint pattern. A request matches when the
// method is equal and the path starts with Prefix and ends with Suffix. Exact
// requires the path to equal Prefix.
type RateLimit struct {
	Name     string
	Method   string
	Prefix   string
	Suffix   string
	Exact    bool
	Requests int
	Window   time.Duration
}

func (l RateLimit) matches(r *http.Request) bool {
	if r.Method != l.Method {
		return false
	}
	path := r.URL.Path
	if l.Exact {
		return path == l.Prefix
	}
	return strings.HasPrefix(path, l.Prefix) && strings.HasSuffix(path, l.Suffix) && len(path) > len(l.Prefix)
}

// DefaultLimits are checked in order; the first match wins.
var DefaultLimits = []RateLimit{
	{Name: "create_room", Method: "POST", Prefix: "/rooms", Exact: true, Requests: 30, Window: time.Hour},
	{Name: "join", Method: "POST", Prefix: "/rooms/", Suffix: "/join", Requests: 30, Window: time.Minute},
	{Name: "send", Method: "POST", Prefix: "/rooms/", Suffix: "/messages", Requests: 60, Window: time.Minute},
	{Name: "create_agent", Method: "POST", Prefix: "/rooms/", Suffix: "/agents", Requests: 20, Window: time.Hour},
	{Name: "read_room", Method: "GET", Prefix: "/rooms/", Requests: 240, Window: time.Minute},
	{Name: "invite", Method: "GET", Prefix: "/invite/", Requests: 60, Window: time.Minute},
	{Name: "seed", Method: "POST", Prefix: "/seed", Exact: true, Requests: 10, Window: time.Hour},
	{Name: "chat", Method: "POST", Prefix: "/chat", Exact: true, Requests: 20, Window: time.Minute},
	{Name: "ws", Method: "GET", Prefix: "/ws", Exact: true, Requests: 30, Window: time.Minute},
}

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Whitelist []string // IPs or CIDRs exempt from rate limiting
	Limits    []RateLimit
}

type routeLimiter struct {
	RateLimit
	limiter ratelimit.Limiter
}

// RateLimiter applies fixed-window limits per client IP and route.
type RateLimiter struct {
	routes       []routeLimiter
	logger       zerolog.Logger
	whitelist    []*net.IPNet
	whitelistIPs map[string]bool
}

// NewRateLimiter creates a new rate limiter. Each route gets its own limiter
// from factory, so counters never collide across routes.
func NewRateLimiter(factory ratelimit.Factory, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	limits := cfg.Limits
	if limits == nil {
		limits = DefaultLimits
	}

	rl := &RateLimiter{
		logger:       logger.With().Str("component", "ratelimit").Logger(),
		whitelistIPs: make(map[string]bool),
	}
	for _, l := range limits {
		rl.routes = append(rl.routes, routeLimiter{RateLimit: l, limiter: factory(l.Requests, l.Window)})
	}

	// Parse whitelist entries
	for _, entry := range cfg.Whitelist {
		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				rl.logger.Warn().Str("entry", entry).Err(err).Msg("invalid CIDR in whitelist")
				continue
			}
			rl.whitelist = append(rl.whitelist, ipNet)
		} else {
			rl.whitelistIPs[entry] = true
		}
	}

	if len(cfg.Whitelist) > 0 {
		rl.logger.Info().
			Int("ips", len(rl.whitelistIPs)).
			Int("cidrs", len(rl.whitelist)).
			Msg("rate limit whitelist configured")
	}

	return rl
}

// isWhitelisted checks if an IP is in the whitelist.
func (rl *RateLimiter) isWhitelisted(ipStr string) bool {
	if rl.whitelistIPs[ipStr] {
		return true
	}

	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, ipNet := range rl.whitelist {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// RealIP extracts the real client IP from headers or connection.
func RealIP(r *http.Request) string {
	// Check Fly.io header first
	if ip := r.Header.Get("Fly-Client-IP"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := RealIP(r)

		if rl.isWhitelisted(ip) {
			next.ServeHTTP(w, r)
			return
		}

		route := rl.findLimit(r)
		if route == nil {
			next.ServeHTTP(w, r)
			return
		}

		allowed, err := route.limiter.Allow(r.Context(), ip)
		if err != nil {
			// Fail open: a broken limiter backend must not take the API down.
			rl.logger.Error().Err(err).Str("route", route.Name).Msg("rate limiter unavailable")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(route.Requests))

		if !allowed {
			metrics.RateLimitHits.WithLabelValues(route.Name).Inc()
			w.Header().Set("Retry-After", strconv.Itoa(int(route.Window.Seconds())))

			rl.logger.Warn().
				Str("type", "security").
				Str("event", "rate_limit_exceeded").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Str("route", route.Name).
				Msg("rate limit exceeded")

			jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// findLimit finds the first matching rate limit for a request.
func (rl *RateLimiter) findLimit(r *http.Request) *routeLimiter {
	for i := range rl.routes {
		if rl.routes[i].matches(r) {
			return &rl.routes[i]
		}
	}
	return nil
}
