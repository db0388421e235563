package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/batepapo/internal/metrics"
)

// hitScript counts a request in a window that opens on the first hit and
// returns the count together with the milliseconds left in the window.
var hitScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {n, redis.call('PTTL', KEYS[1])}
`)

// RateLimit caps requests matching Pattern ("METHOD /path" prefix).
type RateLimit struct {
	Pattern  string
	Requests int
	Window   time.Duration
	KeyFunc  func(r *http.Request) string
}

// DefaultLimits are checked in order; the first matching pattern wins, so
// /messages/search sits before /messages.
var DefaultLimits = []RateLimit{
	{"POST /participants", 10, time.Minute, ipKey},
	{"GET /participants", 120, time.Minute, ipKey},
	{"POST /status", 60, time.Minute, userOrIPKey},
	{"POST /messages", 30, time.Minute, userKey},
	{"PUT /messages/", 30, time.Minute, userKey},
	{"DELETE /messages/", 30, time.Minute, userKey},
	{"GET /messages/search", 30, time.Minute, userOrIPKey},
	{"GET /messages", 120, time.Minute, userOrIPKey},
}

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Whitelist        []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled bool
}

// Result of counting one request against a limit.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RateLimiter counts requests per key in Redis.
type RateLimiter struct {
	client    *redis.Client
	limits    []RateLimit
	blocker   *IPBlocker
	whitelist *Whitelist
	autoBlock bool
	logger    zerolog.Logger
}

// NewRateLimiter creates a rate limiter using DefaultLimits.
func NewRateLimiter(client *redis.Client, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	return &RateLimiter{
		client:    client,
		limits:    DefaultLimits,
		blocker:   NewIPBlocker(client),
		whitelist: NewWhitelist(cfg.Whitelist, logger),
		autoBlock: cfg.AutoBlockEnabled,
		logger:    logger,
	}
}

func ipKey(r *http.Request) string {
	return "ratelimit:ip:" + RealIP(r)
}

// userKey scopes a limit to the participant name. Names are claimed, not
// authenticated, so the IP is part of the key.
func userKey(r *http.Request) string {
	user := r.Header.Get(UserHeader)
	if user == "" {
		return ipKey(r)
	}
	return "ratelimit:user:" + RealIP(r) + ":" + user
}

func userOrIPKey(r *http.Request) string {
	if r.Header.Get(UserHeader) != "" {
		return userKey(r)
	}
	return ipKey(r)
}

// RealIP extracts the client IP from proxy headers or the connection.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		first, _, _ := strings.Cut(ip, ",")
		return strings.TrimSpace(first)
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

// Hit counts one request under key.
func (rl *RateLimiter) Hit(ctx context.Context, key string, limit RateLimit) (Result, error) {
	vals, err := hitScript.Run(ctx, rl.client, []string{key}, limit.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return Result{}, err
	}
	count, ttl := vals[0], time.Duration(vals[1])*time.Millisecond
	if ttl < 0 {
		ttl = limit.Window
	}

	return Result{
		Allowed:   count <= int64(limit.Requests),
		Remaining: max(limit.Requests-int(count), 0),
		ResetAt:   time.Now().Add(ttl),
	}, nil
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := RealIP(r)
		if rl.whitelist.Contains(ip) {
			next.ServeHTTP(w, r)
			return
		}

		if rl.blocker.IsBlocked(r.Context(), ip) {
			rl.logger.Warn().
				Str("type", "security").
				Str("event", "blocked_request").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Msg("blocked IP attempted request")
			metrics.BlockedRequests.WithLabelValues("ip_blocked").Inc()
			jsonError(w, http.StatusForbidden, "temporarily blocked")
			return
		}

		limit, ok := rl.match(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		key := limit.KeyFunc(r) + ":" + limit.Pattern
		res, err := rl.Hit(r.Context(), key, limit)
		if err != nil {
			// fail open
			rl.logger.Warn().Err(err).Str("key", key).Msg("rate limiter unavailable")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

		if !res.Allowed {
			retry := max(int(time.Until(res.ResetAt).Seconds()), 1)
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			metrics.RateLimitHits.WithLabelValues(limit.Pattern).Inc()

			rl.logger.Warn().
				Str("type", "security").
				Str("event", "rate_limit_exceeded").
				Str("ip", ip).
				Str("participant", r.Header.Get(UserHeader)).
				Str("endpoint", r.URL.Path).
				Msg("rate limit exceeded")

			if rl.autoBlock {
				rl.blocker.RecordViolation(r.Context(), ip, rl.logger)
			}
			jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) match(r *http.Request) (RateLimit, bool) {
	key := r.Method + " " + r.URL.Path
	for _, l := range rl.limits {
		if strings.HasPrefix(key, l.Pattern) {
			return l, true
		}
	}
	return RateLimit{}, false
}
