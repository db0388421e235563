package middleware

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	violationWindow = time.Hour
	violationLimit  = 10
	blockDuration   = 24 * time.Hour
)

// IPBlocker keeps temporary IP blocks and violation counters in Redis.
type IPBlocker struct {
	client *redis.Client
}

// NewIPBlocker creates a new IP blocker.
func NewIPBlocker(client *redis.Client) *IPBlocker {
	return &IPBlocker{client: client}
}

func blockKey(ip string) string { return "blocked:ip:" + ip }
func violationKey(ip string) string { return "violations:ip:" + ip }

// IsBlocked reports whether ip is blocked. Lookup errors count as not blocked.
func (b *IPBlocker) IsBlocked(ctx context.Context, ip string) bool {
	n, err := b.client.Exists(ctx, blockKey(ip)).Result()
	return err == nil && n > 0
}

// Block blocks ip for duration.
func (b *IPBlocker) Block(ctx context.Context, ip string, duration time.Duration, reason string) error {
	return b.client.Set(ctx, blockKey(ip), reason, duration).Err()
}

// Unblock lifts a block.
func (b *IPBlocker) Unblock(ctx context.Context, ip string) error {
	return b.client.Del(ctx, blockKey(ip), violationKey(ip)).Err()
}

// RecordViolation counts a rejected request and blocks ip once it has
// been rejected violationLimit times within violationWindow.
func (b *IPBlocker) RecordViolation(ctx context.Context, ip string, logger zerolog.Logger) {
	pipe := b.client.TxPipeline()
	incr := pipe.Incr(ctx, violationKey(ip))
	pipe.Expire(ctx, violationKey(ip), violationWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Warn().Err(err).Str("ip", ip).Msg("failed to record violation")
		return
	}

	if incr.Val() < violationLimit {
		return
	}
	if err := b.Block(ctx, ip, blockDuration, "repeated rate limit violations"); err != nil {
		logger.Warn().Err(err).Str("ip", ip).Msg("failed to block ip")
		return
	}
	logger.Warn().
		Str("type", "security").
		Str("event", "ip_auto_blocked").
		Str("ip", ip).
		Int64("violations", incr.Val()).
		Msg("IP auto-blocked for repeated violations")
}

// Whitelist holds the IPs and networks exempt from rate limiting.
type Whitelist struct {
	ips  map[string]bool
	nets []*net.IPNet
}

// NewWhitelist parses entries as single IPs or CIDRs. Invalid CIDRs are
// logged and skipped.
func NewWhitelist(entries []string, logger zerolog.Logger) *Whitelist {
	wl := &Whitelist{ips: make(map[string]bool)}
	for _, entry := range entries {
		if !strings.Contains(entry, "/") {
			wl.ips[entry] = true
			continue
		}
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			logger.Warn().Str("entry", entry).Err(err).Msg("invalid CIDR in whitelist")
			continue
		}
		wl.nets = append(wl.nets, ipNet)
	}

	if len(entries) > 0 {
		logger.Info().
			Int("ips", len(wl.ips)).
			Int("cidrs", len(wl.nets)).
			Msg("rate limit whitelist configured")
	}
	return wl
}

// Contains reports whether ip is exempt.
func (wl *Whitelist) Contains(ip string) bool {
	if wl.ips[ip] {
		return true
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, n := range wl.nets {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}
