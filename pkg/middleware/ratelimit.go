package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pmapp/authsvc/pkg/httputil"
	"github.com/pmapp/authsvc/pkg/logger"
)

// RateLimitConfig configures a per-client-IP token bucket that admits Max
// requests per Window with a burst of Max.
type RateLimitConfig struct {
	Max    int
	Window time.Duration

	// TrustProxy makes X-Forwarded-For and X-Real-IP authoritative. Enable
	// only behind a proxy that overwrites them.
	TrustProxy bool

	// IdleTTL evicts buckets not used for this long.
	IdleTTL time.Duration
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter holds one token bucket per client IP.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	cfg      RateLimitConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewRateLimiter creates a limiter. Call RunJanitor to evict idle buckets.
func NewRateLimiter(cfg RateLimitConfig, logger *slog.Logger) *RateLimiter {
	if cfg.Max < 1 {
		cfg.Max = 1
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 3 * cfg.Window
	}
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Every(cfg.Window / time.Duration(cfg.Max)),
		burst:    cfg.Max,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

func (l *RateLimiter) limiterFor(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

// Allow reports whether a request from ip may proceed and, if not, how
// long the caller should wait.
func (l *RateLimiter) Allow(ip string) (bool, time.Duration) {
	lim := l.limiterFor(ip)
	now := l.now()
	res := lim.ReserveN(now, 1)
	if !res.OK() {
		return false, l.cfg.Window
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Prune evicts idle buckets and returns how many were removed.
func (l *RateLimiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for ip, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.cfg.IdleTTL {
			delete(l.visitors, ip)
			removed++
		}
	}
	return removed
}

// RunJanitor prunes idle buckets until ctx is canceled.
func (l *RateLimiter) RunJanitor(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.IdleTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Prune()
		}
	}
}

// Middleware rejects requests over the limit with 429 RATE_LIMITED and a
// Retry-After header.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r, l.cfg.TrustProxy)
		ok, wait := l.Allow(ip)
		if ok {
			next.ServeHTTP(w, r)
			return
		}

		secs := int((wait + time.Second - 1) / time.Second)
		l.logger.WarnContext(r.Context(), "rate limit exceeded",
			slog.String("ip", ip),
			slog.String("path", r.URL.Path),
		)
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		httputil.WriteJSON(w, http.StatusTooManyRequests, httputil.Response{
			Error: &httputil.ErrorResponse{
				Code:              "RATE_LIMITED",
				Message:           "too many requests, slow down",
				RetryAfterSeconds: secs,
				RequestID:         logger.CorrelationIDFromContext(r.Context()),
			},
		})
	})
}

// ClientIP returns the caller's address. Forwarding headers are consulted
// only when trustProxy is set.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
				return ip.String()
			}
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			if ip := net.ParseIP(strings.TrimSpace(xri)); ip != nil {
				return ip.String()
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
