package websocket

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const (
	bucketSweepInterval = 5 * time.Minute
	bucketIdleTimeout   = 10 * time.Minute
)

// RejectReason says which connection limit refused an upgrade.
type RejectReason string

const (
	RejectGlobal RejectReason = "global_limit"
	RejectPerIP  RejectReason = "per_ip_limit"
	RejectRate   RejectReason = "rate_limit"
)

// LimitConfig bounds websocket connections per instance. Zero values disable a limit.
type LimitConfig struct {
	MaxTotal int
	MaxPerIP int
	// Rate is new connections per second per IP; Burst is the bucket size.
	Rate  float64
	Burst int
}

// ConnLimiter admits websocket connections against a global cap, a per-IP cap and a
// per-IP rate of new connections.
type ConnLimiter struct {
	cfg   LimitConfig
	clock clockwork.Clock

	mu      sync.Mutex
	total   int
	perIP   map[string]int
	buckets map[string]*bucket
	sweepAt time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewConnLimiter(cfg LimitConfig, clock clockwork.Clock) *ConnLimiter {
	return &ConnLimiter{
		cfg:     cfg,
		clock:   clock,
		perIP:   make(map[string]int),
		buckets: make(map[string]*bucket),
		sweepAt: clock.Now().Add(bucketSweepInterval),
	}
}

// Acquire reserves a slot for ip. On success the returned release func must be called
// exactly once when the connection ends.
func (l *ConnLimiter) Acquire(ip string) (release func(), reason RejectReason, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.After(l.sweepAt) {
		l.sweep(now)
	}

	if !l.allowRate(ip, now) {
		return nil, RejectRate, false
	}
	if l.cfg.MaxTotal > 0 && l.total >= l.cfg.MaxTotal {
		return nil, RejectGlobal, false
	}
	if l.cfg.MaxPerIP > 0 && l.perIP[ip] >= l.cfg.MaxPerIP {
		return nil, RejectPerIP, false
	}

	l.total++
	l.perIP[ip]++

	var once sync.Once
	return func() { once.Do(func() { l.release(ip) }) }, "", true
}

func (l *ConnLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.total--
	if l.perIP[ip] <= 1 {
		delete(l.perIP, ip)
		return
	}
	l.perIP[ip]--
}

// Active returns the number of admitted connections and distinct client IPs.
func (l *ConnLimiter) Active() (connections, ips int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total, len(l.perIP)
}

func (l *ConnLimiter) allowRate(ip string, now time.Time) bool {
	if l.cfg.Rate <= 0 {
		return true
	}
	b, ok := l.buckets[ip]
	if !ok {
		burst := l.cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(l.cfg.Rate), burst)}
		l.buckets[ip] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// sweep drops rate buckets of IPs that have not connected for a while. Must be called with mu held.
func (l *ConnLimiter) sweep(now time.Time) {
	cutoff := now.Add(-bucketIdleTimeout)
	for ip, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, ip)
		}
	}
	l.sweepAt = now.Add(bucketSweepInterval)
}

// clientIP is the request's remote host. Proxies are expected to rewrite RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
