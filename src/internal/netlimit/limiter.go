// FILE: logkeep/src/internal/netlimit/limiter.go
package netlimit

import (
	"context"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"logkeep/src/internal/config"

	"github.com/lixenwraith/log"
	"golang.org/x/time/rate"
)

const (
	defaultMaxClients = 10000
	staleTimeout      = 5 * time.Minute
)

// Limiter throttles API clients per source IP.
type Limiter struct {
	config config.NetLimitConfig
	logger *log.Logger

	// Per-IP limiters
	clients map[string]*client
	mu      sync.Mutex

	// Statistics
	totalRequests   atomic.Uint64
	blockedRequests atomic.Uint64

	// Lifecycle management
	ctx         context.Context
	cancel      context.CancelFunc
	cleanupDone chan struct{}
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a per-IP limiter. Returns nil when limiting is disabled,
// which every method tolerates.
func New(cfg *config.NetLimitConfig, logger *log.Logger) *Limiter {
	if cfg == nil || !cfg.Enabled || cfg.RequestsPerSecond <= 0 {
		return nil
	}

	if logger == nil {
		panic("netlimit.New: logger cannot be nil")
	}

	if cfg.Burst <= 0 {
		cfg.Burst = int64(cfg.RequestsPerSecond)
		if cfg.Burst < 1 {
			cfg.Burst = 1
		}
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = defaultMaxClients
	}

	ctx, cancel := context.WithCancel(context.Background())

	l := &Limiter{
		config:      *cfg,
		clients:     make(map[string]*client),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		cleanupDone: make(chan struct{}),
	}

	go l.cleanupLoop()

	l.logger.Info("msg", "Net limiter initialized",
		"component", "netlimit",
		"requests_per_second", cfg.RequestsPerSecond,
		"burst", cfg.Burst,
		"max_clients", cfg.MaxClients)

	return l
}

func (l *Limiter) Shutdown() {
	if l == nil {
		return
	}

	l.cancel()

	select {
	case <-l.cleanupDone:
	case <-time.After(2 * time.Second):
		l.logger.Warn("msg", "Cleanup goroutine shutdown timeout", "component", "netlimit")
	}
}

// Check reports whether a request from remoteAddr should be allowed.
func (l *Limiter) Check(remoteAddr string) bool {
	if l == nil {
		return true
	}

	l.totalRequests.Add(1)

	ip := extractIP(remoteAddr)
	if ip == "" {
		// Unparseable address, allow rather than lock out
		l.logger.Warn("msg", "Failed to parse remote addr",
			"component", "netlimit",
			"remote_addr", remoteAddr)
		return true
	}

	allowed := l.clientFor(ip).Allow()
	if !allowed {
		l.blockedRequests.Add(1)
		l.logger.Debug("msg", "Request rate limited", "ip", ip)
	}

	return allowed
}

func (l *Limiter) clientFor(ip string) *rate.Limiter {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	c, exists := l.clients[ip]
	if !exists {
		if int64(len(l.clients)) >= l.config.MaxClients {
			l.evictOldestLocked()
		}
		c = &client{
			limiter: rate.NewLimiter(rate.Limit(l.config.RequestsPerSecond), int(l.config.Burst)),
		}
		l.clients[ip] = c
	}
	c.lastSeen = now

	return c.limiter
}

// evictOldestLocked drops the least recently seen client. Caller holds mu.
func (l *Limiter) evictOldestLocked() {
	var oldestIP string
	var oldestSeen time.Time
	for ip, c := range l.clients {
		if oldestIP == "" || c.lastSeen.Before(oldestSeen) {
			oldestIP = ip
			oldestSeen = c.lastSeen
		}
	}
	if oldestIP != "" {
		delete(l.clients, oldestIP)
	}
}

// GetStats returns limiter statistics.
func (l *Limiter) GetStats() map[string]any {
	if l == nil {
		return map[string]any{
			"enabled": false,
		}
	}

	l.mu.Lock()
	activeIPs := len(l.clients)
	l.mu.Unlock()

	return map[string]any{
		"enabled":          true,
		"total_requests":   l.totalRequests.Load(),
		"blocked_requests": l.blockedRequests.Load(),
		"active_ips":       activeIPs,
		"config": map[string]any{
			"requests_per_second": l.config.RequestsPerSecond,
			"burst":               l.config.Burst,
			"max_clients":         l.config.MaxClients,
		},
	}
}

func (l *Limiter) cleanup() {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	cleaned := 0
	for ip, c := range l.clients {
		if now.Sub(c.lastSeen) > staleTimeout {
			delete(l.clients, ip)
			cleaned++
		}
	}

	if cleaned > 0 {
		l.logger.Debug("msg", "Cleaned up stale client limiters",
			"cleaned", cleaned,
			"remaining", len(l.clients))
	}
}

func (l *Limiter) cleanupLoop() {
	defer close(l.cleanupDone)

	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			l.cleanup()
		}
	}
}

// extractIP pulls the host part out of an addr that may or may not
// carry a port.
func extractIP(remoteAddr string) string {
	if ip, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return ip
	}
	trimmed := strings.Trim(remoteAddr, "[]")
	if net.ParseIP(trimmed) != nil {
		return trimmed
	}
	return ""
}
