// FILE: logkeep/src/internal/auth/authenticator.go
package auth

import (
	"encoding/base64"
	"fmt"
	"net"
	"sync"
	"time"

	"logkeep/src/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lixenwraith/log"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

// Prevent unbounded map growth
const maxTrackedIPs = 10000

// Authenticator guards the query API. A nil Authenticator means auth
// is disabled and every request passes.
type Authenticator struct {
	config       *config.AuthConfig
	logger       *log.Logger
	basicUsers   map[string]string // username -> bcrypt hash
	bearerTokens map[string]bool
	jwtParser    *jwt.Parser
	jwtKeyFunc   jwt.Keyfunc

	// Brute-force protection
	attempts  map[string]*ipAuthState
	attemptMu sync.Mutex
}

type ipAuthState struct {
	limiter     *rate.Limiter
	lastAttempt time.Time
}

// Identity describes an authenticated caller.
type Identity struct {
	Username string
	Method   string // basic, bearer, jwt
}

// New creates an authenticator from config. Returns nil when auth is
// disabled.
func New(cfg *config.AuthConfig, logger *log.Logger) (*Authenticator, error) {
	if cfg == nil || cfg.Type == "" || cfg.Type == "none" {
		return nil, nil
	}

	a := &Authenticator{
		config:       cfg,
		logger:       logger,
		basicUsers:   make(map[string]string),
		bearerTokens: make(map[string]bool),
		attempts:     make(map[string]*ipAuthState),
	}

	if cfg.Type == "basic" && cfg.BasicAuth != nil {
		for _, user := range cfg.BasicAuth.Users {
			a.basicUsers[user.Username] = user.PasswordHash
		}
	}

	if cfg.Type == "bearer" && cfg.BearerAuth != nil {
		for _, token := range cfg.BearerAuth.Tokens {
			a.bearerTokens[token] = true
		}

		if cfg.BearerAuth.JWT != nil && cfg.BearerAuth.JWT.SigningKey != "" {
			a.jwtParser = jwt.NewParser(
				jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
				jwt.WithLeeway(5*time.Second),
				jwt.WithExpirationRequired(),
			)
			key := []byte(cfg.BearerAuth.JWT.SigningKey)
			a.jwtKeyFunc = func(token *jwt.Token) (any, error) {
				return key, nil
			}
		}
	}

	logger.Info("msg", "Authenticator initialized",
		"component", "auth",
		"type", cfg.Type)

	return a, nil
}

// Authenticate validates an HTTP Authorization header value.
func (a *Authenticator) Authenticate(authHeader, remoteAddr string) (*Identity, error) {
	if a == nil {
		return &Identity{Method: "none"}, nil
	}

	if err := a.checkRateLimit(remoteAddr); err != nil {
		return nil, err
	}

	var identity *Identity
	var err error

	switch a.config.Type {
	case "basic":
		identity, err = a.authenticateBasic(authHeader)
	case "bearer":
		identity, err = a.authenticateBearer(authHeader)
	default:
		err = fmt.Errorf("unsupported auth type: %s", a.config.Type)
	}

	if err != nil {
		a.logger.Warn("msg", "Authentication failed",
			"component", "auth",
			"remote_addr", remoteAddr,
			"error", err)
		return nil, err
	}

	return identity, nil
}

// Realm returns the WWW-Authenticate realm for basic auth challenges.
func (a *Authenticator) Realm() string {
	if a == nil || a.config.BasicAuth == nil || a.config.BasicAuth.Realm == "" {
		return "logkeep"
	}
	return a.config.BasicAuth.Realm
}

// Type returns the configured auth type, "none" when disabled.
func (a *Authenticator) Type() string {
	if a == nil {
		return "none"
	}
	return a.config.Type
}

// checkRateLimit throttles auth attempts per source IP: 5 attempts per
// minute with a burst of 3.
func (a *Authenticator) checkRateLimit(remoteAddr string) error {
	ip, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		ip = remoteAddr
	}

	a.attemptMu.Lock()
	defer a.attemptMu.Unlock()

	now := time.Now()
	state, exists := a.attempts[ip]
	if !exists {
		if len(a.attempts) >= maxTrackedIPs {
			a.evictOldestLocked(now)
		}
		state = &ipAuthState{
			limiter: rate.NewLimiter(rate.Every(12*time.Second), 3),
		}
		a.attempts[ip] = state
	}
	state.lastAttempt = now

	if !state.limiter.Allow() {
		a.logger.Warn("msg", "Auth rate limit exceeded",
			"component", "auth",
			"ip", ip)
		return fmt.Errorf("too many authentication attempts")
	}

	return nil
}

// evictOldestLocked samples a handful of entries and drops the stalest.
// Caller holds attemptMu.
func (a *Authenticator) evictOldestLocked(now time.Time) {
	const sampleSize = 20
	var oldestIP string
	oldestTime := now

	sampled := 0
	for ip, state := range a.attempts {
		if state.lastAttempt.Before(oldestTime) {
			oldestIP = ip
			oldestTime = state.lastAttempt
		}
		sampled++
		if sampled >= sampleSize {
			break
		}
	}

	if oldestIP != "" {
		delete(a.attempts, oldestIP)
	}
}

func (a *Authenticator) authenticateBasic(authHeader string) (*Identity, error) {
	const prefix = "Basic "
	if len(authHeader) <= len(prefix) || authHeader[:len(prefix)] != prefix {
		return nil, fmt.Errorf("invalid basic auth header")
	}

	payload, err := base64.StdEncoding.DecodeString(authHeader[len(prefix):])
	if err != nil {
		return nil, fmt.Errorf("invalid base64 encoding")
	}

	username, password, found := cutCredentials(string(payload))
	if !found {
		return nil, fmt.Errorf("invalid credentials format")
	}

	expectedHash, exists := a.basicUsers[username]
	if !exists {
		// Perform bcrypt anyway to prevent timing attacks
		bcrypt.CompareHashAndPassword([]byte("$2a$10$dummy.hash.to.prevent.timing.attacks"), []byte(password))
		return nil, fmt.Errorf("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(expectedHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("invalid credentials")
	}

	return &Identity{Username: username, Method: "basic"}, nil
}

func cutCredentials(payload string) (username, password string, found bool) {
	for i := 0; i < len(payload); i++ {
		if payload[i] == ':' {
			return payload[:i], payload[i+1:], true
		}
	}
	return "", "", false
}

func (a *Authenticator) authenticateBearer(authHeader string) (*Identity, error) {
	const prefix = "Bearer "
	if len(authHeader) <= len(prefix) || authHeader[:len(prefix)] != prefix {
		return nil, fmt.Errorf("invalid bearer auth header")
	}

	token := authHeader[len(prefix):]

	if a.bearerTokens[token] {
		return &Identity{Method: "bearer"}, nil
	}

	if a.jwtParser != nil && a.jwtKeyFunc != nil {
		return a.validateJWT(token)
	}

	return nil, fmt.Errorf("invalid token")
}

func (a *Authenticator) validateJWT(token string) (*Identity, error) {
	claims := jwt.MapClaims{}
	parsedToken, err := a.jwtParser.ParseWithClaims(token, claims, a.jwtKeyFunc)
	if err != nil {
		return nil, fmt.Errorf("JWT validation failed: %w", err)
	}

	if !parsedToken.Valid {
		return nil, fmt.Errorf("invalid JWT token")
	}

	jwtCfg := a.config.BearerAuth.JWT

	if jwtCfg.Issuer != "" {
		if iss, ok := claims["iss"].(string); !ok || iss != jwtCfg.Issuer {
			return nil, fmt.Errorf("invalid token issuer")
		}
	}

	if jwtCfg.Audience != "" {
		audValid := false
		switch aud := claims["aud"].(type) {
		case string:
			audValid = aud == jwtCfg.Audience
		case []any:
			for _, entry := range aud {
				if s, ok := entry.(string); ok && s == jwtCfg.Audience {
					audValid = true
					break
				}
			}
		}
		if !audValid {
			return nil, fmt.Errorf("invalid token audience")
		}
	}

	username := ""
	if sub, ok := claims["sub"].(string); ok {
		username = sub
	}

	return &Identity{Username: username, Method: "jwt"}, nil
}

// GetStats returns authentication statistics.
func (a *Authenticator) GetStats() map[string]any {
	if a == nil {
		return map[string]any{"enabled": false}
	}

	a.attemptMu.Lock()
	trackedIPs := len(a.attempts)
	a.attemptMu.Unlock()

	return map[string]any{
		"enabled":       true,
		"type":          a.config.Type,
		"basic_users":   len(a.basicUsers),
		"static_tokens": len(a.bearerTokens),
		"tracked_ips":   trackedIPs,
	}
}
