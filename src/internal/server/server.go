// FILE: logkeep/src/internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"logkeep/src/internal/auth"
	"logkeep/src/internal/config"
	"logkeep/src/internal/netlimit"
	"logkeep/src/internal/query"
	"logkeep/src/internal/stats"
	"logkeep/src/internal/store"
	"logkeep/src/internal/version"

	"github.com/lixenwraith/log"
	"github.com/lixenwraith/log/compat"
	"github.com/valyala/fasthttp"
)

// StatsProvider exposes runtime counters for the status endpoint.
type StatsProvider interface {
	GetStats() map[string]any
}

// Server is the HTTP query API over the log store.
type Server struct {
	config   *config.APIConfig
	statsCfg config.StatsConfig

	engine  *query.Engine
	store   *store.Store
	service StatsProvider
	logger  *log.Logger

	authenticator *auth.Authenticator
	netLimiter    *netlimit.Limiter

	httpServer *fasthttp.Server
	startTime  time.Time
	now        func() time.Time

	// Statistics
	totalRequests atomic.Uint64
	authFailures  atomic.Uint64
	authSuccesses atomic.Uint64
}

// New assembles the query API from validated config. The service
// parameter feeds ingestion counters into /status and may be nil.
func New(cfg *config.APIConfig, statsCfg config.StatsConfig, engine *query.Engine, st *store.Store, svc StatsProvider, logger *log.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("API config cannot be nil")
	}

	s := &Server{
		config:    cfg,
		statsCfg:  statsCfg,
		engine:    engine,
		store:     st,
		service:   svc,
		logger:    logger,
		startTime: time.Now(),
		now:       time.Now,
	}

	authenticator, err := auth.New(cfg.Auth, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticator: %w", err)
	}
	s.authenticator = authenticator

	s.netLimiter = netlimit.New(cfg.RateLimit, logger)

	return s, nil
}

// Start binds the listener and begins serving. It returns once the
// server has bound, or with the bind error.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &fasthttp.Server{
		Name:         fmt.Sprintf("logkeep/%s", version.Short()),
		Handler:      s.handleRequest,
		Logger:       compat.NewFastHTTPAdapter(s.logger),
		ReadTimeout:  time.Duration(s.config.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeoutSeconds) * time.Second,
	}

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("msg", "Query API started",
			"component", "server",
			"host", s.config.Host,
			"port", s.config.Port)

		if err := s.httpServer.ListenAndServe(addr); err != nil {
			errChan <- err
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.httpServer.ShutdownWithContext(shutdownCtx)
		s.netLimiter.Shutdown()
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("query API failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

func (s *Server) handleRequest(ctx *fasthttp.RequestCtx) {
	s.totalRequests.Add(1)
	remoteAddr := ctx.RemoteAddr().String()

	if !s.netLimiter.Check(remoteAddr) {
		writeError(ctx, fasthttp.StatusTooManyRequests, "Too many requests")
		return
	}

	if !ctx.IsGet() {
		writeError(ctx, fasthttp.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	path := string(ctx.Path())

	// Health and status are probe endpoints, always open.
	switch path {
	case "/healthz":
		s.handleHealthz(ctx)
		return
	case "/status":
		s.handleStatus(ctx)
		return
	}

	if s.authenticator != nil {
		authHeader := string(ctx.Request.Header.Peek("Authorization"))
		if _, err := s.authenticator.Authenticate(authHeader, remoteAddr); err != nil {
			s.authFailures.Add(1)

			ctx.SetStatusCode(fasthttp.StatusUnauthorized)
			switch s.authenticator.Type() {
			case "basic":
				ctx.Response.Header.Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", s.authenticator.Realm()))
			case "bearer":
				ctx.Response.Header.Set("WWW-Authenticate", "Bearer")
			}
			ctx.SetContentType("application/json")
			json.NewEncoder(ctx).Encode(map[string]string{"error": "Unauthorized"})
			return
		}
		s.authSuccesses.Add(1)
	}

	switch path {
	case "/logs":
		s.handleLogs(ctx)
	case "/stats":
		s.handleStats(ctx)
	default:
		writeError(ctx, fasthttp.StatusNotFound, "Not Found")
	}
}

func (s *Server) handleLogs(ctx *fasthttp.RequestCtx) {
	args := ctx.QueryArgs()
	params := query.Params{
		Host:  string(args.Peek("host")),
		Text:  string(args.Peek("text")),
		Since: string(args.Peek("since")),
		Until: string(args.Peek("until")),
		Limit: string(args.Peek("limit")),
	}

	records, err := s.engine.ListLogs(ctx, params)
	if err != nil {
		var verr *query.ValidationError
		if errors.As(err, &verr) {
			writeValidationError(ctx, verr)
			return
		}
		s.logger.Error("msg", "Log query failed",
			"component", "server",
			"error", err)
		writeError(ctx, fasthttp.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(ctx, fasthttp.StatusOK, map[string]any{
		"logs":  records,
		"count": len(records),
	})
}

func (s *Server) handleStats(ctx *fasthttp.RequestCtx) {
	args := ctx.QueryArgs()

	hours, err := intArg(args, "hours", int(s.statsCfg.WindowHours))
	if err != nil {
		writeValidationError(ctx, err)
		return
	}
	topHosts, err := intArg(args, "top_hosts", int(s.statsCfg.TopHosts))
	if err != nil {
		writeValidationError(ctx, err)
		return
	}
	topMessages, err := intArg(args, "top_messages", int(s.statsCfg.TopMessages))
	if err != nil {
		writeValidationError(ctx, err)
		return
	}

	if hours <= 0 {
		hours = stats.DefaultWindowHours
	}

	now := s.now().UTC()
	records, werr := s.store.Window(ctx, now.Add(-time.Duration(hours)*time.Hour), now, 0)
	if werr != nil {
		s.logger.Error("msg", "Stats window query failed",
			"component", "server",
			"error", werr)
		writeError(ctx, fasthttp.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(ctx, fasthttp.StatusOK, map[string]any{
		"window_hours": hours,
		"record_count": len(records),
		"timeseries":   stats.BucketByHour(records, hours, now),
		"top_hosts":    stats.TopHosts(records, topHosts),
		"top_messages": stats.TopMessages(records, topMessages, int(s.statsCfg.MessagePrefixLen)),
	})
}

func (s *Server) handleHealthz(ctx *fasthttp.RequestCtx) {
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("msg", "Health check failed",
			"component", "server",
			"error", err)
		writeJSON(ctx, fasthttp.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(ctx *fasthttp.RequestCtx) {
	var serviceStats any
	if s.service != nil {
		serviceStats = s.service.GetStats()
	}

	status := map[string]any{
		"service": "logkeep",
		"version": version.Short(),
		"server": map[string]any{
			"port":           s.config.Port,
			"uptime_seconds": int(time.Since(s.startTime).Seconds()),
		},
		"endpoints": map[string]string{
			"logs":   "/logs",
			"stats":  "/stats",
			"health": "/healthz",
			"status": "/status",
		},
		"features": map[string]any{
			"auth":       s.authenticator.GetStats(),
			"rate_limit": s.netLimiter.GetStats(),
		},
		"statistics": map[string]any{
			"total_requests": s.totalRequests.Load(),
			"auth_failures":  s.authFailures.Load(),
			"auth_successes": s.authSuccesses.Load(),
			"ingestion":      serviceStats,
			"storage":        s.store.Stats(ctx),
		},
	}

	writeJSON(ctx, fasthttp.StatusOK, status)
}

func intArg(args *fasthttp.Args, name string, fallback int) (int, *query.ValidationError) {
	raw := string(args.Peek(name))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &query.ValidationError{Param: name, Reason: "must be an integer"}
	}
	return value, nil
}

func writeJSON(ctx *fasthttp.RequestCtx, statusCode int, body any) {
	ctx.SetStatusCode(statusCode)
	ctx.SetContentType("application/json")
	data, err := json.Marshal(body)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBody([]byte(`{"error":"encoding failure"}`))
		return
	}
	ctx.SetBody(data)
}

func writeError(ctx *fasthttp.RequestCtx, statusCode int, message string) {
	writeJSON(ctx, statusCode, map[string]string{"error": message})
}

func writeValidationError(ctx *fasthttp.RequestCtx, verr *query.ValidationError) {
	writeJSON(ctx, fasthttp.StatusBadRequest, map[string]string{
		"error": verr.Error(),
		"param": verr.Param,
	})
}
