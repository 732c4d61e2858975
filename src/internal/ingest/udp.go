// FILE: logkeep/src/internal/ingest/udp.go
package ingest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"logkeep/src/internal/config"
	"logkeep/src/internal/core"
	"logkeep/src/internal/syslog"

	"github.com/lixenwraith/log"
	"github.com/lixenwraith/log/compat"
	"github.com/panjf2000/gnet/v2"
)

// UDPSource receives syslog datagrams on a UDP socket. One datagram is
// one log event; there is no framing and no reply to the sender. Every
// datagram, however malformed, produces a record — the normalizer
// absorbs bad input instead of rejecting it.
type UDPSource struct {
	host       string
	port       int64
	maxPayload int64
	bufferSize int64
	parser     *syslog.Parser

	server      *udpEventServer
	subscribers []chan core.LogRecord
	mu          sync.RWMutex
	done        chan struct{}
	engine      *gnet.Engine
	engineMu    sync.Mutex
	wg          sync.WaitGroup
	stopOnce    sync.Once
	logger      *log.Logger

	// Statistics
	totalEntries     atomic.Uint64
	droppedEntries   atomic.Uint64
	truncatedEntries atomic.Uint64
	emptyEntries     atomic.Uint64
	startTime        time.Time
	lastEntryTime    atomic.Value // time.Time
}

// NewUDPSource creates a UDP syslog source from validated config.
func NewUDPSource(cfg *config.IngestConfig, parser *syslog.Parser, logger *log.Logger) (*UDPSource, error) {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("udp source requires a valid port, got %d", cfg.Port)
	}

	host := cfg.Host
	if host == "" {
		host = "0.0.0.0"
	}

	maxPayload := cfg.MaxPayloadSize
	if maxPayload <= 0 {
		maxPayload = config.DefaultMaxPayloadSize
	}

	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = config.DefaultIngestBufferSize
	}

	u := &UDPSource{
		host:       host,
		port:       cfg.Port,
		maxPayload: maxPayload,
		bufferSize: bufferSize,
		parser:     parser,
		done:       make(chan struct{}),
		startTime:  time.Now(),
		logger:     logger,
	}
	u.lastEntryTime.Store(time.Time{})

	return u, nil
}

func (u *UDPSource) Subscribe() <-chan core.LogRecord {
	u.mu.Lock()
	defer u.mu.Unlock()

	ch := make(chan core.LogRecord, u.bufferSize)
	u.subscribers = append(u.subscribers, ch)
	return ch
}

// Start binds the socket and begins the receive loop. A bind failure
// is fatal to the caller: the process must not pretend to ingest.
func (u *UDPSource) Start() error {
	u.server = &udpEventServer{source: u}

	addr := fmt.Sprintf("udp://%s:%d", u.host, u.port)
	gnetLogger := compat.NewGnetAdapter(u.logger)

	errChan := make(chan error, 1)
	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		u.logger.Info("msg", "UDP source starting",
			"component", "udp_source",
			"host", u.host,
			"port", u.port)

		err := gnet.Run(u.server, addr,
			gnet.WithLogger(gnetLogger),
			gnet.WithMulticore(true),
			gnet.WithReusePort(true),
		)
		if err != nil {
			u.logger.Error("msg", "UDP source failed",
				"component", "udp_source",
				"port", u.port,
				"error", err)
		}
		errChan <- err
	}()

	// Wait briefly: an immediate error means the socket could not be
	// acquired.
	select {
	case err := <-errChan:
		u.Stop()
		return fmt.Errorf("udp source bind %s:%d: %w", u.host, u.port, err)
	case <-time.After(100 * time.Millisecond):
		u.logger.Info("msg", "UDP source started", "port", u.port)
		return nil
	}
}

// Stop is idempotent: the bind-failure path inside Start and the
// normal shutdown path may both reach it.
func (u *UDPSource) Stop() {
	u.stopOnce.Do(func() {
		u.logger.Info("msg", "Stopping UDP source")
		close(u.done)

		u.engineMu.Lock()
		engine := u.engine
		u.engineMu.Unlock()

		if engine != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			(*engine).Stop(ctx)
		}

		u.wg.Wait()

		// Closing subscriber channels lets downstream writers drain
		// what is buffered and then return.
		u.mu.Lock()
		for _, ch := range u.subscribers {
			close(ch)
		}
		u.subscribers = nil
		u.mu.Unlock()

		u.logger.Info("msg", "UDP source stopped")
	})
}

func (u *UDPSource) GetStats() SourceStats {
	lastEntry, _ := u.lastEntryTime.Load().(time.Time)

	return SourceStats{
		Type:           "udp",
		TotalEntries:   u.totalEntries.Load(),
		DroppedEntries: u.droppedEntries.Load(),
		StartTime:      u.startTime,
		LastEntryTime:  lastEntry,
		Details: map[string]any{
			"port":              u.port,
			"max_payload_size":  u.maxPayload,
			"truncated_entries": u.truncatedEntries.Load(),
			"empty_entries":     u.emptyEntries.Load(),
		},
	}
}

func (u *UDPSource) publish(record core.LogRecord) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	u.totalEntries.Add(1)
	u.lastEntryTime.Store(record.ReceivedAt)

	dropped := false
	for _, ch := range u.subscribers {
		select {
		case ch <- record:
		default:
			dropped = true
			u.droppedEntries.Add(1)
		}
	}

	if dropped {
		u.logger.Debug("msg", "Dropped log record - subscriber buffer full",
			"component", "udp_source")
	}
}

// Handles gnet events. UDP is connectionless: every OnTraffic call
// carries exactly one datagram.
type udpEventServer struct {
	gnet.BuiltinEventEngine
	source *UDPSource
}

func (s *udpEventServer) OnBoot(eng gnet.Engine) gnet.Action {
	s.source.engineMu.Lock()
	s.source.engine = &eng
	s.source.engineMu.Unlock()

	s.source.logger.Debug("msg", "UDP source booted",
		"component", "udp_source",
		"port", s.source.port)
	return gnet.None
}

func (s *udpEventServer) OnTraffic(c gnet.Conn) gnet.Action {
	data, err := c.Next(-1)
	if err != nil {
		s.source.logger.Error("msg", "Error reading datagram",
			"component", "udp_source",
			"error", err)
		return gnet.None
	}

	receivedAt := time.Now().UTC()

	if len(data) == 0 {
		s.source.emptyEntries.Add(1)
	}

	// Data past the cap is discarded; the truncated datagram is still
	// normalized and stored rather than rejected.
	if int64(len(data)) > s.source.maxPayload {
		data = data[:s.source.maxPayload]
		s.source.truncatedEntries.Add(1)
		s.source.logger.Debug("msg", "Truncated oversized datagram",
			"component", "udp_source",
			"limit", s.source.maxPayload)
	}

	record := s.source.parser.Normalize(data, receivedAt)
	s.source.publish(record)

	return gnet.None
}
