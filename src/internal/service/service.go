// FILE: logkeep/src/internal/service/service.go
package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"logkeep/src/internal/core"
	"logkeep/src/internal/ingest"
	"logkeep/src/internal/store"

	"github.com/lixenwraith/log"
)

// Service wires the ingestion source to the log store. All datagrams,
// regardless of which event loop received them, funnel through one
// writer goroutine: that goroutine is the single serialization point
// for store mutations.
type Service struct {
	store  *store.Store
	source ingest.Source
	logger *log.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startTime time.Time

	// Statistics
	totalStored   atomic.Uint64
	storeFailures atomic.Uint64
}

// New creates a service around an opened store and a constructed (not
// yet started) source.
func New(ctx context.Context, st *store.Store, src ingest.Source, logger *log.Logger) *Service {
	serviceCtx, cancel := context.WithCancel(ctx)
	return &Service{
		store:     st,
		source:    src,
		logger:    logger,
		ctx:       serviceCtx,
		cancel:    cancel,
		startTime: time.Now(),
	}
}

// Start subscribes the writer to the source and begins receiving. A
// source start failure (socket bind) is returned as-is: the process
// must not run without ingestion.
func (s *Service) Start() error {
	entries := s.source.Subscribe()

	s.wg.Add(1)
	go s.writeLoop(entries)

	if err := s.source.Start(); err != nil {
		s.cancel()
		s.source.Stop()
		s.wg.Wait()
		return err
	}

	s.logger.Info("msg", "Ingestion service started", "component", "service")
	return nil
}

// writeLoop is the single writer. It runs until the source closes the
// subscription channel, then drains whatever is buffered so no
// accepted datagram is abandoned at shutdown. Insert failures are
// logged and the loop continues: one bad write must not halt the
// stream.
func (s *Service) writeLoop(entries <-chan core.LogRecord) {
	defer s.wg.Done()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("msg", "Panic in store writer",
				"component", "service",
				"panic", r)
		}
	}()

	for record := range entries {
		// Inserts use a background context so buffered records complete
		// during shutdown instead of being aborted mid-write.
		if _, err := s.store.Insert(context.Background(), &record); err != nil {
			s.storeFailures.Add(1)
			s.logger.Error("msg", "Failed to store record",
				"component", "service",
				"host", record.Host,
				"error", err)
			continue
		}
		s.totalStored.Add(1)
	}

	s.logger.Info("msg", "Store writer drained",
		"component", "service",
		"total_stored", s.totalStored.Load())
}

// Shutdown stops the source and waits for the writer to drain. The
// store itself stays open; its lifecycle belongs to the caller, which
// may still be serving queries.
func (s *Service) Shutdown() {
	s.logger.Info("msg", "Service shutdown initiated", "component", "service")

	s.source.Stop()
	s.wg.Wait()
	s.cancel()

	s.logger.Info("msg", "Service shutdown complete", "component", "service")
}

// GetStats returns statistics for the status endpoint.
func (s *Service) GetStats() map[string]any {
	sourceStats := s.source.GetStats()

	return map[string]any{
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
		"total_stored":   s.totalStored.Load(),
		"store_failures": s.storeFailures.Load(),
		"source": map[string]any{
			"type":            sourceStats.Type,
			"total_entries":   sourceStats.TotalEntries,
			"dropped_entries": sourceStats.DroppedEntries,
			"last_entry_time": sourceStats.LastEntryTime,
			"details":         sourceStats.Details,
		},
	}
}
