// FILE: logkeep/src/internal/ingest/ingest.go
package ingest

import (
	"time"

	"logkeep/src/internal/core"
)

// Represents an input stream of normalized log records
type Source interface {
	// Returns a channel that receives normalized records
	Subscribe() <-chan core.LogRecord

	// Begins receiving from the source
	Start() error

	// Gracefully shuts down the source
	Stop()

	// Returns source statistics
	GetStats() SourceStats
}

// Contains statistics about a source
type SourceStats struct {
	Type           string
	TotalEntries   uint64
	DroppedEntries uint64
	StartTime      time.Time
	LastEntryTime  time.Time
	Details        map[string]any
}
