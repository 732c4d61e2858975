// FILE: logkeep/src/internal/core/record.go
package core

import "time"

// LogRecord is the sole persisted entity: one normalized syslog datagram.
// A record is created once by the ingest path and immutable thereafter.
type LogRecord struct {
	// Store-assigned, monotonically increasing, never reused
	ID int64 `json:"id"`

	// When the collector received the datagram (UTC), set at insert
	ReceivedAt time.Time `json:"received_at"`

	// Timestamp parsed from the syslog header, nil when unparsable
	Timestamp *time.Time `json:"ts_utc"`

	// Sender hostname from the header, "unknown" when absent
	Host string `json:"host"`

	// Derived from the <PRI> header token: facility = pri/8, severity = pri%8
	Facility *int64 `json:"facility,omitempty"`
	Severity *int64 `json:"severity,omitempty"`

	// Message body after header extraction; the whole payload when no
	// header matched
	Msg string `json:"msg"`

	// Original payload, retained verbatim for forensic replay
	Raw string `json:"raw"`
}

// DisplayTime returns the timestamp used for range filtering and
// aggregation: the parsed header time when present, the receive time
// otherwise. Every component applies this same rule.
func (r *LogRecord) DisplayTime() time.Time {
	if r.Timestamp != nil {
		return *r.Timestamp
	}
	return r.ReceivedAt
}

// UnknownHost is stored when no hostname could be extracted.
const UnknownHost = "unknown"
