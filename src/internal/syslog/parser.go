// FILE: logkeep/src/internal/syslog/parser.go
package syslog

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"logkeep/src/internal/core"
)

// Lenient RFC3164-style header pieces. The priority token is matched
// separately so a datagram like "<34>message" still yields facility and
// severity even without a timestamp.
var (
	priRe    = regexp.MustCompile(`^<(\d{1,3})>`)
	headerRe = regexp.MustCompile(`^([A-Z][a-z]{2})\s+(\d{1,2})\s+(\d{2}):(\d{2}):(\d{2})\s*`)
	hostRe   = regexp.MustCompile(`^([\w.\-]+)\s*`)
)

var monthsByName = map[string]time.Month{
	"Jan": time.January, "Feb": time.February, "Mar": time.March,
	"Apr": time.April, "May": time.May, "Jun": time.June,
	"Jul": time.July, "Aug": time.August, "Sep": time.September,
	"Oct": time.October, "Nov": time.November, "Dec": time.December,
}

// Datagrams more than this far in the future are assumed to come from
// the previous year (RFC3164 timestamps carry no year).
const yearRolloverWindow = 180 * 24 * time.Hour

// Parser normalizes raw datagram payloads into LogRecords. It is pure
// and safe for concurrent use.
type Parser struct {
	// Location assumed for header timestamps, which carry no zone.
	// Defaults to the process's local time zone.
	location *time.Location

	// Clock for year inference and rollover correction, overridable in
	// tests.
	now func() time.Time
}

// NewParser creates a parser that interprets header timestamps in loc.
// A nil loc means time.Local.
func NewParser(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.Local
	}
	return &Parser{
		location: loc,
		now:      time.Now,
	}
}

// Normalize converts a raw payload into a LogRecord. It never fails:
// every malformed input degrades to a record with Host "unknown" and
// the full payload as Msg. A dropped datagram is a monitoring gap, so
// nothing is rejected.
func (p *Parser) Normalize(payload []byte, receivedAt time.Time) core.LogRecord {
	raw := strings.ToValidUTF8(string(payload), "�")

	record := core.LogRecord{
		ReceivedAt: receivedAt.UTC(),
		Host:       core.UnknownHost,
		Raw:        raw,
	}

	rest := raw

	if m := priRe.FindStringSubmatch(rest); m != nil {
		pri, err := strconv.ParseInt(m[1], 10, 64)
		if err == nil && pri <= 191 {
			facility := pri / 8
			severity := pri % 8
			record.Facility = &facility
			record.Severity = &severity
			rest = rest[len(m[0]):]
		}
	}

	if m := headerRe.FindStringSubmatch(rest); m != nil {
		if ts, ok := p.parseTimestamp(m); ok {
			record.Timestamp = &ts
		}
		rest = rest[len(m[0]):]

		// A hostname token is only trusted directly after a timestamp;
		// bare words at the start of a message are not hostnames.
		if h := hostRe.FindStringSubmatch(rest); h != nil {
			record.Host = h[1]
			rest = rest[len(h[0]):]
		}
	}

	record.Msg = rest
	return record
}

// parseTimestamp builds a UTC timestamp from matched header fields.
// The year is inferred from the current clock; a result far in the
// future is pulled back one year to handle December-to-January
// rollover. Any out-of-range field invalidates the timestamp without
// invalidating the record.
func (p *Parser) parseTimestamp(m []string) (time.Time, bool) {
	month, ok := monthsByName[m[1]]
	if !ok {
		return time.Time{}, false
	}

	day, _ := strconv.Atoi(m[2])
	hour, _ := strconv.Atoi(m[3])
	minute, _ := strconv.Atoi(m[4])
	second, _ := strconv.Atoi(m[5])

	if day < 1 || day > 31 || hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, false
	}

	now := p.now()
	candidate := time.Date(now.Year(), month, day, hour, minute, second, 0, p.location)

	// time.Date normalizes overflow (Feb 30 becomes Mar 2); treat that
	// as unparsable rather than storing a shifted date.
	if candidate.Month() != month || candidate.Day() != day {
		return time.Time{}, false
	}

	if candidate.Sub(now) > yearRolloverWindow {
		candidate = candidate.AddDate(-1, 0, 0)
	}

	return candidate.UTC(), true
}
