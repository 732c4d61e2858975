// FILE: logkeep/src/internal/query/engine.go
package query

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"logkeep/src/internal/core"
	"logkeep/src/internal/store"

	"github.com/lixenwraith/log"
)

// ValidationError reports an unusable query parameter. Unlike
// ingestion input, query parameters come from a trusted caller
// surface, so bad values are rejected instead of silently corrected
// beyond the defined clamping rules.
type ValidationError struct {
	Param  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid parameter %q: %s", e.Param, e.Reason)
}

// Accepted time bound formats, tried in order. Formats without a zone
// are assumed UTC.
var timeLayouts = []struct {
	layout  string
	hasZone bool
}{
	{time.RFC3339Nano, true},
	{time.RFC3339, true},
	{"2006-01-02T15:04:05", false},
	{"2006-01-02 15:04:05", false},
	{"2006-01-02", false},
}

// Engine translates raw caller-supplied filter parameters into store
// reads: it parses time bounds, clamps limits, and applies the default
// lookback window so an unbounded dashboard query stays bounded.
type Engine struct {
	store         *store.Store
	defaultWindow time.Duration
	logger        *log.Logger

	// Overridable in tests
	now func() time.Time
}

// Params carries filter input exactly as received from the caller.
// Empty strings mean "no constraint".
type Params struct {
	Host  string
	Text  string
	Since string
	Until string
	Limit string
}

// New creates an engine over an opened store. defaultWindow bounds
// queries that supply neither time bound; zero means 24 hours.
func New(st *store.Store, defaultWindow time.Duration, logger *log.Logger) *Engine {
	if defaultWindow <= 0 {
		defaultWindow = 24 * time.Hour
	}
	return &Engine{
		store:         st,
		defaultWindow: defaultWindow,
		logger:        logger,
		now:           time.Now,
	}
}

// ListLogs validates the parameters and reads matching records,
// newest first. Invalid time bounds or limits yield a
// *ValidationError; an empty result set is not an error.
func (e *Engine) ListLogs(ctx context.Context, params Params) ([]core.LogRecord, error) {
	filter, err := e.buildFilter(params)
	if err != nil {
		return nil, err
	}
	return e.store.Query(ctx, filter)
}

func (e *Engine) buildFilter(params Params) (store.Filter, error) {
	filter := store.Filter{
		Host: strings.TrimSpace(params.Host),
		Text: strings.TrimSpace(params.Text),
	}

	since, err := parseTimeBound("since", params.Since)
	if err != nil {
		return store.Filter{}, err
	}
	until, err := parseTimeBound("until", params.Until)
	if err != nil {
		return store.Filter{}, err
	}
	filter.Since = since
	filter.Until = until

	// Neither bound given: default to the recent window rather than
	// scanning the whole store.
	if since.IsZero() && until.IsZero() {
		filter.Since = e.now().UTC().Add(-e.defaultWindow)
	}

	limit, err := parseLimit(params.Limit)
	if err != nil {
		return store.Filter{}, err
	}
	filter.Limit = limit

	return filter, nil
}

func parseTimeBound(name, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}

	for _, candidate := range timeLayouts {
		var t time.Time
		var err error
		if candidate.hasZone {
			t, err = time.Parse(candidate.layout, value)
		} else {
			t, err = time.ParseInLocation(candidate.layout, value, time.UTC)
		}
		if err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, &ValidationError{
		Param:  name,
		Reason: fmt.Sprintf("unrecognized time format %q", value),
	}
}

// parseLimit maps the raw limit string to an effective limit: empty
// means the default, out-of-range values are clamped (an explicit 0
// serves as 1), and anything non-numeric is rejected.
func parseLimit(value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return store.DefaultQueryLimit, nil
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, &ValidationError{
			Param:  "limit",
			Reason: fmt.Sprintf("not an integer: %q", value),
		}
	}

	if n < store.MinQueryLimit {
		return store.MinQueryLimit, nil
	}
	if n > store.MaxQueryLimit {
		return store.MaxQueryLimit, nil
	}
	return n, nil
}
