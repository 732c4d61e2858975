// FILE: logkeep/src/internal/query/engine_test.go
package query

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"logkeep/src/internal/core"
	"logkeep/src/internal/store"

	"github.com/lixenwraith/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, now time.Time) (*Engine, *store.Store) {
	t.Helper()
	logger := log.NewLogger()
	st, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "logs.db")}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	e := New(st, 24*time.Hour, logger)
	e.now = func() time.Time { return now }
	return e, st
}

func insertAt(t *testing.T, st *store.Store, host, msg string, displayTime time.Time) {
	t.Helper()
	ts := displayTime
	rec := core.LogRecord{
		ReceivedAt: displayTime,
		Timestamp:  &ts,
		Host:       host,
		Msg:        msg,
		Raw:        msg,
	}
	_, err := st.Insert(context.Background(), &rec)
	require.NoError(t, err)
}

func TestListLogs_DefaultWindow(t *testing.T) {
	now := time.Date(2025, time.November, 20, 12, 0, 0, 0, time.UTC)
	e, st := newTestEngine(t, now)

	insertAt(t, st, "fresh", "recent event", now.Add(-time.Hour))
	insertAt(t, st, "stale", "old event", now.Add(-48*time.Hour))

	records, err := e.ListLogs(context.Background(), Params{})
	require.NoError(t, err)
	require.Len(t, records, 1, "default window must exclude records older than 24h")
	assert.Equal(t, "fresh", records[0].Host)
}

func TestListLogs_ExplicitBoundsDisableDefaultWindow(t *testing.T) {
	now := time.Date(2025, time.November, 20, 12, 0, 0, 0, time.UTC)
	e, st := newTestEngine(t, now)

	insertAt(t, st, "stale", "old event", now.Add(-48*time.Hour))

	records, err := e.ListLogs(context.Background(), Params{Since: "2025-11-01T00:00:00Z"})
	require.NoError(t, err)
	assert.Len(t, records, 1)

	// An until-only query must not re-apply the default since.
	records, err = e.ListLogs(context.Background(), Params{Until: "2025-11-21T00:00:00Z"})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestListLogs_TimeFormats(t *testing.T) {
	now := time.Date(2025, time.November, 20, 12, 0, 0, 0, time.UTC)
	e, st := newTestEngine(t, now)
	insertAt(t, st, "hostA", "event", now.Add(-time.Hour))

	for _, since := range []string{
		"2025-11-19T00:00:00Z",
		"2025-11-19T00:00:00+00:00",
		"2025-11-19T00:00:00",
		"2025-11-19 00:00:00",
		"2025-11-19",
	} {
		records, err := e.ListLogs(context.Background(), Params{Since: since})
		require.NoError(t, err, since)
		assert.Len(t, records, 1, since)
	}
}

func TestListLogs_InvalidTimeRejected(t *testing.T) {
	e, _ := newTestEngine(t, time.Now())

	for _, params := range []Params{
		{Since: "yesterday"},
		{Until: "13/45/2025"},
		{Since: "2025-11-19T99:00:00Z"},
	} {
		_, err := e.ListLogs(context.Background(), params)
		require.Error(t, err)

		var validationErr *ValidationError
		assert.True(t, errors.As(err, &validationErr), "expected ValidationError, got %v", err)
	}
}

func TestListLogs_LimitHandling(t *testing.T) {
	now := time.Date(2025, time.November, 20, 12, 0, 0, 0, time.UTC)
	e, st := newTestEngine(t, now)

	for i := 0; i < 5; i++ {
		insertAt(t, st, "hostA", "event", now.Add(-time.Minute))
	}

	t.Run("ExplicitLimit", func(t *testing.T) {
		records, err := e.ListLogs(context.Background(), Params{Limit: "3"})
		require.NoError(t, err)
		assert.Len(t, records, 3)
	})

	t.Run("ZeroClampedToOne", func(t *testing.T) {
		records, err := e.ListLogs(context.Background(), Params{Limit: "0"})
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("OversizedClamped", func(t *testing.T) {
		records, err := e.ListLogs(context.Background(), Params{Limit: "5000"})
		require.NoError(t, err)
		assert.Len(t, records, 5)
	})

	t.Run("NonNumericRejected", func(t *testing.T) {
		_, err := e.ListLogs(context.Background(), Params{Limit: "many"})
		require.Error(t, err)
		var validationErr *ValidationError
		assert.True(t, errors.As(err, &validationErr))
	})
}

func TestParseLimitClamping(t *testing.T) {
	testCases := []struct {
		input    string
		expected int
	}{
		{"", store.DefaultQueryLimit},
		{"0", store.MinQueryLimit},
		{"-10", store.MinQueryLimit},
		{"5000", store.MaxQueryLimit},
		{"1000", 1000},
		{"1", 1},
	}

	for _, tc := range testCases {
		limit, err := parseLimit(tc.input)
		require.NoError(t, err, tc.input)
		assert.Equal(t, tc.expected, limit, tc.input)
	}
}

func TestListLogs_FiltersPassThrough(t *testing.T) {
	now := time.Date(2025, time.November, 20, 12, 0, 0, 0, time.UTC)
	e, st := newTestEngine(t, now)

	insertAt(t, st, "web01", "request served", now.Add(-time.Hour))
	insertAt(t, st, "db01", "query slow", now.Add(-time.Hour))

	records, err := e.ListLogs(context.Background(), Params{Host: "web01"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "web01", records[0].Host)

	records, err = e.ListLogs(context.Background(), Params{Text: "SLOW"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "db01", records[0].Host)
}
