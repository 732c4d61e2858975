// FILE: logkeep/src/internal/store/store_test.go
package store

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"logkeep/src/internal/core"

	"github.com/lixenwraith/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "logs.db")}, log.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecord(host, msg string, displayTime time.Time) core.LogRecord {
	ts := displayTime
	return core.LogRecord{
		ReceivedAt: displayTime,
		Timestamp:  &ts,
		Host:       host,
		Msg:        msg,
		Raw:        msg,
	}
}

func TestInsertAssignsIncreasingIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var previous int64
	for i := 0; i < 5; i++ {
		rec := testRecord("hostA", "message", time.Now().UTC())
		id, err := s.Insert(ctx, &rec)
		require.NoError(t, err)
		assert.Greater(t, id, previous)
		assert.Equal(t, id, rec.ID)
		previous = id
	}
}

func TestQueryNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const n = 10
	for i := 0; i < n; i++ {
		rec := testRecord("hostA", "message", time.Now().UTC())
		_, err := s.Insert(ctx, &rec)
		require.NoError(t, err)
	}

	records, err := s.Query(ctx, Filter{Limit: n})
	require.NoError(t, err)
	require.Len(t, records, n)

	for i := 1; i < len(records); i++ {
		assert.Greater(t, records[i-1].ID, records[i].ID, "results must be id-descending")
	}
}

func TestQueryFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, time.November, 16, 12, 0, 0, 0, time.UTC)

	fixtures := []core.LogRecord{
		testRecord("web01", "GET /index.html 200", base),
		testRecord("web01", "GET /missing 404", base.Add(time.Hour)),
		testRecord("db01", "connection refused", base.Add(2*time.Hour)),
		testRecord("db01", "CONNECTION restored", base.Add(3*time.Hour)),
	}
	for i := range fixtures {
		_, err := s.Insert(ctx, &fixtures[i])
		require.NoError(t, err)
	}

	t.Run("HostExactMatch", func(t *testing.T) {
		records, err := s.Query(ctx, Filter{Host: "web01"})
		require.NoError(t, err)
		assert.Len(t, records, 2)
		for _, rec := range records {
			assert.Equal(t, "web01", rec.Host)
		}
	})

	t.Run("TextCaseInsensitive", func(t *testing.T) {
		records, err := s.Query(ctx, Filter{Text: "connection"})
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})

	t.Run("SinceInclusive", func(t *testing.T) {
		records, err := s.Query(ctx, Filter{Since: base.Add(2 * time.Hour)})
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})

	t.Run("UntilExclusive", func(t *testing.T) {
		records, err := s.Query(ctx, Filter{Until: base.Add(time.Hour)})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "GET /index.html 200", records[0].Msg)
	})

	t.Run("CombinedFilters", func(t *testing.T) {
		records, err := s.Query(ctx, Filter{Host: "db01", Text: "refused"})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "connection refused", records[0].Msg)
	})

	t.Run("NoMatchesEmptyNotError", func(t *testing.T) {
		records, err := s.Query(ctx, Filter{Host: "no-such-host"})
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}

func TestQueryNullableFieldsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	bare := core.LogRecord{
		Host: core.UnknownHost,
		Msg:  "no header at all",
		Raw:  "no header at all",
	}
	_, err := s.Insert(ctx, &bare)
	require.NoError(t, err)

	facility, severity := int64(4), int64(2)
	ts := time.Date(2025, time.November, 16, 12, 0, 0, 0, time.UTC)
	full := core.LogRecord{
		Timestamp: &ts,
		Host:      "testhost",
		Facility:  &facility,
		Severity:  &severity,
		Msg:       "hello world",
		Raw:       "<34>Nov 16 12:00:00 testhost hello world",
	}
	_, err = s.Insert(ctx, &full)
	require.NoError(t, err)

	records, err := s.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Newest first: full then bare.
	assert.Equal(t, "testhost", records[0].Host)
	require.NotNil(t, records[0].Timestamp)
	assert.True(t, records[0].Timestamp.Equal(ts))
	require.NotNil(t, records[0].Facility)
	assert.Equal(t, int64(4), *records[0].Facility)

	assert.Nil(t, records[1].Timestamp)
	assert.Nil(t, records[1].Facility)
	assert.Nil(t, records[1].Severity)
	assert.False(t, records[1].ReceivedAt.IsZero())
}

func TestClampLimit(t *testing.T) {
	testCases := []struct {
		name     string
		limit    int
		expected int
	}{
		{"Unspecified", 0, DefaultQueryLimit},
		{"Negative", -5, MinQueryLimit},
		{"TooLarge", 5000, MaxQueryLimit},
		{"InRange", 42, 42},
		{"UpperBound", 1000, 1000},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ClampLimit(tc.limit))
		})
	}
}

func TestQueryLimitClamped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rec := testRecord("hostA", "message", time.Now().UTC())
		_, err := s.Insert(ctx, &rec)
		require.NoError(t, err)
	}

	records, err := s.Query(ctx, Filter{Limit: -1})
	require.NoError(t, err)
	assert.Len(t, records, 1, "limit below range serves exactly one record")

	records, err = s.Query(ctx, Filter{Limit: 5000})
	require.NoError(t, err)
	assert.Len(t, records, 5, "clamped limit still returns all available records")
}

func TestConcurrentInsertsNoLostWrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const k = 50
	ids := make(chan int64, k)

	var wg sync.WaitGroup
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := testRecord("hostA", "concurrent", time.Now().UTC())
			id, err := s.Insert(ctx, &rec)
			assert.NoError(t, err)
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make([]int64, 0, k)
	for id := range ids {
		seen = append(seen, id)
	}
	require.Len(t, seen, k)

	sort.Slice(seen, func(i, j int) bool { return seen[i] < seen[j] })
	for i := 1; i < len(seen); i++ {
		assert.Greater(t, seen[i], seen[i-1], "ids must be distinct and strictly increasing")
	}

	records, err := s.Query(ctx, Filter{Limit: k})
	require.NoError(t, err)
	assert.Len(t, records, k)
}

func TestInsertAfterCloseFails(t *testing.T) {
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "logs.db")}, log.NewLogger())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	rec := testRecord("hostA", "late", time.Now().UTC())
	_, err = s.Insert(context.Background(), &rec)
	assert.Error(t, err)
}

func TestWindowReturnsFullRangeOldestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, time.November, 16, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		rec := testRecord("hostA", "message", base.Add(time.Duration(i)*time.Minute))
		_, err := s.Insert(ctx, &rec)
		require.NoError(t, err)
	}

	// [base+2m, base+7m) picks minutes 2..6
	records, err := s.Window(ctx, base.Add(2*time.Minute), base.Add(7*time.Minute), 0)
	require.NoError(t, err)
	require.Len(t, records, 5)

	for i := 1; i < len(records); i++ {
		assert.True(t, records[i-1].DisplayTime().Before(records[i].DisplayTime()),
			"window results must be oldest first")
	}
}

func TestWindowHonorsRecordCap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, time.November, 16, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		rec := testRecord("hostA", "message", base.Add(time.Duration(i)*time.Second))
		_, err := s.Insert(ctx, &rec)
		require.NoError(t, err)
	}

	records, err := s.Window(ctx, base, base.Add(time.Hour), 3)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}
