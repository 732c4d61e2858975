// FILE: logkeep/src/internal/stats/aggregate_test.go
package stats

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logkeep/src/internal/core"
)

func recordAt(t time.Time, host, msg string) core.LogRecord {
	ts := t
	return core.LogRecord{
		ReceivedAt: t,
		Timestamp:  &ts,
		Host:       host,
		Msg:        msg,
		Raw:        msg,
	}
}

func TestBucketByHourSpansWindow(t *testing.T) {
	now := time.Date(2025, time.November, 16, 14, 30, 0, 0, time.UTC)

	records := []core.LogRecord{
		recordAt(now.Add(-30*time.Minute), "a", "m"),
		recordAt(now.Add(-90*time.Minute), "a", "m"),
		recordAt(now.Add(-90*time.Minute), "b", "m"),
		recordAt(now.Add(-23*time.Hour), "a", "m"),
	}

	buckets := BucketByHour(records, 24, now)
	require.Len(t, buckets, 24)

	// Oldest first, contiguous hour steps, hour-aligned keys.
	for i, b := range buckets {
		assert.Equal(t, b.Hour, b.Hour.Truncate(time.Hour))
		if i > 0 {
			assert.Equal(t, time.Hour, b.Hour.Sub(buckets[i-1].Hour))
		}
	}

	last := buckets[23]
	assert.Equal(t, time.Date(2025, time.November, 16, 14, 0, 0, 0, time.UTC), last.Hour)
	assert.Equal(t, int64(1), last.Count)
	assert.Equal(t, int64(2), buckets[22].Count)

	var total int64
	for _, b := range buckets {
		total += b.Count
	}
	assert.Equal(t, int64(4), total)
}

func TestBucketByHourZeroFillsEmptyHours(t *testing.T) {
	now := time.Date(2025, time.November, 16, 14, 30, 0, 0, time.UTC)

	buckets := BucketByHour(nil, 6, now)
	require.Len(t, buckets, 6)
	for _, b := range buckets {
		assert.Zero(t, b.Count)
	}
}

func TestBucketByHourIgnoresOutOfRange(t *testing.T) {
	now := time.Date(2025, time.November, 16, 14, 30, 0, 0, time.UTC)

	records := []core.LogRecord{
		recordAt(now.Add(-48*time.Hour), "a", "old"),
		recordAt(now.Add(2*time.Hour), "a", "future"),
		recordAt(now, "a", "current"),
	}

	buckets := BucketByHour(records, 4, now)
	require.Len(t, buckets, 4)

	var total int64
	for _, b := range buckets {
		total += b.Count
	}
	assert.Equal(t, int64(1), total)
}

func TestBucketByHourUsesReceivedAtFallback(t *testing.T) {
	now := time.Date(2025, time.November, 16, 14, 30, 0, 0, time.UTC)

	// No parsed timestamp, so the record buckets by arrival time.
	records := []core.LogRecord{{
		ReceivedAt: now.Add(-10 * time.Minute),
		Host:       core.UnknownHost,
		Msg:        "raw line",
		Raw:        "raw line",
	}}

	buckets := BucketByHour(records, 2, now)
	require.Len(t, buckets, 2)
	assert.Equal(t, int64(1), buckets[1].Count)
}

func TestTopHostsOrdering(t *testing.T) {
	now := time.Now().UTC()

	var records []core.LogRecord
	for i := 0; i < 5; i++ {
		records = append(records, recordAt(now, "web-1", "m"))
	}
	for i := 0; i < 3; i++ {
		records = append(records, recordAt(now, "db-1", "m"))
	}
	records = append(records, recordAt(now, "cache-1", "m"))

	top := TopHosts(records, 2)
	require.Len(t, top, 2)
	assert.Equal(t, GroupCount{Key: "web-1", Count: 5}, top[0])
	assert.Equal(t, GroupCount{Key: "db-1", Count: 3}, top[1])
}

func TestTopHostsTieBreakIsFirstEncountered(t *testing.T) {
	now := time.Now().UTC()

	records := []core.LogRecord{
		recordAt(now, "zulu", "m"),
		recordAt(now, "alpha", "m"),
		recordAt(now, "zulu", "m"),
		recordAt(now, "alpha", "m"),
	}

	top := TopHosts(records, 8)
	require.Len(t, top, 2)
	assert.Equal(t, "zulu", top[0].Key)
	assert.Equal(t, "alpha", top[1].Key)
}

func TestTopMessagesGroupsByPrefix(t *testing.T) {
	now := time.Now().UTC()

	base := strings.Repeat("x", 120)
	records := []core.LogRecord{
		recordAt(now, "a", base+" tail one"),
		recordAt(now, "a", base+" tail two"),
		recordAt(now, "a", "short message"),
	}

	top := TopMessages(records, 10, 120)
	require.Len(t, top, 2)
	assert.Equal(t, GroupCount{Key: base, Count: 2}, top[0])
	assert.Equal(t, GroupCount{Key: "short message", Count: 1}, top[1])
}

func TestTopMessagesPrefixIsRuneAware(t *testing.T) {
	now := time.Now().UTC()

	records := []core.LogRecord{
		recordAt(now, "a", "héllo wörld"),
		recordAt(now, "a", "héllo wörld"),
	}

	top := TopMessages(records, 10, 5)
	require.Len(t, top, 1)
	assert.Equal(t, "héllo", top[0].Key)
	assert.Equal(t, int64(2), top[0].Count)
}

func TestTopNTruncatesToRequestedSize(t *testing.T) {
	now := time.Now().UTC()

	var records []core.LogRecord
	for i := 0; i < 20; i++ {
		records = append(records, recordAt(now, fmt.Sprintf("host-%d", i), "m"))
	}

	top := TopHosts(records, 8)
	assert.Len(t, top, 8)
}
