// FILE: logkeep/src/internal/stats/aggregate.go
package stats

import (
	"sort"
	"time"

	"logkeep/src/internal/core"
)

// Defaults for the analytics view. These are tuning knobs, not
// invariants; config may override any of them.
const (
	DefaultWindowHours      = 24
	DefaultTopHosts         = 8
	DefaultTopMessages      = 10
	DefaultMessagePrefixLen = 120
)

// HourBucket is one fixed-width slot of the ingestion time series.
type HourBucket struct {
	Hour  time.Time `json:"hour"`
	Count int64     `json:"count"`
}

// GroupCount is one row of a top-N ranking.
type GroupCount struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// All functions here are pure: they consume whatever record set the
// caller already fetched and never touch storage. Records are bucketed
// and grouped by DisplayTime, the same rule the store indexes on.

// BucketByHour produces exactly `hours` buckets covering the half-open
// range [now-hours, now), oldest first, keyed by the UTC hour. Empty
// buckets report zero rather than being omitted, so the series plots
// directly without client-side gap filling. Records outside the range
// are ignored.
func BucketByHour(records []core.LogRecord, hours int, now time.Time) []HourBucket {
	if hours <= 0 {
		hours = DefaultWindowHours
	}

	now = now.UTC()
	end := now.Truncate(time.Hour)
	if end.Before(now) {
		end = end.Add(time.Hour)
	}
	start := end.Add(-time.Duration(hours) * time.Hour)

	buckets := make([]HourBucket, hours)
	for i := range buckets {
		buckets[i].Hour = start.Add(time.Duration(i) * time.Hour)
	}

	for i := range records {
		t := records[i].DisplayTime().UTC()
		if t.Before(start) || !t.Before(end) {
			continue
		}
		index := int(t.Sub(start) / time.Hour)
		buckets[index].Count++
	}

	return buckets
}

// TopHosts ranks hosts by record count, descending, ties broken by
// first-encountered order, truncated to n.
func TopHosts(records []core.LogRecord, n int) []GroupCount {
	if n <= 0 {
		n = DefaultTopHosts
	}
	return topN(records, n, func(r *core.LogRecord) string {
		return r.Host
	})
}

// TopMessages ranks message templates by count. Messages are truncated
// to prefixLen runes before grouping, so long near-duplicate messages
// (same prefix, varying tail) collapse into one series.
func TopMessages(records []core.LogRecord, n, prefixLen int) []GroupCount {
	if n <= 0 {
		n = DefaultTopMessages
	}
	if prefixLen <= 0 {
		prefixLen = DefaultMessagePrefixLen
	}
	return topN(records, n, func(r *core.LogRecord) string {
		return truncateRunes(r.Msg, prefixLen)
	})
}

// topN groups records by key and returns the n highest counts. The
// sort is stable over first-encounter order, which makes the tie-break
// deterministic for a given input ordering.
func topN(records []core.LogRecord, n int, keyOf func(*core.LogRecord) string) []GroupCount {
	counts := make(map[string]int64)
	order := make([]string, 0)

	for i := range records {
		key := keyOf(&records[i])
		if _, seen := counts[key]; !seen {
			order = append(order, key)
		}
		counts[key]++
	}

	groups := make([]GroupCount, len(order))
	for i, key := range order {
		groups[i] = GroupCount{Key: key, Count: counts[key]}
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Count > groups[j].Count
	})

	if len(groups) > n {
		groups = groups[:n]
	}
	return groups
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
