// Package ranking orders competitors for display.
//
// Competitors are compared by how many distances they have completed, then by
// the points collected over those distances, then by name. All functions are
// pure and safe for concurrent use.
package ranking

import (
	"math"
	"slices"
	"strconv"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/intermernet/skating-results/internal/results"
)

// CompletedCount returns the length of the contiguous prefix of skated
// distances. A missing time at slot k stops the scan, so later slots are never
// counted even if they hold a value.
func CompletedCount(r results.Result) int {
	for i, d := range results.Distances {
		if r.Split(d).Time == nil {
			return i
		}
	}
	return len(results.Distances)
}

// PartialTotal sums the points of the completed prefix. It returns nil when
// no distance is completed. A missing point value inside the prefix counts as 0.
func PartialTotal(r results.Result) *float64 {
	n := CompletedCount(r)
	if n == 0 {
		return nil
	}

	var total float64
	for _, d := range results.Distances[:n] {
		if p := r.Split(d).Points; p != nil {
			total += *p
		}
	}
	return &total
}

// Rank returns a new slice ordered by completed count (descending), partial
// total (ascending, nil last) and full name. The sort is stable and the input
// slice is left untouched.
func Rank(rs []results.Result) []results.Result {
	type entry struct {
		result results.Result
		count  int
		total  *float64
		name   string
	}
	// Derive every sort key once up front instead of inside the comparator.
	entries := make([]entry, len(rs))
	for i, r := range rs {
		entries[i] = entry{result: r, count: CompletedCount(r), total: PartialTotal(r), name: r.FullName()}
	}

	// collate.Collator keeps internal buffers, so each call gets its own.
	names := collate.New(language.Finnish)

	slices.SortStableFunc(entries, func(a, b entry) int {
		// 1. More completed distances always wins, whatever the points.
		if a.count != b.count {
			return b.count - a.count
		}
		// 2. Fewer points over the same distances ranks higher.
		if c := compareTotals(a.total, b.total); c != 0 {
			return c
		}
		// 3. Alphabetical, with Finnish letters after z.
		return names.CompareString(a.name, b.name)
	})

	ranked := make([]results.Result, len(entries))
	for i, e := range entries {
		ranked[i] = e.result
	}
	return ranked
}

// compareTotals orders ascending with nil after every number.
func compareTotals(a, b *float64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	default:
		return 0
	}
}

// LeaderReference is the partial total of the first ranked competitor, or nil
// for an empty list.
func LeaderReference(ranked []results.Result) *float64 {
	if len(ranked) == 0 {
		return nil
	}
	return PartialTotal(ranked[0])
}

// Difference returns the competitor's partial total minus the leader
// reference, rounded to hundredths. It is nil when either side is nil.
func Difference(r results.Result, leader *float64) *float64 {
	total := PartialTotal(r)
	if total == nil || leader == nil {
		return nil
	}
	d := math.Round((*total-*leader)*100) / 100
	if d == 0 {
		// avoid "-0"
		d = 0
	}
	return &d
}

// FormatDifference prints d with an explicit "+" when it is positive.
func FormatDifference(d float64) string {
	s := strconv.FormatFloat(d, 'f', -1, 64)
	if d > 0 {
		return "+" + s
	}
	return s
}
