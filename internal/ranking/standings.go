package ranking

import "github.com/intermernet/skating-results/internal/results"

// Standing is a ranked result annotated with the values the results table shows.
type Standing struct {
	Result         results.Result
	Position       int
	CompletedCount int
	PartialTotal   *float64
	// Difference to the leader. Nil unless it is meaningful for this row.
	Difference *float64
}

// Standings ranks rs and annotates each row. Differences are only filled when
// withDifferences is set, and only for rows that completed as many distances
// as the leader and whose total differs from the leader's.
func Standings(rs []results.Result, withDifferences bool) []Standing {
	ranked := Rank(rs)
	leader := LeaderReference(ranked)
	leaderCount := 0
	if len(ranked) > 0 {
		leaderCount = CompletedCount(ranked[0])
	}

	out := make([]Standing, len(ranked))
	for i, r := range ranked {
		s := Standing{
			Result:         r,
			Position:       i + 1,
			CompletedCount: CompletedCount(r),
			PartialTotal:   PartialTotal(r),
		}
		if withDifferences && i > 0 && s.CompletedCount == leaderCount {
			if d := Difference(r, leader); d != nil && *d != 0 {
				s.Difference = d
			}
		}
		out[i] = s
	}
	return out
}
