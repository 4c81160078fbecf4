package api

import (
	"time"

	"github.com/intermernet/skating-results/internal/database"
	"github.com/intermernet/skating-results/internal/ranking"
	"github.com/intermernet/skating-results/internal/results"
)

// importResponse is returned after a successful import.
type importResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
	ImportID  string    `json:"importId"`
}

// StandingResponse is the DTO for one ranked row. The stored fields keep the
// importer's names; the derived ones are added next to them.
type StandingResponse struct {
	results.Result

	Position       int      `json:"position"`
	CompletedCount int      `json:"completedCount"`
	PartialTotal   *float64 `json:"partialTotal"`
	Difference     *float64 `json:"difference"`
	// DifferenceText is Difference as shown on the page, e.g. "+2.3".
	DifferenceText *string `json:"differenceText"`
}

// resultsResponse is the read path payload.
type resultsResponse struct {
	Category   *string            `json:"category"`
	Results    []StandingResponse `json:"results"`
	Categories []string           `json:"categories"`
	Total      int                `json:"total"`
	LastImport *database.Batch    `json:"lastImport"`
}

// toStandingResponse is a "mapper" function that converts a ranked row into
// the public-facing DTO.
func toStandingResponse(st ranking.Standing) StandingResponse {
	var text *string
	if st.Difference != nil {
		s := ranking.FormatDifference(*st.Difference)
		text = &s
	}

	return StandingResponse{
		Result:         st.Result,
		Position:       st.Position,
		CompletedCount: st.CompletedCount,
		PartialTotal:   st.PartialTotal,
		Difference:     st.Difference,
		DifferenceText: text,
	}
}

// toStandingResponseList is a helper to convert a ranked list.
func toStandingResponseList(standings []ranking.Standing) []StandingResponse {
	responseList := make([]StandingResponse, len(standings))
	for i, st := range standings {
		responseList[i] = toStandingResponse(st)
	}
	return responseList
}
