// Package results holds the competition result model shared by the store,
// the ranking engine and the HTTP layer.
package results

import (
	"strings"
	"time"
)

// Distance identifies one of the four timed distance slots of an event.
// The numeric order is the order in which the distances are skated.
type Distance int

const (
	Distance300m1 Distance = iota
	Distance500m1
	Distance300m2
	Distance500m2
)

// Distances lists every slot in competition order.
var Distances = [...]Distance{Distance300m1, Distance500m1, Distance300m2, Distance500m2}

// String returns the slot label used in logs and column headers, e.g. "300m_1".
func (d Distance) String() string {
	switch d {
	case Distance300m1:
		return "300m_1"
	case Distance500m1:
		return "500m_1"
	case Distance300m2:
		return "300m_2"
	case Distance500m2:
		return "500m_2"
	default:
		return "unknown"
	}
}

// Split is the raw time and the point value recorded for one distance.
// A nil Time means the distance was not skated.
type Split struct {
	Time   *float64
	Points *float64
}

// Result is one competitor's record for one event.
//
// The JSON field names are the ones the external importer sends, so they are
// kept exactly as they appear in the import files. ID, ImportID and ImportedAt
// are assigned by the server and ignored on import.
type Result struct {
	ID         int64     `json:"id,omitempty" validate:"-"`
	ImportID   string    `json:"importId,omitempty" validate:"-"`
	ImportedAt time.Time `json:"importedAt" validate:"-"`

	FirstName       *string `json:"FirstName" validate:"omitempty,max=200"`
	LastName        *string `json:"LastName" validate:"omitempty,max=200"`
	Club            *string `json:"Club" validate:"omitempty,max=200"`
	AgeCategoryCode *string `json:"AgeCategoryCode" validate:"omitempty,max=200"`

	Time300m1   *float64 `json:"M300m_1_aika" validate:"omitempty,gte=0"`
	Points300m1 *float64 `json:"M300m_1_pisteet" validate:"omitempty,gte=0"`
	Time500m1   *float64 `json:"M500m_1_aika" validate:"omitempty,gte=0"`
	Points500m1 *float64 `json:"M500m_1_pisteet" validate:"omitempty,gte=0"`
	Time300m2   *float64 `json:"M300m_2_aika" validate:"omitempty,gte=0"`
	Points300m2 *float64 `json:"M300m_2_pisteet" validate:"omitempty,gte=0"`
	Time500m2   *float64 `json:"M500m_2_aika" validate:"omitempty,gte=0"`
	Points500m2 *float64 `json:"M500m_2_pisteet" validate:"omitempty,gte=0"`

	TotalNormalizedTime *float64 `json:"TotalNormalizedTime" validate:"omitempty,gte=0"`
}

// Split returns the time and points stored for the given distance.
func (r Result) Split(d Distance) Split {
	switch d {
	case Distance300m1:
		return Split{Time: r.Time300m1, Points: r.Points300m1}
	case Distance500m1:
		return Split{Time: r.Time500m1, Points: r.Points500m1}
	case Distance300m2:
		return Split{Time: r.Time300m2, Points: r.Points300m2}
	case Distance500m2:
		return Split{Time: r.Time500m2, Points: r.Points500m2}
	default:
		return Split{}
	}
}

// Category returns the age category code, or "" when the row has none.
func (r Result) Category() string {
	return deref(r.AgeCategoryCode)
}

// FullName joins first and last name the way the results table prints them.
func (r Result) FullName() string {
	return strings.TrimSpace(deref(r.FirstName) + " " + deref(r.LastName))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Float and String are small helpers for building results in tests and fixtures.
func Float(v float64) *float64 { return &v }

func String(v string) *string { return &v }
