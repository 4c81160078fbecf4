package database

import (
	"database/sql"
	"time"

	"github.com/intermernet/skating-results/internal/results"
)

// resultRow represents a record in the 'results' table.
// Every competitor and timing column may be NULL, hence the sql.Null* types.
type resultRow struct {
	ID                  int64           `db:"id"`
	ImportID            string          `db:"import_id"`
	ImportedAt          time.Time       `db:"imported_at"`
	FirstName           sql.NullString  `db:"first_name"`
	LastName            sql.NullString  `db:"last_name"`
	Club                sql.NullString  `db:"club"`
	AgeCategoryCode     sql.NullString  `db:"age_category_code"`
	Time300m1           sql.NullFloat64 `db:"time_300m_1"`
	Points300m1         sql.NullFloat64 `db:"points_300m_1"`
	Time500m1           sql.NullFloat64 `db:"time_500m_1"`
	Points500m1         sql.NullFloat64 `db:"points_500m_1"`
	Time300m2           sql.NullFloat64 `db:"time_300m_2"`
	Points300m2         sql.NullFloat64 `db:"points_300m_2"`
	Time500m2           sql.NullFloat64 `db:"time_500m_2"`
	Points500m2         sql.NullFloat64 `db:"points_500m_2"`
	TotalNormalizedTime sql.NullFloat64 `db:"total_normalized_time"`
}

// Batch describes one completed import.
type Batch struct {
	ID         string    `json:"importId"`
	ImportedAt time.Time `json:"importedAt"`
	Count      int       `json:"count"`
}

// CategoryCount is the number of stored rows for one category code.
type CategoryCount struct {
	Code  string `db:"age_category_code" json:"code"`
	Count int    `db:"n" json:"count"`
}

func newResultRow(r results.Result, batch Batch) resultRow {
	return resultRow{
		ImportID:            batch.ID,
		ImportedAt:          batch.ImportedAt,
		FirstName:           nullString(r.FirstName),
		LastName:            nullString(r.LastName),
		Club:                nullString(r.Club),
		AgeCategoryCode:     nullString(r.AgeCategoryCode),
		Time300m1:           nullFloat(r.Time300m1),
		Points300m1:         nullFloat(r.Points300m1),
		Time500m1:           nullFloat(r.Time500m1),
		Points500m1:         nullFloat(r.Points500m1),
		Time300m2:           nullFloat(r.Time300m2),
		Points300m2:         nullFloat(r.Points300m2),
		Time500m2:           nullFloat(r.Time500m2),
		Points500m2:         nullFloat(r.Points500m2),
		TotalNormalizedTime: nullFloat(r.TotalNormalizedTime),
	}
}

func (row resultRow) toResult() results.Result {
	return results.Result{
		ID:                  row.ID,
		ImportID:            row.ImportID,
		ImportedAt:          row.ImportedAt,
		FirstName:           stringPtr(row.FirstName),
		LastName:            stringPtr(row.LastName),
		Club:                stringPtr(row.Club),
		AgeCategoryCode:     stringPtr(row.AgeCategoryCode),
		Time300m1:           floatPtr(row.Time300m1),
		Points300m1:         floatPtr(row.Points300m1),
		Time500m1:           floatPtr(row.Time500m1),
		Points500m1:         floatPtr(row.Points500m1),
		Time300m2:           floatPtr(row.Time300m2),
		Points300m2:         floatPtr(row.Points300m2),
		Time500m2:           floatPtr(row.Time500m2),
		Points500m2:         floatPtr(row.Points500m2),
		TotalNormalizedTime: floatPtr(row.TotalNormalizedTime),
	}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}
