package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/intermernet/skating-results/internal/results"
)

// DBorTx is satisfied by both *sqlx.DB and *sqlx.Tx, so the read queries can
// run standalone or inside ReadTx.
type DBorTx interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
}

const selectResults = `
	SELECT id, import_id, imported_at, first_name, last_name, club, age_category_code,
		time_300m_1, points_300m_1, time_500m_1, points_500m_1,
		time_300m_2, points_300m_2, time_500m_2, points_500m_2,
		total_normalized_time
	FROM results`

// Rows without a category, and rows without a stored total, go last.
const orderResults = `
	ORDER BY age_category_code IS NULL, age_category_code,
		total_normalized_time IS NULL, total_normalized_time, id`

const insertResult = `
	INSERT INTO results (
		import_id, imported_at, first_name, last_name, club, age_category_code,
		time_300m_1, points_300m_1, time_500m_1, points_500m_1,
		time_300m_2, points_300m_2, time_500m_2, points_500m_2,
		total_normalized_time
	) VALUES (
		:import_id, :imported_at, :first_name, :last_name, :club, :age_category_code,
		:time_300m_1, :points_300m_1, :time_500m_1, :points_500m_1,
		:time_300m_2, :points_300m_2, :time_500m_2, :points_500m_2,
		:total_normalized_time
	)`

// --- Writes ---

// ReplaceAll deletes every stored result and inserts rs in one transaction.
// An empty rs clears the store. On any failure the previous snapshot is kept.
//
// All rows of one call share a batch id and an import timestamp, which is how
// LastImport later describes the snapshot.
func (s *Service) ReplaceAll(ctx context.Context, rs []results.Result) (Batch, error) {
	batch := Batch{
		ID:         uuid.NewString(),
		ImportedAt: time.Now().UTC(),
		Count:      len(rs),
	}

	err := s.WriteTx(ctx, func(tx *sqlx.Tx) error {
		// Step 1: drop the previous snapshot. Still invisible to readers until commit.
		if _, err := tx.ExecContext(ctx, `DELETE FROM results;`); err != nil {
			return errors.Wrap(err, "clear results")
		}
		if len(rs) == 0 {
			return nil
		}

		// Step 2: insert the new rows through one prepared named statement.
		stmt, err := tx.PrepareNamedContext(ctx, insertResult)
		if err != nil {
			return errors.Wrap(err, "prepare result insert")
		}
		defer stmt.Close()

		for i, r := range rs {
			// The row index in the error lets the importer find the bad record.
			if _, err := stmt.ExecContext(ctx, newResultRow(r, batch)); err != nil {
				return errors.Wrapf(err, "insert result %d", i)
			}
		}
		return nil
	})
	if err != nil {
		return Batch{}, errors.Wrap(err, "replace results")
	}

	s.logger.InfoContext(ctx, "results replaced", "import_id", batch.ID, "count", batch.Count)
	return batch, nil
}

// --- Reads ---

// GetAll returns every stored result ordered by category code (NULL last),
// then by stored total time (NULL last).
func (s *Service) GetAll(ctx context.Context, db DBorTx) ([]results.Result, error) {
	var rows []resultRow
	if err := sqlx.SelectContext(ctx, db, &rows, selectResults+orderResults); err != nil {
		return nil, errors.Wrap(err, "get all results")
	}
	return toResults(rows), nil
}

// GetByCategory returns the results of one category in the GetAll order.
func (s *Service) GetByCategory(ctx context.Context, db DBorTx, code string) ([]results.Result, error) {
	var rows []resultRow
	query := selectResults + ` WHERE age_category_code = ?` + orderResults
	if err := sqlx.SelectContext(ctx, db, &rows, query, code); err != nil {
		return nil, errors.Wrapf(err, "get results for category %q", code)
	}
	return toResults(rows), nil
}

// ListCategories returns the distinct non-NULL category codes in ascending order.
func (s *Service) ListCategories(ctx context.Context, db DBorTx) ([]string, error) {
	categories := []string{}
	query := `SELECT DISTINCT age_category_code FROM results WHERE age_category_code IS NOT NULL ORDER BY age_category_code;`
	if err := sqlx.SelectContext(ctx, db, &categories, query); err != nil {
		return nil, errors.Wrap(err, "list categories")
	}
	return categories, nil
}

// CategoryCounts returns the number of rows per non-NULL category code,
// ordered like ListCategories.
func (s *Service) CategoryCounts(ctx context.Context, db DBorTx) ([]CategoryCount, error) {
	counts := []CategoryCount{}
	query := `
		SELECT age_category_code, COUNT(*) AS n
		FROM results
		WHERE age_category_code IS NOT NULL
		GROUP BY age_category_code
		ORDER BY age_category_code;`
	if err := sqlx.SelectContext(ctx, db, &counts, query); err != nil {
		return nil, errors.Wrap(err, "count results per category")
	}
	return counts, nil
}

// CountResults returns the total number of stored rows.
func (s *Service) CountResults(ctx context.Context, db DBorTx) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, db, &n, `SELECT COUNT(*) FROM results;`); err != nil {
		return 0, errors.Wrap(err, "count results")
	}
	return n, nil
}

// LastImport describes the batch the stored rows came from, or nil when the
// store is empty.
func (s *Service) LastImport(ctx context.Context, db DBorTx) (*Batch, error) {
	var row struct {
		ImportID   string    `db:"import_id"`
		ImportedAt time.Time `db:"imported_at"`
	}
	// The newest row belongs to the newest batch; MAX(imported_at) would come
	// back untyped from SQLite and not scan into time.Time.
	err := sqlx.GetContext(ctx, db, &row, `SELECT import_id, imported_at FROM results ORDER BY id DESC LIMIT 1;`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get last import")
	}

	var n int
	if err := sqlx.GetContext(ctx, db, &n, `SELECT COUNT(*) FROM results WHERE import_id = ?;`, row.ImportID); err != nil {
		return nil, errors.Wrap(err, "count last import")
	}

	return &Batch{ID: row.ImportID, ImportedAt: row.ImportedAt, Count: n}, nil
}

func toResults(rows []resultRow) []results.Result {
	out := make([]results.Result, len(rows))
	for i, row := range rows {
		out[i] = row.toResult()
	}
	return out
}
