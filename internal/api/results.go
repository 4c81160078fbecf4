package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"

	"github.com/intermernet/skating-results/internal/database"
	"github.com/intermernet/skating-results/internal/metrics"
	"github.com/intermernet/skating-results/internal/ranking"
	"github.com/intermernet/skating-results/internal/results"
)

// errInvalidInput marks every client-side import problem. Errors carrying it
// are answered with 400; anything else from the import path is a 500.
var errInvalidInput = errors.New("invalid import payload")

// --- Import ---

// handleImportResults replaces the stored snapshot with the posted array.
// An absent or blank body clears the store.
func (s *Server) handleImportResults(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxImportBytes))
	if err != nil {
		s.metrics.RecordImport(metrics.OutcomeRejected, 0)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.errorJSON(w, fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
			return
		}
		s.errorJSON(w, errors.New("could not read request body"), http.StatusBadRequest)
		return
	}

	rows, err := decodeResultsPayload(body)
	if err == nil {
		err = s.validateResults(ctx, rows)
	}
	var batch database.Batch
	if err == nil {
		batch, err = s.db.ReplaceAll(ctx, rows)
	}

	switch {
	case errors.Is(err, errInvalidInput):
		s.metrics.RecordImport(metrics.OutcomeRejected, 0)
		s.logger.WarnContext(ctx, "import rejected", "error", err)
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	case err != nil:
		// The transaction was rolled back, so the previous snapshot is still served.
		s.metrics.RecordImport(metrics.OutcomeFailed, 0)
		s.logger.ErrorContext(ctx, "import failed", "error", err, "rows", len(rows))
		s.serverErrorJSON(w, "storing results failed", err)
		return
	}

	outcome, message := metrics.OutcomeStored, fmt.Sprintf("stored %d results", batch.Count)
	if batch.Count == 0 {
		outcome, message = metrics.OutcomeCleared, "database cleared"
	}
	s.metrics.RecordImport(outcome, batch.Count)

	s.writeJSON(w, http.StatusOK, importResponse{
		Success:   true,
		Message:   message,
		Count:     batch.Count,
		Timestamp: batch.ImportedAt,
		ImportID:  batch.ID,
	})
}

// decodeResultsPayload turns the request body into result rows. Blank input
// means "clear everything"; anything that is not a JSON array of objects is
// rejected.
func decodeResultsPayload(body []byte) ([]results.Result, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return []results.Result{}, nil
	}
	if trimmed[0] != '[' {
		return nil, errors.Mark(errors.New("invalid data format: expected a JSON array"), errInvalidInput)
	}

	var rows []results.Result
	if err := sonic.ConfigStd.Unmarshal(trimmed, &rows); err != nil {
		return nil, errors.Mark(errors.Newf("invalid data format: expected a JSON array of result objects: %v", err), errInvalidInput)
	}
	if rows == nil {
		rows = []results.Result{}
	}
	return rows, nil
}

// validateResults checks every row and reports the first offending index.
func (s *Server) validateResults(ctx context.Context, rows []results.Result) error {
	for i := range rows {
		if err := s.validate.StructCtx(ctx, rows[i]); err != nil {
			return errors.Mark(errors.Newf("invalid result at row %d: %v", i, err), errInvalidInput)
		}
	}
	return nil
}

// --- Read path ---

// snapshot is everything one render needs, read inside a single transaction.
type snapshot struct {
	rows       []results.Result
	categories []string
	counts     []database.CategoryCount
	total      int
	lastImport *database.Batch
}

func (s *Server) loadSnapshot(ctx context.Context, category string) (*snapshot, error) {
	snap := &snapshot{}
	err := s.db.ReadTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		if category == "" {
			snap.rows, err = s.db.GetAll(ctx, tx)
		} else {
			snap.rows, err = s.db.GetByCategory(ctx, tx, category)
		}
		if err != nil {
			return err
		}
		if snap.categories, err = s.db.ListCategories(ctx, tx); err != nil {
			return err
		}
		if snap.counts, err = s.db.CategoryCounts(ctx, tx); err != nil {
			return err
		}
		if snap.total, err = s.db.CountResults(ctx, tx); err != nil {
			return err
		}
		snap.lastImport, err = s.db.LastImport(ctx, tx)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "load results snapshot")
	}
	return snap, nil
}

// handleGetResults returns the ranked results, optionally for one category.
// Differences to the leader are only included for a single category, since
// totals of different categories are not comparable.
func (s *Server) handleGetResults(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	category := strings.TrimSpace(r.URL.Query().Get("category"))

	snap, err := s.loadSnapshot(ctx, category)
	if err != nil {
		s.logger.ErrorContext(ctx, "loading results failed", "error", err)
		s.serverErrorJSON(w, "loading results failed", err)
		return
	}

	response := resultsResponse{
		Results:    toStandingResponseList(ranking.Standings(snap.rows, category != "")),
		Categories: snap.categories,
		Total:      snap.total,
		LastImport: snap.lastImport,
	}
	if category != "" {
		response.Category = &category
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleHealth reports whether the store is reachable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		s.logger.WarnContext(r.Context(), "health check failed", "error", err)
		s.writeJSON(w, http.StatusServiceUnavailable, envelope{"status": "unavailable"})
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{"status": "ok"})
}
