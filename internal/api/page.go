package api

import (
	"bytes"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/intermernet/skating-results/internal/config"
	"github.com/intermernet/skating-results/internal/database"
	"github.com/intermernet/skating-results/internal/ranking"
	"github.com/intermernet/skating-results/internal/results"
)

// displayTimeLayout matches how Finnish locales print a timestamp.
const displayTimeLayout = "2.1.2006 klo 15.04.05"

type categoryOption struct {
	Code     string
	Count    int
	Selected bool
}

type pageRow struct {
	ranking.Standing
	Splits []results.Split
}

type pageData struct {
	Title      string
	Organizer  string
	Selected   string
	Categories []categoryOption
	Total      int
	Rows       []pageRow
	Distances  []results.Distance
	// ShowDifferences is set when a single category is shown.
	ShowDifferences bool
	LastImport      *database.Batch
	Updated         time.Time
	Error           string
}

// templateFuncs returns the formatting helpers available to the page templates.
func templateFuncs(cfg *config.Config) template.FuncMap {
	loc := time.UTC
	if cfg != nil && cfg.Location != nil {
		loc = cfg.Location
	}

	return template.FuncMap{
		// num prints a time or a point value with two decimals, "-" when absent.
		"num": func(v *float64) string {
			if v == nil {
				return "-"
			}
			return strconv.FormatFloat(*v, 'f', 2, 64)
		},
		"text": func(v *string) string {
			if v == nil || strings.TrimSpace(*v) == "" {
				return "-"
			}
			return *v
		},
		"diff": func(v *float64) string {
			if v == nil {
				return ""
			}
			return ranking.FormatDifference(*v)
		},
		"localtime": func(t time.Time) string {
			return t.In(loc).Format(displayTimeLayout)
		},
		"heading": distanceHeading,
	}
}

// distanceHeading renders a slot as the column title, e.g. "300m Pv 1".
func distanceHeading(d results.Distance) string {
	switch d {
	case results.Distance300m1:
		return "300m Pv 1"
	case results.Distance500m1:
		return "500m Pv 1"
	case results.Distance300m2:
		return "300m Pv 2"
	case results.Distance500m2:
		return "500m Pv 2"
	default:
		return d.String()
	}
}

// handleResultsPage renders the public results table. A category in the
// query string limits the table to that category and enables differences.
func (s *Server) handleResultsPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	category := strings.TrimSpace(r.URL.Query().Get("category"))

	data := pageData{
		Title:     s.config.SiteTitle,
		Organizer: s.config.Organizer,
		Selected:  category,
		Distances: results.Distances[:],
		Updated:   time.Now(),
	}

	status := http.StatusOK
	snap, err := s.loadSnapshot(ctx, category)
	if err != nil {
		s.logger.ErrorContext(ctx, "loading results page failed", "error", err)
		status = http.StatusInternalServerError
		data.Error = "Tulosten lataus epäonnistui"
	} else {
		data.Total = snap.total
		data.LastImport = snap.lastImport
		data.ShowDifferences = category != ""
		data.Categories = make([]categoryOption, len(snap.counts))
		for i, c := range snap.counts {
			data.Categories[i] = categoryOption{Code: c.Code, Count: c.Count, Selected: c.Code == category}
		}
		for _, st := range ranking.Standings(snap.rows, data.ShowDifferences) {
			row := pageRow{Standing: st, Splits: make([]results.Split, len(results.Distances))}
			for i, d := range results.Distances {
				row.Splits[i] = st.Result.Split(d)
			}
			data.Rows = append(data.Rows, row)
		}
	}

	// Render into a buffer so a template failure can still become a clean 500.
	var buf bytes.Buffer
	if err := s.pages.ExecuteTemplate(&buf, "results.html", data); err != nil {
		s.logger.ErrorContext(ctx, "rendering results page failed", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
