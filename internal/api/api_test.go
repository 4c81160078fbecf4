package api

import (
	"context"
	"encoding/json"
	"html"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intermernet/skating-results/internal/config"
	"github.com/intermernet/skating-results/internal/database"
	"github.com/intermernet/skating-results/internal/logging"
	"github.com/intermernet/skating-results/internal/metrics"
)

type testEnv struct {
	db      *database.Service
	metrics *metrics.Manager
	router  *chi.Mux
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Defaults()
	cfg.Location = time.UTC
	cfg.Organizer = "Seinäjoen Urheilijat"
	for _, m := range mutate {
		m(&cfg)
	}

	db, err := database.NewService(filepath.Join(t.TempDir(), "results.db"), logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	m := metrics.NewManager()
	router := chi.NewRouter()
	NewServer(&cfg, db, logging.NewNop(), m).RegisterRoutes(router)

	return &testEnv{db: db, metrics: m, router: router}
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) storedCount(t *testing.T) int {
	t.Helper()
	n, err := e.db.CountResults(context.Background(), e.db.DB())
	require.NoError(t, err)
	return n
}

const sampleImport = `[
	{"FirstName": "Aino", "LastName": "Virtanen", "Club": "SU", "AgeCategoryCode": "T10",
	 "M300m_1_aika": 30.1, "M300m_1_pisteet": 50.2, "M500m_1_aika": 52.0, "M500m_1_pisteet": 60.3},
	{"FirstName": "Bea", "LastName": "Nieminen", "Club": "SU", "AgeCategoryCode": "T10",
	 "M300m_1_aika": 29.0, "M300m_1_pisteet": 48.1, "M500m_1_aika": 51.0, "M500m_1_pisteet": 60.1},
	{"FirstName": "Cecilia", "LastName": "Koski", "AgeCategoryCode": "T10",
	 "M300m_1_aika": 28.0, "M300m_1_pisteet": 45.0},
	{"FirstName": "Daniel", "LastName": "Laine", "AgeCategoryCode": "P12",
	 "M300m_1_aika": 27.5, "M300m_1_pisteet": 44.0, "TotalNormalizedTime": 44.0}
]`

type decodedResults struct {
	Category   *string  `json:"category"`
	Categories []string `json:"categories"`
	Total      int      `json:"total"`
	Results    []struct {
		FirstName      string   `json:"FirstName"`
		Position       int      `json:"position"`
		CompletedCount int      `json:"completedCount"`
		PartialTotal   *float64 `json:"partialTotal"`
		DifferenceText *string  `json:"differenceText"`
	} `json:"results"`
	LastImport *struct {
		ImportID string `json:"importId"`
		Count    int    `json:"count"`
	} `json:"lastImport"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (e *testEnv) metricsBody(t *testing.T) string {
	t.Helper()
	rec := e.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

// --- Import ---

func TestImport_StoresResults(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/results", sampleImport)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[importResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, 4, resp.Count)
	assert.Equal(t, "stored 4 results", resp.Message)
	assert.NotEmpty(t, resp.ImportID)
	assert.False(t, resp.Timestamp.IsZero())

	assert.Equal(t, 4, env.storedCount(t))

	body := env.metricsBody(t)
	assert.Contains(t, body, `skating_results_imports_total{outcome="stored"} 1`)
	assert.Contains(t, body, `skating_results_stored_results 4`)
	assert.Contains(t, body, `route="/api/results"`)
}

func TestImport_ReplacesPreviousSnapshot(t *testing.T) {
	env := newTestEnv(t)

	first := decode[importResponse](t, env.do(t, http.MethodPost, "/api/results", sampleImport))
	rec := env.do(t, http.MethodPost, "/api/results", `[{"FirstName": "Eero", "AgeCategoryCode": "P14"}]`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	second := decode[importResponse](t, rec)

	assert.NotEqual(t, first.ImportID, second.ImportID)
	assert.Equal(t, 1, env.storedCount(t))

	got := decode[decodedResults](t, env.do(t, http.MethodGet, "/api/results", ""))
	assert.Equal(t, []string{"P14"}, got.Categories)
	require.NotNil(t, got.LastImport)
	assert.Equal(t, second.ImportID, got.LastImport.ImportID)
	assert.Equal(t, 1, got.LastImport.Count)
}

func TestImport_BlankBodyClears(t *testing.T) {
	for name, body := range map[string]string{
		"empty":       "",
		"whitespace":  "  \n\t ",
		"empty array": "[]",
	} {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t)
			require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/results", sampleImport).Code)

			rec := env.do(t, http.MethodPost, "/api/results", body)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			resp := decode[importResponse](t, rec)
			assert.True(t, resp.Success)
			assert.Equal(t, 0, resp.Count)
			assert.Equal(t, "database cleared", resp.Message)
			assert.Equal(t, 0, env.storedCount(t))
		})
	}
}

func TestImport_RejectsBadPayloads(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		status   int
		contains string
	}{
		{"object", `{"FirstName": "Aino"}`, http.StatusBadRequest, "expected a JSON array"},
		{"number", `42`, http.StatusBadRequest, "expected a JSON array"},
		{"malformed", `[{"FirstName": `, http.StatusBadRequest, "invalid data format"},
		{"array of scalars", `[1, 2]`, http.StatusBadRequest, "invalid data format"},
		{"negative time", `[{"FirstName": "a"}, {"M300m_1_aika": -1}]`, http.StatusBadRequest, "row 1"},
		{"long name", `[{"FirstName": "` + strings.Repeat("x", 201) + `"}]`, http.StatusBadRequest, "row 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/results", sampleImport).Code)

			rec := env.do(t, http.MethodPost, "/api/results", tt.body)
			assert.Equal(t, tt.status, rec.Code)

			resp := decode[map[string]string](t, rec)
			assert.Contains(t, resp["error"], tt.contains)
			assert.Equal(t, 4, env.storedCount(t), "a rejected import leaves the store unchanged")
			assert.Contains(t, env.metricsBody(t), `skating_results_imports_total{outcome="rejected"} 1`)
		})
	}
}

func TestImport_BodyTooLarge(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.MaxImportBytes = 32 })

	rec := env.do(t, http.MethodPost, "/api/results", sampleImport)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, 0, env.storedCount(t))
}

func TestImport_StorageFailureKeepsSnapshot(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/results", sampleImport).Code)

	_, err := env.db.DB().Exec(`
		CREATE TRIGGER reject_x BEFORE INSERT ON results
		WHEN NEW.first_name = 'X'
		BEGIN SELECT RAISE(ABORT, 'boom'); END;`)
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/api/results", `[{"FirstName": "ok"}, {"FirstName": "X"}]`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	resp := decode[map[string]string](t, rec)
	assert.Equal(t, "storing results failed", resp["error"])
	assert.Contains(t, resp["details"], "insert result 1")
	assert.Equal(t, 4, env.storedCount(t), "the previous snapshot survives a failed replace")

	body := env.metricsBody(t)
	assert.Contains(t, body, `skating_results_imports_total{outcome="failed"} 1`)
	assert.Contains(t, body, `skating_results_stored_results 4`)
}

// --- Read path ---

func TestGetResults_AllCategories(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/results", sampleImport).Code)

	rec := env.do(t, http.MethodGet, "/api/results", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	got := decode[decodedResults](t, rec)
	assert.Nil(t, got.Category)
	assert.Equal(t, 4, got.Total)
	assert.Equal(t, []string{"P12", "T10"}, got.Categories)

	require.Len(t, got.Results, 4)
	order := make([]string, len(got.Results))
	for i, r := range got.Results {
		order[i] = r.FirstName
		assert.Equal(t, i+1, r.Position)
		assert.Nil(t, r.DifferenceText, "no differences across categories")
	}
	assert.Equal(t, []string{"Bea", "Aino", "Daniel", "Cecilia"}, order)
}

func TestGetResults_CategoryShowsDifferences(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/results", sampleImport).Code)

	got := decode[decodedResults](t, env.do(t, http.MethodGet, "/api/results?category=T10", ""))
	require.NotNil(t, got.Category)
	assert.Equal(t, "T10", *got.Category)
	assert.Equal(t, []string{"P12", "T10"}, got.Categories, "the selector still lists every category")

	require.Len(t, got.Results, 3)
	bea, aino, cecilia := got.Results[0], got.Results[1], got.Results[2]

	assert.Equal(t, "Bea", bea.FirstName)
	assert.Equal(t, 2, bea.CompletedCount)
	require.NotNil(t, bea.PartialTotal)
	assert.InDelta(t, 108.2, *bea.PartialTotal, 1e-9)
	assert.Nil(t, bea.DifferenceText, "the leader has no difference")

	assert.Equal(t, "Aino", aino.FirstName)
	require.NotNil(t, aino.DifferenceText)
	assert.Equal(t, "+2.3", *aino.DifferenceText)

	assert.Equal(t, "Cecilia", cecilia.FirstName)
	assert.Equal(t, 1, cecilia.CompletedCount)
	assert.Nil(t, cecilia.DifferenceText, "fewer distances than the leader")
}

func TestGetResults_EmptyStore(t *testing.T) {
	env := newTestEnv(t)

	got := decode[decodedResults](t, env.do(t, http.MethodGet, "/api/results", ""))
	assert.Equal(t, 0, got.Total)
	assert.Empty(t, got.Results)
	assert.NotNil(t, got.Categories)
	assert.Nil(t, got.LastImport)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/results", nil)
	req.Header.Set("Origin", "https://tulokset.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

// --- Page ---

func TestResultsPage(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/results", sampleImport).Code)

	t.Run("all categories", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))

		body := html.UnescapeString(rec.Body.String())
		assert.Contains(t, body, "Kilpailutulokset")
		assert.Contains(t, body, "Seinäjoen Urheilijat")
		assert.Contains(t, body, "Aino Virtanen")
		assert.Contains(t, body, "Kaikki sarjat (4)")
		assert.Contains(t, body, "108.20")
		assert.NotContains(t, body, "+2.3")
	})

	t.Run("single category", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/?category=T10", "")
		require.Equal(t, http.StatusOK, rec.Code)

		body := html.UnescapeString(rec.Body.String())
		assert.Contains(t, body, "+2.3")
		assert.NotContains(t, body, "Daniel Laine")
	})

	t.Run("unknown category", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/?category=X99", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Ei tuloksia tälle sarjalle")
	})
}

func TestResultsPage_Empty(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Ei tuloksia vielä")
}

func TestResultsPage_StoreFailure(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.db.Close())

	rec := env.do(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Tulosten lataus epäonnistui")
}

// --- Operations ---

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])

	require.NoError(t, env.db.Close())
	rec = env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDecodeResultsPayload(t *testing.T) {
	rows, err := decodeResultsPayload([]byte(" [ {\"FirstName\": \"Aino\", \"M300m_1_aika\": null} ] "))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Aino", *rows[0].FirstName)
	assert.Nil(t, rows[0].Time300m1)

	rows, err = decodeResultsPayload(nil)
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)

	_, err = decodeResultsPayload([]byte(`"text"`))
	assert.True(t, errors.Is(err, errInvalidInput))
}
