package api

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"

	"github.com/intermernet/skating-results/internal/config"
	"github.com/intermernet/skating-results/internal/database"
	"github.com/intermernet/skating-results/internal/logging"
	"github.com/intermernet/skating-results/internal/metrics"
)

//go:embed templates/*.html
var templateFiles embed.FS

// Server is the main struct for the API. It holds all dependencies required
// by the HTTP handlers; they are injected by main so that nothing here relies
// on process-wide state.
type Server struct {
	config   *config.Config
	db       *database.Service
	logger   *logging.Logger
	metrics  *metrics.Manager
	validate *validator.Validate
	pages    *template.Template
}

// NewServer wires the dependencies into a new Server.
func NewServer(cfg *config.Config, db *database.Service, logger *logging.Logger, m *metrics.Manager) *Server {
	if logger == nil {
		logger = logging.Default()
	}
	return &Server{
		config:   cfg,
		db:       db,
		logger:   logger.With("component", "api"),
		metrics:  m,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		pages:    template.Must(template.New("pages").Funcs(templateFuncs(cfg)).ParseFS(templateFiles, "templates/*.html")),
	}
}

// envelope is used for ad-hoc JSON objects, e.g. `envelope{"status": "ok"}`.
type envelope map[string]interface{}

// writeJSON marshals data and sends it with the given status code and any
// extra headers. A marshalling failure becomes a plain-text 500 because the
// JSON error format itself cannot be trusted at that point.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}, headers ...http.Header) {
	js, err := sonic.ConfigStd.MarshalIndent(data, "", "\t")
	if err != nil {
		s.logger.Error("could not marshal JSON response", "error", err)
		http.Error(w, "Internal Server Error: Failed to marshal JSON", http.StatusInternalServerError)
		return
	}

	if len(headers) > 0 {
		for key, value := range headers[0] {
			w.Header()[key] = value
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(js)
}

// errorJSON sends `{"error": "message"}`. The status defaults to 500.
func (s *Server) errorJSON(w http.ResponseWriter, err error, status ...int) {
	statusCode := http.StatusInternalServerError
	if len(status) > 0 {
		statusCode = status[0]
	}

	s.writeJSON(w, statusCode, envelope{"error": err.Error()})
}

// serverErrorJSON sends a 500 carrying a short message plus the underlying
// error text as diagnostic detail.
func (s *Server) serverErrorJSON(w http.ResponseWriter, message string, err error) {
	s.writeJSON(w, http.StatusInternalServerError, envelope{
		"error":   message,
		"details": err.Error(),
	})
}
