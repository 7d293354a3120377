package server

import (
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"offsider/internal/config"
	"offsider/internal/db"
	"offsider/internal/engine"
	"offsider/internal/repo"
)

// Config for the HTTP handler.
type Config struct {
	Stores   *db.Stores
	Rigs     []config.Rig
	Secret   string
	BasePath string
	Logger   *log.Logger
	Now      func() time.Time
}

// Server carries the per-request wiring: one SQLite store per rig, the rig
// registry for sign-in, and the parsed page templates.
type Server struct {
	stores *db.Stores
	rigs   []config.Rig
	secret []byte
	base   string
	logger *log.Logger
	now    func() time.Time
	tmpl   *template.Template
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the JSON error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns the combined HTML + JSON handler.
func New(cfg Config) (http.Handler, error) {
	if cfg.Stores == nil {
		return nil, errors.New("server: stores required")
	}
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("server: session secret required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	tmpl, err := newTemplates()
	if err != nil {
		return nil, fmt.Errorf("server: parse templates: %w", err)
	}
	s := &Server{
		stores: cfg.Stores,
		rigs:   cfg.Rigs,
		secret: []byte(cfg.Secret),
		base:   basePath,
		logger: cfg.Logger,
		now:    cfg.Now,
		tmpl:   tmpl,
	}

	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors read as 400 bad_request.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Handle("/static/*", http.FileServer(http.FS(staticFS)))

	router.Get("/auth/select", s.handleRigSelect)
	router.Get("/auth/login", s.handleLoginForm)
	router.Post("/auth/login", s.handleLoginPost)
	router.Post("/auth/logout", s.handleLogout)

	// Plain probe endpoint; the API group repeats it with a schema.
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	router.Group(func(gr chi.Router) {
		gr.Use(s.requireSession)

		gr.Get("/", s.handleDashboard)

		gr.Get("/stock", s.handleStockList)
		gr.Get("/stock/new", s.handleStockNewForm)
		gr.Post("/stock/new", s.handleStockCreate)
		gr.Get("/stock/{id}/edit", s.handleStockEditForm)
		gr.Post("/stock/{id}/edit", s.handleStockUpdate)
		gr.Post("/stock/{id}/adjust", s.handleStockAdjust)
		gr.Post("/stock/{id}/delete", s.handleStockDelete)

		gr.Get("/restock", s.handleRestockList)
		gr.Get("/restock/new", s.handleRestockNewForm)
		gr.Post("/restock/new", s.handleRestockCreate)
		gr.Post("/restock/{id}/toggle", s.handleRestockToggle)
		gr.Post("/restock/{id}/delete", s.handleRestockDelete)
		gr.Get("/restock/suggest", s.handleRestockSuggest)
		gr.Post("/restock/suggest/create", s.handleRestockSuggestCreate)

		gr.Get("/bits", s.handleBitList)
		gr.Get("/bits/new", s.handleBitNewForm)
		gr.Post("/bits/new", s.handleBitCreate)
		gr.Get("/bits/{id}", s.handleBitDetail)

		gr.Get("/shrouds", s.handleShroudList)
		gr.Get("/shrouds/new", s.handleShroudNewForm)
		gr.Post("/shrouds/new", s.handleShroudCreate)

		gr.Get("/usage", s.handleUsageList)
		gr.Post("/usage/new", s.handleUsageCreate)

		gr.Get("/equipment", s.handleEquipmentList)
		gr.Get("/equipment/new", s.handleEquipmentNewForm)
		gr.Post("/equipment/new", s.handleEquipmentCreate)
		gr.Post("/equipment/{id}/delete", s.handleEquipmentDelete)
		gr.Get("/equipment/{id}/fault/new", s.handleFaultNewForm)
		gr.Post("/equipment/{id}/fault/new", s.handleFaultCreate)

		gr.Get("/faults", s.handleFaultList)
		gr.Post("/faults/{id}/toggle", s.handleFaultToggle)
		gr.Post("/faults/{id}/delete", s.handleFaultDelete)

		gr.Get("/handover", s.handleHandoverList)
		gr.Post("/handover/new", s.handleHandoverCreate)
		gr.Post("/handover/{id}/toggle", s.handleHandoverToggle)
		gr.Post("/handover/{id}/delete", s.handleHandoverDelete)

		gr.Get("/travel", s.handleTravelList)
		gr.Get("/travel/new", s.handleTravelNewForm)
		gr.Post("/travel/new", s.handleTravelCreate)

		gr.Get("/refuel", s.handleRefuelList)
		gr.Get("/refuel/new", s.handleRefuelNewForm)
		gr.Post("/refuel/new", s.handleRefuelCreate)
		gr.Get("/refuel/calc", s.handleRefuelCalc)
		gr.Post("/refuel/watch", s.handleFuelWatchCreate)

		gr.Get("/jobs", s.handleJobList)
		gr.Post("/jobs/task/new", s.handleTaskCreate)
		gr.Post("/jobs/task/{id}/toggle", s.handleTaskToggle)
		gr.Post("/jobs/task/{id}/delete", s.handleTaskDelete)

		gr.Get("/map", s.handleMapTree)
		gr.Get("/map/new", s.handleNodeNewForm)
		gr.Post("/map/new", s.handleNodeCreate)
		gr.Post("/map/quick-new", s.handleNodeQuickCreate)
		gr.Get("/map/{id}", s.handleNodeDetail)
		gr.Get("/map/{id}/edit", s.handleNodeEditForm)
		gr.Post("/map/{id}/edit", s.handleNodeUpdate)
		gr.Get("/map/{id}/move", s.handleNodeMoveForm)
		gr.Post("/map/{id}/move", s.handleNodeMove)
		gr.Post("/map/{id}/delete", s.handleNodeDelete)

		gr.Get("/search", s.handleSearch)

		gr.Get("/audit", s.handleAuditList)
		gr.Get("/audit/{id}", s.handleAuditDetail)

		gr.Get("/offline", s.handleOfflinePage)
		gr.Get("/offline/csv", s.handleOfflineExport)

		gr.Get("/debug/routes", s.handleDebugRoutes(router))
		gr.Get("/debug/settings", s.handleDebugSettings)
		gr.Get("/debug/db-check", s.handleDebugDBCheck)
	})

	hcfg := huma.DefaultConfig("Offsider API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "/docs"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerDebug(group, s)
	registerAudit(group, s)
	registerJobs(group, s)
	registerStock(group, s)

	return router, nil
}

func (s *Server) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (s *Server) log() *log.Logger {
	if s.logger != nil {
		return s.logger
	}
	return log.Default()
}

// engineFor opens the session rig's store and binds an engine to it.
func (s *Server) engineFor(rig string) (engine.Engine, error) {
	conn, err := s.stores.Get(rig)
	if err != nil {
		return engine.Engine{}, fmt.Errorf("open store for rig %q: %w", rig, err)
	}
	eng := engine.New(conn)
	if s.now != nil {
		eng.Now = s.now
		eng.Audit.Now = s.now
	}
	return eng, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrConflict) {
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrInvalidStatus) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// idParam parses the {id} route segment. Zero never matches a row, so a bad
// value falls through to not-found handling.
func idParam(r *http.Request, name string) int64 {
	n, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func atoiOr(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}

func atofOr(s string, def float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return def
	}
	return f
}

// optionalID turns an empty or unparseable select value into nil.
func optionalID(s string) *int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n <= 0 {
		return nil
	}
	return &n
}

func optionalInt(s string) *int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	return &n
}

func optionalFloat(s string) *float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	return &f
}

func itoa64(n int64) string {
	return strconv.FormatInt(n, 10)
}

// trimFloat renders 12.0 as "12" and 12.5 as "12.5".
func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
