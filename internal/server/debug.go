package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleDebugRoutes walks the mounted router per request so routes added
// after this closure is built still show up.
func (s *Server) handleDebugRoutes(router chi.Router) http.HandlerFunc {
	type routeInfo struct {
		Method string `json:"method"`
		Path   string `json:"path"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var routes []routeInfo
		walker := func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
			routes = append(routes, routeInfo{Method: method, Path: route})
			return nil
		}
		if err := chi.Walk(router, walker); err != nil {
			s.fail(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(routes)
	}
}

func (s *Server) handleDebugSettings(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	st, err := eng.Repo.GetOrCreateSettings(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":                "ok",
		"timezone":              st.Timezone,
		"reminder_horizon_days": st.ReminderHorizonDays,
		"has_pin_hash":          st.CrewPINHash != nil && *st.CrewPINHash != "",
	})
}

// handleDebugDBCheck probes a handful of tables so a failing migration shows
// up as a JSON error instead of a blank page somewhere else.
func (s *Server) handleDebugDBCheck(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	probes := []string{
		`SELECT id FROM settings LIMIT 1`,
		`SELECT id FROM stock_items LIMIT 1`,
		`SELECT id FROM bits LIMIT 1`,
		`SELECT id FROM equipment_faults LIMIT 1`,
	}
	for _, q := range probes {
		rows, err := eng.DB.QueryContext(r.Context(), q)
		if err != nil {
			json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": err.Error()})
			return
		}
		rows.Close()
	}
	json.NewEncoder(w).Encode(map[string]any{"ok": true})
}
