package server

import (
	"net/http"

	"offsider/internal/export"
)

func (s *Server) handleOfflinePage(w http.ResponseWriter, r *http.Request) {
	s.page(w, r, "Offline tools", "offline", nil)
}

// handleOfflineExport streams the whole rig store as a zip of CSVs. The
// archive is built straight onto the response; a failure mid-stream can only
// be logged.
func (s *Server) handleOfflineExport(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	eng, err := s.engineFor(sess.Rig)
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename+`"`)
	opts := export.Options{Actor: sess.Actor, Now: s.clock}
	if err := export.Write(r.Context(), eng.DB, w, opts); err != nil {
		s.log().Printf("[server] offline export: %v", err)
	}
}
