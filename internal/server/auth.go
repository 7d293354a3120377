package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"offsider/internal/config"
)

// sessionCookie replaces the three plain cookies the tool used to set; one
// signed token carries actor, rig id and rig title together.
const sessionCookie = "offsider_session"

type session struct {
	Actor    string
	Rig      string
	RigTitle string
}

type sessionClaims struct {
	jwt.RegisteredClaims
	Actor    string `json:"actor"`
	Rig      string `json:"rig"`
	RigTitle string `json:"rig_title"`
}

type sessionKey struct{}

func sessionFrom(ctx context.Context) session {
	sess, _ := ctx.Value(sessionKey{}).(session)
	return sess
}

func (s *Server) issueSession(sess session) (string, error) {
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			IssuedAt: jwt.NewNumericDate(s.clock()),
		},
		Actor:    sess.Actor,
		Rig:      sess.Rig,
		RigTitle: sess.RigTitle,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Server) parseSession(token string) (session, bool) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	var claims sessionClaims
	_, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil || claims.Actor == "" || claims.Rig == "" {
		return session{}, false
	}
	return session{Actor: claims.Actor, Rig: claims.Rig, RigTitle: claims.RigTitle}, true
}

// requireSession gates the HTML pages. Anyone without a valid session is sent
// to the rig picker.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(sessionCookie)
		if err != nil {
			http.Redirect(w, r, "/auth/select", http.StatusSeeOther)
			return
		}
		sess, ok := s.parseSession(c.Value)
		if !ok {
			http.Redirect(w, r, "/auth/select", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
	})
}

type rigSelectView struct {
	Rigs []config.Rig
}

type loginFormView struct {
	RigID    string
	RigTitle string
}

func (s *Server) handleRigSelect(w http.ResponseWriter, r *http.Request) {
	if len(s.rigs) == 0 {
		s.render(w, http.StatusInternalServerError, "no_rigs", nil)
		return
	}
	s.render(w, http.StatusOK, "rig_select", rigSelectView{Rigs: s.rigs})
}

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	rig, ok := config.FindRig(s.rigs, strings.TrimSpace(r.URL.Query().Get("rig")))
	if !ok {
		http.Redirect(w, r, "/auth/select", http.StatusSeeOther)
		return
	}
	s.render(w, http.StatusOK, "login_form", loginFormView{RigID: rig.ID, RigTitle: rig.Title})
}

func (s *Server) handleLoginPost(w http.ResponseWriter, r *http.Request) {
	actor := strings.TrimSpace(r.FormValue("actor"))
	rigID := strings.TrimSpace(r.FormValue("rig_id"))
	rigTitle := strings.TrimSpace(r.FormValue("rig_title"))

	rig, ok := config.FindRig(s.rigs, rigID)
	if !ok {
		http.Redirect(w, r, "/auth/select", http.StatusSeeOther)
		return
	}

	// A rig without a PIN accepts any entry; one with a PIN wants an exact
	// match.
	if rig.HasPIN() && strings.TrimSpace(r.FormValue("pin")) != rig.PIN {
		s.render(w, http.StatusUnauthorized, "login_denied", loginFormView{RigID: rig.ID, RigTitle: rig.Title})
		return
	}

	if rigTitle == "" {
		rigTitle = rig.Title
	}
	if rigTitle == "" {
		rigTitle = rig.ID
	}
	token, err := s.issueSession(session{Actor: actor, Rig: rig.ID, RigTitle: rigTitle})
	if err != nil {
		s.fail(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
	http.Redirect(w, r, "/auth/select", http.StatusSeeOther)
}
