package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"masraf/internal/session"
	"masraf/internal/store"
)

const sessionCookieName = "masraf_session"

// authView holds data for the login and register pages.
type authView struct {
	Error    string
	Email    string
	Remember bool
}

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	if s.resolvedIdentity(r) {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	remembered := false
	if c, err := r.Cookie(session.PersistenceFlagName); err == nil {
		remembered = session.ParsePersistenceMode(c.Value) == session.Durable
	}
	s.render(w, r, "login.html", authView{Remember: remembered})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.render(w, r, "login.html", authView{Error: "Invalid form submission"})
		return
	}

	email := strings.TrimSpace(r.FormValue("email"))
	secret := r.FormValue("password")
	mode := session.SessionOnly
	if r.FormValue("remember") != "" {
		mode = session.Durable
	}

	if email == "" || secret == "" {
		s.render(w, r, "login.html", authView{Error: "Email and password are required", Email: email})
		return
	}

	sess, err := s.sessions.SignIn(r.Context(), email, secret, mode)
	if err != nil {
		s.render(w, r, "login.html", authView{Error: authErrorMessage(err), Email: email, Remember: mode == session.Durable})
		return
	}

	s.setSessionCookie(w, sess, mode)
	s.setPersistenceCookie(w, mode)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleRegisterForm(w http.ResponseWriter, r *http.Request) {
	if s.resolvedIdentity(r) {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	s.render(w, r, "register.html", authView{})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.render(w, r, "register.html", authView{Error: "Invalid form submission"})
		return
	}

	email := strings.TrimSpace(r.FormValue("email"))
	secret := r.FormValue("password")
	name := strings.TrimSpace(r.FormValue("name"))
	mode := session.SessionOnly
	if r.FormValue("remember") != "" {
		mode = session.Durable
	}

	if email == "" || secret == "" {
		s.render(w, r, "register.html", authView{Error: "Email and password are required", Email: email})
		return
	}

	sess, err := s.sessions.Register(r.Context(), email, secret, name, mode)
	if err != nil {
		s.render(w, r, "register.html", authView{Error: authErrorMessage(err), Email: email, Remember: mode == session.Durable})
		return
	}

	s.setSessionCookie(w, sess, mode)
	s.setPersistenceCookie(w, mode)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		if identity, err := s.sessions.Resolve(r.Context(), cookie.Value); err == nil {
			s.flows.Drop(identity.ID)
		}
		s.sessions.SignOut(r.Context(), cookie.Value)
	}
	s.clearSessionCookie(w)
	http.Redirect(w, r, "/login", http.StatusFound)
}

// authErrorMessage translates the session error taxonomy into the messages
// shown on the auth forms.
func authErrorMessage(err error) string {
	switch {
	case errors.Is(err, session.ErrUnknownIdentity):
		return "No account found with this email"
	case errors.Is(err, session.ErrBadCredential):
		return "Incorrect password"
	case errors.Is(err, session.ErrAlreadyRegistered):
		return "An account with this email already exists"
	case errors.Is(err, session.ErrMalformedIdentity):
		return "Please enter a valid email address"
	case errors.Is(err, session.ErrWeakSecret):
		return "Password must be at least 6 characters"
	default:
		slog.Error("Unexpected auth failure", "error", err)
		return "Something went wrong. Please try again."
	}
}

func (s *Server) resolvedIdentity(r *http.Request) bool {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return false
	}
	_, err = s.sessions.Resolve(r.Context(), cookie.Value)
	return err == nil
}

// setSessionCookie installs the session token. A durable session survives
// browser restarts for the session's full lifetime; a session-only one
// carries no MaxAge and dies with the browser.
func (s *Server) setSessionCookie(w http.ResponseWriter, sess store.Session, mode session.PersistenceMode) {
	cookie := &http.Cookie{
		Name:     sessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteLaxMode,
	}
	if mode == session.Durable {
		cookie.MaxAge = int(time.Until(sess.ExpiresAt).Seconds())
	}
	http.SetCookie(w, cookie)
}

// setPersistenceCookie remembers the chosen persistence mode so the login
// form can preselect it next time.
func (s *Server) setPersistenceCookie(w http.ResponseWriter, mode session.PersistenceMode) {
	http.SetCookie(w, &http.Cookie{
		Name:     session.PersistenceFlagName,
		Value:    string(mode),
		Path:     "/",
		MaxAge:   int((365 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}
