package httpapi

import (
	"net/http"
	"net/url"
	"strings"
)

type loginData struct {
	Next      string
	Principal string
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "login", false, loginData{Next: safeNext(r.URL.Query().Get("next"))})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	principal := strings.TrimSpace(r.FormValue("principal"))
	next := safeNext(r.FormValue("next"))
	token, sess, err := s.identity.Login(principal, r.FormValue("passcode"))
	if err != nil {
		s.logger.Warn("login_failed", "principal", principal, "remote_addr", remoteIP(r))
		setFlash(w, "error", "Invalid login. Check your details and try again.")
		http.Redirect(w, r, "/login?next="+url.QueryEscape(next), http.StatusSeeOther)
		return
	}
	s.identity.SetCookie(w, token)
	s.logger.Info("login", "principal", sess.Principal)
	setFlash(w, "success", "Welcome, "+displayName(sess.Name, sess.Principal)+"!")
	http.Redirect(w, r, next, http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.identity.Logout(w)
	setFlash(w, "success", "Logged out.")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// safeNext keeps post-login redirects on this site.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return "/"
	}
	return next
}

func displayName(name, principal string) string {
	if name != "" {
		return name
	}
	return principal
}
