package http

import (
	"context"
	"net/http"
	"strings"

	"budgetly/internal/gateway"
	"budgetly/internal/log"
	"budgetly/internal/session"
)

type sessionKey struct{}

// requireSession resolves the session cookie. Unknown or expired sessions
// go back to the landing page; HTMX requests get an HX-Redirect instead of
// a swap.
func (s *Server) requireSession(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.sessionFrom(r)
		if !ok {
			if isHTMX(r) {
				NewHTMXResponse().Header("HX-Redirect", "/").Status(http.StatusUnauthorized).Write(w)
				return
			}
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}

		ctx := context.WithValue(r.Context(), sessionKey{}, sess)
		ctx = gateway.WithUserID(ctx, sess.User.ID)
		ctx = context.WithValue(ctx, log.LoggerContextKey, log.FromContext(ctx).With(log.FieldUserID, sess.User.ID))
		next(w, r.WithContext(ctx))
	})
}

func (s *Server) sessionFrom(r *http.Request) (*session.Session, bool) {
	if s.sessions == nil {
		return nil, false
	}
	c, err := r.Cookie(sessionCookie)
	if err != nil || c.Value == "" {
		return nil, false
	}
	return s.sessions.Get(c.Value)
}

// currentSession is only valid inside requireSession.
func currentSession(ctx context.Context) *session.Session {
	sess, _ := ctx.Value(sessionKey{}).(*session.Session)
	return sess
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// sanitizeInput removes control characters other than tab and newlines and
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
