package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const (
	// UsernameHeader carries the identity set by the authentication layer.
	UsernameHeader = "X-Username"
	// SessionCookie names the session the pending transfer is bound to.
	SessionCookie = "sessionid"
	// AccountTypeCookie classifies the caller; "Personal" means transfers need review.
	AccountTypeCookie = "accountType"

	reviewAccountType = "Personal"
)

type contextKey string

const (
	ctxUsername contextKey = "username"
	ctxSession  contextKey = "session"
)

// requireIdentity rejects requests with no username.
func requireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username := r.Header.Get(UsernameHeader)
		if username == "" {
			respondError(w, http.StatusUnauthorized, "missing identity")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxUsername, username)))
	})
}

// withSession makes sure every request has a session id, issuing a cookie
// when the client sent none.
func withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var sessionID string
		if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
			sessionID = c.Value
		} else {
			sessionID = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookie,
				Value:    sessionID,
				Path:     "/",
				HttpOnly: true,
			})
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxSession, sessionID)))
	})
}

func usernameFrom(ctx context.Context) string {
	v, _ := ctx.Value(ctxUsername).(string)
	return v
}

func sessionFrom(ctx context.Context) string {
	v, _ := ctx.Value(ctxSession).(string)
	return v
}

// requiresReview reads the client-supplied classification. Nothing verifies it.
func requiresReview(r *http.Request, override *bool) bool {
	if override != nil {
		return *override
	}
	c, err := r.Cookie(AccountTypeCookie)
	return err == nil && c.Value == reviewAccountType
}
