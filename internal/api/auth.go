package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

type ctxKey int

const ownerKey ctxKey = iota

var errMissingToken = errors.New("no authentication token provided")

func ownerFrom(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey).(string)
	return owner
}

func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// authenticate resolves the patient identity from a bearer token, or from
// the token query parameter for websocket clients.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			writeError(w, http.StatusUnauthorized, errMissingToken)
			return
		}
		owner, err := s.deps.Verifier.OwnerID(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey, owner)))
	})
}

// requireActiveSession only lets the signed-in owner drive the monitor.
func (s *Server) requireActiveSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Session.OwnerID() != ownerFrom(r.Context()) {
			writeError(w, http.StatusConflict, errors.New("no active session for this owner"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireCaregiverKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		if key == "" {
			key = bearerToken(r)
		}
		expected := s.deps.CaregiverAPIKey
		if expected == "" || subtle.ConstantTimeCompare([]byte(key), []byte(expected)) != 1 {
			writeError(w, http.StatusUnauthorized, errors.New("invalid API key"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
