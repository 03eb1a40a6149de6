package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/eldtechnologies/agentrooms/internal/metrics"
)

// ErrNoSecret is returned when neither a password nor a hash is configured.
var ErrNoSecret = errors.New("auth: no password or password hash configured")

// publicPaths bypass the gate so health checks and scrapers work without credentials.
var publicPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// AuthMiddleware gates every route behind a single shared Basic-auth secret.
type AuthMiddleware struct {
	user   string
	hash   []byte
	realm  string
	logger zerolog.Logger
}

// NewAuthMiddleware creates the gate. A plain password is hashed once here so
// that every check goes through bcrypt.
func NewAuthMiddleware(user, password, passwordHash string, logger zerolog.Logger) (*AuthMiddleware, error) {
	m := &AuthMiddleware{
		user:   user,
		realm:  "agentrooms",
		logger: logger.With().Str("component", "auth").Logger(),
	}

	switch {
	case passwordHash != "":
		if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
			return nil, err
		}
		m.hash = []byte(passwordHash)
	case password != "":
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		m.hash = hash
	default:
		return nil, ErrNoSecret
	}

	return m, nil
}

// RequireAuth rejects requests without valid Basic credentials.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicPaths[r.URL.Path] || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		user, password, ok := r.BasicAuth()
		if !ok || !m.valid(user, password) {
			if ok {
				metrics.BlockedRequests.WithLabelValues("bad_credentials").Inc()
				m.logger.Warn().
					Str("type", "security").
					Str("event", "auth_failed").
					Str("ip", RealIP(r)).
					Str("endpoint", r.URL.Path).
					Msg("invalid credentials")
			}
			w.Header().Set("WWW-Authenticate", `Basic realm="`+m.realm+`", charset="UTF-8"`)
			jsonError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *AuthMiddleware) valid(user, password string) bool {
	// Always run bcrypt so a wrong user name costs the same as a wrong password.
	passOK := bcrypt.CompareHashAndPassword(m.hash, []byte(password)) == nil
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(m.user)) == 1
	return userOK && passOK
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
