package server

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

const sessionCookie = "mc_session"

const sessionTTL = 24 * time.Hour

// authenticator issues and checks dashboard sessions. A successful
// password login gets a signed JWT in an HttpOnly cookie; API clients
// may instead send the password as a bearer token on every request.
type authenticator struct {
	password string
	secret   []byte
	limiter  *rate.Limiter
}

func newAuthenticator(password, secret string) (*authenticator, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
	}
	return &authenticator{
		password: password,
		secret:   key,
		// Login attempts are throttled to one per second with a small
		// burst, shared across all clients.
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}, nil
}

func (a *authenticator) issueSession() (string, time.Time, error) {
	exp := time.Now().Add(sessionTTL)
	claims := jwt.RegisteredClaims{
		Subject:   "operator",
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return signed, exp, nil
}

func (a *authenticator) validSession(tokenString string) bool {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	return err == nil && token.Valid
}

func (a *authenticator) checkPassword(candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(a.password)) == 1
}

// authorized reports whether the request carries a valid session cookie
// or the dashboard password as a bearer token. With no password
// configured the API is open, which is the local dev default.
func (a *authenticator) authorized(r *http.Request) bool {
	if a.password == "" {
		return true
	}
	if c, err := r.Cookie(sessionCookie); err == nil && a.validSession(c.Value) {
		return true
	}
	if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return a.checkPassword(bearer)
	}
	return false
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.auth.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "too many login attempts")
		return
	}
	var req struct {
		Password string `json:"password"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	if s.auth.password == "" || !s.auth.checkPassword(req.Password) {
		writeError(w, http.StatusUnauthorized, "invalid password")
		return
	}
	token, exp, err := s.auth.issueSession()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  exp,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
