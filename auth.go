package main

import (
	"crypto/subtle"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// hashPassword takes a plaintext password and returns a bcrypt hash.  If
// hashing fails the program panics because it is a programmer error.
func hashPassword(password string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return string(hash)
}

// checkPasswordHash verifies a plaintext password against a stored bcrypt hash.
// It returns nil if the password matches, or an error otherwise.
func checkPasswordHash(password, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// basicAuth guards the stream endpoint with HTTP basic authentication.
type basicAuth struct {
	username string
	hash     string
}

// newBasicAuth returns nil when no username is configured, which leaves the
// stream open.
func newBasicAuth(o StreamOptions) *basicAuth {
	if o.Username == "" {
		return nil
	}
	return &basicAuth{username: o.Username, hash: o.PasswordHash}
}

func (a *basicAuth) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(user), []byte(a.username)) != 1 ||
			checkPasswordHash(pass, a.hash) != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="gatemonitor"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
