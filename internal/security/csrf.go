package security

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const defaultCSRFHeader = "X-CSRF-Token"

// CSRF applies double-submit protection to cookie-backed sessions: mutating
// requests must echo the CSRF cookie in a header. Bearer-token requests are
// exempt because an attacker's page cannot attach the Authorization header.
type CSRF struct {
	Header string
}

func (c CSRF) headerName() string {
	if name := strings.TrimSpace(c.Header); name != "" {
		return name
	}
	return defaultCSRFHeader
}

func (c CSRF) Middleware(next http.Handler) http.Handler {
	name := c.headerName()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if safeMethod(r.Method) || hasBearer(r) {
			next.ServeHTTP(w, r)
			return
		}

		token := strings.TrimSpace(r.Header.Get(name))
		if token == "" {
			http.Error(w, "missing csrf token", http.StatusForbidden)
			return
		}
		cookie, err := r.Cookie(name)
		if err != nil || strings.TrimSpace(cookie.Value) == "" {
			http.Error(w, "missing csrf cookie", http.StatusForbidden)
			return
		}
		if !tokensEqual(token, cookie.Value) {
			http.Error(w, "invalid csrf token", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}

func hasBearer(r *http.Request) bool {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	return strings.HasPrefix(strings.ToLower(auth), "bearer ")
}

func tokensEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
