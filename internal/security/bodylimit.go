package security

import (
	"net/http"
)

// BodyLimit caps request payload size. Cart payloads are tiny; anything
// approaching the limit is either abuse or a client bug.
type BodyLimit struct {
	Max int64
}

func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.Max <= 0 || r.Body == nil {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > b.Max {
			http.Error(w, "request entity too large", http.StatusRequestEntityTooLarge)
			return
		}
		// MaxBytesReader makes the oversize case surface as a read error
		// inside the handler's decoder rather than an unbounded read.
		r.Body = http.MaxBytesReader(w, r.Body, b.Max)
		next.ServeHTTP(w, r)
	})
}
