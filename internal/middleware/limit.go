package middleware

import "net/http"

// MaxBodySize caps request bodies. Moderation payloads are small JSON
// documents.
const MaxBodySize = 64 << 10

// LimitBodyMiddleware caps the size of request bodies
func LimitBodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)
		}
		next.ServeHTTP(w, r)
	})
}
