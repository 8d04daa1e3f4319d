package middleware

import (
	"net/http"
)

// ShutdownMessage is the body served to requests refused while shutting down.
const ShutdownMessage = "Service unavailable: Server shutting down"

// HSTSValue is the Strict-Transport-Security header sent on redirects and
// static assets.
const HSTSValue = "max-age=31536000"

// Gate reports whether the server still accepts new requests.
type Gate interface {
	Accepting() bool
}

// ShutdownGuard answers 503 once the gate stops accepting, before any
// session or routing work happens.
func ShutdownGuard(gate Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !gate.Accepting() {
				w.Header().Set("Content-Type", "text/plain; charset=utf-8")
				w.Header().Set("Connection", "close")
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(ShutdownMessage))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SetHSTS adds the Strict-Transport-Security header.
func SetHSTS(w http.ResponseWriter) {
	w.Header().Set("Strict-Transport-Security", HSTSValue)
}
