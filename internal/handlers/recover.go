package handlers

import (
	"log"
	"net/http"
	"runtime/debug"
)

// Recoverer turns a handler panic into a 500 and logs the stack.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			log.Printf("[handlers] panic serving %s %s: %v\n%s", r.Method, r.URL.Path, rec, debug.Stack())
			writeText(w, http.StatusInternalServerError, serverErrorMessage)
		}()
		next.ServeHTTP(w, r)
	})
}
