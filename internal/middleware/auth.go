package middleware

import (
	"log"
	"net/http"

	"github.com/AMFTech512/sillyctf-webssh2/internal/logutil"
	"github.com/AMFTech512/sillyctf-webssh2/internal/session"
)

// BasicAuthRealm is announced in the WWW-Authenticate challenge.
const BasicAuthRealm = "WebSSH"

const credentialsRequired = "Username and password required for web SSH service."

// BasicAuth captures HTTP basic credentials into the session for the
// terminal bridge. When the server has a default user configured the
// challenge is skipped entirely. Must run inside mgr.Middleware.
func BasicAuth(hasDefaultUser bool, mgr *session.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if hasDefaultUser {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || user == "" {
				w.Header().Set("WWW-Authenticate", `Basic realm="`+BasicAuthRealm+`"`)
				http.Error(w, credentialsRequired, http.StatusUnauthorized)
				return
			}

			st := session.FromContext(r.Context())
			if st == nil {
				log.Printf("[auth] basic auth used without a session; credentials dropped")
				next.ServeHTTP(w, r)
				return
			}
			if st.Data.Username != user || st.Data.Password != pass {
				st.Data.Username = user
				st.Data.Password = pass
				if err := mgr.Save(w, st); err != nil {
					log.Printf("[auth] store credentials for %s: %v", logutil.SanitizeForLog(user), err)
					http.Error(w, "Something broke!", http.StatusInternalServerError)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
