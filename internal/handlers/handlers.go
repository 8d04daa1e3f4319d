package handlers

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/AMFTech512/sillyctf-webssh2/internal/config"
	"github.com/AMFTech512/sillyctf-webssh2/internal/middleware"
	"github.com/AMFTech512/sillyctf-webssh2/internal/realtime"
	"github.com/AMFTech512/sillyctf-webssh2/internal/session"
	"github.com/AMFTech512/sillyctf-webssh2/internal/sshbridge"
)

// Set from main.go during init.
var (
	WebSSH   config.Config
	Sessions *session.Manager
	Hub      *realtime.Hub
	Bridge   *sshbridge.Bridge
	Static   *middleware.StaticHandler
)

// ClientPage is the terminal page served for GET /ssh.
const ClientPage = "client.htm"

const (
	notFoundMessage    = "Sorry can't find that!"
	serverErrorMessage = "Something broke!"
)

// Root sends browsers to the terminal page.
func Root(w http.ResponseWriter, r *http.Request) {
	middleware.SetHSTS(w)
	http.Redirect(w, r, "/ssh", http.StatusFound)
}

// SSH stores a fresh session descriptor and serves the terminal page.
func SSH(w http.ResponseWriter, r *http.Request) {
	if _, err := Sessions.Bind(w, r, WebSSH); err != nil {
		log.Printf("[handlers] bind session descriptor: %v", err)
		writeText(w, http.StatusInternalServerError, serverErrorMessage)
		return
	}
	if err := Static.ServeFile(w, r, ClientPage); err != nil {
		log.Printf("[handlers] serve %s: %v", ClientPage, err)
		writeText(w, http.StatusInternalServerError, serverErrorMessage)
	}
}

// Reauth answers 401 so the browser forgets its basic-auth credentials,
// then bounces back to the referring page when it belongs to this site.
func Reauth(w http.ResponseWriter, r *http.Request) {
	ref := reauthTarget(r)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	fmt.Fprintf(w, `<!DOCTYPE html><html><head><meta http-equiv="refresh" content="0; url=%s"></head><body bgcolor="#000"></body></html>`,
		html.EscapeString(ref))
}

// reauthTarget returns the Referer if it is a local path or a URL on the
// request's own host, and "/" otherwise.
func reauthTarget(r *http.Request) string {
	ref := r.Referer()
	if strings.HasPrefix(ref, "/") {
		if strings.HasPrefix(ref, "//") || strings.HasPrefix(ref, "/\\") {
			return "/"
		}
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil || u.Host != r.Host {
		return "/"
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "/"
	}
	return ref
}

// Socket upgrades to the real-time channel and hands the client to the
// terminal bridge with the session loaded for this request.
func Socket(w http.ResponseWriter, r *http.Request) {
	st := session.FromContext(r.Context())
	err := Hub.Accept(w, r, func(ctx context.Context, c *realtime.Client) {
		Bridge.Serve(ctx, c, st)
	})
	if err != nil && !errors.Is(err, realtime.ErrClosed) {
		log.Printf("[handlers] websocket from %s: %v", r.RemoteAddr, err)
	}
}

// Favicon serves favicon.ico from the public directory.
func Favicon(w http.ResponseWriter, r *http.Request) {
	if err := Static.ServeFile(w, r, "favicon.ico"); err != nil {
		NotFound(w, r)
	}
}

func NotFound(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusNotFound, notFoundMessage)
}

// RedirectHandler answers every request with a permanent redirect to target.
func RedirectHandler(target string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target, http.StatusMovedPermanently)
	})
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(msg))
}
