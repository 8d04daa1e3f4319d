package middleware

import (
	"bytes"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"
)

// StaticMaxAge is the Cache-Control max-age for static assets.
const StaticMaxAge = time.Second

// fallbackExtensions are tried, in order, when a request names a file
// without its extension.
var fallbackExtensions = []string{".htm", ".html"}

// StaticHandler serves files from a directory tree. Dotfiles are hidden,
// directories are never listed or indexed, no ETag is sent, and extensionless
// paths fall back to .htm and .html. Misses are passed to notFound.
type StaticHandler struct {
	fsys     fs.FS
	notFound http.Handler
	now      func() time.Time
}

func NewStaticHandler(fsys fs.FS, notFound http.Handler) *StaticHandler {
	if notFound == nil {
		notFound = http.NotFoundHandler()
	}
	return &StaticHandler{fsys: fsys, notFound: notFound, now: time.Now}
}

func (h *StaticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		h.notFound.ServeHTTP(w, r)
		return
	}

	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if name == "" || hasDotSegment(name) {
		h.notFound.ServeHTTP(w, r)
		return
	}

	if err := h.ServeFile(w, r, name); err != nil {
		h.notFound.ServeHTTP(w, r)
	}
}

// ServeFile writes the named file from the tree with the static asset
// headers. It writes nothing and returns an error when the file cannot be
// served.
func (h *StaticHandler) ServeFile(w http.ResponseWriter, r *http.Request, name string) error {
	f, stat, err := h.open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	content, ok := f.(io.ReadSeeker)
	if !ok {
		b, err := io.ReadAll(f)
		if err != nil {
			return err
		}
		content = bytes.NewReader(b)
	}

	w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(int(StaticMaxAge/time.Second)))
	w.Header().Set("x-timestamp", strconv.FormatInt(h.now().UnixMilli(), 10))
	SetHSTS(w)
	http.ServeContent(w, r, stat.Name(), stat.ModTime(), content)
	return nil
}

// open returns the regular file for name, trying the fallback extensions
// when name itself is missing.
func (h *StaticHandler) open(name string) (fs.File, fs.FileInfo, error) {
	candidates := []string{name}
	if path.Ext(name) == "" {
		for _, ext := range fallbackExtensions {
			candidates = append(candidates, name+ext)
		}
	}
	for _, c := range candidates {
		f, err := h.fsys.Open(c)
		if err != nil {
			continue
		}
		stat, err := f.Stat()
		if err != nil || stat.IsDir() {
			f.Close()
			continue
		}
		return f, stat, nil
	}
	return nil, nil, fs.ErrNotExist
}

func hasDotSegment(name string) bool {
	for _, seg := range strings.Split(name, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}
