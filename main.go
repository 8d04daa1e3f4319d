package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/robfig/cron/v3"

	"github.com/AMFTech512/sillyctf-webssh2/internal/config"
	"github.com/AMFTech512/sillyctf-webssh2/internal/database"
	"github.com/AMFTech512/sillyctf-webssh2/internal/handlers"
	"github.com/AMFTech512/sillyctf-webssh2/internal/logging"
	"github.com/AMFTech512/sillyctf-webssh2/internal/metrics"
	"github.com/AMFTech512/sillyctf-webssh2/internal/middleware"
	"github.com/AMFTech512/sillyctf-webssh2/internal/realtime"
	"github.com/AMFTech512/sillyctf-webssh2/internal/session"
	"github.com/AMFTech512/sillyctf-webssh2/internal/shutdown"
	"github.com/AMFTech512/sillyctf-webssh2/internal/sshbridge"
)

// loopBuffer is the event loop's queue depth.
const loopBuffer = 64

// shutdownTimeout bounds how long the HTTP listeners get to close.
const shutdownTimeout = 10 * time.Second

func main() {
	config.LoadSettings()
	logging.Init()
	defer logging.Close()

	cfg := config.Resolve(config.Defaults(), config.FileSource(config.Cfg.ConfigPath))

	store, closeStore, err := newSessionStore(cfg.Session)
	if err != nil {
		log.Fatalf("Session store init: %v", err)
	}
	defer closeStore()

	sessions := session.NewManager(store, cfg.Session)
	sessions.Secure = cfg.TLS.Enabled()

	jobs := cron.New()
	if _, err := jobs.AddFunc("@every 10m", sessions.Cleanup); err != nil {
		log.Fatalf("Session cleanup job: %v", err)
	}
	jobs.Start()

	loop := shutdown.NewLoop(loopBuffer)
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	go loop.Run(loopCtx)

	gw := newGateway(cfg, sessions, loop)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	signals := shutdown.NewSignalSource()
	signals.Handle(syscall.SIGINT, gw.coord.Signal)
	signals.Handle(syscall.SIGTERM, gw.coord.Signal)
	go signals.Run(loopCtx, sigCh, loop)

	go func() {
		log.Printf("[main] WebSSH2 service listening on %s", gw.srv.Addr)
		var err error
		if cfg.TLS.Enabled() {
			err = gw.srv.ListenAndServeTLS(cfg.TLS.Cert, cfg.TLS.Key)
		} else {
			err = gw.srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()
	if gw.redirect != nil {
		go func() {
			log.Printf("[main] HTTP redirect server running on %s", gw.redirect.Addr)
			if err := gw.redirect.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Redirect server error: %v", err)
			}
		}()
	}

	gw.wait()
	signal.Stop(sigCh)
	<-jobs.Stop().Done()
	log.Println("[main] Server stopped")
}

// gateway ties the real-time hub, the drain coordinator and the HTTP
// listeners together. Connection events reach the coordinator through the
// loop; a stop closes the hub and then shuts the listeners down.
type gateway struct {
	srv      *http.Server
	redirect *http.Server
	hub      *realtime.Hub
	coord    *shutdown.Coordinator

	serversDone chan struct{}
}

// newGateway builds the listeners for cfg. The caller runs loop and serves
// srv (and redirect when non-nil).
func newGateway(cfg config.Config, sessions *session.Manager, loop *shutdown.Loop) *gateway {
	gw := &gateway{
		hub:         realtime.NewHub(),
		serversDone: make(chan struct{}),
	}
	gw.coord = shutdown.NewCoordinator(shutdown.Options{
		Broadcaster: gw.hub,
		Scheduler:   shutdown.NewTickerScheduler(loop),
		Duration:    cfg.SafeShutdownDuration,
	})
	gw.hub.OnOpen(func() { loop.Post(gw.coord.ConnectionOpened) })
	gw.hub.OnClose(func() { loop.Post(gw.coord.ConnectionClosed) })

	setupHandlers(cfg, sessions, gw.hub)

	gw.srv = &http.Server{
		Addr:    net.JoinHostPort(cfg.Listen.IP, strconv.Itoa(cfg.Listen.Port)),
		Handler: newRouter(cfg, gw.coord),
	}
	if cfg.Redirect.Target != "" {
		gw.redirect = &http.Server{
			Addr:    net.JoinHostPort(cfg.Listen.IP, strconv.Itoa(cfg.Redirect.Port)),
			Handler: handlers.RedirectHandler(cfg.Redirect.Target),
		}
	}

	gw.coord.OnStop(func(string) {
		gw.hub.Close()
		go gw.shutdownServers()
	})
	return gw
}

func (gw *gateway) shutdownServers() {
	defer close(gw.serversDone)
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := gw.srv.Shutdown(ctx); err != nil {
		log.Printf("[main] shutdown: %v", err)
	}
	if gw.redirect != nil {
		if err := gw.redirect.Shutdown(ctx); err != nil {
			log.Printf("[main] redirect shutdown: %v", err)
		}
	}
}

// wait blocks until the coordinator has stopped and the listeners are shut
// down.
func (gw *gateway) wait() {
	<-gw.coord.Done()
	<-gw.serversDone
}

// setupHandlers installs the handler package dependencies.
func setupHandlers(cfg config.Config, sessions *session.Manager, hub *realtime.Hub) {
	bridge := &sshbridge.Bridge{
		Sessions: sessions,
		Defaults: defaultCredentials(cfg.User),
	}
	if cfg.Verify {
		bridge.HostKeys = sshbridge.NewKnownHosts()
	}

	handlers.WebSSH = cfg
	handlers.Sessions = sessions
	handlers.Hub = hub
	handlers.Bridge = bridge
	handlers.Static = middleware.NewStaticHandler(os.DirFS(cfg.PublicPath), http.HandlerFunc(handlers.NotFound))
}

// newRouter builds the main listener's routes. Everything except /metrics
// sits behind the shutdown guard.
func newRouter(cfg config.Config, gate middleware.Gate) http.Handler {
	guard := middleware.ShutdownGuard(gate)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)

	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(guard)
		r.Use(handlers.Recoverer)
		if cfg.AccessLog {
			r.Use(chimw.Logger)
		}
		r.Use(handlers.Sessions.Middleware)
		r.Use(middleware.BasicAuth(hasDefaultUser(cfg.User), handlers.Sessions))

		r.Get("/", handlers.Root)
		r.Get("/favicon.ico", handlers.Favicon)
		r.Get("/ssh", handlers.SSH)
		r.Get("/ssh/reauth", handlers.Reauth)
		r.Get("/ssh/socket", handlers.Socket)
		r.Handle("/ssh/*", http.StripPrefix("/ssh", handlers.Static))
	})

	r.NotFound(guard(http.HandlerFunc(handlers.NotFound)).ServeHTTP)
	return r
}

func newSessionStore(cfg config.SessionConfig) (session.Store, func(), error) {
	if cfg.Store != "sqlite" {
		return session.NewMemoryStore(), func() {}, nil
	}
	if err := database.Init(); err != nil {
		return nil, nil, fmt.Errorf("database init: %w", err)
	}
	log.Printf("[main] sessions stored in sqlite at %s", config.Cfg.DatabasePath)
	return session.NewSQLStore(database.DB), func() {
		if err := database.Close(); err != nil {
			log.Printf("[main] close database: %v", err)
		}
	}, nil
}

func hasDefaultUser(u config.UserConfig) bool {
	return u.Name != nil && *u.Name != ""
}

func defaultCredentials(u config.UserConfig) sshbridge.Credentials {
	deref := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}
	return sshbridge.Credentials{
		Username:   deref(u.Name),
		Password:   deref(u.Password),
		PrivateKey: deref(u.PrivateKey),
	}
}
