package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"time"

	scs "github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/briangreenhill/communitysite/internal/analytics"
	"github.com/briangreenhill/communitysite/internal/auth"
	"github.com/briangreenhill/communitysite/internal/backup"
	"github.com/briangreenhill/communitysite/internal/cache"
	"github.com/briangreenhill/communitysite/internal/config"
	"github.com/briangreenhill/communitysite/internal/content"
	"github.com/briangreenhill/communitysite/internal/email"
	appmw "github.com/briangreenhill/communitysite/internal/http/middleware"
	"github.com/briangreenhill/communitysite/internal/media"
	"github.com/briangreenhill/communitysite/internal/metrics"
)

// Backups exports and restores site content
type Backups interface {
	Export(ctx context.Context) (backup.Document, error)
	Import(ctx context.Context, doc backup.Document) (map[string]int, error)
}

// JobQueue hands work to the background worker
type JobQueue interface {
	EnqueueBackup(ctx context.Context, requestedBy string) (string, error)
}

type Server struct {
	Router    *chi.Mux
	Sess      *scs.SessionManager
	Tmpl      *template.Template
	Catalog   *content.Catalog
	Cache     *cache.Store
	Magic     auth.MagicLink
	Admins    auth.Allowlist
	Email     email.Sender
	Media     media.Storage
	Backups   Backups
	Jobs      JobQueue
	Analytics analytics.Recorder
	SiteName  string
	OrgInbox  string

	validate *validator.Validate
}

type ServerOptions struct {
	Sess      *scs.SessionManager
	Tmpl      *template.Template
	Catalog   *content.Catalog
	Cache     *cache.Store
	Magic     auth.MagicLink
	Tokens    auth.TokenVerifier
	Email     email.Sender
	Media     media.Storage
	Backups   Backups
	Jobs      JobQueue
	Analytics analytics.Recorder
	Metrics   *metrics.Collector
	Logger    zerolog.Logger
	Cfg       config.Config
	// StaticDir is served under /static/ when set
	StaticDir string
}

func New(opts ServerOptions) *Server {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(hlog.NewHandler(opts.Logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(chimw.Recoverer)
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
	}
	r.Use(opts.Sess.LoadAndSave)

	admins := auth.Allowlist(opts.Cfg.AdminEmails)
	s := &Server{
		Router:    r,
		Sess:      opts.Sess,
		Tmpl:      opts.Tmpl,
		Catalog:   opts.Catalog,
		Cache:     opts.Cache,
		Magic:     opts.Magic,
		Admins:    admins,
		Email:     opts.Email,
		Media:     opts.Media,
		Backups:   opts.Backups,
		Jobs:      opts.Jobs,
		Analytics: opts.Analytics,
		SiteName:  opts.Cfg.SiteName,
		OrgInbox:  opts.Cfg.OrgInbox,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
	if s.Media == nil {
		s.Media = media.Disabled{}
	}
	if s.Analytics == nil {
		s.Analytics = analytics.Nop{}
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("ok")); err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("write health check response")
		}
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}
	if opts.StaticDir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir))))
	}

	r.Group(func(pub chi.Router) {
		pub.Use(appmw.SessionAdmin(s.Sess, admins))
		pub.Use(analytics.Middleware(s.Analytics, opts.Logger))
		pub.Get("/", s.handleHome)
		pub.Get("/gallery", s.handleGallery)
		pub.Get("/activities", s.handleActivities)
		pub.Get("/events", s.handleEvents)
		pub.Get("/events/{id}", s.handleEvent)
		pub.Get("/about", s.handleAbout)
		pub.Get("/contact", s.handleContact)
		pub.Post("/contact", s.handleContactSubmit)
	})

	r.Group(func(a chi.Router) {
		a.Use(appmw.SessionAdmin(s.Sess, admins))
		a.Get("/login", s.handleLogin)
		a.Post("/auth/magic-link", s.handleMagicLink)
		a.Get("/auth/callback", s.handleCallback)
		a.Post("/logout", s.handleLogout)
	})

	r.Route("/admin", func(ar chi.Router) {
		ar.Use(appmw.SessionAdmin(s.Sess, admins))
		ar.Use(appmw.RequireAdmin)
		ar.Get("/", s.handleAdminDashboard)
		ar.Get("/analytics", s.handleAdminAnalytics)
		ar.Get("/backup", s.handleAdminBackup)
		ar.Get("/backup/export", s.handleBackupExport)
		ar.Post("/backup/import", s.handleBackupImport)
		ar.Post("/backup/schedule", s.handleBackupSchedule)
		ar.Post("/cache/flush", s.handleCacheFlush)
		ar.Get("/{domain}", s.handleAdminList)
		ar.Get("/{domain}/new", s.handleAdminNew)
		ar.Post("/{domain}", s.handleAdminCreate)
		ar.Post("/{domain}/reorder", s.handleAdminReorder)
		ar.Get("/{domain}/{id}/edit", s.handleAdminEdit)
		ar.Post("/{domain}/{id}", s.handleAdminUpdate)
		ar.Post("/{domain}/{id}/delete", s.handleAdminDelete)
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.Cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         300,
		}))
		api.Route("/admin", func(adm chi.Router) {
			adm.Use(appmw.BearerAdmin(opts.Tokens))
			adm.Post("/{domain}", s.apiCreate)
			adm.Put("/{domain}/order", s.apiReorder)
			adm.Put("/{domain}/{id}", s.apiUpdate)
			adm.Delete("/{domain}/{id}", s.apiDelete)
		})
		api.Get("/{domain}", s.apiList)
		api.Get("/{domain}/{id}", s.apiGet)
	})

	return s
}

// ServeHTTP makes Server an http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

// render executes a page template into a buffer first so a failing template
// never leaves a half-written page
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["Site"] = s.SiteName
	if a, ok := auth.AdminFrom(r.Context()); ok {
		data["Admin"] = a.Email
	}
	if _, ok := data["Flash"]; !ok {
		data["Flash"] = s.Sess.PopString(r.Context(), "flash")
	}

	var buf bytes.Buffer
	if err := s.Tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("template", name).Msg("render template failed")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("write response")
	}
}

func (s *Server) flash(r *http.Request, msg string) {
	s.Sess.Put(r.Context(), "flash", msg)
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusNotFound, "error", map[string]any{
		"Title": "Not found",
		"Error": "We couldn't find that page.",
	})
}

// errorStatus maps service errors to HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, content.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, content.ErrNotFound), errors.Is(err, content.ErrUnknownDomain):
		return http.StatusNotFound
	case errors.Is(err, content.ErrInvalid),
		errors.Is(err, backup.ErrVersion),
		errors.Is(err, backup.ErrUnknownDomain),
		errors.Is(err, backup.ErrMissingID),
		errors.Is(err, media.ErrUnsupported):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, media.ErrDisabled), errors.Is(err, analytics.ErrDisabled):
		return http.StatusNotImplemented
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("encode json response")
	}
}

func writeJSONError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status >= 500 {
		hlog.FromRequest(r).Error().Err(err).Msg("api request failed")
	}
	writeJSON(w, r, status, map[string]string{"error": err.Error()})
}
