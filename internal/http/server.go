package http

import (
	"context"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	applog "budgetproof/internal/log"
	"budgetproof/internal/middleware/security"
	"budgetproof/internal/middleware/trace"
	"budgetproof/internal/services"
	appweb "budgetproof/web"
)

type Server struct {
	http.Server
	templates *template.Template
	sessions  *services.SessionService

	maxUploadBytes int64
	startedAt      time.Time
	shutdownOnce   sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(addr string, sessions *services.SessionService, maxUploadBytes int64) *Server {
	mux := http.NewServeMux()

	s := &Server{
		sessions:       sessions,
		maxUploadBytes: maxUploadBytes,
		startedAt:      time.Now(),
	}

	// Parse embedded templates at startup.
	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		slog.Warn("Failed parsing templates", applog.FieldComponent, applog.ComponentHTTP, applog.FieldError, err)
	}
	s.templates = t

	// Static assets (served from embedded FS)
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		slog.Warn("Failed to mount embedded static FS", applog.FieldComponent, applog.ComponentHTTP, applog.FieldError, err)
	}

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /budget", s.handleLoadBudget)
	mux.HandleFunc("GET /session", s.handleSession)
	mux.HandleFunc("POST /session/clear", s.handleClear)
	mux.HandleFunc("POST /expenses/{index}/{side}", s.handleAttach)

	mux.HandleFunc("GET /report", s.handleReport)
	mux.HandleFunc("GET /savepoint", s.handleSavePointDownload)
	mux.HandleFunc("POST /savepoint", s.handleSavePointRestore)
	mux.HandleFunc("GET /progress-pdf", s.handleProgressPDFDownload)
	mux.HandleFunc("POST /progress-pdf", s.handleProgressPDFRestore)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware()
	s.Server = http.Server{
		Addr:    addr,
		Handler: tracer.Middleware(headers.Middleware(mux)),
	}

	return s
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
