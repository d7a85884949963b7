package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jpalmerr/pricewatch/internal/store"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write operation.
	// Must be <= shutdownTimeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	shutdownTimeout = 5 * time.Second

	// defaultTitle is used when no custom title is configured.
	defaultTitle = "PriceWatch"

	// titlePlaceholder is the marker in HTML that gets replaced with the actual title.
	titlePlaceholder = "{{.Title}}"

	// maxRequestBody bounds JSON request bodies of the UI API.
	maxRequestBody = 4 << 10
)

// Backend errors mapped to HTTP status codes by the UI API. Backend
// implementations wrap one of these around the underlying error.
var (
	// ErrNotFound maps to 404 Not Found.
	ErrNotFound = errors.New("not found")

	// ErrConflict maps to 409 Conflict.
	ErrConflict = errors.New("conflict")

	// ErrInvalid maps to 400 Bad Request.
	ErrInvalid = errors.New("invalid request")

	// ErrUpstream maps to 502 Bad Gateway.
	ErrUpstream = errors.New("backend call failed")
)

// ToggleState is the notification toggle state exposed to the UI.
type ToggleState struct {
	Values  map[string]bool `json:"values"`
	Enabled []string        `json:"enabled"`
	Limit   int             `json:"limit"`
}

// Backend is the price tracker functionality behind the UI API.
//
// View payloads are returned as JSON-encodable values so that this package
// does not depend on the pricewatch types.
type Backend interface {
	// Models returns the model selector of a product name.
	Models(ctx context.Context, name string) (any, error)

	// Trend returns the price trend chart of a product.
	Trend(ctx context.Context, name, model string) (any, error)

	// StartJob starts a polling session and returns its stored record.
	StartJob(ctx context.Context, kind string) (store.Session, error)

	// Toggles refreshes the toggle state from the backend and returns it.
	Toggles(ctx context.Context) (ToggleState, error)

	// SetToggle changes one toggle and returns the resulting state.
	SetToggle(ctx context.Context, orderCode string, enabled bool) (ToggleState, error)
}

// Server handles HTTP requests for the PriceWatch dashboard and UI API.
//
// Routes:
//   - GET /: the embedded dashboard page
//   - GET /settings: the embedded notification settings page
//   - GET /ui/models/{name}: model selector JSON
//   - GET /ui/trend/{name}/{model}: trend chart JSON
//   - POST /ui/jobs/{kind}: start a polling session
//   - GET /ui/sessions, GET /ui/sessions/{id}: stored sessions
//   - GET /ui/sse: Server-Sent Events stream of session updates
//   - GET /ui/toggles, PUT /ui/toggles/{code}: notification toggles
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	store      store.Store
	backend    Backend
	port       int
	httpServer *http.Server
	assets     fs.FS
	title      string
	logger     *slog.Logger
}

// NewServer creates a new HTTP [Server].
//
// Parameters:
//   - st: session store read by the session routes and the SSE stream
//   - backend: price tracker operations (may be nil; UI API routes then answer 503)
//   - port: TCP port to listen on
//   - assets: embedded filesystem containing dashboard assets (may be nil)
//   - title: dashboard title (defaults to "PriceWatch" if empty)
//   - logger: logger for server events
//
// The server is not started until [Server.Start] is called.
func NewServer(st store.Store, backend Backend, port int, assets fs.FS, title string, logger *slog.Logger) *Server {
	return &Server{
		store:   st,
		backend: backend,
		port:    port,
		assets:  assets,
		title:   title,
		logger:  logger,
	}
}

// Handler returns the router serving every route of the server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	if s.assets != nil {
		r.Get("/", s.page("assets/index.html"))
		r.Get("/settings", s.page("assets/settings.html"))
	}

	r.Route("/ui", func(r chi.Router) {
		r.Get("/models/{name}", s.handleModels)
		r.Get("/trend/{name}/{model}", s.handleTrend)
		r.Post("/jobs/{kind}", s.handleStartJob)
		r.Get("/sessions", s.handleSessions)
		r.Get("/sessions/{id}", s.handleSession)
		r.Get("/sse", s.handleSSE)
		r.Get("/toggles", s.handleToggles)
		r.Put("/toggles/{code}", s.handleSetToggle)
	})

	return r
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown with a 5-second
// timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// request contexts end with ctx, which stops SSE streams on shutdown
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}

// page serves an embedded HTML page with title substitution.
func (s *Server) page(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		content, err := fs.ReadFile(s.assets, name)
		if err != nil {
			http.Error(w, "Page not found", http.StatusInternalServerError)
			return
		}

		// escape the title to prevent XSS
		title := s.title
		if title == "" {
			title = defaultTitle
		}
		rendered := strings.ReplaceAll(string(content), titlePlaceholder, html.EscapeString(title))

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if _, err := w.Write([]byte(rendered)); err != nil {
			s.logger.Error("failed to write page response", "page", name, "error", err)
		}
	}
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if !s.requireBackend(w) {
		return
	}
	sel, err := s.backend.Models(r.Context(), param(r, "name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sel)
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	if !s.requireBackend(w) {
		return
	}
	chart, err := s.backend.Trend(r.Context(), param(r, "name"), param(r, "model"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, chart)
}

// handleStartJob starts a polling session. The session keeps running after
// the response; its progress is published on the SSE stream.
func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	if !s.requireBackend(w) {
		return
	}
	session, err := s.backend.StartJob(r.Context(), param(r, "kind"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, session)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	var sessions []store.Session
	if kind := r.URL.Query().Get("kind"); kind != "" {
		sessions = s.store.ByKind(kind)
	} else {
		sessions = s.store.GetAll()
	}
	if sessions == nil {
		sessions = []store.Session{}
	}
	w.Header().Set("Cache-Control", "no-cache")
	s.writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.store.Get(param(r, "id"))
	if !ok {
		s.writeError(w, r, fmt.Errorf("%w: session %q", ErrNotFound, param(r, "id")))
		return
	}
	s.writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleToggles(w http.ResponseWriter, r *http.Request) {
	if !s.requireBackend(w) {
		return
	}
	state, err := s.backend.Toggles(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	s.writeJSON(w, http.StatusOK, state)
}

// setToggleRequest is the body of PUT /ui/toggles/{code}.
type setToggleRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) handleSetToggle(w http.ResponseWriter, r *http.Request) {
	if !s.requireBackend(w) {
		return
	}

	var req setToggleRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", ErrInvalid, err))
		return
	}
	if req.Enabled == nil {
		s.writeError(w, r, fmt.Errorf("%w: missing field \"enabled\"", ErrInvalid))
		return
	}

	state, err := s.backend.SetToggle(r.Context(), param(r, "code"), *req.Enabled)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

// handleSSE streams session updates via Server-Sent Events.
//
// Every write carries a deadline so that a slow or disconnected client
// cannot block the handler past shutdown.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)

	// may not be supported by some ResponseWriter implementations
	deadlinesSupported := true

	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	// send known sessions first
	for _, session := range s.store.GetAll() {
		data, err := json.Marshal(session)
		if err != nil {
			continue
		}
		if err := writeAndFlush(data); err != nil {
			return
		}
	}

	for {
		select {
		case session, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(session)
			if err != nil {
				continue
			}
			if err := writeAndFlush(data); err != nil {
				return
			}

		case <-r.Context().Done():
			// fires on client disconnect and on server shutdown (BaseContext)
			return
		}
	}
}

func (s *Server) requireBackend(w http.ResponseWriter) bool {
	if s.backend == nil {
		http.Error(w, "backend not configured", http.StatusServiceUnavailable)
		return false
	}
	return true
}

// param returns a decoded URL parameter. chi matches on the raw path when
// it holds escaped slashes, leaving those parameters escaped.
func param(r *http.Request, key string) string {
	v := chi.URLParam(r, key)
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

// errorResponse is the JSON body of every UI API error.
type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps err to a status code and writes it as JSON.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("ui request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	} else {
		s.logger.Debug("ui request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// statusFor returns the HTTP status code for a backend error.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
