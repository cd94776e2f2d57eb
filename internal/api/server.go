// Package api serves the dashboard over loopback HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sysview/sysview/internal/controller"
	"github.com/sysview/sysview/internal/health"
	"github.com/sysview/sysview/internal/logging"
	"github.com/sysview/sysview/internal/privilege"
	"github.com/sysview/sysview/internal/software"
	"github.com/sysview/sysview/internal/startup"
	"github.com/sysview/sysview/internal/websocket"
)

var log = logging.L("api")

const (
	maxBodyBytes    = 64 * 1024
	refreshTimeout  = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Server exposes the controller over HTTP.
type Server struct {
	ctrl    *controller.Controller
	health  *health.Monitor
	stream  *websocket.Server
	version string
	mux     *http.ServeMux
}

// NewServer wires the routes. monitor may be nil.
func NewServer(ctrl *controller.Controller, monitor *health.Monitor, version string) *Server {
	s := &Server{
		ctrl:    ctrl,
		health:  monitor,
		stream:  websocket.NewServer(ctrl),
		version: version,
		mux:     http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /api/software", s.handleSoftware)
	s.mux.HandleFunc("POST /api/software/uninstall", s.handleUninstall)
	s.mux.HandleFunc("POST /api/software/open", s.handleOpen)
	s.mux.HandleFunc("POST /api/software/search", s.handleSearch)
	s.mux.HandleFunc("GET /api/startup", s.handleStartup)
	s.mux.HandleFunc("POST /api/startup/toggle", s.handleToggle)
	s.mux.HandleFunc("GET /api/system", s.handleSystem)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/logs", s.handleLogs)
	s.mux.HandleFunc("GET /api/version", s.handleVersion)
	s.mux.Handle("GET /api/ws", s.stream)
	return s
}

var (
	errForeignOrigin  = errors.New("cross-origin requests are not allowed")
	errNotJSONRequest = errors.New("request body must be application/json")
)

// ServeHTTP implements http.Handler. Browsers attach Origin to cross-site
// requests, so a non-loopback Origin is refused outright. POSTs must carry
// JSON, which a page cannot send cross-site without a CORS preflight.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if origin := r.Header.Get("Origin"); origin != "" && !isLoopbackOrigin(origin) {
		log.Warn("rejected cross-origin request", "origin", origin, "path", r.URL.Path)
		writeError(w, time.Now(), http.StatusForbidden, errForeignOrigin)
		return
	}
	if r.Method == http.MethodPost && !isJSON(r.Header.Get("Content-Type")) {
		writeError(w, time.Now(), http.StatusUnsupportedMediaType, errNotJSONRequest)
		return
	}
	s.mux.ServeHTTP(w, r)
}

func isLoopbackOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}

// ListenAndServe serves on addr until ctx is done, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	log.Info("api listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.stream.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	log.Info("api stopped")
	return nil
}

func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// statusFor maps action errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, controller.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, controller.ErrElevationRequired):
		return http.StatusForbidden
	case errors.Is(err, controller.ErrNoUninstaller),
		errors.Is(err, controller.ErrNoInstallLocation),
		errors.Is(err, startup.ErrNothingToRestore),
		errors.Is(err, startup.ErrNothingToDisable),
		errors.Is(err, startup.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleSoftware(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	records := software.Filter(s.ctrl.Software(), r.URL.Query().Get("q"))
	if records == nil {
		records = []software.Record{}
	}
	writeSuccess(w, start, records)
}

type nameRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleUninstall(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req nameRequest
	if err := decodeBody(r, &req); err != nil || req.Name == "" {
		writeError(w, start, http.StatusBadRequest, errors.New("name is required"))
		return
	}
	if err := s.ctrl.Uninstall(req.Name); err != nil {
		writeError(w, start, statusFor(err), err)
		return
	}
	writeSuccess(w, start, map[string]string{"launched": req.Name})
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req nameRequest
	if err := decodeBody(r, &req); err != nil || req.Name == "" {
		writeError(w, start, http.StatusBadRequest, errors.New("name is required"))
		return
	}
	if err := s.ctrl.OpenInstallLocation(req.Name); err != nil {
		writeError(w, start, statusFor(err), err)
		return
	}
	writeSuccess(w, start, map[string]string{"opened": req.Name})
}

type searchRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req searchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, start, http.StatusBadRequest, err)
		return
	}
	s.ctrl.Search(req.Query)
	writeResult(w, http.StatusAccepted, NewSuccessResult(map[string]string{"query": req.Query}, time.Since(start).Milliseconds()))
}

type startupView struct {
	startup.View
	RequiresElevation bool `json:"requiresElevation"`
}

func (s *Server) handleStartup(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	items := s.ctrl.Startup()
	views := make([]startupView, 0, len(items))
	for _, it := range items {
		views = append(views, startupView{View: it.View(), RequiresElevation: privilege.RequiresElevation(it.Locator)})
	}
	writeSuccess(w, start, views)
}

type toggleRequest struct {
	Key       string `json:"key"`
	Enabled   *bool  `json:"enabled"`
	Overwrite bool   `json:"overwrite"`
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req toggleRequest
	if err := decodeBody(r, &req); err != nil || req.Key == "" || req.Enabled == nil {
		writeError(w, start, http.StatusBadRequest, errors.New("key and enabled are required"))
		return
	}
	toggle := s.ctrl.SetStartupEnabled
	if req.Overwrite {
		toggle = s.ctrl.ReplaceStartupEntry
	}
	if err := toggle(req.Key, *req.Enabled); err != nil {
		writeError(w, start, statusFor(err), err)
		return
	}
	writeSuccess(w, start, map[string]any{"key": req.Key, "enabled": *req.Enabled})
}

func (s *Server) handleSystem(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	snap := s.ctrl.System()
	if snap == nil {
		writeError(w, start, http.StatusServiceUnavailable, errors.New("system snapshot not collected yet"))
		return
	}
	writeSuccess(w, start, snap)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(r.Context(), refreshTimeout)
	defer cancel()

	if err := s.ctrl.RefreshAll(ctx); err != nil {
		writeError(w, start, http.StatusGatewayTimeout, err)
		return
	}
	writeSuccess(w, start, map[string]int{
		"software": len(s.ctrl.Software()),
		"startup":  len(s.ctrl.Startup()),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if s.health == nil {
		writeSuccess(w, start, map[string]any{"status": health.Unknown})
		return
	}
	writeSuccess(w, start, s.health.Summary())
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	notices := logging.CurrentNotices()
	if notices == nil {
		writeSuccess(w, start, map[string]any{"entries": []logging.Entry{}, "dropped": 0})
		return
	}
	writeSuccess(w, start, map[string]any{"entries": notices.Recent(), "dropped": notices.Dropped()})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, time.Now(), map[string]any{
		"version":  s.version,
		"elevated": privilege.IsElevated(),
		"clients":  s.stream.Clients(),
		"pool":     s.ctrl.PoolStats(),
	})
}
