package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/sysview/sysview/internal/controller"
	"github.com/sysview/sysview/internal/health"
	"github.com/sysview/sysview/internal/regstore"
	"github.com/sysview/sysview/internal/shell"
	"github.com/sysview/sysview/internal/software"
	"github.com/sysview/sysview/internal/startup"
	"github.com/sysview/sysview/internal/sysinfo"
	"github.com/sysview/sysview/internal/workerpool"
)

const runPath = `SOFTWARE\Microsoft\Windows\CurrentVersion\Run`

type staticSoftware []software.Record

func (s staticSoftware) List(context.Context) []software.Record { return s }

type okLauncher struct{}

func (okLauncher) Uninstall(string) bool           { return true }
func (okLauncher) OpenInstallLocation(string) bool { return true }

type staticSystem struct{}

func (staticSystem) Collect(context.Context) (*sysinfo.Snapshot, error) {
	return &sysinfo.Snapshot{Hostname: "desk"}, nil
}

func newTestServer(t *testing.T) (*Server, *regstore.Memory) {
	t.Helper()

	reg := regstore.NewMemory()
	reg.SetString(regstore.CurrentUser, runPath, "Chat", `C:\chat.exe`)
	reg.SetString(regstore.LocalMachine, runPath, "Agent", `C:\agent.exe`)
	reg.SetReadOnly(regstore.LocalMachine, true)

	mon := health.NewMonitor()
	pool := workerpool.New(2, 16)
	ctrl := controller.New(controller.Deps{
		Software: staticSoftware{
			{Name: "Git", Publisher: "Git Community", UninstallString: `C:\Git\unins000.exe`},
			{Name: "Paint"},
		},
		Launcher: okLauncher{},
		Startup: startup.NewManager(startup.Deps{
			Registry: reg,
			Fs:       afero.NewMemMapFs(),
			Links:    shell.LinkResolverFunc(func(string) (string, error) { return "", errors.New("none") }),
			Health:   mon,
		}, startup.Options{}),
		System: staticSystem{},
		Pool:   pool,
	}, controller.Config{SearchDebounce: 10 * time.Millisecond, SystemRefreshInterval: time.Hour})

	t.Cleanup(func() {
		ctrl.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		pool.Shutdown(ctx)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := ctrl.RefreshAll(ctx); err != nil {
		t.Fatalf("RefreshAll: %v", err)
	}
	return NewServer(ctrl, mon, "1.2.3"), reg
}

func do(t *testing.T, s *Server, method, path string, body any) (*httptest.ResponseRecorder, Result) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var res Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("%s %s: invalid JSON %q: %v", method, path, rec.Body.String(), err)
	}
	return rec, res
}

func TestListSoftware(t *testing.T) {
	s, _ := newTestServer(t)

	rec, res := do(t, s, http.MethodGet, "/api/software", nil)
	if rec.Code != http.StatusOK || res.Status != StatusCompleted {
		t.Fatalf("code=%d res=%+v", rec.Code, res)
	}
	if items, ok := res.Data.([]any); !ok || len(items) != 2 {
		t.Fatalf("data = %#v", res.Data)
	}

	_, res = do(t, s, http.MethodGet, "/api/software?q=community", nil)
	if items, ok := res.Data.([]any); !ok || len(items) != 1 {
		t.Fatalf("filtered data = %#v", res.Data)
	}
}

func TestUninstallEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name string
		body any
		code int
	}{
		{"missing name", map[string]string{}, http.StatusBadRequest},
		{"unknown", map[string]string{"name": "Nope"}, http.StatusNotFound},
		{"no uninstaller", map[string]string{"name": "Paint"}, http.StatusConflict},
		{"ok", map[string]string{"name": "Git"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, res := do(t, s, http.MethodPost, "/api/software/uninstall", tt.body)
			if rec.Code != tt.code {
				t.Fatalf("code = %d, want %d (%+v)", rec.Code, tt.code, res)
			}
			if (tt.code == http.StatusOK) != (res.Status == StatusCompleted) {
				t.Fatalf("status = %q", res.Status)
			}
		})
	}
}

func TestStartupToggleEndpoint(t *testing.T) {
	s, reg := newTestServer(t)

	rec, res := do(t, s, http.MethodGet, "/api/startup", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	items, _ := res.Data.([]any)
	if len(items) != 2 {
		t.Fatalf("startup items = %#v", res.Data)
	}

	rec, _ = do(t, s, http.MethodPost, "/api/startup/toggle", map[string]any{"key": "Chat"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing enabled: code = %d", rec.Code)
	}

	rec, res = do(t, s, http.MethodPost, "/api/startup/toggle", map[string]any{"key": "Chat", "enabled": false})
	if rec.Code != http.StatusOK {
		t.Fatalf("disable Chat: code = %d, %+v", rec.Code, res)
	}
	if _, ok := reg.Get(regstore.CurrentUser, runPath, "_Chat_Disabled"); !ok {
		t.Fatal("Chat not parked")
	}

	rec, res = do(t, s, http.MethodPost, "/api/startup/toggle", map[string]any{"key": "Agent", "enabled": false})
	if rec.Code != http.StatusForbidden || res.Status != StatusFailed {
		t.Fatalf("HKLM toggle: code = %d, %+v", rec.Code, res)
	}
}

func TestStartupToggleConflict(t *testing.T) {
	s, reg := newTestServer(t)
	reg.SetString(regstore.CurrentUser, runPath, "_Chat_Disabled", `C:\stale.exe`)

	rec, res := do(t, s, http.MethodPost, "/api/startup/toggle", map[string]any{"key": "Chat", "enabled": false})
	if rec.Code != http.StatusConflict || res.Status != StatusFailed {
		t.Fatalf("disable over parked twin: code = %d, %+v", rec.Code, res)
	}
	if _, ok := reg.Get(regstore.CurrentUser, runPath, "Chat"); !ok {
		t.Fatal("Chat removed by refused toggle")
	}

	rec, res = do(t, s, http.MethodPost, "/api/startup/toggle", map[string]any{"key": "Chat", "enabled": false, "overwrite": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("overwrite: code = %d, %+v", rec.Code, res)
	}
	parked, _ := reg.Get(regstore.CurrentUser, runPath, "_Chat_Disabled")
	if got := regstore.DecodeUTF16(parked.Data); got != `C:\chat.exe` {
		t.Fatalf("parked value = %q", got)
	}
}

func TestSystemHealthAndVersion(t *testing.T) {
	s, _ := newTestServer(t)

	rec, res := do(t, s, http.MethodGet, "/api/system", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("system code = %d", rec.Code)
	}
	if data, _ := res.Data.(map[string]any); data["hostname"] != "desk" {
		t.Fatalf("system data = %#v", res.Data)
	}

	rec, res = do(t, s, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health code = %d", rec.Code)
	}
	data, _ := res.Data.(map[string]any)
	if data["status"] != string(health.Healthy) {
		t.Fatalf("health = %#v", res.Data)
	}

	_, res = do(t, s, http.MethodGet, "/api/version", nil)
	if data, _ := res.Data.(map[string]any); data["version"] != "1.2.3" {
		t.Fatalf("version = %#v", res.Data)
	}
}

func TestRefreshAndSearch(t *testing.T) {
	s, _ := newTestServer(t)

	rec, res := do(t, s, http.MethodPost, "/api/refresh", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh code = %d, %+v", rec.Code, res)
	}
	if data, _ := res.Data.(map[string]any); data["software"] != float64(2) {
		t.Fatalf("refresh data = %#v", res.Data)
	}

	rec, _ = do(t, s, http.MethodPost, "/api/software/search", map[string]string{"query": "git"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("search code = %d", rec.Code)
	}
}

func TestUnknownMethod(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodDelete, "/api/software", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("code = %d", rec.Code)
	}
}

func TestCrossSiteRequestsRejected(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		body        string
		contentType string
		origin      string
		wantCode    int
	}{
		{"text/plain toggle", "/api/startup/toggle", `{"key":"Chat","enabled":false}`, "text/plain", "", http.StatusUnsupportedMediaType},
		{"form uninstall", "/api/software/uninstall", `{"name":"Git"}`, "application/x-www-form-urlencoded", "", http.StatusUnsupportedMediaType},
		{"missing content type", "/api/refresh", `{}`, "", "", http.StatusUnsupportedMediaType},
		{"foreign origin toggle", "/api/startup/toggle", `{"key":"Chat","enabled":false}`, "application/json", "https://evil.example", http.StatusForbidden},
		{"foreign origin plain uninstall", "/api/software/uninstall", `{"name":"Git"}`, "text/plain", "https://evil.example", http.StatusForbidden},
		{"null origin", "/api/software/uninstall", `{"name":"Git"}`, "application/json", "null", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, reg := newTestServer(t)
			req := httptest.NewRequest(http.MethodPost, tt.path, bytes.NewBufferString(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if _, ok := reg.Get(regstore.CurrentUser, runPath, "Chat"); !ok {
				t.Fatal("Chat was disabled by a rejected request")
			}
		})
	}
}

func TestLoopbackOriginAccepted(t *testing.T) {
	s, reg := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/startup/toggle", bytes.NewBufferString(`{"key":"Chat","enabled":false}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Origin", "http://127.0.0.1:8787")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d: %s", rec.Code, rec.Body.String())
	}
	if _, ok := reg.Get(regstore.CurrentUser, runPath, "_Chat_Disabled"); !ok {
		t.Fatal("Chat not disabled")
	}

	for origin, want := range map[string]bool{
		"http://localhost:3000": true,
		"http://[::1]:8787":     true,
		"https://127.0.0.2":     true,
		"http://127.0.0.1.evil": false,
		"file://":               false,
		"null":                  false,
	} {
		if got := isLoopbackOrigin(origin); got != want {
			t.Errorf("isLoopbackOrigin(%q) = %v, want %v", origin, got, want)
		}
	}
}
