package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jpalmerr/pricewatch/internal/store"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStore(t testing.TB) *store.MemDBStore {
	t.Helper()
	st, err := store.NewMemDBStore()
	if err != nil {
		t.Fatalf("NewMemDBStore() error = %v", err)
	}
	return st
}

func mustUpdate(t testing.TB, st store.Store, s store.Session) {
	t.Helper()
	if err := st.Update(s); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
}

// mockBackend implements Backend for testing.
type mockBackend struct {
	mu         sync.Mutex
	models     map[string][]string
	err        error
	toggles    ToggleState
	started    []string
	lastName   string
	lastModel  string
	lastCode   string
	lastEnable bool
	loads      int
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		models:  map[string][]string{"Inspiron 14": {"Core i5", "Core i7"}},
		toggles: ToggleState{Values: map[string]bool{"cn14001": false}, Enabled: []string{}, Limit: 5},
	}
}

func (m *mockBackend) Models(ctx context.Context, name string) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastName = name
	if m.err != nil {
		return nil, m.err
	}
	return map[string]any{"name": name, "models": m.models[name]}, nil
}

func (m *mockBackend) Trend(ctx context.Context, name, model string) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastName, m.lastModel = name, model
	if m.err != nil {
		return nil, m.err
	}
	return map[string]any{"title": name + " - " + model}, nil
}

func (m *mockBackend) StartJob(ctx context.Context, kind string) (store.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return store.Session{}, m.err
	}
	m.started = append(m.started, kind)
	return store.Session{ID: fmt.Sprintf("s-%d", len(m.started)), Kind: kind, State: "started"}, nil
}

func (m *mockBackend) Toggles(ctx context.Context) (ToggleState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	if m.err != nil {
		return ToggleState{}, m.err
	}
	return m.toggles, nil
}

func (m *mockBackend) SetToggle(ctx context.Context, orderCode string, enabled bool) (ToggleState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastCode, m.lastEnable = orderCode, enabled
	if m.err != nil {
		return ToggleState{}, m.err
	}
	m.toggles.Values[orderCode] = enabled
	return m.toggles, nil
}

func (m *mockBackend) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// serve routes a request through the full router.
func serve(srv *Server, method, target string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("failed to parse JSON: %v, body: %s", err, rec.Body.String())
	}
}

// --- UI API tests ---

func TestHandleModels(t *testing.T) {
	mb := newMockBackend()
	srv := NewServer(newStore(t), mb, 0, nil, "", testLogger())

	rec := serve(srv, http.MethodGet, "/ui/models/Inspiron%2014", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var got struct {
		Name   string   `json:"name"`
		Models []string `json:"models"`
	}
	decodeBody(t, rec, &got)
	if got.Name != "Inspiron 14" {
		t.Errorf("name = %q, want %q", got.Name, "Inspiron 14")
	}
	if len(got.Models) != 2 {
		t.Errorf("models = %v, want 2 entries", got.Models)
	}
}

func TestHandleTrend_EscapedSlash(t *testing.T) {
	mb := newMockBackend()
	srv := NewServer(newStore(t), mb, 0, nil, "", testLogger())

	rec := serve(srv, http.MethodGet, "/ui/trend/XPS%2013/i7%2F32GB", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if mb.lastName != "XPS 13" || mb.lastModel != "i7/32GB" {
		t.Errorf("backend got name=%q model=%q", mb.lastName, mb.lastModel)
	}
}

func TestHandleUI_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("%w: no data", ErrNotFound), http.StatusNotFound},
		{"conflict", fmt.Errorf("%w: busy", ErrConflict), http.StatusConflict},
		{"invalid", fmt.Errorf("%w: bad code", ErrInvalid), http.StatusBadRequest},
		{"upstream", fmt.Errorf("%w: 503", ErrUpstream), http.StatusBadGateway},
		{"unclassified", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mb := newMockBackend()
			mb.setErr(tt.err)
			srv := NewServer(newStore(t), mb, 0, nil, "", testLogger())

			rec := serve(srv, http.MethodGet, "/ui/trend/a/b", nil)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}

			var body errorResponse
			decodeBody(t, rec, &body)
			if body.Error != tt.err.Error() {
				t.Errorf("error = %q, want %q", body.Error, tt.err.Error())
			}
		})
	}
}

func TestHandleStartJob(t *testing.T) {
	mb := newMockBackend()
	srv := NewServer(newStore(t), mb, 0, nil, "", testLogger())

	rec := serve(srv, http.MethodPost, "/ui/jobs/check_price", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}

	var session store.Session
	decodeBody(t, rec, &session)
	if session.Kind != "check_price" || session.ID != "s-1" {
		t.Errorf("session = %+v", session)
	}
}

func TestHandleStartJob_Conflict(t *testing.T) {
	mb := newMockBackend()
	mb.setErr(fmt.Errorf("%w: already polling", ErrConflict))
	srv := NewServer(newStore(t), mb, 0, nil, "", testLogger())

	rec := serve(srv, http.MethodPost, "/ui/jobs/check_price", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestHandleStartJob_MethodNotAllowed(t *testing.T) {
	srv := NewServer(newStore(t), newMockBackend(), 0, nil, "", testLogger())

	rec := serve(srv, http.MethodGet, "/ui/jobs/check_price", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestHandleSessions(t *testing.T) {
	st := newStore(t)
	now := time.Now()
	mustUpdate(t, st, store.Session{ID: "a", Kind: "check_price", State: "completed", StartedAt: now})
	mustUpdate(t, st, store.Session{ID: "b", Kind: "notification_test", State: "polling", StartedAt: now.Add(time.Second)})
	srv := NewServer(st, newMockBackend(), 0, nil, "", testLogger())

	rec := serve(srv, http.MethodGet, "/ui/sessions", nil)
	var all []store.Session
	decodeBody(t, rec, &all)
	if len(all) != 2 {
		t.Fatalf("sessions = %d, want 2", len(all))
	}
	if rec.Header().Get("Cache-Control") != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", rec.Header().Get("Cache-Control"))
	}

	rec = serve(srv, http.MethodGet, "/ui/sessions?kind=notification_test", nil)
	var filtered []store.Session
	decodeBody(t, rec, &filtered)
	if len(filtered) != 1 || filtered[0].ID != "b" {
		t.Errorf("filtered sessions = %+v, want only b", filtered)
	}
}

func TestHandleSessions_EmptyIsArray(t *testing.T) {
	srv := NewServer(newStore(t), newMockBackend(), 0, nil, "", testLogger())

	rec := serve(srv, http.MethodGet, "/ui/sessions", nil)
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("body = %q, want []", body)
	}
}

func TestHandleSession(t *testing.T) {
	st := newStore(t)
	mustUpdate(t, st, store.Session{ID: "abc", Kind: "check_price", State: "polling", Checks: 3})
	srv := NewServer(st, newMockBackend(), 0, nil, "", testLogger())

	rec := serve(srv, http.MethodGet, "/ui/sessions/abc", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var session store.Session
	decodeBody(t, rec, &session)
	if session.Checks != 3 {
		t.Errorf("Checks = %d, want 3", session.Checks)
	}

	rec = serve(srv, http.MethodGet, "/ui/sessions/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandleToggles(t *testing.T) {
	srv := NewServer(newStore(t), newMockBackend(), 0, nil, "", testLogger())

	rec := serve(srv, http.MethodGet, "/ui/toggles", nil)
	var state ToggleState
	decodeBody(t, rec, &state)
	if state.Limit != 5 {
		t.Errorf("Limit = %d, want 5", state.Limit)
	}
	if _, ok := state.Values["cn14001"]; !ok {
		t.Errorf("Values = %v, want cn14001", state.Values)
	}
}

func TestHandleToggles_ReloadsOnEveryRequest(t *testing.T) {
	mb := newMockBackend()
	srv := NewServer(newStore(t), mb, 0, nil, "", testLogger())

	mb.setErr(fmt.Errorf("%w: settings backend down", ErrUpstream))
	rec := serve(srv, http.MethodGet, "/ui/toggles", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadGateway)
	}
	var body errorResponse
	decodeBody(t, rec, &body)
	if !strings.Contains(body.Error, "settings backend down") {
		t.Errorf("error = %q, want upstream message", body.Error)
	}

	mb.setErr(nil)
	rec = serve(srv, http.MethodGet, "/ui/toggles", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	mb.mu.Lock()
	loads := mb.loads
	mb.mu.Unlock()
	if loads != 2 {
		t.Errorf("Toggles() calls = %d, want 2", loads)
	}
}

func TestHandleSetToggle(t *testing.T) {
	mb := newMockBackend()
	srv := NewServer(newStore(t), mb, 0, nil, "", testLogger())

	rec := serve(srv, http.MethodPut, "/ui/toggles/cn14001", bytes.NewBufferString(`{"enabled":true}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if mb.lastCode != "cn14001" || !mb.lastEnable {
		t.Errorf("backend got code=%q enabled=%v", mb.lastCode, mb.lastEnable)
	}
}

func TestHandleSetToggle_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing field", `{}`},
		{"wrong type", `{"enabled":"yes"}`},
		{"not json", `enabled`},
		{"too large", `{"enabled":true,"pad":"` + strings.Repeat("x", maxRequestBody) + `"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mb := newMockBackend()
			srv := NewServer(newStore(t), mb, 0, nil, "", testLogger())

			rec := serve(srv, http.MethodPut, "/ui/toggles/cn14001", strings.NewReader(tt.body))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
			if mb.lastCode != "" {
				t.Errorf("backend called with %q, want no call", mb.lastCode)
			}
		})
	}
}

func TestHandleSetToggle_LimitConflict(t *testing.T) {
	mb := newMockBackend()
	mb.setErr(fmt.Errorf("%w: at most 5 items can be enabled", ErrConflict))
	srv := NewServer(newStore(t), mb, 0, nil, "", testLogger())

	rec := serve(srv, http.MethodPut, "/ui/toggles/cn14001", strings.NewReader(`{"enabled":true}`))
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestHandleUI_NoBackend(t *testing.T) {
	srv := NewServer(newStore(t), nil, 0, nil, "", testLogger())

	for _, target := range []string{"/ui/models/x", "/ui/trend/x/y", "/ui/toggles"} {
		rec := serve(srv, http.MethodGet, target, nil)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: status = %d, want %d", target, rec.Code, http.StatusServiceUnavailable)
		}
	}

	// session routes only need the store
	rec := serve(srv, http.MethodGet, "/ui/sessions", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("/ui/sessions: status = %d, want %d", rec.Code, http.StatusOK)
	}
}

// --- SSE tests ---

func TestHandleSSE_BasicFlow(t *testing.T) {
	st := newStore(t)
	mustUpdate(t, st, store.Session{ID: "session-1", Kind: "check_price", State: "polling"})
	mustUpdate(t, st, store.Session{ID: "session-2", Kind: "notification_test", State: "completed"})

	srv := NewServer(st, nil, 0, nil, "", testLogger())

	req := httptest.NewRequest(http.MethodGet, "/ui/sse", nil)
	rec := httptest.NewRecorder()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	req = req.WithContext(ctx)

	srv.handleSSE(rec, req)

	body := rec.Body.String()

	// should contain initial sessions
	if !strings.Contains(body, "session-1") {
		t.Errorf("response should contain session-1, got: %s", body)
	}
	if !strings.Contains(body, "session-2") {
		t.Errorf("response should contain session-2, got: %s", body)
	}
}

func TestHandleSSE_StreamsUpdates(t *testing.T) {
	st := newStore(t)
	srv := NewServer(st, nil, 0, nil, "", testLogger())

	req := httptest.NewRequest(http.MethodGet, "/ui/sse", nil)
	rec := httptest.NewRecorder()

	ctx, cancel := context.WithCancel(context.Background())
	req = req.WithContext(ctx)

	done := make(chan struct{})
	go func() {
		srv.handleSSE(rec, req)
		close(done)
	}()

	// give handler time to subscribe
	time.Sleep(50 * time.Millisecond)

	mustUpdate(t, st, store.Session{ID: "new-session", Kind: "check_price", State: "started"})

	// give time for update to be written
	time.Sleep(50 * time.Millisecond)

	cancel()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("handler did not exit after context cancellation")
	}

	if !strings.Contains(rec.Body.String(), "new-session") {
		t.Errorf("response should contain streamed update new-session, got: %s", rec.Body.String())
	}
}

func TestHandleSSE_ClientDisconnect(t *testing.T) {
	srv := NewServer(newStore(t), nil, 0, nil, "", testLogger())

	req := httptest.NewRequest(http.MethodGet, "/ui/sse", nil)
	rec := httptest.NewRecorder()

	ctx, cancel := context.WithCancel(context.Background())
	req = req.WithContext(ctx)

	done := make(chan struct{})
	go func() {
		srv.handleSSE(rec, req)
		close(done)
	}()

	// simulate client disconnect
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("handler did not exit after client disconnect")
	}
}

func TestHandleSSE_NoGoroutineLeaks(t *testing.T) {
	// allow existing goroutines to settle
	runtime.GC()
	time.Sleep(100 * time.Millisecond)
	before := runtime.NumGoroutine()

	srv := NewServer(newStore(t), nil, 0, nil, "", testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			req := httptest.NewRequest(http.MethodGet, "/ui/sse", nil)
			req = req.WithContext(ctx)
			rec := httptest.NewRecorder()

			srv.handleSSE(rec, req)
		}()
	}

	wg.Wait()

	runtime.GC()
	time.Sleep(200 * time.Millisecond)

	after := runtime.NumGoroutine()
	if after > before+2 { // small tolerance for runtime variance
		t.Errorf("potential goroutine leak: before=%d, after=%d", before, after)
	}
}

func TestHandleSSE_ConcurrentClientsShutdown(t *testing.T) {
	st := newStore(t)
	mustUpdate(t, st, store.Session{ID: "s", Kind: "check_price", State: "polling"})

	srv := NewServer(st, nil, 0, nil, "", testLogger())

	serverCtx, serverCancel := context.WithCancel(context.Background())

	numClients := 10
	var wg sync.WaitGroup
	started := make(chan struct{})
	var startedCount atomic.Int32

	for i := 0; i < numClients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			req := httptest.NewRequest(http.MethodGet, "/ui/sse", nil)
			req = req.WithContext(serverCtx)
			rec := httptest.NewRecorder()

			if startedCount.Add(1) == int32(numClients) {
				close(started)
			}

			srv.handleSSE(rec, req)
		}()
	}

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("clients did not start in time")
	}

	// give handlers time to subscribe
	time.Sleep(100 * time.Millisecond)

	serverCancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("not all handlers exited after shutdown")
	}
}

func TestHandleSSE_SSENotSupported(t *testing.T) {
	srv := NewServer(newStore(t), nil, 0, nil, "", testLogger())

	req := httptest.NewRequest(http.MethodGet, "/ui/sse", nil)
	w := &nonFlushWriter{header: make(http.Header)}

	srv.handleSSE(w, req)

	if w.statusCode != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.statusCode)
	}
}

type nonFlushWriter struct {
	header     http.Header
	statusCode int
	body       []byte
}

func (n *nonFlushWriter) Header() http.Header {
	return n.header
}

func (n *nonFlushWriter) Write(b []byte) (int, error) {
	n.body = append(n.body, b...)
	return len(b), nil
}

func (n *nonFlushWriter) WriteHeader(statusCode int) {
	n.statusCode = statusCode
}

func TestHandleSSE_Headers(t *testing.T) {
	srv := NewServer(newStore(t), nil, 0, nil, "", testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/ui/sse", nil)
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	srv.handleSSE(rec, req)

	expectedHeaders := map[string]string{
		"Content-Type":                "text/event-stream",
		"Cache-Control":               "no-cache",
		"Connection":                  "keep-alive",
		"Access-Control-Allow-Origin": "*",
	}

	for key, expected := range expectedHeaders {
		if got := rec.Header().Get(key); got != expected {
			t.Errorf("header %s = %q, want %q", key, got, expected)
		}
	}
}

func TestHandleSSE_JSONFormat(t *testing.T) {
	st := newStore(t)
	errMsg := "connection refused"
	mustUpdate(t, st, store.Session{
		ID:         "json-session",
		Kind:       "check_price",
		Handle:     "arn:aws:ecs:task/abc",
		State:      "failed",
		Checks:     4,
		MaxChecks:  60,
		JobStatus:  "RUNNING",
		StartedAt:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:  time.Date(2025, 1, 1, 0, 0, 40, 0, time.UTC),
		Error:      &errMsg,
		StopReason: "",
	})

	srv := NewServer(st, nil, 0, nil, "", testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/ui/sse", nil)
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	srv.handleSSE(rec, req)

	events := parseSSEEvents(rec.Body.String())
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1, body: %s", len(events), rec.Body.String())
	}

	got := events[0]
	if got.ID != "json-session" || got.State != "failed" || got.Checks != 4 {
		t.Errorf("session = %+v", got)
	}
	if got.Error == nil || *got.Error != errMsg {
		t.Errorf("Error = %v, want %q", got.Error, errMsg)
	}
}

// --- Integration tests for slow client / shutdown behavior ---
//
// These tests use httptest.Server to create real HTTP connections that support
// write deadlines. Mock ResponseWriters don't support SetWriteDeadline.

func TestHandleSSE_ServerShutdownIntegration(t *testing.T) {
	st := newStore(t)
	mustUpdate(t, st, store.Session{ID: "integration", Kind: "check_price", State: "polling"})

	srv := NewServer(st, nil, 0, nil, "", testLogger())

	serverCtx, serverCancel := context.WithCancel(context.Background())

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// derive request context from server context (simulates BaseContext)
		r = r.WithContext(serverCtx)
		srv.handleSSE(w, r)
	})

	ts := httptest.NewServer(handler)
	defer ts.Close()

	connDone := make(chan error, 1)
	go func() {
		resp, err := ts.Client().Get(ts.URL)
		if err != nil {
			connDone <- err
			return
		}
		defer func() { _ = resp.Body.Close() }()

		// read until connection closes
		buf := make([]byte, 1024)
		for {
			if _, err := resp.Body.Read(buf); err != nil {
				connDone <- nil
				return
			}
		}
	}()

	time.Sleep(100 * time.Millisecond)

	serverCancel()

	select {
	case <-connDone:
	case <-time.After(3 * time.Second):
		t.Fatal("SSE connection did not close after server shutdown")
	}
}

func parseSSEEvents(body string) []store.Session {
	var sessions []store.Session
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "data: ") {
			var s store.Session
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &s); err == nil {
				sessions = append(sessions, s)
			}
		}
	}
	return sessions
}

// --- Server Start tests ---

func TestStart_ServesRoutes(t *testing.T) {
	// find a free port, then release it for the server
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	st := newStore(t)
	mustUpdate(t, st, store.Session{ID: "live", Kind: "check_price", State: "polling"})
	srv := NewServer(st, newMockBackend(), port, nil, "", testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/ui/sessions/live", port))
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestStart_AvailablePort_ReturnsNil(t *testing.T) {
	// port 0 = OS assigns available port
	srv := NewServer(newStore(t), nil, 0, nil, "", testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		t.Errorf("Start() on available port returned error: %v", err)
	}
}

func TestStart_PortInUse_ReturnsError(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	defer func() { _ = ln.Close() }()

	port := ln.Addr().(*net.TCPAddr).Port

	srv := NewServer(newStore(t), nil, port, nil, "", testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = srv.Start(ctx)
	if err == nil {
		t.Fatal("Start() on occupied port should return error")
	}
	if !strings.Contains(err.Error(), "failed to bind") {
		t.Errorf("expected bind error, got: %v", err)
	}
}

func TestStart_InvalidPort_ReturnsError(t *testing.T) {
	srv := NewServer(newStore(t), nil, -1, nil, "", testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err == nil {
		t.Fatal("Start() with invalid port should return error")
	}
}

// --- Benchmark ---

func BenchmarkHandleSSE_SingleClient(b *testing.B) {
	st := newStore(b)
	for i := 0; i < 10; i++ {
		mustUpdate(b, st, store.Session{ID: "session-" + string(rune('A'+i)), Kind: "check_price", State: "polling"})
	}

	srv := NewServer(st, nil, 0, nil, "", testLogger())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		req := httptest.NewRequest(http.MethodGet, "/ui/sse", nil)
		req = req.WithContext(ctx)
		rec := httptest.NewRecorder()

		srv.handleSSE(rec, req)
		cancel()
	}
}

// --- Page title tests ---

// mockFS implements fs.ReadFileFS for testing page rendering.
type mockFS struct {
	content string
}

func (m *mockFS) Open(name string) (fs.File, error) {
	return nil, fs.ErrNotExist
}

func (m *mockFS) ReadFile(name string) ([]byte, error) {
	if name == "assets/index.html" {
		return []byte(m.content), nil
	}
	return nil, fs.ErrNotExist
}

func TestPage_CustomTitle(t *testing.T) {
	mockAssets := &mockFS{content: "<title>{{.Title}}</title><h1>{{.Title}}</h1>"}
	srv := NewServer(newStore(t), nil, 0, mockAssets, "Laptop prices", testLogger())

	rec := serve(srv, http.MethodGet, "/", nil)
	body := rec.Body.String()

	if !strings.Contains(body, "<title>Laptop prices</title>") {
		t.Errorf("expected title tag with custom title, got: %s", body)
	}
	if !strings.Contains(body, "<h1>Laptop prices</h1>") {
		t.Errorf("expected h1 with custom title, got: %s", body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestPage_DefaultTitle(t *testing.T) {
	mockAssets := &mockFS{content: "<title>{{.Title}}</title>"}
	srv := NewServer(newStore(t), nil, 0, mockAssets, "", testLogger())

	rec := serve(srv, http.MethodGet, "/", nil)

	if !strings.Contains(rec.Body.String(), "<title>PriceWatch</title>") {
		t.Errorf("expected default title PriceWatch, got: %s", rec.Body.String())
	}
}

func TestPage_MissingAsset(t *testing.T) {
	mockAssets := &mockFS{content: "<title>{{.Title}}</title>"}
	srv := NewServer(newStore(t), nil, 0, mockAssets, "", testLogger())

	// mockFS has no settings page
	rec := serve(srv, http.MethodGet, "/settings", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, rec.Code)
	}
}

func TestPage_NoAssets(t *testing.T) {
	srv := NewServer(newStore(t), nil, 0, nil, "", testLogger())

	rec := serve(srv, http.MethodGet, "/", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestPage_UnknownPath(t *testing.T) {
	mockAssets := &mockFS{content: "<title>{{.Title}}</title>"}
	srv := NewServer(newStore(t), nil, 0, mockAssets, "", testLogger())

	rec := serve(srv, http.MethodGet, "/other", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d for unknown path, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestPage_TitleWithHTMLChars(t *testing.T) {
	mockAssets := &mockFS{content: "<title>{{.Title}}</title>"}
	srv := NewServer(newStore(t), nil, 0, mockAssets, "<script>alert('xss')</script>", testLogger())

	body := serve(srv, http.MethodGet, "/", nil).Body.String()

	if strings.Contains(body, "<script>") {
		t.Error("title should be HTML-escaped to prevent XSS")
	}
	if !strings.Contains(body, "&lt;script&gt;") {
		t.Errorf("expected escaped HTML, got: %s", body)
	}
}

func TestPage_TitleWithAmpersand(t *testing.T) {
	mockAssets := &mockFS{content: "<title>{{.Title}}</title>"}
	srv := NewServer(newStore(t), nil, 0, mockAssets, "Price & Stock", testLogger())

	body := serve(srv, http.MethodGet, "/", nil).Body.String()

	if !strings.Contains(body, "Price &amp; Stock") {
		t.Errorf("expected ampersand to be escaped, got: %s", body)
	}
}
