package pricewatch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/jpalmerr/pricewatch/internal/mockbackend"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newMockBackend starts an in-memory backend and a client pointed at it.
func newMockBackend(t *testing.T, opts ...mockbackend.Option) (*mockbackend.Backend, *Client) {
	t.Helper()
	opts = append([]mockbackend.Option{mockbackend.WithLogger(testLogger())}, opts...)
	b := mockbackend.New(opts...)
	server := httptest.NewServer(b.Handler())
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	t.Cleanup(c.Close)
	return b, c
}

// newStubClient returns a client for a server answering with handler.
func newStubClient(t *testing.T, handler http.HandlerFunc, opts ...ClientOption) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, opts...)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestNewClient_Validation(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		opts    []ClientOption
		wantErr string
	}{
		{"no scheme", "api.example.com", nil, "scheme"},
		{"bad scheme", "ftp://api.example.com", nil, "scheme must be http or https"},
		{"no host", "http://", nil, "host"},
		{"odd headers", "https://api.example.com", []ClientOption{WithHeaders("X-Api-Key")}, "even number"},
		{"zero timeout", "https://api.example.com", []ClientOption{WithTimeout(0)}, "timeout must be positive"},
		{"relative base path", "https://api.example.com", []ClientOption{WithBasePath("dev")}, "must start with"},
		{"nil http client", "https://api.example.com", []ClientOption{WithHTTPClient(nil)}, "cannot be nil"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.url, tt.opts...)
			if err == nil {
				t.Fatal("NewClient() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient("https://api.example.com")
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	defer c.Close()

	if c.Timeout() != 10*time.Second {
		t.Errorf("Timeout() = %v, want 10s", c.Timeout())
	}
	if c.BasePath() != "/dev" {
		t.Errorf("BasePath() = %q, want /dev", c.BasePath())
	}
	if len(c.Headers()) != 0 {
		t.Errorf("Headers() = %v, want empty", c.Headers())
	}
}

func TestClient_HeadersAreSent(t *testing.T) {
	var got http.Header
	c := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_, _ = w.Write([]byte(`[]`))
	}, WithHeaders("X-Api-Key", "secret"))

	if _, err := c.ListModels(context.Background(), "XPS 13"); err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}
	if got.Get("X-Api-Key") != "secret" {
		t.Errorf("X-Api-Key = %q, want secret", got.Get("X-Api-Key"))
	}
	if got.Get("Accept") != "application/json" {
		t.Errorf("Accept = %q, want application/json", got.Get("Accept"))
	}
}

func TestClient_HeadersCopy(t *testing.T) {
	c, err := NewClient("https://api.example.com", WithHeaders("X-Api-Key", "secret"))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	h := c.Headers()
	h["X-Api-Key"] = "changed"
	if c.Headers()["X-Api-Key"] != "secret" {
		t.Error("Headers() should return a copy")
	}
}

func TestClient_ListModels(t *testing.T) {
	_, c := newMockBackend(t)

	models, err := c.ListModels(context.Background(), "Inspiron 14")
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}
	want := []string{"Core i5 16GB", "Core i7 32GB"}
	if !reflect.DeepEqual(models, want) {
		t.Errorf("ListModels() = %v, want %v", models, want)
	}
}

func TestClient_PriceTrend(t *testing.T) {
	_, c := newMockBackend(t)

	trend, err := c.PriceTrend(context.Background(), "Inspiron 14", "Core i7 32GB")
	if err != nil {
		t.Fatalf("PriceTrend() error = %v", err)
	}
	if len(trend.Prices) != 2 {
		t.Fatalf("Prices = %v, want 2 points", trend.Prices)
	}
	if trend.Prices[1].Price != 139800 {
		t.Errorf("last price = %d, want 139800", trend.Prices[1].Price)
	}
	if trend.URL != "https://www.dell.com/ja-jp/shop/cn14002" {
		t.Errorf("URL = %q", trend.URL)
	}
}

func TestClient_HTTPError(t *testing.T) {
	c := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("  upstream down  "))
	})

	_, err := c.PriceTrend(context.Background(), "XPS 13", "Core Ultra 7")
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("error = %v, want *HTTPError", err)
	}
	if httpErr.StatusCode != http.StatusBadGateway {
		t.Errorf("StatusCode = %d, want 502", httpErr.StatusCode)
	}
	if httpErr.Body != "upstream down" {
		t.Errorf("Body = %q, want trimmed body", httpErr.Body)
	}
}

func TestClient_HTTPErrorKeepsMultibyteBodyValid(t *testing.T) {
	// 3-byte runes, so the byte limit falls inside one
	body := strings.Repeat("商品が見つかりません", 10)
	c := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(body))
	})

	_, err := c.PriceTrend(context.Background(), "XPS 13", "Core Ultra 7")
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("error = %v, want *HTTPError", err)
	}
	if !utf8.ValidString(httpErr.Body) {
		t.Errorf("Body is not valid UTF-8: %q", httpErr.Body)
	}
	if !strings.HasSuffix(httpErr.Body, "...") || !strings.HasPrefix(body, strings.TrimSuffix(httpErr.Body, "...")) {
		t.Errorf("Body = %q, want a rune-aligned prefix of the response", httpErr.Body)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		s    string
		n    int
		want string
	}{
		{"abc", 5, "abc"},
		{"abcdef", 3, "abc..."},
		{"日本語", 9, "日本語"},
		{"日本語", 4, "日..."},
		{"日本語", 6, "日本..."},
		{"日本語", 2, "..."},
	}
	for _, tt := range tests {
		if got := truncate(tt.s, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.s, tt.n, got, tt.want)
		}
	}
}

func TestClient_MalformedResponse(t *testing.T) {
	c := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	})

	_, err := c.ListModels(context.Background(), "XPS 13")
	if err == nil || !strings.Contains(err.Error(), "malformed response") {
		t.Errorf("error = %v, want malformed response", err)
	}
}

func TestClient_Timeout(t *testing.T) {
	c := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, WithTimeout(50*time.Millisecond))

	start := time.Now()
	if _, err := c.ListModels(context.Background(), "XPS 13"); err == nil {
		t.Fatal("ListModels() expected timeout error, got nil")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("request took %v, want it bounded by the timeout", elapsed)
	}
}

func TestClient_StartJob(t *testing.T) {
	b, c := newMockBackend(t)

	for _, kind := range JobKinds() {
		handle, err := c.StartJob(context.Background(), kind)
		if err != nil {
			t.Fatalf("StartJob(%s) error = %v", kind, err)
		}
		if !strings.HasPrefix(handle.String(), "arn:aws:ecs:") {
			t.Errorf("StartJob(%s) handle = %q", kind, handle)
		}
	}
	if b.Calls(mockbackend.RouteCheckPrice) != 1 || b.Calls(mockbackend.RouteNotificationTest) != 1 {
		t.Error("each start endpoint should be called once")
	}
}

func TestClient_StartJob_NoHandle(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"empty object", `{}`, ""},
		{"blank arn", `{"taskArn":"  "}`, ""},
		{"reset failed", `{"result":0,"error":"could not reset prices"}`, "could not reset prices"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.StartJob(context.Background(), JobNotificationTest)
			if !errors.Is(err, ErrNoHandle) {
				t.Fatalf("StartJob() error = %v, want ErrNoHandle", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want to contain %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestClient_StartJob_UnknownKind(t *testing.T) {
	_, c := newMockBackend(t)

	if _, err := c.StartJob(context.Background(), "reindex"); !errors.Is(err, ErrUnknownJobKind) {
		t.Errorf("StartJob() error = %v, want ErrUnknownJobKind", err)
	}
}

func TestClient_JobStatus(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Snapshot
	}{
		{
			name: "running with nulls",
			body: `{"status":"RUNNING","stopReason":null,"exitCode":null,"stoppedAt":null,"taskArn":"arn:x/1"}`,
			want: Snapshot{Status: JobRunning, Handle: "arn:x/1"},
		},
		{
			name: "stopped with numeric exit code",
			body: `{"status":"STOPPED","stopReason":"Essential container in task exited","exitCode":0,"stoppedAt":"2025-01-20T09:05:00Z","taskArn":"arn:x/1"}`,
			want: Snapshot{Status: JobStopped, StopReason: CleanStopReason, ExitCode: "0", StoppedAt: "2025-01-20T09:05:00Z", Handle: "arn:x/1"},
		},
		{
			name: "unknown exit code string",
			body: `{"status":"UNKNOWN","stopReason":"Unknown","exitCode":"Unknown","stoppedAt":"Unknown"}`,
			want: Snapshot{Status: JobUnknown, StopReason: "Unknown", ExitCode: "Unknown", StoppedAt: "Unknown", Handle: "arn:x/1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})

			got, err := c.JobStatus(context.Background(), "arn:x/1")
			if err != nil {
				t.Fatalf("JobStatus() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("JobStatus() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestClient_JobStatus_NoStatus(t *testing.T) {
	c := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"taskArn":"arn:x/1"}`))
	})

	if _, err := c.JobStatus(context.Background(), "arn:x/1"); err == nil {
		t.Error("JobStatus() expected error for missing status, got nil")
	}
}

func TestClient_JobStatus_PathKeepsHandleSlashes(t *testing.T) {
	var gotPath string
	c := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"status":"PENDING"}`))
	})

	if _, err := c.JobStatus(context.Background(), "arn:aws:ecs:ap-northeast-1:1:task/cluster/abc"); err != nil {
		t.Fatalf("JobStatus() error = %v", err)
	}
	if gotPath != "/api/get_scraping_status/arn:aws:ecs:ap-northeast-1:1:task/cluster/abc" {
		t.Errorf("path = %q", gotPath)
	}
}

func TestClient_NotificationSettings(t *testing.T) {
	c := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"toggleValues":{"a":1,"b":0,"c":true,"d":null}}`))
	})

	settings, err := c.NotificationSettings(context.Background())
	if err != nil {
		t.Fatalf("NotificationSettings() error = %v", err)
	}
	want := map[string]bool{"a": true, "b": false, "c": true, "d": false}
	if !settings.Success || !reflect.DeepEqual(settings.ToggleValues, want) {
		t.Errorf("NotificationSettings() = %+v, want %v", settings, want)
	}
}

func TestClient_NotificationSettings_InvalidValue(t *testing.T) {
	c := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"toggleValues":{"a":"yes"}}`))
	})

	if _, err := c.NotificationSettings(context.Background()); err == nil {
		t.Error("NotificationSettings() expected error, got nil")
	}
}

func TestClient_UpdateNotificationSetting(t *testing.T) {
	var req struct {
		OrderCode string `json:"order_code"`
		IsChecked bool   `json:"is_checked"`
	}
	var method, contentType string
	c := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		contentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&req)
		_, _ = w.Write([]byte(`{"message":"updated"}`))
	})

	msg, err := c.UpdateNotificationSetting(context.Background(), "cn14001", true)
	if err != nil {
		t.Fatalf("UpdateNotificationSetting() error = %v", err)
	}
	if msg != "updated" {
		t.Errorf("message = %q, want updated", msg)
	}
	if method != http.MethodPost || contentType != "application/json" {
		t.Errorf("method = %s, content type = %q", method, contentType)
	}
	if req.OrderCode != "cn14001" || !req.IsChecked {
		t.Errorf("request body = %+v", req)
	}
}
