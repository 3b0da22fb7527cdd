package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"kbbot/internal/domain"
	"kbbot/internal/metrics"
	"kbbot/internal/slackapp"
	"kbbot/internal/slackapp/slacktest"
)

const secret = "server-test-secret"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, cfg Config) (*Server, *slacktest.API) {
	t.Helper()
	api := slacktest.NewAPI()
	t.Cleanup(api.Close)
	app := slackapp.New(slackapp.Config{BotToken: "xoxb-test", SigningSecret: secret, APIURL: api.URL, Logger: testLogger()})
	app.Event("message", func(ctx context.Context, ev domain.Event, say domain.Say) error {
		return say(ctx, "echo: "+ev.Text)
	})
	cfg.Events = app
	cfg.Logger = testLogger()
	return New(cfg), api
}

func TestEventsRoute(t *testing.T) {
	srv, api := newTestServer(t, Config{EventsPath: "/slack/events"})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, slacktest.NewRequest(secret, "/slack/events", slacktest.MessageEvent("Ev1", "im", "hi")))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("missing X-Request-Id")
	}
	if posts := api.Posts(); len(posts) != 1 || posts[0].Text != "echo: hi" {
		t.Errorf("posts = %+v", posts)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/slack/events", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, slacktest.NewRequest(secret, "/elsewhere", slacktest.MessageEvent("Ev2", "im", "hi")))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown path status = %d, want 404", rec.Code)
	}
}

func TestRequestIDPropagated(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-Id"); got != "abc-123" {
		t.Errorf("X-Request-Id = %q", got)
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != `{"status":"ok"}` {
		t.Errorf("healthz = %d %s", rec.Code, rec.Body)
	}

	srv, _ = newTestServer(t, Config{Health: func(context.Context) error { return errors.New("database is locked") }})
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "database is locked") {
		t.Errorf("body = %s", rec.Body)
	}
}

func TestMetricsRoute(t *testing.T) {
	reg := metrics.NewRegistry()
	reg.Counter("kbbot_test_total", "test counter", "").Inc()

	srv, _ := newTestServer(t, Config{MetricsPath: "/metrics", Registry: reg})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "kbbot_test_total 1") {
		t.Errorf("metrics body missing counter:\n%s", rec.Body)
	}

	srv, _ = newTestServer(t, Config{})
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("metrics disabled: status = %d, want 404", rec.Code)
	}
}

func TestRunShutsDownOnCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	srv, _ := newTestServer(t, Config{Host: "127.0.0.1", Port: port})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	url := "http://" + srv.Addr() + "/healthz"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("server never came up: %v", err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
