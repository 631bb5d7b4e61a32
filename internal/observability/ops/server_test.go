package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"rosterbot/internal/relay"
	"rosterbot/internal/storage"
	logx "rosterbot/pkg/logx"
)

type fakeRelay struct {
	listening bool
}

func (f fakeRelay) Snapshot() relay.Snapshot {
	st := "connecting"
	if f.listening {
		st = "listening"
	}
	return relay.Snapshot{State: st, Sessions: 1}
}

func (f fakeRelay) Listening() bool { return f.listening }

type fakeStore struct{ rows []storage.Delivery }

func (f *fakeStore) AppendDelivery(ctx context.Context, d storage.Delivery) error { return nil }
func (f *fakeStore) Recent(ctx context.Context, limit int) ([]storage.Delivery, error) {
	return f.rows, nil
}
func (f *fakeStore) Close() error { return nil }

func get(t *testing.T, h http.Handler, path string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		listening bool
		code      int
		status    string
	}{
		{"listening", true, http.StatusOK, "ok"},
		{"reconnecting", false, http.StatusServiceUnavailable, "degraded"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := New(Config{}, fakeRelay{listening: tc.listening}, logx.Nop()).Handler()
			rec := get(t, h, "/healthz", nil)
			if rec.Code != tc.code {
				t.Fatalf("code = %d, want %d", rec.Code, tc.code)
			}
			var rep healthReport
			if err := json.Unmarshal(rec.Body.Bytes(), &rep); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if rep.Status != tc.status {
				t.Fatalf("status = %q, want %q", rep.Status, tc.status)
			}
		})
	}
}

func TestDeliveriesRoute(t *testing.T) {
	t.Parallel()
	h := New(Config{}, fakeRelay{listening: true}, logx.Nop()).Handler()
	if rec := get(t, h, "/deliveries", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("without store: code = %d, want 404", rec.Code)
	}

	st := &fakeStore{rows: []storage.Delivery{{EventType: "added", Number: 42, Name: "Jane", OK: true}}}
	h = New(Config{}, fakeRelay{listening: true}, logx.Nop(), WithStore(st)).Handler()
	rec := get(t, h, "/deliveries?limit=5", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	var got []storage.Delivery
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Jane" {
		t.Fatalf("got %+v", got)
	}
}

func TestPprofMountedOnlyWhenEnabled(t *testing.T) {
	t.Parallel()
	off := New(Config{}, fakeRelay{listening: true}, logx.Nop()).Handler()
	if rec := get(t, off, "/debug/pprof/", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("pprof off: code = %d", rec.Code)
	}
	on := New(Config{Pprof: true}, fakeRelay{listening: true}, logx.Nop()).Handler()
	if rec := get(t, on, "/debug/pprof/", nil); rec.Code != http.StatusOK {
		t.Fatalf("pprof on: code = %d", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	t.Parallel()
	h := New(Config{}, fakeRelay{listening: true}, logx.Nop(), WithBusDropped(func() uint64 { return 4 })).Handler()
	rec := get(t, h, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"rosterbot_relay_sessions_total 1",
		`rosterbot_relay_state{state="listening"} 1`,
		`rosterbot_relay_state{state="failed"} 0`,
		"rosterbot_eventbus_dropped_total 4",
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q", want)
		}
	}
}

func TestToken(t *testing.T) {
	t.Parallel()
	h := New(Config{Token: "s3cret"}, fakeRelay{listening: true}, logx.Nop()).Handler()
	if rec := get(t, h, "/healthz", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: code = %d", rec.Code)
	}
	if rec := get(t, h, "/healthz?token=s3cret", nil); rec.Code != http.StatusOK {
		t.Fatalf("query token: code = %d", rec.Code)
	}
	if rec := get(t, h, "/healthz", map[string]string{"Authorization": "Bearer s3cret"}); rec.Code != http.StatusOK {
		t.Fatalf("bearer token: code = %d", rec.Code)
	}
	for _, bad := range []string{"s3cre", "s3cretx", "S3CRET"} {
		if rec := get(t, h, "/healthz?token="+bad, nil); rec.Code != http.StatusUnauthorized {
			t.Fatalf("token %q: code = %d", bad, rec.Code)
		}
	}
}

func TestRunRefusesPublicBindWithoutToken(t *testing.T) {
	t.Parallel()
	err := New(Config{Addr: "0.0.0.0:0"}, nil, logx.Nop()).Run(context.Background())
	if err != ErrInsecureBind {
		t.Fatalf("Run() = %v, want ErrInsecureBind", err)
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	for addr, want := range map[string]bool{
		"127.0.0.1:6061": true,
		"localhost:1":    true,
		"[::1]:80":       true,
		":6061":          false,
		"10.0.0.1:80":    false,
		"nonsense":       false,
	} {
		if got := isLoopbackAddr(addr); got != want {
			t.Errorf("isLoopbackAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}
