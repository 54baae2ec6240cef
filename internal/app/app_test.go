package app

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"liuproxy_prober/internal/shared/types"
)

// fakeCore serves the control API and doubles as the node's forwarding proxy,
// so every probe lands on the same handler.
func fakeCore(t *testing.T, probeStatus int, starts, stops *int32) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/start" && r.Host == srv.Listener.Addr().String():
			atomic.AddInt32(starts, 1)
			var req struct {
				Proxies []map[string]any `json:"proxies"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			_, portStr, _ := net.SplitHostPort(srv.Listener.Addr().String())
			port, _ := strconv.Atoi(portStr)
			ports := make([]int, len(req.Proxies))
			for i := range ports {
				ports[i] = port
			}
			json.NewEncoder(w).Encode(map[string]any{"pid": 77, "ports": ports})
		case r.URL.Path == "/stop" && r.Host == srv.Listener.Addr().String():
			atomic.AddInt32(stops, 1)
			w.Write([]byte(`{"ok":true}`))
		default:
			w.WriteHeader(probeStatus)
		}
	}))
	srv.Start()
	return srv
}

func testConfig(t *testing.T, srv *httptest.Server) *types.Config {
	t.Helper()
	host, portStr, _ := net.SplitHostPort(srv.Listener.Addr().String())
	port, _ := strconv.Atoi(portStr)

	cfg := types.DefaultConfig()
	cfg.CoreConf.Host = host
	cfg.CoreConf.Port = port
	cfg.CoreConf.StartDelayMs = 0
	cfg.ProbeConf.Targets = []string{"custom"}
	cfg.ProbeConf.CustomURLs = []string{"http://service.test/health"}
	cfg.ProbeConf.Retries = 0
	return cfg
}

func TestRunBatch_EndToEnd(t *testing.T) {
	var starts, stops int32
	srv := fakeCore(t, http.StatusOK, &starts, &stops)
	defer srv.Close()

	a, err := New(testConfig(t, srv))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	nodes := []*types.ProxyNode{
		{Name: "JP-1", Config: map[string]any{"type": "trojan", "server": "jp.example", "port": float64(443)}},
		{Name: "bad", Config: map[string]any{"server": "x"}},
	}
	out, err := a.RunBatch(context.Background(), nodes)
	if err != nil {
		t.Fatalf("RunBatch() error: %v", err)
	}
	if o := out[0].Outcome(); o == nil || !o.Available || o.PassCount != 1 {
		t.Fatalf("expected JP-1 to be available, got %+v", o)
	}
	if out[0].Name != "[AI] JP-1" {
		t.Errorf("expected prefixed name, got %q", out[0].Name)
	}
	if out[1].Outcome() != nil {
		t.Error("unconvertible node must pass through")
	}
	if atomic.LoadInt32(&starts) != 1 || atomic.LoadInt32(&stops) != 1 {
		t.Errorf("expected one start and one stop, got %d/%d", starts, stops)
	}

	running, last := a.Status()
	if running || last == nil || last.Available != 1 {
		t.Errorf("unexpected status: running=%v last=%+v", running, last)
	}
}

func TestRunBatch_FailingTarget(t *testing.T) {
	var starts, stops int32
	srv := fakeCore(t, http.StatusServiceUnavailable, &starts, &stops)
	defer srv.Close()

	a, err := New(testConfig(t, srv))
	if err != nil {
		t.Fatal(err)
	}
	out, err := a.RunBatch(context.Background(), []*types.ProxyNode{
		{Name: "US-1", Config: map[string]any{"type": "ss", "server": "us.example", "port": float64(8388)}},
	})
	if err != nil {
		t.Fatal(err)
	}
	o := out[0].Outcome()
	if o == nil || o.Available || o.Results["custom-1"].Status != http.StatusServiceUnavailable {
		t.Errorf("expected unavailable node with 503 result, got %+v", o)
	}
	if out[0].Name != "US-1" {
		t.Errorf("unavailable node must not be prefixed, got %q", out[0].Name)
	}
}
