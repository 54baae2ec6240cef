package cache

import (
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"liuproxy_prober/internal/shared/types"
)

func TestFingerprint_IgnoresVolatileFields(t *testing.T) {
	urls := []string{"https://a.example", "https://b.example"}
	base := map[string]any{"type": "vmess", "server": "1.1.1.1", "port": float64(443)}
	noisy := map[string]any{
		"type": "vmess", "server": "1.1.1.1", "port": float64(443),
		"name": "renamed", "collectionName": "c", "subName": "s", "id": "42",
		"_ai_available": true, "_whatever": 1,
	}

	if Fingerprint(base, urls) != Fingerprint(noisy, urls) {
		t.Fatal("annotation and display fields must not change the fingerprint")
	}
}

func TestFingerprint_TargetOrderInsensitive(t *testing.T) {
	cfg := map[string]any{"type": "ss", "server": "2.2.2.2"}
	a := Fingerprint(cfg, []string{"https://x", "https://y"})
	b := Fingerprint(cfg, []string{"https://y", "https://x"})
	if a != b {
		t.Fatal("target order must not affect the fingerprint")
	}
	if a == Fingerprint(cfg, []string{"https://x"}) {
		t.Fatal("a different target set must change the fingerprint")
	}
	if a == Fingerprint(map[string]any{"type": "ss", "server": "3.3.3.3"}, []string{"https://x", "https://y"}) {
		t.Fatal("a different config must change the fingerprint")
	}
}

func TestMemoryStore_TTL(t *testing.T) {
	m := NewMemoryStore(time.Minute)
	now := time.Unix(1000, 0)
	m.now = func() time.Time { return now }

	m.Store("k", Entry{Available: true})
	if _, ok := m.Lookup("k"); !ok {
		t.Fatal("expected fresh entry")
	}
	now = now.Add(2 * time.Minute)
	if _, ok := m.Lookup("k"); ok {
		t.Fatal("expected expired entry to be dropped")
	}
	if m.Len() != 0 {
		t.Errorf("expected expired entry to be removed, len=%d", m.Len())
	}
}

func TestMemoryStore_ExpiryKeepsConcurrentRefresh(t *testing.T) {
	m := NewMemoryStore(time.Minute)
	now := time.Unix(1000, 0)
	m.now = func() time.Time { return now }
	m.Store("k", Entry{Available: false})

	now = now.Add(2 * time.Minute)
	refreshed := false
	m.now = func() time.Time {
		// The first clock read happens after Lookup dropped its read lock.
		if !refreshed {
			refreshed = true
			m.Store("k", Entry{Available: true})
		}
		return now
	}

	if _, ok := m.Lookup("k"); ok {
		t.Fatal("the stale read must still be reported as a miss")
	}
	got, ok := m.Lookup("k")
	if !ok || !got.Available {
		t.Fatalf("refreshed entry must survive expiry of the stale one, got %+v ok=%v", got, ok)
	}
}

func TestFileStore_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "results.json")
	entry := Entry{
		Available: true,
		Latency:   150 * time.Millisecond,
		PassCount: 1,
		Results: map[string]types.ProbeOutcome{
			"gpt": {Status: 403, Latency: 150 * time.Millisecond, Passed: true, Message: "status 403"},
		},
	}

	fs := NewFileStore(path, 0)
	fs.Store("fp", entry)
	if err := fs.Save(); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	reloaded := NewFileStore(path, 0)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	got, ok := reloaded.Lookup("fp")
	if !ok {
		t.Fatal("expected entry after reload")
	}
	if !reflect.DeepEqual(got, entry) {
		t.Errorf("reloaded entry differs:\n got %+v\nwant %+v", got, entry)
	}
}

func TestFileStore_LoadMissingFile(t *testing.T) {
	fs := NewFileStore(filepath.Join(t.TempDir(), "none.json"), 0)
	if err := fs.Load(); err != nil {
		t.Fatalf("missing file must not be an error: %v", err)
	}
}
