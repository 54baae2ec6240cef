package target

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"liuproxy_prober/internal/shared/logger"
	"liuproxy_prober/internal/shared/types"
)

func TestBuild_CaseInsensitiveDedupAndOrder(t *testing.T) {
	c, err := Build([]string{"CLAUDE", "gpt", " Gpt ", "unknown"}, nil)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	got := c.Targets()
	if len(got) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(got))
	}
	if got[0].ID != "gpt" || got[1].ID != "claude" {
		t.Errorf("expected catalog order [gpt claude], got [%s %s]", got[0].ID, got[1].ID)
	}
}

func TestBuild_Aliases(t *testing.T) {
	c, err := Build([]string{"openai", "anthropic", "google"}, nil)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if c.Len() != 3 {
		t.Fatalf("expected 3 targets, got %d", c.Len())
	}
}

func TestBuild_CustomExpansion(t *testing.T) {
	c, err := Build([]string{"custom"}, []string{"https://a.example/x", "https://a.example/x", "not a url", "https://b.example"})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	got := c.Targets()
	if len(got) != 2 {
		t.Fatalf("expected 2 custom targets, got %d", len(got))
	}
	if got[0].ID != "custom-1" || got[1].ID != "custom-2" {
		t.Errorf("unexpected ids: %s %s", got[0].ID, got[1].ID)
	}
	if got[0].Name != "a.example" || got[0].Category != CategoryCustom {
		t.Errorf("unexpected custom target: %+v", got[0])
	}
}

func TestBuild_InvalidCustomURLsWarned(t *testing.T) {
	var buf bytes.Buffer
	if err := logger.InitWithWriter(types.LogConf{Level: "warn"}, &buf); err != nil {
		t.Fatal(err)
	}
	defer logger.InitWithWriter(types.LogConf{Level: "info"}, &bytes.Buffer{})

	c, err := Build([]string{"gpt", "custom"}, []string{"not a url", "ftp://files.example", "//nohost", "https://ok.example"})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("expected gpt + one custom target, got %d", c.Len())
	}
	if got := c.Targets()[1]; got.ID != "custom-1" || got.URL != "https://ok.example" {
		t.Errorf("unexpected custom target: %+v", got)
	}
	out := buf.String()
	if n := strings.Count(out, "Ignoring invalid custom url."); n != 3 {
		t.Errorf("expected 3 warnings, got %d:\n%s", n, out)
	}
	if !strings.Contains(out, "ftp://files.example") {
		t.Errorf("warning should name the rejected url:\n%s", out)
	}
}

func TestBuild_Empty(t *testing.T) {
	for _, req := range [][]string{nil, {"nope"}, {"custom"}} {
		if _, err := Build(req, nil); !errors.Is(err, ErrEmptyCatalog) {
			t.Errorf("Build(%v) expected ErrEmptyCatalog, got %v", req, err)
		}
	}
}

func TestPredicates(t *testing.T) {
	c, err := Build([]string{"gpt", "claude", "gemini", "custom"}, []string{"https://c.example"})
	if err != nil {
		t.Fatal(err)
	}
	byID := make(map[string]Target)
	for _, tg := range c.Targets() {
		byID[tg.ID] = tg
	}

	cases := []struct {
		id     string
		status int
		body   string
		want   bool
	}{
		{"gpt", 200, "", true},
		{"gpt", 403, `{"cf_details":"ok"}`, true},
		{"gpt", 403, `{"error":{"code":"unsupported_country"}}`, false},
		{"gpt", 404, "", false},
		{"claude", 200, "<html>login</html>", true},
		{"claude", 302, "", true},
		{"claude", 403, "You have been blocked", false},
		{"claude", 200, "account banned", false},
		{"gemini", 302, "", true},
		{"gemini", 403, "", false},
		{"gemini", 200, "Gemini is not available in your country", false},
		{"custom-1", 200, "", true},
		{"custom-1", 399, "", true},
		{"custom-1", 400, "", false},
		{"custom-1", 199, "", false},
		{"custom-1", 200, "blocked", true},
	}
	for _, tc := range cases {
		got, msg := byID[tc.id].Evaluate(tc.status, []byte(tc.body))
		if got != tc.want {
			t.Errorf("%s(%d, %q) = %v (%s), want %v", tc.id, tc.status, tc.body, got, msg, tc.want)
		}
	}
}
