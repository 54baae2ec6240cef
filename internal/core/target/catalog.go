// Package target builds the list of probe targets and their pass/fail predicates.
package target

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"liuproxy_prober/internal/shared/logger"
)

// ErrEmptyCatalog is returned when the configuration resolves to no target at all.
var ErrEmptyCatalog = errors.New("no probe targets configured")

const customID = "custom"

// Target 是一个探测目标。批次内不可变。
type Target struct {
	ID       string
	Name     string
	URL      string
	Category Category
	rule     Rule
}

// Evaluate runs the target's predicate over a received response.
func (t Target) Evaluate(status int, body []byte) (bool, string) {
	return t.rule.Evaluate(status, body)
}

type builtin struct {
	id       string
	name     string
	url      string
	category Category
}

// builtins defines catalog order.
var builtins = []builtin{
	{id: "gpt", name: "ChatGPT", url: "https://ios.chat.openai.com", category: CategoryChat},
	{id: "claude", name: "Claude", url: "https://claude.ai/login", category: CategoryLogin},
	{id: "gemini", name: "Gemini", url: "https://gemini.google.com", category: CategoryRedirect},
}

var aliases = map[string]string{
	"openai":    "gpt",
	"chatgpt":   "gpt",
	"anthropic": "claude",
	"google":    "gemini",
	"bard":      "gemini",
}

// Catalog is the resolved, ordered target list of one batch.
type Catalog struct {
	targets []Target
}

// Build resolves requested identifiers (case-insensitive, deduplicated, order-insensitive)
// into targets. Unknown identifiers are ignored. "custom" expands to one target per URL.
func Build(requested []string, customURLs []string) (*Catalog, error) {
	want := make(map[string]bool)
	for _, id := range requested {
		id = strings.ToLower(strings.TrimSpace(id))
		if canonical, ok := aliases[id]; ok {
			id = canonical
		}
		if id != "" {
			want[id] = true
		}
	}

	c := &Catalog{}
	for _, b := range builtins {
		if !want[b.id] {
			continue
		}
		c.targets = append(c.targets, Target{
			ID:       b.id,
			Name:     b.name,
			URL:      b.url,
			Category: b.category,
			rule:     categoryRules[b.category],
		})
	}

	if want[customID] {
		seen := make(map[string]bool)
		for _, raw := range customURLs {
			raw = strings.TrimSpace(raw)
			if raw == "" || seen[raw] {
				continue
			}
			u, err := url.Parse(raw)
			if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
				l := logger.WithComponent("Prober/Targets")
				l.Warn().Str("url", raw).Msg("Ignoring invalid custom url.")
				continue
			}
			seen[raw] = true
			c.targets = append(c.targets, Target{
				ID:       fmt.Sprintf("%s-%d", customID, len(seen)),
				Name:     u.Host,
				URL:      raw,
				Category: CategoryCustom,
				rule:     categoryRules[CategoryCustom],
			})
		}
	}

	if len(c.targets) == 0 {
		return c, ErrEmptyCatalog
	}
	return c, nil
}

// Targets returns the targets in catalog order.
func (c *Catalog) Targets() []Target {
	return c.targets
}

// URLs returns the target URLs, used for fingerprinting.
func (c *Catalog) URLs() []string {
	urls := make([]string, len(c.targets))
	for i, t := range c.targets {
		urls[i] = t.URL
	}
	return urls
}

func (c *Catalog) Len() int { return len(c.targets) }
