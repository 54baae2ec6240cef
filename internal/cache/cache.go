// Package cache holds the content-addressed result cache used to skip re-probing
// nodes whose stable configuration and active target set did not change.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"liuproxy_prober/internal/shared/types"
)

const keyPrefix = "http-meta:ai-check:"

// Entry 是一次节点检测的缓存值。
type Entry struct {
	Available bool                          `json:"available"`
	Results   map[string]types.ProbeOutcome `json:"results"`
	Latency   time.Duration                 `json:"latency"`
	PassCount int                           `json:"pass_count"`
}

// ToOutcome converts a cached entry back into a node outcome.
func (e Entry) ToOutcome() types.NodeOutcome {
	return types.NodeOutcome{
		Available: e.Available,
		Latency:   e.Latency,
		PassCount: e.PassCount,
		Results:   e.Results,
	}
}

// FromOutcome builds a cache entry from a freshly computed outcome.
func FromOutcome(o types.NodeOutcome) Entry {
	return Entry{
		Available: o.Available,
		Results:   o.Results,
		Latency:   o.Latency,
		PassCount: o.PassCount,
	}
}

// Store 定义了结果缓存的读写行为。过期策略由实现者负责。
type Store interface {
	Lookup(fingerprint string) (Entry, bool)
	Store(fingerprint string, entry Entry)
}

// volatileKeys never take part in the fingerprint.
var volatileKeys = map[string]struct{}{
	"name":           {},
	"collectionname": {},
	"subname":        {},
	"id":             {},
}

// Fingerprint derives the cache key of a node from its stable configuration and
// the URLs of the active targets. Annotation fields and display names are ignored.
func Fingerprint(config map[string]any, targetURLs []string) string {
	stable := make(map[string]any, len(config))
	for k, v := range config {
		if types.IsAnnotationKey(k) {
			continue
		}
		if _, skip := volatileKeys[strings.ToLower(k)]; skip {
			continue
		}
		stable[k] = v
	}

	urls := append([]string(nil), targetURLs...)
	sort.Strings(urls)

	// encoding/json sorts map keys, so the encoding is canonical.
	payload, err := json.Marshal(struct {
		Config  map[string]any `json:"config"`
		Targets []string       `json:"targets"`
	}{stable, urls})
	if err != nil {
		// Unencodable values still need a deterministic key.
		payload = []byte(strings.Join(urls, "\n"))
	}
	sum := sha256.Sum256(payload)
	return keyPrefix + hex.EncodeToString(sum[:])
}
