package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Annotation keys written onto probed nodes.
const (
	KeyAvailable = "_ai_available"
	KeyLatency   = "_ai_latency"
	KeyPassCount = "_ai_pass_count"
	KeyResults   = "_ai_results"
	KeyLatencies = "_ai_latencies"
)

// Sentinels used by ProbeOutcome when the request never produced a response.
const (
	StatusError  = -1
	LatencyError = time.Duration(-1)
)

// ProbeOutcome 是一个 (节点, 目标) 对的探测结果。创建后不再修改。
type ProbeOutcome struct {
	Status  int           `json:"status"`
	Latency time.Duration `json:"-"`
	Passed  bool          `json:"passed"`
	Message string        `json:"message"`
}

type probeOutcomeJSON struct {
	Status    int    `json:"status"`
	LatencyMs int64  `json:"latency"`
	Passed    bool   `json:"passed"`
	Message   string `json:"message"`
}

// MarshalJSON writes latency in milliseconds, -1 for transport errors.
func (o ProbeOutcome) MarshalJSON() ([]byte, error) {
	ms := int64(-1)
	if o.Latency != LatencyError {
		ms = o.Latency.Milliseconds()
	}
	return json.Marshal(probeOutcomeJSON{Status: o.Status, LatencyMs: ms, Passed: o.Passed, Message: o.Message})
}

func (o *ProbeOutcome) UnmarshalJSON(data []byte) error {
	var raw probeOutcomeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	o.Status = raw.Status
	o.Passed = raw.Passed
	o.Message = raw.Message
	if raw.LatencyMs < 0 {
		o.Latency = LatencyError
	} else {
		o.Latency = time.Duration(raw.LatencyMs) * time.Millisecond
	}
	return nil
}

// NodeOutcome aggregates every target outcome of one node.
type NodeOutcome struct {
	Available bool
	Latency   time.Duration // average over passed targets; zero when absent
	PassCount int
	Results   map[string]ProbeOutcome
}

// ConversionError marks a node that cannot be handed to the core.
type ConversionError struct {
	Index int
	Name  string
	Err   error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("node %d (%s) cannot be converted: %v", e.Index, e.Name, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// ProxyNode 是一个待检测的代理节点。
// Config 保存协议参数 (稳定部分, 参与指纹计算); Annotations 保存所有以 "_" 开头的字段,
// 在重新检测时会被保留, 但不会影响指纹。
type ProxyNode struct {
	Name        string
	Config      map[string]any
	Annotations map[string]any

	outcome *NodeOutcome
}

// Outcome returns the outcome attached during the last run, or nil.
func (n *ProxyNode) Outcome() *NodeOutcome { return n.outcome }

// IsAnnotationKey reports whether key is a volatile annotation field.
func IsAnnotationKey(key string) bool {
	return strings.HasPrefix(key, "_")
}

// Apply attaches a node outcome and, when available, the display prefix.
// The prefix is added at most once.
func (n *ProxyNode) Apply(out NodeOutcome, prefix string) {
	if n.Annotations == nil {
		n.Annotations = make(map[string]any)
	}
	for _, k := range []string{KeyAvailable, KeyLatency, KeyPassCount, KeyResults, KeyLatencies} {
		delete(n.Annotations, k)
	}
	n.outcome = &out
	if out.Available && prefix != "" && !strings.HasPrefix(n.Name, prefix) {
		n.Name = prefix + n.Name
	}
}

func (n *ProxyNode) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	n.Config = make(map[string]any, len(raw))
	n.Annotations = make(map[string]any)
	for k, v := range raw {
		switch {
		case k == "name":
			s, _ := v.(string)
			n.Name = s
		case IsAnnotationKey(k):
			n.Annotations[k] = v
		default:
			n.Config[k] = v
		}
	}
	return nil
}

func (n ProxyNode) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(n.Config)+len(n.Annotations)+6)
	for k, v := range n.Config {
		out[k] = v
	}
	for k, v := range n.Annotations {
		out[k] = v
	}
	out["name"] = n.Name

	if o := n.outcome; o != nil {
		out[KeyAvailable] = o.Available
		out[KeyPassCount] = o.PassCount
		if o.Latency > 0 {
			out[KeyLatency] = o.Latency.Milliseconds()
		}
		if o.Results != nil {
			out[KeyResults] = o.Results
			latencies := make(map[string]int64)
			for id, r := range o.Results {
				if r.Passed {
					latencies[id] = r.Latency.Milliseconds()
				}
			}
			out[KeyLatencies] = latencies
		}
	}
	return json.Marshal(out)
}
