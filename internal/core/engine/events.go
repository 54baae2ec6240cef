package engine

// NodeEvent is published once per node as soon as its verdict is known.
type NodeEvent struct {
	BatchID   string `json:"batch_id"`
	Index     int    `json:"index"`
	Name      string `json:"name"`
	Available bool   `json:"available"`
	PassCount int    `json:"pass_count"`
	LatencyMs int64  `json:"latency_ms"`
	Cached    bool   `json:"cached"`
	Error     string `json:"error,omitempty"`
}

// BatchEvent is published when a batch finishes.
type BatchEvent struct {
	BatchID   string `json:"batch_id"`
	Total     int    `json:"total"`
	Probed    int    `json:"probed"`
	Available int    `json:"available"`
	Cached    bool   `json:"fully_cached"`
	Error     string `json:"error,omitempty"`
}

// Observer receives progress events. Implementations must be safe for concurrent use.
type Observer interface {
	OnNodeResult(ev NodeEvent)
	OnBatchDone(ev BatchEvent)
}

type nopObserver struct{}

func (nopObserver) OnNodeResult(NodeEvent)  {}
func (nopObserver) OnBatchDone(BatchEvent) {}
