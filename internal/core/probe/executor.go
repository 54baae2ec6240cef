// Package probe checks a node's reachability of every active target through the
// node's local forwarding port and aggregates the per-target verdicts.
package probe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"liuproxy_prober/internal/core/target"
	"liuproxy_prober/internal/shared/logger"
	"liuproxy_prober/internal/shared/retry"
	"liuproxy_prober/internal/shared/types"
)

// Policy decides node availability from per-target verdicts.
type Policy string

const (
	PolicyAll Policy = "all"
	PolicyAny Policy = "any"
)

// ParsePolicy maps a config value onto a Policy, defaulting to PolicyAll.
func ParsePolicy(s string) Policy {
	if strings.EqualFold(strings.TrimSpace(s), string(PolicyAny)) {
		return PolicyAny
	}
	return PolicyAll
}

// Options tunes the executor.
type Options struct {
	Method     string
	Policy     Policy
	Retries    int
	RetryDelay time.Duration
	// Strict stops a node's probing at its first failed target.
	Strict bool
}

// Executor 对单个节点按顺序检测所有目标。
type Executor struct {
	fetcher Fetcher
	targets []target.Target
	opts    Options
}

func NewExecutor(fetcher Fetcher, targets []target.Target, opts Options) *Executor {
	if opts.Method == "" {
		opts.Method = "get"
	}
	if opts.Policy == "" {
		opts.Policy = PolicyAll
	}
	return &Executor{fetcher: fetcher, targets: targets, opts: opts}
}

// Probe runs one target through localPort. Transport errors are retried with
// linear backoff and, once exhausted, reported as a failed outcome.
func (e *Executor) Probe(ctx context.Context, t target.Target, localPort int) types.ProbeOutcome {
	resp, err := retry.Do(ctx, e.opts.Retries, e.opts.RetryDelay, func() (*Response, error) {
		return e.fetcher.Fetch(ctx, localPort, e.opts.Method, t.URL)
	})

	if err != nil {
		return types.ProbeOutcome{
			Status:  types.StatusError,
			Latency: types.LatencyError,
			Passed:  false,
			Message: err.Error(),
		}
	}

	passed, msg := t.Evaluate(resp.Status, resp.Body)
	if resp.Title != "" {
		msg = fmt.Sprintf("%s (title: %s)", msg, resp.Title)
	}
	return types.ProbeOutcome{
		Status:  resp.Status,
		Latency: resp.Latency,
		Passed:  passed,
		Message: msg,
	}
}

// ProbeNode evaluates every target in catalog order against one node.
// Targets are never probed concurrently on the same port.
func (e *Executor) ProbeNode(ctx context.Context, nodeName string, localPort int) types.NodeOutcome {
	l := logger.WithComponent("Prober/Executor")

	out := types.NodeOutcome{Results: make(map[string]types.ProbeOutcome, len(e.targets))}
	var passedLatency time.Duration

	for _, t := range e.targets {
		if ctx.Err() != nil {
			break
		}
		res := e.Probe(ctx, t, localPort)
		out.Results[t.ID] = res

		l.Debug().
			Str("node", nodeName).
			Str("target", t.ID).
			Int("status", res.Status).
			Int64("latency_ms", res.Latency.Milliseconds()).
			Bool("passed", res.Passed).
			Msg(res.Message)

		if res.Passed {
			out.PassCount++
			passedLatency += res.Latency
		} else if e.opts.Strict {
			break
		}
	}

	switch e.opts.Policy {
	case PolicyAny:
		out.Available = out.PassCount > 0
	default:
		out.Available = out.PassCount == len(e.targets)
	}
	if out.Available && out.PassCount > 0 {
		out.Latency = passedLatency / time.Duration(out.PassCount)
	}
	return out
}

// Targets returns the active target list.
func (e *Executor) Targets() []target.Target { return e.targets }
