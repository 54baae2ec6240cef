// Package engine runs one probing batch: cache pre-check, core session,
// bounded fan-out over nodes and merging of the verdicts back onto the nodes.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"liuproxy_prober/internal/cache"
	"liuproxy_prober/internal/core/metacore"
	"liuproxy_prober/internal/core/probe"
	"liuproxy_prober/internal/core/scheduler"
	"liuproxy_prober/internal/core/target"
	"liuproxy_prober/internal/shared/logger"
	"liuproxy_prober/internal/shared/types"
)

// ErrNoTargets is the configuration error raised when no target survives resolution.
var ErrNoTargets = errors.New("configuration error: no probe targets resolved")

const stopTimeout = 10 * time.Second

// Core is the subset of the core control API used by the engine.
type Core interface {
	Start(ctx context.Context, proxies []map[string]any, timeout time.Duration) (*metacore.Session, error)
	Stop(ctx context.Context, pid int) error
}

// Persister is implemented by cache stores that can be flushed after a batch.
type Persister interface {
	Save() error
}

// Options 汇总了一个批次所需的全部行为配置。
type Options struct {
	Targets            []string
	CustomURLs         []string
	Probe              probe.Options
	Concurrency        int
	Prefix             string
	CacheEnabled       bool
	DisableFailedCache bool
	StartDelay         time.Duration
	PerNodeTimeout     time.Duration
}

// Engine is the batch orchestrator.
type Engine struct {
	core      Core
	fetcher   probe.Fetcher
	store     cache.Store
	converter Converter
	observer  Observer
	opts      Options
	flight    singleflight.Group
}

// New wires an engine. store may be nil when caching is disabled.
func New(core Core, fetcher probe.Fetcher, store cache.Store, opts Options) *Engine {
	if store == nil {
		store = cache.NewMemoryStore(0)
	}
	return &Engine{
		core:      core,
		fetcher:   fetcher,
		store:     store,
		converter: PassthroughConverter{},
		observer:  nopObserver{},
		opts:      opts,
	}
}

// SetConverter replaces the default node converter.
func (e *Engine) SetConverter(c Converter) { e.converter = c }

// SetObserver registers a progress observer.
func (e *Engine) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	e.observer = o
}

type workItem struct {
	index       int
	config      map[string]any
	fingerprint string
}

// Run probes the batch and returns the same slice with annotations merged in.
// Nodes that could not be converted pass through unannotated.
func (e *Engine) Run(ctx context.Context, nodes []*types.ProxyNode) (result []*types.ProxyNode, err error) {
	batchID := uuid.NewString()
	l := logger.WithComponent("Prober/Engine").With().Str("batch", batchID).Logger()

	summary := BatchEvent{BatchID: batchID, Total: len(nodes)}
	defer func() {
		if err != nil {
			summary.Error = err.Error()
		}
		e.observer.OnBatchDone(summary)
	}()

	// 1. 转换节点
	items := make([]workItem, 0, len(nodes))
	for i, n := range nodes {
		cfg, convErr := e.converter.Convert(n)
		if convErr != nil {
			name := ""
			if n != nil {
				name = n.Name
			}
			l.Warn().Err(&types.ConversionError{Index: i, Name: name, Err: convErr}).Msg("Skipping node that cannot be converted.")
			continue
		}
		items = append(items, workItem{index: i, config: cfg})
	}
	l.Info().Int("supported", len(items)).Int("total", len(nodes)).Msg("Nodes converted for the core.")
	if len(items) == 0 {
		return nodes, nil
	}

	// 2. 构建目标列表
	catalog, catErr := target.Build(e.opts.Targets, e.opts.CustomURLs)
	if catErr != nil {
		l.Error().Err(catErr).Strs("targets", e.opts.Targets).Msg("No probe targets resolved, returning input unchanged.")
		return nodes, fmt.Errorf("%w: %v", ErrNoTargets, catErr)
	}
	urls := catalog.URLs()
	for i := range items {
		items[i].fingerprint = cache.Fingerprint(nodes[items[i].index].Config, urls)
	}

	// 3. 缓存预检
	if e.opts.CacheEnabled && e.allCached(items) {
		for _, it := range items {
			entry, _ := e.store.Lookup(it.fingerprint)
			e.apply(nodes, it, entry.ToOutcome(), batchID, true)
			if entry.Available {
				summary.Available++
			}
		}
		summary.Cached = true
		l.Info().Int("count", len(items)).Msg("Every node has a usable cached result, batch done.")
		return nodes, nil
	}

	// 4. 启动核心
	timeout := e.opts.StartDelay + time.Duration(len(items))*e.opts.PerNodeTimeout
	configs := make([]map[string]any, len(items))
	for i, it := range items {
		configs[i] = it.config
	}
	session, startErr := e.core.Start(ctx, configs, timeout)
	if startErr != nil {
		l.Error().Err(startErr).Msg("Core failed to start, aborting batch.")
		return nodes, startErr
	}
	defer e.stop(ctx, l, session.PID)

	// 5. 等待核心预热
	l.Info().Dur("delay", e.opts.StartDelay).Msg("Waiting for the core to warm up.")
	if err := sleep(ctx, e.opts.StartDelay); err != nil {
		return nodes, err
	}

	// 6. 并发检测
	executor := probe.NewExecutor(e.fetcher, catalog.Targets(), e.opts.Probe)
	outcomes := make([]*types.NodeOutcome, len(items))
	tasks := make([]scheduler.Task, len(items))
	for i := range items {
		i := i
		tasks[i] = func(ctx context.Context) error {
			out, cached, err := e.probeItem(ctx, executor, nodes[items[i].index].Name, items[i], session.Ports[i])
			if err != nil {
				return err
			}
			outcomes[i] = &out
			e.publish(batchID, items[i].index, nodes[items[i].index].Name, out, cached, nil)
			return nil
		}
	}
	errs, runErr := scheduler.New(e.opts.Concurrency).Run(ctx, tasks)

	// 7. 合并结果
	for i, it := range items {
		out := outcomes[i]
		switch {
		case out != nil:
		case errors.Is(errs[i], scheduler.ErrSkipped):
			continue
		default:
			out = &types.NodeOutcome{Results: map[string]types.ProbeOutcome{}}
			l.Error().Err(errs[i]).Str("node", nodes[it.index].Name).Msg("Node task failed, marking unavailable.")
			e.publish(batchID, it.index, nodes[it.index].Name, *out, false, errs[i])
		}
		nodes[it.index].Apply(*out, e.opts.Prefix)
		summary.Probed++
		if out.Available {
			summary.Available++
		}
	}

	if p, ok := e.store.(Persister); ok && e.opts.CacheEnabled {
		if err := p.Save(); err != nil {
			l.Error().Err(err).Msg("Failed to persist cache.")
		}
	}

	l.Info().Int("probed", summary.Probed).Int("available", summary.Available).Msg("Batch finished.")
	return nodes, runErr
}

// allCached reports whether every item has a usable cache entry.
func (e *Engine) allCached(items []workItem) bool {
	for _, it := range items {
		entry, ok := e.store.Lookup(it.fingerprint)
		if !ok || !e.usable(entry) {
			return false
		}
	}
	return true
}

func (e *Engine) usable(entry cache.Entry) bool {
	return entry.Available || !e.opts.DisableFailedCache
}

// probeItem re-checks the cache, then probes. Concurrent items sharing a
// fingerprint are collapsed into one probe.
func (e *Engine) probeItem(ctx context.Context, ex *probe.Executor, name string, it workItem, port int) (types.NodeOutcome, bool, error) {
	l := logger.WithComponent("Prober/Engine")

	if e.opts.CacheEnabled {
		if entry, ok := e.store.Lookup(it.fingerprint); ok {
			if e.usable(entry) {
				l.Info().Str("node", name).Bool("available", entry.Available).Msg("Using cached result.")
				return entry.ToOutcome(), true, nil
			}
			l.Info().Str("node", name).Msg("Ignoring cached failure.")
		}
	}

	v, err, shared := e.flight.Do(it.fingerprint, func() (v any, err error) {
		// singleflight re-panics in a fresh goroutine when callers are waiting, keep panics here.
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("probe panicked: %v", r)
			}
		}()
		out := ex.ProbeNode(ctx, name, port)
		if e.opts.CacheEnabled && ctx.Err() == nil && (out.Available || !e.opts.DisableFailedCache) {
			e.store.Store(it.fingerprint, cache.FromOutcome(out))
		}
		return out, nil
	})
	if err != nil {
		return types.NodeOutcome{}, false, err
	}
	out := v.(types.NodeOutcome)
	l.Info().
		Str("node", name).
		Bool("available", out.Available).
		Int("passed", out.PassCount).
		Int("targets", len(ex.Targets())).
		Int64("latency_ms", out.Latency.Milliseconds()).
		Bool("shared", shared).
		Msg("Node checked.")
	return out, false, nil
}

func (e *Engine) apply(nodes []*types.ProxyNode, it workItem, out types.NodeOutcome, batchID string, cached bool) {
	nodes[it.index].Apply(out, e.opts.Prefix)
	e.publish(batchID, it.index, nodes[it.index].Name, out, cached, nil)
}

func (e *Engine) publish(batchID string, index int, name string, out types.NodeOutcome, cached bool, err error) {
	ev := NodeEvent{
		BatchID:   batchID,
		Index:     index,
		Name:      name,
		Available: out.Available,
		PassCount: out.PassCount,
		LatencyMs: out.Latency.Milliseconds(),
		Cached:    cached,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	e.observer.OnNodeResult(ev)
}

// stop runs on every exit path once the core is up, even when ctx is already cancelled.
func (e *Engine) stop(ctx context.Context, l zerolog.Logger, pid int) {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	if err := e.core.Stop(stopCtx, pid); err != nil {
		l.Error().Err(err).Int("pid", pid).Msg("Failed to stop core, the process may leak until its own timeout.")
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
