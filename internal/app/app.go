package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"liuproxy_prober/internal/cache"
	"liuproxy_prober/internal/core/engine"
	"liuproxy_prober/internal/core/metacore"
	"liuproxy_prober/internal/core/probe"
	"liuproxy_prober/internal/shared/logger"
	"liuproxy_prober/internal/shared/types"
)

// ErrBusy is returned when a batch is requested while another one is running.
var ErrBusy = errors.New("a batch is already running")

// App 将配置装配为可运行的检测引擎。核心一次只服务一个批次。
type App struct {
	cfg    *types.Config
	engine *engine.Engine
	store  cache.Store

	batchLock sync.Mutex
	statusMu  sync.RWMutex
	running   bool
	last      *engine.BatchEvent
}

// New builds the engine described by cfg. A file-backed cache is loaded eagerly.
func New(cfg *types.Config) (*App, error) {
	store, err := newStore(cfg.CacheConf)
	if err != nil {
		return nil, err
	}

	requestTimeout := time.Duration(cfg.ProbeConf.TimeoutMs) * time.Millisecond
	retryDelay := time.Duration(cfg.ProbeConf.RetryDelayMs) * time.Millisecond

	core := metacore.NewClient(cfg.CoreConf, requestTimeout, cfg.ProbeConf.Retries, retryDelay)
	fetcher := &probe.HTTPFetcher{
		Host:               cfg.CoreConf.Host,
		Scheme:             cfg.ProbeConf.ProxyScheme,
		Timeout:            requestTimeout,
		InsecureSkipVerify: cfg.ProbeConf.InsecureSkipVerify,
		MaxBodyBytes:       cfg.ProbeConf.MaxBodyBytes,
	}

	e := engine.New(core, fetcher, store, engine.Options{
		Targets:    cfg.ProbeConf.Targets,
		CustomURLs: cfg.ProbeConf.CustomURLs,
		Probe: probe.Options{
			Method:     cfg.ProbeConf.Method,
			Policy:     probe.ParsePolicy(cfg.ProbeConf.Policy),
			Retries:    cfg.ProbeConf.Retries,
			RetryDelay: retryDelay,
			Strict:     cfg.ProbeConf.Strict,
		},
		Concurrency:        cfg.ProbeConf.Concurrency,
		Prefix:             cfg.ProbeConf.Prefix,
		CacheEnabled:       cfg.CacheConf.Enabled,
		DisableFailedCache: cfg.CacheConf.DisableFailedCache,
		StartDelay:         time.Duration(cfg.CoreConf.StartDelayMs) * time.Millisecond,
		PerNodeTimeout:     time.Duration(cfg.CoreConf.PerNodeTimeoutMs) * time.Millisecond,
	})

	logger.Info().
		Str("core", core.BaseURL()).
		Strs("targets", cfg.ProbeConf.Targets).
		Str("policy", cfg.ProbeConf.Policy).
		Int("concurrency", cfg.ProbeConf.Concurrency).
		Bool("cache", cfg.CacheConf.Enabled).
		Msg("Prober engine configured.")

	a := &App{cfg: cfg, engine: e, store: store}
	e.SetObserver(&statusObserver{app: a})
	return a, nil
}

func newStore(cc types.CacheConf) (cache.Store, error) {
	ttl := time.Duration(cc.TTLHours) * time.Hour
	if cc.Path == "" {
		return cache.NewMemoryStore(ttl), nil
	}
	fs := cache.NewFileStore(cc.Path, ttl)
	if err := fs.Load(); err != nil {
		return nil, fmt.Errorf("failed to load cache file: %w", err)
	}
	return fs, nil
}

// Engine exposes the engine, mainly to attach observers.
func (a *App) Engine() *engine.Engine { return a.engine }

// SetObserver registers o, recording batch summaries for Status on the way.
func (a *App) SetObserver(o engine.Observer) {
	a.engine.SetObserver(&statusObserver{app: a, next: o})
}

// RunBatch runs one batch. Only one batch runs at a time; a concurrent call gets ErrBusy.
func (a *App) RunBatch(ctx context.Context, nodes []*types.ProxyNode) ([]*types.ProxyNode, error) {
	if !a.batchLock.TryLock() {
		return nodes, ErrBusy
	}
	defer a.batchLock.Unlock()

	a.setRunning(true)
	defer a.setRunning(false)
	return a.engine.Run(ctx, nodes)
}

// Status reports whether a batch is running and the last batch summary.
func (a *App) Status() (bool, *engine.BatchEvent) {
	a.statusMu.RLock()
	defer a.statusMu.RUnlock()
	return a.running, a.last
}

func (a *App) setRunning(v bool) {
	a.statusMu.Lock()
	a.running = v
	a.statusMu.Unlock()
}

type statusObserver struct {
	app  *App
	next engine.Observer
}

func (s *statusObserver) OnNodeResult(ev engine.NodeEvent) {
	if s.next != nil {
		s.next.OnNodeResult(ev)
	}
}

func (s *statusObserver) OnBatchDone(ev engine.BatchEvent) {
	s.app.statusMu.Lock()
	s.app.last = &ev
	s.app.statusMu.Unlock()
	if s.next != nil {
		s.next.OnBatchDone(ev)
	}
}
