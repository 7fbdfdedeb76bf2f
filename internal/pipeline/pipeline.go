// Package pipeline wires ingestion adapters through dedup, matching and
// dispatch, and supervises their lifecycles.
package pipeline

import (
	"context"
	"time"

	"flightwatch/internal/feed"
	"flightwatch/internal/match"
	"flightwatch/internal/notify"
	"flightwatch/internal/runtime/supervisor"
	"flightwatch/internal/storage"
	logx "flightwatch/pkg/logx"
)

type Config struct {
	DedupCapacity int
	// EventBuffer bounds the adapter->pipeline channel.
	EventBuffer int
}

// Pipeline owns the shared mutable state of the core (dedup cache, snapshot
// differ, last-known tenant snapshot) and runs one supervised task per
// adapter. Downstream processing is serialized on a single consumer, which is
// what makes the unsynchronized dedup cache safe.
type Pipeline struct {
	cfg        Config
	store      storage.Store
	dispatcher *notify.Dispatcher
	log        logx.Logger

	dedup  *feed.DedupCache
	differ *feed.Differ

	adapters []feed.Adapter

	// Fallback when the store read fails mid-run; matching continues on the
	// last snapshot rather than crashing or going dark.
	lastTenants map[int64]storage.TenantConfig
}

func New(cfg Config, store storage.Store, dispatcher *notify.Dispatcher, log logx.Logger) *Pipeline {
	if cfg.DedupCapacity <= 0 {
		cfg.DedupCapacity = feed.DefaultDedupCapacity
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Pipeline{
		cfg:        cfg,
		store:      store,
		dispatcher: dispatcher,
		log:        log.With(logx.String("comp", "pipeline")),
		dedup:      feed.NewDedupCache(cfg.DedupCapacity),
		differ:     feed.NewDiffer(),
	}
}

// Differ exposes the per-feed snapshot state for the poll adapter.
func (p *Pipeline) Differ() *feed.Differ { return p.differ }

func (p *Pipeline) AddAdapter(a feed.Adapter) {
	if a != nil {
		p.adapters = append(p.adapters, a)
	}
}

// Run blocks until ctx is canceled. Each adapter runs under the supervisor
// with restart backoff, so a broken adapter loop self-heals without taking
// the pipeline down.
func (p *Pipeline) Run(ctx context.Context) error {
	events := make(chan feed.Event, p.cfg.EventBuffer)

	sup := supervisor.New(ctx,
		supervisor.WithLogger(p.log),
		supervisor.WithCancelOnError(false),
	)
	for _, a := range p.adapters {
		a := a
		sup.GoRestart(a.Name(), func(c context.Context) error {
			return a.Run(c, events)
		}, supervisor.WithStopOnCleanExit(false))
	}
	p.log.Info("pipeline started", logx.Int("adapters", len(p.adapters)))

	for {
		select {
		case <-ctx.Done():
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := sup.Stop(stopCtx)
			cancel()
			return err
		case ev := <-events:
			p.process(ctx, ev)
		}
	}
}

// process runs one event through dedup -> match -> dispatch. Stream events
// are deduplicated by composite key; poll events already went through the
// snapshot differ, which is their notion of identity, so they bypass the
// cache.
func (p *Pipeline) process(ctx context.Context, ev feed.Event) {
	if ev.Callsign == "" {
		return
	}
	if ev.Transport == feed.TransportStream {
		key := ev.DedupKey()
		if p.dedup.Seen(key) {
			return
		}
		p.dedup.Record(key)
	}

	tenants := p.tenantSnapshot(ctx)
	matches := match.Tenants(ev, tenants)
	if len(matches) == 0 {
		return
	}
	p.log.Info("new flight plan",
		logx.String("callsign", ev.Callsign),
		logx.String("transport", string(ev.Transport)),
		logx.Int("tenants", len(matches)))
	p.dispatcher.Dispatch(ctx, ev, matches)
}

// tenantSnapshot re-reads the tenant mapping so configuration changes take
// effect without restart. A failed read falls back to the last-known snapshot.
func (p *Pipeline) tenantSnapshot(ctx context.Context) map[int64]storage.TenantConfig {
	rctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	tenants, err := p.store.All(rctx)
	if err != nil {
		p.log.Warn("tenant config read failed, using last-known snapshot", logx.Err(err))
		return p.lastTenants
	}
	p.lastTenants = tenants
	return tenants
}
