package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"flightwatch/internal/feed"
	"flightwatch/internal/notify"
	"flightwatch/internal/storage"
	"flightwatch/internal/transport"
	logx "flightwatch/pkg/logx"
)

type fakeStore struct {
	mu      sync.Mutex
	tenants map[int64]storage.TenantConfig
	failAll bool
}

func (f *fakeStore) All(ctx context.Context) (map[int64]storage.TenantConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, storage.ErrDisabled
	}
	out := make(map[int64]storage.TenantConfig, len(f.tenants))
	for k, v := range f.tenants {
		out[k] = v
	}
	return out, nil
}

func (f *fakeStore) Get(ctx context.Context, guildID int64) (storage.TenantConfig, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tenants[guildID]
	return t, ok, nil
}

func (f *fakeStore) Upsert(ctx context.Context, t storage.TenantConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tenants[t.GuildID] = t
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, guildID int64) error { return nil }
func (f *fakeStore) AppendAudit(ctx context.Context, e storage.AuditEntry) error {
	return nil
}
func (f *fakeStore) PruneAudit(ctx context.Context, olderThan time.Duration) (int64, error) {
	return 0, nil
}
func (f *fakeStore) Close() error { return nil }

type countingClient struct {
	mu   sync.Mutex
	sent []string
	ch   chan struct{}
}

func newCountingClient() *countingClient {
	return &countingClient{ch: make(chan struct{}, 16)}
}

func (c *countingClient) Send(ctx context.Context, destinationID int64, n transport.Notification) error {
	c.mu.Lock()
	c.sent = append(c.sent, n.Body)
	c.mu.Unlock()
	c.ch <- struct{}{}
	return nil
}

func (c *countingClient) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

// replayAdapter emits a fixed event sequence once, then parks until shutdown.
type replayAdapter struct {
	events []feed.Event
}

func (a *replayAdapter) Name() string { return "feed.replay" }

func (a *replayAdapter) Run(ctx context.Context, out chan<- feed.Event) error {
	for _, ev := range a.events {
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

func runPipeline(t *testing.T, store storage.Store, client transport.Client, events []feed.Event) *countingClient {
	t.Helper()
	cc, ok := client.(*countingClient)
	if !ok {
		t.Fatal("test client must be countingClient")
	}

	d := notify.NewDispatcher(notify.Config{RatePerSec: 100, SendTimeout: time.Second}, client, logx.Nop())
	p := New(Config{DedupCapacity: 8}, store, d, logx.Nop())
	p.AddAdapter(&replayAdapter{events: events})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()

	// Wait for the first delivery, then allow any (incorrect) extras to land.
	select {
	case <-cc.ch:
	case <-time.After(5 * time.Second):
		cancel()
		<-done
		t.Fatal("timed out waiting for a delivery")
	}
	time.Sleep(100 * time.Millisecond)

	cancel()
	<-done
	return cc
}

func TestPipelineDeduplicatesStreamEvents(t *testing.T) {
	t.Parallel()
	store := &fakeStore{tenants: map[int64]storage.TenantConfig{
		1: watcher(1, "DAL"),
	}}
	ev := feed.Event{Callsign: "DAL123", PilotName: "p1", Departure: "IRFD", Arrival: "IGRV", Transport: feed.TransportStream}

	client := runPipeline(t, store, newCountingClient(), []feed.Event{ev, ev, ev})
	if got := client.count(); got != 1 {
		t.Fatalf("deliveries = %d, want 1 for a repeated stream event", got)
	}
}

func TestPipelinePollEventsBypassDedup(t *testing.T) {
	t.Parallel()
	store := &fakeStore{tenants: map[int64]storage.TenantConfig{
		1: watcher(1, "DAL"),
	}}
	// Identical poll events notify each time; the snapshot differ upstream
	// already decided they are distinct appearances.
	ev := feed.Event{Callsign: "DAL123", Transport: feed.TransportPoll, Feed: "main"}

	client := runPipeline(t, store, newCountingClient(), []feed.Event{ev, ev})
	if got := client.count(); got != 2 {
		t.Fatalf("deliveries = %d, want 2 for repeated poll appearances", got)
	}
}

func TestPipelineSkipsUnmatchedAndEmptyCallsigns(t *testing.T) {
	t.Parallel()
	store := &fakeStore{tenants: map[int64]storage.TenantConfig{
		1: watcher(1, "DAL"),
	}}
	// An event without a callsign, one with no subscriber, a delivery, its
	// duplicate, and a second distinct delivery.
	events := []feed.Event{
		{Transport: feed.TransportStream},
		{Callsign: "UAL456", Transport: feed.TransportStream},
		{Callsign: "DAL123", Transport: feed.TransportStream},
		{Callsign: "DAL123", Transport: feed.TransportStream},
		{Callsign: "DAL999", Transport: feed.TransportStream},
	}

	client := runPipeline(t, store, newCountingClient(), events)
	if got := client.count(); got != 2 {
		t.Fatalf("deliveries = %d, want 2", got)
	}
}

func TestPipelineFallsBackToLastTenantSnapshot(t *testing.T) {
	t.Parallel()
	store := &fakeStore{tenants: map[int64]storage.TenantConfig{
		1: watcher(1, "DAL"),
	}}

	cc := newCountingClient()
	d := notify.NewDispatcher(notify.Config{RatePerSec: 100, SendTimeout: time.Second}, cc, logx.Nop())
	p := New(Config{}, store, d, logx.Nop())

	ctx := context.Background()
	p.process(ctx, feed.Event{Callsign: "DAL123", Transport: feed.TransportStream})
	<-cc.ch

	// Store goes dark; matching continues on the last-known snapshot.
	store.mu.Lock()
	store.failAll = true
	store.mu.Unlock()

	p.process(ctx, feed.Event{Callsign: "DAL999", Transport: feed.TransportStream})
	<-cc.ch
	if got := cc.count(); got != 2 {
		t.Fatalf("deliveries = %d, want 2", got)
	}
}

func watcher(guildID int64, prefixes ...string) storage.TenantConfig {
	t := storage.NewTenantConfig(guildID, guildID*100)
	t.Prefixes = prefixes
	return t
}
