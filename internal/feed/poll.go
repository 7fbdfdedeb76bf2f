package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	logx "flightwatch/pkg/logx"
)

// ErrRateLimited marks an HTTP 429 from the upstream; it is retried with
// exponential backoff, unlike plain transient errors which back off linearly.
var ErrRateLimited = errors.New("upstream rate limited")

type upstreamStatusError struct{ status int }

func (e *upstreamStatusError) Error() string {
	return fmt.Sprintf("upstream status %d", e.status)
}

type PollConfig struct {
	// Feeds maps a feed identity ("main", "event") to its snapshot endpoint.
	Feeds          map[string]string
	Interval       time.Duration
	RetryMax       int
	RetryBase      time.Duration
	RequestTimeout time.Duration
}

func (c *PollConfig) defaults() {
	if c.Interval <= 0 {
		c.Interval = 3 * time.Second
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
}

// PollAdapter periodically fetches full snapshots from each configured feed
// and emits only the entities that newly appeared since the previous tick,
// as determined by the shared Differ.
type PollAdapter struct {
	cfg    PollConfig
	client *http.Client
	log    logx.Logger

	// The differ is owned by the pipeline; feed fetches run concurrently
	// within a tick, so diff application is guarded here.
	diffMu sync.Mutex
	differ *Differ
}

func NewPollAdapter(cfg PollConfig, differ *Differ, log logx.Logger) *PollAdapter {
	cfg.defaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &PollAdapter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout, Transport: tr},
		differ: differ,
		log:    log.With(logx.String("adapter", "poll")),
	}
}

func (p *PollAdapter) Name() string { return "feed.poll" }

func (p *PollAdapter) Run(ctx context.Context, out chan<- Event) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Stable feed order keeps logs and tests deterministic.
	feeds := make([]string, 0, len(p.cfg.Feeds))
	for id := range p.cfg.Feeds {
		feeds = append(feeds, id)
	}
	sort.Strings(feeds)

	for {
		p.tick(ctx, feeds, out)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// tick fetches every feed concurrently, then emits the newly-appeared
// entities. A failed or malformed fetch skips that feed for this tick only.
func (p *PollAdapter) tick(ctx context.Context, feeds []string, out chan<- Event) {
	results := make([][]Record, len(feeds))
	var wg sync.WaitGroup
	for i, id := range feeds {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			recs, err := p.fetchWithRetry(ctx, id, p.cfg.Feeds[id])
			if err != nil {
				if ctx.Err() == nil {
					p.log.Warn("feed fetch skipped for this tick", logx.String("feed", id), logx.Err(err))
				}
				return
			}
			p.diffMu.Lock()
			results[i] = p.differ.Diff(id, recs)
			p.diffMu.Unlock()
		}(i, id)
	}
	wg.Wait()

	for i, id := range feeds {
		for _, rec := range results[i] {
			ev, ok := rec.Event(TransportPoll, id)
			if !ok {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

// fetchWithRetry applies the per-tick retry policy: up to RetryMax attempts,
// exponential backoff (base doubling) on 429, linear backoff (base x attempt)
// on transient transport errors. Exhausting the ceiling skips the tick; it
// never stops the adapter.
func (p *PollAdapter) fetchWithRetry(ctx context.Context, feedID, url string) ([]Record, error) {
	var lastErr error
	for attempt := 1; attempt <= p.cfg.RetryMax; attempt++ {
		recs, err := p.fetchOnce(ctx, url)
		if err == nil {
			return recs, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err

		var delay time.Duration
		switch {
		case errors.Is(err, ErrRateLimited):
			delay = p.cfg.RetryBase << (attempt - 1)
		case isTransient(err):
			delay = p.cfg.RetryBase * time.Duration(attempt)
		default:
			// Malformed body or a hard 4xx: retrying won't help.
			return nil, err
		}
		if attempt == p.cfg.RetryMax {
			break
		}
		p.log.Debug("feed fetch retrying",
			logx.String("feed", feedID), logx.Int("attempt", attempt), logx.Duration("delay", delay), logx.Err(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("gave up after %d attempts: %w", p.cfg.RetryMax, lastErr)
}

func (p *PollAdapter) fetchOnce(ctx context.Context, url string) ([]Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		io.Copy(io.Discard, resp.Body)
		return nil, ErrRateLimited
	default:
		io.Copy(io.Discard, resp.Body)
		return nil, &upstreamStatusError{status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return RecordsFromSnapshot(body)
}

func isTransient(err error) bool {
	var statusErr *upstreamStatusError
	if errors.As(err, &statusErr) {
		return statusErr.status >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// http.Client wraps transport failures in *url.Error which implements
	// net.Error, so anything left is a decode or request-build problem.
	return false
}
