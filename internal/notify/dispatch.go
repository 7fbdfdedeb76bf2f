package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"flightwatch/internal/feed"
	"flightwatch/internal/match"
	"flightwatch/internal/transport"
	logx "flightwatch/pkg/logx"
)

type Config struct {
	RatePerSec  int
	SendTimeout time.Duration
}

// Dispatcher delivers one notification per matched tenant, at most once.
// Fan-out is concurrent; a slow or broken destination only costs its own
// tenant the send, bounded by SendTimeout. There is no retry: delivery
// failures are logged and the event moves on.
type Dispatcher struct {
	client  transport.Client
	limiter *rate.Limiter
	timeout time.Duration
	log     logx.Logger
}

func NewDispatcher(cfg Config, client transport.Client, log logx.Logger) *Dispatcher {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		client: client,
		// Token bucket: burst = rate per sec, so short spikes don't block too hard.
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		timeout: cfg.SendTimeout,
		log:     log.With(logx.String("comp", "dispatch")),
	}
}

// Dispatch fans the event out to every match and waits for all sends to
// settle. Per-tenant failures never propagate to the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, ev feed.Event, matches []match.Match) {
	if len(matches) == 0 {
		return
	}
	var wg sync.WaitGroup
	for _, m := range matches {
		wg.Add(1)
		go func(m match.Match) {
			defer wg.Done()
			d.sendOne(ctx, ev, m)
		}(m)
	}
	wg.Wait()
}

func (d *Dispatcher) sendOne(ctx context.Context, ev feed.Event, m match.Match) {
	// SendTimeout covers the token wait too, so a large fan-out cannot hold
	// the producing task beyond one timeout window.
	sctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.limiter.Wait(sctx); err != nil {
		if ctx.Err() == nil {
			d.log.Warn("rate limit window exceeded, notification skipped",
				logx.Int64("guild", m.GuildID), logx.String("callsign", ev.Callsign))
		}
		return
	}

	n := Render(ev, m.Config)
	err := d.client.Send(sctx, m.Config.DestinationID, n)
	if err == nil {
		d.log.Info("notification sent",
			logx.String("callsign", ev.Callsign),
			logx.String("prefix", m.Prefix),
			logx.Int64("guild", m.GuildID))
		return
	}

	switch {
	case errors.Is(err, transport.ErrNotFound):
		d.log.Warn("destination missing, notification skipped",
			logx.Int64("guild", m.GuildID), logx.Int64("destination", m.Config.DestinationID))
	case errors.Is(err, transport.ErrPermissionDenied):
		d.log.Warn("destination refused send, notification skipped",
			logx.Int64("guild", m.GuildID), logx.Int64("destination", m.Config.DestinationID))
	default:
		d.log.Error("notification delivery failed",
			logx.Int64("guild", m.GuildID), logx.String("callsign", ev.Callsign), logx.Err(err))
	}
}
