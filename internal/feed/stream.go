package feed

import (
	"context"
	"errors"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	logx "flightwatch/pkg/logx"
)

type StreamConfig struct {
	URL              string
	PingInterval     time.Duration
	PongTimeout      time.Duration
	ReconnectWait    time.Duration
	HandshakeTimeout time.Duration
}

func (c *StreamConfig) defaults() {
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = 10 * time.Second
	}
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = 5 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 15 * time.Second
	}
}

// StreamAdapter holds one persistent WebSocket to the push upstream and
// converts flight-plan envelopes into events. Connection loss is never fatal:
// the adapter waits a fixed cooldown and dials again, indefinitely.
type StreamAdapter struct {
	cfg    StreamConfig
	dialer *websocket.Dialer
	log    logx.Logger
}

func NewStreamAdapter(cfg StreamConfig, log logx.Logger) *StreamAdapter {
	cfg.defaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &StreamAdapter{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		log: log.With(logx.String("adapter", "stream")),
	}
}

func (s *StreamAdapter) Name() string { return "feed.stream" }

func (s *StreamAdapter) Run(ctx context.Context, out chan<- Event) error {
	for {
		if err := s.connectAndRead(ctx, out); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warn("stream disconnected, will reconnect",
				logx.Err(err), logx.Duration("wait", s.cfg.ReconnectWait))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.ReconnectWait):
		}
	}
}

func (s *StreamAdapter) connectAndRead(ctx context.Context, out chan<- Event) error {
	conn, _, err := s.dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	s.log.Info("stream connected", logx.String("url", s.cfg.URL))

	// Keep-alive: every ping must be answered within PongTimeout or the
	// next read fails and triggers a reconnect.
	readWindow := s.cfg.PingInterval + s.cfg.PongTimeout
	_ = conn.SetReadDeadline(time.Now().Add(readWindow))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWindow))
	})

	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go func() {
		ticker := time.NewTicker(s.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				// Unblocks the reader so shutdown doesn't wait out the deadline.
				_ = conn.Close()
				return
			case <-ticker.C:
				deadline := time.Now().Add(s.cfg.PongTimeout)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		events, err := DecodeStreamEvents(data)
		if err != nil {
			// One bad frame is dropped; the connection stays up.
			s.log.Debug("stream message dropped", logx.Err(err))
			continue
		}
		for _, ev := range events {
			select {
			case out <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// DecodeStreamEvents parses one inbound frame into zero or more events.
// Envelopes outside the flight-plan allow-list decode to an empty slice with
// no error; malformed frames return an error and should be dropped.
func DecodeStreamEvents(data []byte) ([]Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if !env.IsFlightPlan() {
		return nil, nil
	}
	recs, err := RecordsFromStreamPayload(env.Data)
	if err != nil {
		if errors.Is(err, errNoRecords) {
			return nil, nil
		}
		return nil, err
	}
	events := make([]Event, 0, len(recs))
	for _, rec := range recs {
		if ev, ok := rec.Event(TransportStream, ""); ok {
			events = append(events, ev)
		}
	}
	return events, nil
}
