package config

import (
	"fmt"
	"strings"
	"time"
)

// Durations is the resolved view of every duration string in the config,
// with defaults applied where a field is blank or zero.
type Durations struct {
	TelegramPollTimeout time.Duration

	PollInterval       time.Duration
	PollRetryBase      time.Duration
	PollRequestTimeout time.Duration

	StreamPingInterval  time.Duration
	StreamPongTimeout   time.Duration
	StreamReconnectWait time.Duration

	DispatchSendTimeout time.Duration

	StorageBusyTimeout time.Duration
	AuditRetention     time.Duration
}

// Durations parses all duration fields in one pass. Validate calls this, so
// a config with a bad duration string never loads.
func (c *Config) Durations() (Durations, error) {
	var d Durations
	fields := []struct {
		path string
		raw  string
		def  time.Duration
		dst  *time.Duration
	}{
		{"telegram.poll_timeout", c.Telegram.PollTimeout, 10 * time.Second, &d.TelegramPollTimeout},
		{"upstream.poll.interval", c.Upstream.Poll.Interval, 3 * time.Second, &d.PollInterval},
		{"upstream.poll.retry_base", c.Upstream.Poll.RetryBase, time.Second, &d.PollRetryBase},
		{"upstream.poll.request_timeout", c.Upstream.Poll.RequestTimeout, 10 * time.Second, &d.PollRequestTimeout},
		{"upstream.stream.ping_interval", c.Upstream.Stream.PingInterval, 30 * time.Second, &d.StreamPingInterval},
		{"upstream.stream.pong_timeout", c.Upstream.Stream.PongTimeout, 10 * time.Second, &d.StreamPongTimeout},
		{"upstream.stream.reconnect_wait", c.Upstream.Stream.ReconnectWait, 5 * time.Second, &d.StreamReconnectWait},
		{"dispatch.send_timeout", c.Dispatch.SendTimeout, 10 * time.Second, &d.DispatchSendTimeout},
		{"storage.busy_timeout", c.Storage.BusyTimeout, 5 * time.Second, &d.StorageBusyTimeout},
		{"storage.audit_retention", c.Storage.AuditRetention, 30 * 24 * time.Hour, &d.AuditRetention},
	}
	for _, f := range fields {
		v, err := parseDuration(f.path, f.raw, f.def)
		if err != nil {
			return Durations{}, err
		}
		*f.dst = v
	}
	return d, nil
}

func parseDuration(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	if v == 0 {
		return def, nil
	}
	return v, nil
}
