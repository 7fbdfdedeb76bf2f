package config

// Config is the on-disk configuration. All durations are Go duration strings
// (e.g. "500ms", "3s", "1m").
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Upstream UpstreamConfig `json:"upstream"`
	Dispatch DispatchConfig `json:"dispatch,omitempty"`
	Storage  StorageConfig  `json:"storage"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	AdminUserIDs []int64 `json:"admin_user_ids,omitempty"`
	// PollTimeout is the command long-poll timeout.
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// UpstreamConfig describes the event sources. Either transport may be
// disabled; with both disabled the pipeline has nothing to do and startup
// fails validation.
type UpstreamConfig struct {
	Poll   PollConfig   `json:"poll,omitempty"`
	Stream StreamConfig `json:"stream,omitempty"`
}

type PollConfig struct {
	Enabled bool `json:"enabled"`
	// Feeds maps a feed identity ("main", "event") to its snapshot URL.
	Feeds          map[string]string `json:"feeds,omitempty"`
	Interval       string            `json:"interval,omitempty"`
	RetryMax       int               `json:"retry_max,omitempty"`
	RetryBase      string            `json:"retry_base,omitempty"`
	RequestTimeout string            `json:"request_timeout,omitempty"`
}

type StreamConfig struct {
	Enabled       bool   `json:"enabled"`
	URL           string `json:"url,omitempty"`
	PingInterval  string `json:"ping_interval,omitempty"`
	PongTimeout   string `json:"pong_timeout,omitempty"`
	ReconnectWait string `json:"reconnect_wait,omitempty"`
}

type DispatchConfig struct {
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	SendTimeout   string `json:"send_timeout,omitempty"`
	DedupCapacity int    `json:"dedup_capacity,omitempty"`
}

type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
	// AuditRetention bounds how long configuration audit rows are kept.
	AuditRetention string `json:"audit_retention,omitempty"`
	// MaintenanceCron schedules the audit prune (standard 5-field cron).
	MaintenanceCron string `json:"maintenance_cron,omitempty"`
}
