package storage

import (
	"errors"
	"strings"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Appearance defaults matching the original deployment.
const (
	DefaultColor = 0x00FF00
	DefaultTitle = "✈️ New Flight Plan Filed"
)

// TenantConfig is one subscribing server's notification settings. The core
// pipeline only ever reads these; mutations come from the command layer.
type TenantConfig struct {
	GuildID       int64
	DestinationID int64

	// Prefixes are matched case-insensitively against event callsigns,
	// in insertion order.
	Prefixes []string

	Color     int
	Title     string
	Thumbnail string
	Image     string

	ShowCallsign    bool
	ShowPilot       bool
	ShowAircraft    bool
	ShowDeparture   bool
	ShowArrival     bool
	ShowFlightLevel bool
	ShowFlightRules bool
	ShowRoute       bool
}

// NewTenantConfig returns a config with default appearance and all fields visible.
func NewTenantConfig(guildID, destinationID int64) TenantConfig {
	return TenantConfig{
		GuildID:         guildID,
		DestinationID:   destinationID,
		Color:           DefaultColor,
		Title:           DefaultTitle,
		ShowCallsign:    true,
		ShowPilot:       true,
		ShowAircraft:    true,
		ShowDeparture:   true,
		ShowArrival:     true,
		ShowFlightLevel: true,
		ShowFlightRules: true,
		ShowRoute:       true,
	}
}

// HasPrefix reports whether prefix is already subscribed (case-insensitive).
func (t TenantConfig) HasPrefix(prefix string) bool {
	for _, p := range t.Prefixes {
		if strings.EqualFold(p, prefix) {
			return true
		}
	}
	return false
}

// AuditEntry records a configuration command.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At       time.Time
	ActorID  int64
	GuildID  int64
	Action   string
	Target   string
	OK       bool
	Error    string
	TookMS   int64
	MetaJSON string
}
