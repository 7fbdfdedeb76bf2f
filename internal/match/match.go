// Package match selects the tenants subscribed to an event's callsign.
package match

import (
	"sort"
	"strings"

	"flightwatch/internal/feed"
	"flightwatch/internal/storage"
)

// Match pairs a tenant with the prefix that selected it.
type Match struct {
	GuildID int64
	Config  storage.TenantConfig
	Prefix  string
}

// Tenants returns every tenant whose subscription matches the event's
// callsign. Per tenant, prefixes are tried in configured order and the first
// qualifying one wins, so a tenant contributes at most one match. The result
// is sorted by guild id for deterministic dispatch order; matching itself is
// pure and side-effect-free.
func Tenants(ev feed.Event, tenants map[int64]storage.TenantConfig) []Match {
	callsign := ev.MatchCallsign()
	if callsign == "" {
		return nil
	}

	var out []Match
	for guildID, cfg := range tenants {
		for _, prefix := range cfg.Prefixes {
			if prefix == "" {
				continue
			}
			if strings.HasPrefix(callsign, strings.ToUpper(prefix)) {
				out = append(out, Match{GuildID: guildID, Config: cfg, Prefix: prefix})
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GuildID < out[j].GuildID })
	return out
}
