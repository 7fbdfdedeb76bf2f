package match

import (
	"testing"

	"flightwatch/internal/feed"
	"flightwatch/internal/storage"
)

func tenant(guildID int64, prefixes ...string) storage.TenantConfig {
	t := storage.NewTenantConfig(guildID, guildID)
	t.Prefixes = prefixes
	return t
}

func TestTenantsFirstPrefixWins(t *testing.T) {
	t.Parallel()
	ev := feed.Event{Callsign: "DAL123"}

	got := Tenants(ev, map[int64]storage.TenantConfig{
		1: tenant(1, "DAL", "D"),
	})
	if len(got) != 1 || got[0].Prefix != "DAL" {
		t.Fatalf("matches = %+v, want single match on DAL", got)
	}

	// Same prefixes, reversed order: the earlier one still wins.
	got = Tenants(ev, map[int64]storage.TenantConfig{
		1: tenant(1, "D", "DAL"),
	})
	if len(got) != 1 || got[0].Prefix != "D" {
		t.Fatalf("matches = %+v, want single match on D", got)
	}
}

func TestTenantsCaseInsensitive(t *testing.T) {
	t.Parallel()
	got := Tenants(feed.Event{Callsign: "dal123"}, map[int64]storage.TenantConfig{
		1: tenant(1, "DAL"),
	})
	if len(got) != 1 {
		t.Fatalf("lowercase callsign should match, got %+v", got)
	}
	got = Tenants(feed.Event{Callsign: "DAL123"}, map[int64]storage.TenantConfig{
		1: tenant(1, "dal"),
	})
	if len(got) != 1 {
		t.Fatalf("lowercase prefix should match, got %+v", got)
	}
}

func TestTenantsSortedAndIndependent(t *testing.T) {
	t.Parallel()
	tenants := map[int64]storage.TenantConfig{
		30: tenant(30, "DAL"),
		10: tenant(10, "D"),
		20: tenant(20, "UAL"), // not matching
	}
	got := Tenants(feed.Event{Callsign: "DAL123"}, tenants)
	if len(got) != 2 {
		t.Fatalf("matches = %d, want 2", len(got))
	}
	if got[0].GuildID != 10 || got[1].GuildID != 30 {
		t.Fatalf("order = [%d %d], want [10 30]", got[0].GuildID, got[1].GuildID)
	}
}

func TestTenantsEdgeCases(t *testing.T) {
	t.Parallel()
	if got := Tenants(feed.Event{}, map[int64]storage.TenantConfig{1: tenant(1, "DAL")}); got != nil {
		t.Fatalf("empty callsign matched: %+v", got)
	}
	if got := Tenants(feed.Event{Callsign: "DAL123"}, map[int64]storage.TenantConfig{1: tenant(1)}); got != nil {
		t.Fatalf("tenant without prefixes matched: %+v", got)
	}
	if got := Tenants(feed.Event{Callsign: "DAL123"}, map[int64]storage.TenantConfig{1: tenant(1, "")}); got != nil {
		t.Fatalf("empty prefix matched: %+v", got)
	}
	if got := Tenants(feed.Event{Callsign: "DAL123"}, nil); got != nil {
		t.Fatalf("nil tenant map matched: %+v", got)
	}
}
