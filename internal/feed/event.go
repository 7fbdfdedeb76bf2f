package feed

import "strings"

// Transport identifies how an event reached us.
type Transport string

const (
	// TransportPoll events come from periodic snapshot fetches; their identity
	// is snapshot-set membership, handled by the Differ before emission.
	TransportPoll Transport = "poll"
	// TransportStream events are discrete occurrences pushed over the wire;
	// they are deduplicated by DedupKey downstream.
	TransportStream Transport = "stream"
)

// Event is a normalized flight-plan occurrence, independent of the upstream
// transport that produced it. Callsign is always set; every other field is
// optional and an empty value must never surface in a rendered notification.
type Event struct {
	Callsign     string
	PilotName    string
	AircraftType string
	Departure    string
	Arrival      string
	FlightLevel  string
	FlightRules  string
	Route        string
	RealCallsign string

	// Extra carries transport-specific fields (altitude, speed, isOnGround, ...)
	// that vary per upstream and must stay forward-compatible.
	Extra map[string]any

	Transport Transport
	// Feed labels the upstream feed identity for poll events ("main", "event").
	Feed string
}

// DedupKey identifies "the same occurrence" for stream events: two events with
// equal keys must not both notify. Poll events never consult this key; their
// identity is the snapshot diff.
func (e Event) DedupKey() string {
	return e.Callsign + "|" + e.PilotName + "|" + e.Departure + "|" + e.Arrival
}

// MatchCallsign returns the callsign as used for prefix matching.
func (e Event) MatchCallsign() string {
	return strings.ToUpper(e.Callsign)
}
