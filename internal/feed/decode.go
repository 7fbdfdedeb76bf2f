package feed

import (
	"errors"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
)

// Envelope is the wire frame pushed by the stream upstream: a type
// discriminator plus an opaque payload.
type Envelope struct {
	Type string          `json:"t"`
	Data json.RawMessage `json:"d"`
}

// Only these envelope types carry flight plans; everything else
// (controller updates, ATIS, metar, ...) is silently ignored.
var flightPlanTypes = map[string]bool{
	"FLIGHT_PLAN":       true,
	"EVENT_FLIGHT_PLAN": true,
}

// IsFlightPlan reports whether the envelope's discriminator is on the
// flight-plan allow-list.
func (e Envelope) IsFlightPlan() bool { return flightPlanTypes[e.Type] }

// wrapperKeys are probed, in order, when a stream payload is an object that
// is not itself a flight-plan record.
var wrapperKeys = []string{"flightPlan", "data", "flight_plan"}

// identifierKeys are probed, in order, to extract a snapshot entity identity.
var identifierKeys = []string{"callsign", "call_sign", "flight_id"}

var errNoRecords = errors.New("no flight plan records in payload")

// Record is one raw flight-plan object as decoded from the wire.
type Record map[string]any

// RecordsFromStreamPayload normalizes the payload of a flight-plan envelope.
// Accepted shapes, tried in order: an array of records, a single record
// (has "callsign"), or a wrapper object holding either under a known key.
// Anything else fails closed.
func RecordsFromStreamPayload(data []byte) ([]Record, error) {
	var asList []Record
	if err := json.Unmarshal(data, &asList); err == nil {
		return nonEmpty(asList)
	}

	var asObj Record
	if err := json.Unmarshal(data, &asObj); err != nil {
		return nil, fmt.Errorf("stream payload: %w", err)
	}
	if _, ok := asObj["callsign"]; ok {
		return []Record{asObj}, nil
	}

	for _, key := range wrapperKeys {
		inner, ok := asObj[key]
		if !ok {
			continue
		}
		switch v := inner.(type) {
		case []any:
			out := make([]Record, 0, len(v))
			for _, item := range v {
				if m, ok := item.(map[string]any); ok {
					out = append(out, Record(m))
				}
			}
			return nonEmpty(out)
		case map[string]any:
			if _, ok := v["callsign"]; ok {
				return []Record{Record(v)}, nil
			}
		}
		break
	}
	return nil, errNoRecords
}

// RecordsFromSnapshot normalizes a poll-feed response body. Accepted shapes:
// a JSON array of records, or an object keyed by callsign whose values are
// records lacking only the callsign (re-injected from the key). A JSON null
// is rejected: committing it as an empty snapshot would reset the feed's
// baseline and re-report the whole standing population on the next fetch.
func RecordsFromSnapshot(body []byte) ([]Record, error) {
	var asList []Record
	if err := json.Unmarshal(body, &asList); err == nil {
		if asList == nil {
			return nil, errors.New("snapshot body: null")
		}
		return asList, nil
	}

	var asMap map[string]Record
	if err := json.Unmarshal(body, &asMap); err != nil {
		return nil, fmt.Errorf("snapshot body: %w", err)
	}
	if asMap == nil {
		return nil, errors.New("snapshot body: null")
	}
	out := make([]Record, 0, len(asMap))
	for callsign, rec := range asMap {
		if rec == nil {
			rec = Record{}
		}
		if _, ok := rec["callsign"]; !ok {
			rec["callsign"] = callsign
		}
		out = append(out, rec)
	}
	return out, nil
}

// Identifier extracts the entity identity used by the snapshot differ.
// Records lacking all identifier keys return ok=false and are excluded
// from snapshots entirely.
func (r Record) Identifier() (string, bool) {
	for _, key := range identifierKeys {
		if v := r.str(key); v != "" {
			return v, true
		}
	}
	return "", false
}

// Event converts a raw record into the normalized model. Records without a
// callsign are rejected (ok=false) rather than producing a partial event.
func (r Record) Event(transport Transport, feedID string) (Event, bool) {
	callsign, ok := r.Identifier()
	if !ok {
		return Event{}, false
	}

	ev := Event{
		Callsign:     callsign,
		PilotName:    r.str("robloxName"),
		AircraftType: r.str("aircraft"),
		Departure:    r.str("departing"),
		Arrival:      r.str("arriving"),
		FlightLevel:  r.str("flightlevel"),
		FlightRules:  r.str("flightrules"),
		Route:        r.str("route"),
		RealCallsign: r.str("realcallsign"),
		Transport:    transport,
		Feed:         feedID,
	}
	// The upstream uses "N/A" as an explicit no-route marker.
	if ev.Route == "N/A" {
		ev.Route = ""
	}

	for k, v := range r {
		switch k {
		case "callsign", "call_sign", "flight_id", "robloxName", "aircraft",
			"departing", "arriving", "flightlevel", "flightrules", "route", "realcallsign":
		default:
			if ev.Extra == nil {
				ev.Extra = make(map[string]any)
			}
			ev.Extra[k] = v
		}
	}
	return ev, true
}

func (r Record) str(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		// flightlevel arrives as a bare number on some feeds.
		return trimFloat(s)
	default:
		return ""
	}
}

func trimFloat(f float64) string {
	s := fmt.Sprintf("%g", f)
	return s
}

func nonEmpty(recs []Record) ([]Record, error) {
	if len(recs) == 0 {
		return nil, errNoRecords
	}
	return recs, nil
}
