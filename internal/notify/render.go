// Package notify renders per-tenant notifications and fans them out to
// destinations, isolating each tenant's failures.
package notify

import (
	"flightwatch/internal/feed"
	"flightwatch/internal/storage"
	"flightwatch/internal/transport"
)

const footerText = "ATC24 Flight Plan Monitor"

// Render builds the tenant-customized notification for an event. A field is
// emitted only when the tenant's visibility flag is set AND the event carries
// a non-empty value; absent data is omitted, never rendered blank.
func Render(ev feed.Event, cfg storage.TenantConfig) transport.Notification {
	n := transport.Notification{
		Title:     cfg.Title,
		Body:      "Flight " + ev.Callsign + " has filed a flight plan",
		Color:     cfg.Color,
		Thumbnail: cfg.Thumbnail,
		Image:     cfg.Image,
		Footer:    footerText,
	}
	if n.Title == "" {
		n.Title = storage.DefaultTitle
	}

	add := func(show bool, name, value string, inline bool) {
		if show && value != "" {
			n.Fields = append(n.Fields, transport.Field{Name: name, Value: value, Inline: inline})
		}
	}
	add(cfg.ShowCallsign, "Callsign", ev.Callsign, true)
	add(cfg.ShowPilot, "Pilot", ev.PilotName, true)
	add(cfg.ShowAircraft, "Aircraft", ev.AircraftType, true)
	add(cfg.ShowDeparture, "Departure", ev.Departure, true)
	add(cfg.ShowArrival, "Arrival", ev.Arrival, true)
	if ev.FlightLevel != "" {
		add(cfg.ShowFlightLevel, "Flight Level", "FL"+ev.FlightLevel, true)
	}
	add(cfg.ShowFlightRules, "Flight Rules", ev.FlightRules, true)
	add(cfg.ShowRoute, "Route", ev.Route, false)

	return n
}
