package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"flightwatch/internal/storage"
	logx "flightwatch/pkg/logx"
)

const usageText = `Flight plan monitoring commands:
/watch PREFIX - notify this chat about callsigns starting with PREFIX
/unwatch PREFIX - stop watching PREFIX
/style key=value ... - tune appearance (color=#00FF00, thumbnail=URL, image=URL, show_route=off, ..., title=... last)
/status - show this chat's configuration`

func (a *Adapter) registerCommands() {
	a.bot.Handle("/start", func(c tele.Context) error { return c.Send(usageText) })
	a.bot.Handle("/help", func(c tele.Context) error { return c.Send(usageText) })
	a.bot.Handle("/watch", a.guarded("watch", a.handleWatch))
	a.bot.Handle("/unwatch", a.guarded("unwatch", a.handleUnwatch))
	a.bot.Handle("/style", a.guarded("style", a.handleStyle))
	a.bot.Handle("/status", a.guarded("status", a.handleStatus))
}

// guarded wraps a handler with the admin check and an audit record.
func (a *Adapter) guarded(action string, fn func(c tele.Context) error) tele.HandlerFunc {
	return func(c tele.Context) error {
		if !a.isAdmin(c) {
			return c.Send("You need to be a chat administrator to use this command.")
		}
		start := time.Now()
		err := fn(c)

		entry := storage.AuditEntry{
			ActorID: c.Sender().ID,
			GuildID: c.Chat().ID,
			Action:  action,
			Target:  strings.TrimSpace(c.Message().Payload),
			OK:      err == nil,
			TookMS:  time.Since(start).Milliseconds(),
		}
		if err != nil {
			entry.Error = err.Error()
		}
		actx, cancel := context.WithTimeout(context.Background(), time.Second)
		if aerr := a.store.AppendAudit(actx, entry); aerr != nil {
			a.log.Debug("audit append failed", logx.Err(aerr))
		}
		cancel()
		return err
	}
}

func (a *Adapter) isAdmin(c tele.Context) bool {
	sender := c.Sender()
	if sender == nil {
		return false
	}
	for _, id := range a.cfg.AdminUserIDs {
		if id == sender.ID {
			return true
		}
	}
	chat := c.Chat()
	if chat == nil {
		return false
	}
	if chat.Type == tele.ChatPrivate {
		return true
	}
	member, err := a.bot.ChatMemberOf(chat, sender)
	if err != nil {
		a.log.Debug("admin lookup failed", logx.Int64("chat", chat.ID), logx.Err(err))
		return false
	}
	return member.Role == tele.Creator || member.Role == tele.Administrator
}

func (a *Adapter) handleWatch(c tele.Context) error {
	prefix := strings.ToUpper(strings.TrimSpace(c.Message().Payload))
	if len(prefix) < 2 {
		return c.Send("Please provide a valid callsign prefix (at least 2 characters), e.g. /watch DAL")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	chatID := c.Chat().ID
	t, ok, err := a.store.Get(ctx, chatID)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !ok {
		t = storage.NewTenantConfig(chatID, chatID)
	}
	if !t.HasPrefix(prefix) {
		t.Prefixes = append(t.Prefixes, prefix)
	}
	if err := a.store.Upsert(ctx, t); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	return c.Send(fmt.Sprintf("Now watching callsign prefix %s.\nAll watched prefixes: %s",
		prefix, strings.Join(t.Prefixes, ", ")))
}

func (a *Adapter) handleUnwatch(c tele.Context) error {
	prefix := strings.ToUpper(strings.TrimSpace(c.Message().Payload))
	if prefix == "" {
		return c.Send("Usage: /unwatch PREFIX")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	chatID := c.Chat().ID
	t, ok, err := a.store.Get(ctx, chatID)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !ok || !t.HasPrefix(prefix) {
		return c.Send(fmt.Sprintf("Prefix %s is not being watched.", prefix))
	}

	kept := t.Prefixes[:0]
	for _, p := range t.Prefixes {
		if !strings.EqualFold(p, prefix) {
			kept = append(kept, p)
		}
	}
	t.Prefixes = kept
	if err := a.store.Upsert(ctx, t); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	if len(t.Prefixes) == 0 {
		return c.Send(fmt.Sprintf("Removed %s. No prefixes are being watched now.", prefix))
	}
	return c.Send(fmt.Sprintf("Removed %s. Remaining prefixes: %s", prefix, strings.Join(t.Prefixes, ", ")))
}

func (a *Adapter) handleStyle(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	chatID := c.Chat().ID
	t, ok, err := a.store.Get(ctx, chatID)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !ok {
		return c.Send("No monitoring configuration found for this chat. Use /watch first.")
	}

	payload := strings.TrimSpace(c.Message().Payload)
	if payload == "" {
		return c.Send("Usage: /style key=value ...\nKeys: color, title, thumbnail, image, show_callsign, show_pilot, show_aircraft, show_departure, show_arrival, show_flightlevel, show_flightrules, show_route")
	}
	changed, err := applyStyle(&t, payload)
	if err != nil {
		return c.Send(err.Error())
	}
	if changed == 0 {
		return c.Send("No recognized style keys provided.")
	}

	if err := a.store.Upsert(ctx, t); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return c.Send(fmt.Sprintf("Updated %d style setting(s).", changed))
}

func (a *Adapter) handleStatus(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	t, ok, err := a.store.Get(ctx, c.Chat().ID)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !ok {
		return c.Send("No monitoring configuration found for this chat. Use /watch first.")
	}

	prefixes := "(none)"
	if len(t.Prefixes) > 0 {
		prefixes = strings.Join(t.Prefixes, ", ")
	}
	visible := visibleFields(t)
	return c.Send(fmt.Sprintf("Watched prefixes: %s\nTitle: %s\nColor: #%06x\nVisible fields: %s",
		prefixes, t.Title, t.Color, strings.Join(visible, ", ")))
}

// applyStyle mutates t from "key=value" tokens. A "title=" token consumes the
// rest of the payload, so it must come last.
func applyStyle(t *storage.TenantConfig, payload string) (int, error) {
	changed := 0
	rest := payload
	for rest != "" {
		if strings.HasPrefix(rest, "title=") {
			t.Title = strings.TrimSpace(strings.TrimPrefix(rest, "title="))
			changed++
			break
		}
		tok := rest
		if i := strings.IndexByte(rest, ' '); i >= 0 {
			tok, rest = rest[:i], strings.TrimSpace(rest[i+1:])
		} else {
			rest = ""
		}
		key, value, ok := strings.Cut(tok, "=")
		if !ok {
			return changed, fmt.Errorf("invalid token %q: expected key=value", tok)
		}
		key = strings.ToLower(key)
		switch key {
		case "color":
			col, err := parseColor(value)
			if err != nil {
				return changed, err
			}
			t.Color = col
		case "thumbnail":
			if err := checkURL(value); err != nil {
				return changed, fmt.Errorf("thumbnail: %w", err)
			}
			t.Thumbnail = value
		case "image":
			if err := checkURL(value); err != nil {
				return changed, fmt.Errorf("image: %w", err)
			}
			t.Image = value
		default:
			flag, ok := visibilityFlag(t, key)
			if !ok {
				return changed, fmt.Errorf("unknown style key %q", key)
			}
			b, err := parseBool(value)
			if err != nil {
				return changed, fmt.Errorf("%s: %w", key, err)
			}
			*flag = b
		}
		changed++
	}
	return changed, nil
}

func visibilityFlag(t *storage.TenantConfig, key string) (*bool, bool) {
	switch key {
	case "show_callsign":
		return &t.ShowCallsign, true
	case "show_pilot":
		return &t.ShowPilot, true
	case "show_aircraft":
		return &t.ShowAircraft, true
	case "show_departure":
		return &t.ShowDeparture, true
	case "show_arrival":
		return &t.ShowArrival, true
	case "show_flightlevel":
		return &t.ShowFlightLevel, true
	case "show_flightrules":
		return &t.ShowFlightRules, true
	case "show_route":
		return &t.ShowRoute, true
	default:
		return nil, false
	}
}

func visibleFields(t storage.TenantConfig) []string {
	var out []string
	for _, f := range []struct {
		name string
		on   bool
	}{
		{"callsign", t.ShowCallsign},
		{"pilot", t.ShowPilot},
		{"aircraft", t.ShowAircraft},
		{"departure", t.ShowDeparture},
		{"arrival", t.ShowArrival},
		{"flight level", t.ShowFlightLevel},
		{"flight rules", t.ShowFlightRules},
		{"route", t.ShowRoute},
	} {
		if f.on {
			out = append(out, f.name)
		}
	}
	if len(out) == 0 {
		out = []string{"(none)"}
	}
	return out
}

func parseColor(s string) (int, error) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(s, "#"), "0x"))
	n, err := strconv.ParseInt(s, 16, 32)
	if err != nil || n < 0 || n > 0xFFFFFF {
		return 0, fmt.Errorf("invalid color %q: use hex like #00FF00", s)
	}
	return int(n), nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid value %q: use on/off", s)
	}
}

func checkURL(s string) error {
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return fmt.Errorf("URL must start with http:// or https://")
	}
	return nil
}
