package telegram

import (
	"testing"

	"flightwatch/internal/storage"
)

func TestApplyStyle(t *testing.T) {
	t.Parallel()
	cfg := storage.NewTenantConfig(1, 1)

	n, err := applyStyle(&cfg, "color=#FF8800 show_route=off thumbnail=https://example.com/t.png")
	if err != nil {
		t.Fatalf("applyStyle: %v", err)
	}
	if n != 3 {
		t.Fatalf("changed = %d, want 3", n)
	}
	if cfg.Color != 0xFF8800 || cfg.ShowRoute || cfg.Thumbnail != "https://example.com/t.png" {
		t.Fatalf("style not applied: %+v", cfg)
	}
}

func TestApplyStyleTitleConsumesRest(t *testing.T) {
	t.Parallel()
	cfg := storage.NewTenantConfig(1, 1)
	n, err := applyStyle(&cfg, "color=0x00FF00 title=New Flight Plan Filed")
	if err != nil {
		t.Fatalf("applyStyle: %v", err)
	}
	if n != 2 {
		t.Fatalf("changed = %d, want 2", n)
	}
	if cfg.Title != "New Flight Plan Filed" {
		t.Fatalf("Title = %q", cfg.Title)
	}
}

func TestApplyStyleRejectsBadInput(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		payload string
	}{
		{name: "bare token", payload: "color"},
		{name: "unknown key", payload: "shade=dark"},
		{name: "bad color", payload: "color=greenish"},
		{name: "color out of range", payload: "color=1FFFFFF"},
		{name: "bad bool", payload: "show_route=maybe"},
		{name: "bad url", payload: "image=ftp://example.com/x.png"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := storage.NewTenantConfig(1, 1)
			if _, err := applyStyle(&cfg, tt.payload); err == nil {
				t.Fatalf("payload %q accepted", tt.payload)
			}
		})
	}
}

func TestParseColor(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"#00FF00", "0x00FF00", "00ff00"} {
		got, err := parseColor(s)
		if err != nil || got != 0x00FF00 {
			t.Fatalf("parseColor(%q) = %x, %v", s, got, err)
		}
	}
}

func TestParseBool(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"on", "TRUE", "yes", "1"} {
		if v, err := parseBool(s); err != nil || !v {
			t.Fatalf("parseBool(%q) = %v, %v", s, v, err)
		}
	}
	for _, s := range []string{"off", "False", "no", "0"} {
		if v, err := parseBool(s); err != nil || v {
			t.Fatalf("parseBool(%q) = %v, %v", s, v, err)
		}
	}
	if _, err := parseBool("sometimes"); err == nil {
		t.Fatal("expected error")
	}
}

func TestVisibleFields(t *testing.T) {
	t.Parallel()
	cfg := storage.NewTenantConfig(1, 1)
	if got := visibleFields(cfg); len(got) != 8 {
		t.Fatalf("visible = %v, want all 8", got)
	}
	cfg = storage.TenantConfig{}
	if got := visibleFields(cfg); len(got) != 1 || got[0] != "(none)" {
		t.Fatalf("visible = %v, want (none)", got)
	}
}
