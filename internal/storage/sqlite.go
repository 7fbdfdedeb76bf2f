package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	logx "flightwatch/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const tenantColumns = `guild_id, destination_id, prefixes, color, title, thumbnail, image,
	show_callsign, show_pilot, show_aircraft, show_departure, show_arrival,
	show_flightlevel, show_flightrules, show_route`

func (s *sqliteStore) All(ctx context.Context) (map[int64]TenantConfig, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+tenantColumns+` FROM tenants`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]TenantConfig)
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out[t.GuildID] = t
	}
	return out, rows.Err()
}

func (s *sqliteStore) Get(ctx context.Context, guildID int64) (TenantConfig, bool, error) {
	if s == nil || s.db == nil {
		return TenantConfig{}, false, ErrDisabled
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE guild_id = ?`, guildID)
	t, err := scanTenant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return TenantConfig{}, false, nil
	}
	if err != nil {
		return TenantConfig{}, false, err
	}
	return t, true, nil
}

func (s *sqliteStore) Upsert(ctx context.Context, t TenantConfig) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	prefixes, err := json.Marshal(t.Prefixes)
	if err != nil {
		return err
	}
	if t.Title == "" {
		t.Title = DefaultTitle
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tenants (`+tenantColumns+`, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?, strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		ON CONFLICT(guild_id) DO UPDATE SET
			destination_id=excluded.destination_id,
			prefixes=excluded.prefixes,
			color=excluded.color,
			title=excluded.title,
			thumbnail=excluded.thumbnail,
			image=excluded.image,
			show_callsign=excluded.show_callsign,
			show_pilot=excluded.show_pilot,
			show_aircraft=excluded.show_aircraft,
			show_departure=excluded.show_departure,
			show_arrival=excluded.show_arrival,
			show_flightlevel=excluded.show_flightlevel,
			show_flightrules=excluded.show_flightrules,
			show_route=excluded.show_route,
			updated_at=excluded.updated_at`,
		t.GuildID, t.DestinationID, string(prefixes), t.Color, t.Title,
		nullStr(t.Thumbnail), nullStr(t.Image),
		t.ShowCallsign, t.ShowPilot, t.ShowAircraft, t.ShowDeparture,
		t.ShowArrival, t.ShowFlightLevel, t.ShowFlightRules, t.ShowRoute,
	)
	return err
}

func (s *sqliteStore) Delete(ctx context.Context, guildID int64) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM tenants WHERE guild_id = ?`, guildID)
	return err
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, actor_id, guild_id, action, target, ok, err, took_ms, meta)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		e.At.Format(time.RFC3339Nano), e.ActorID, e.GuildID, e.Action, e.Target,
		e.OK, nullStr(e.Error), e.TookMS, nullStr(e.MetaJSON),
	)
	return err
}

func (s *sqliteStore) PruneAudit(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	cutoff := time.Now().Add(-olderThan).Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit WHERE at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenant(row rowScanner) (TenantConfig, error) {
	var (
		t                TenantConfig
		prefixes         string
		thumbnail, image sql.NullString
	)
	err := row.Scan(
		&t.GuildID, &t.DestinationID, &prefixes, &t.Color, &t.Title, &thumbnail, &image,
		&t.ShowCallsign, &t.ShowPilot, &t.ShowAircraft, &t.ShowDeparture,
		&t.ShowArrival, &t.ShowFlightLevel, &t.ShowFlightRules, &t.ShowRoute,
	)
	if err != nil {
		return TenantConfig{}, err
	}
	t.Thumbnail = thumbnail.String
	t.Image = image.String
	if prefixes != "" {
		if err := json.Unmarshal([]byte(prefixes), &t.Prefixes); err != nil {
			return TenantConfig{}, fmt.Errorf("tenant %d prefixes: %w", t.GuildID, err)
		}
	}
	return t, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
