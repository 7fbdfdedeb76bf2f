package storage

import (
	"context"
	"time"

	logx "flightwatch/pkg/logx"
)

// Store is the persistence API consumed by the pipeline and the command layer.
// The pipeline only calls All; everything else belongs to commands and
// maintenance.
type Store interface {
	All(ctx context.Context) (map[int64]TenantConfig, error)
	Get(ctx context.Context, guildID int64) (TenantConfig, bool, error)
	Upsert(ctx context.Context, t TenantConfig) error
	Delete(ctx context.Context, guildID int64) error

	AppendAudit(ctx context.Context, e AuditEntry) error
	PruneAudit(ctx context.Context, olderThan time.Duration) (int64, error)

	Close() error
}

// Open initializes the SQLite-backed store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	return openSQLite(cfg, log)
}
