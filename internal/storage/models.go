package storage

import (
	"context"
	"time"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// KV is the persistence port. Values are opaque strings; a missing key is
// reported with found=false and a nil error.
type KV interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
}

// History records what happened to pages over time.
type History interface {
	LogAction(ctx context.Context, e AuditEntry) error
	RecentActions(ctx context.Context, limit int) ([]AuditEntry, error)
}

type Backend interface {
	KV
	History
	Close() error
}

type AuditEntry struct {
	PageID    string    `json:"page_id"`
	Action    string    `json:"action"`
	MetaJSON  string    `json:"meta_json"`
	CreatedAt time.Time `json:"created_at"`
}
