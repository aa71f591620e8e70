package repository

import (
	"context"
	"database/sql"
	"time"

	"remote_imaging/internal/models"
)

// TriggerRepo owns the authoritative trigger-id -> record mapping.
// Reads return consistent snapshots; writes are atomic single-record updates.
type TriggerRepo interface {
	Create(rec models.TriggerRecord) error
	Get(id string) (models.TriggerRecord, bool)
	MarkFinished(id, plantID, imageID, imageDir string) error
	MarkError(id string, code models.ImageError, message string) error
	FirstBusy() (string, bool)
}

// EventRepo is the append-only gateway audit log.
type EventRepo interface {
	Append(ctx context.Context, e models.GatewayEvent) error
	List(ctx context.Context, from, to time.Time, typ string) ([]models.GatewayEvent, error)
}

// SettingsRepo exposes the named imaging settings documents.
type SettingsRepo interface {
	List() []string
	Exists(name string) bool
	Load(name string) (map[string]any, error)
}

type Repository struct {
	Triggers TriggerRepo
	Events   EventRepo
	Settings SettingsRepo
}

func NewRepository(db *sql.DB, settingsDir string) *Repository {
	return &Repository{
		Triggers: NewTriggerMemory(),
		Events:   NewEventSQLite(db),
		Settings: NewSettingsDir(settingsDir),
	}
}
