package service

import (
	"context"

	"remote_imaging/internal/logger"
	"remote_imaging/internal/models"
	"remote_imaging/internal/repository"
)

// BackendLink is the strict request/reply connection to the imaging backend.
// Exchange holds the link for the full request/reply pair.
type BackendLink interface {
	Exchange(ctx context.Context, payload []byte) ([]byte, error)
	Close() error
}

// Gateway exposes the operations called by the REST layer.
type Gateway interface {
	SetMetadata(meta models.ImagingMetadata) error
	SetSettings(name string) error
	SettingsList() []string
	SubmitTrigger(plantID string) (string, error)
	Status() GatewayStatus
	TriggerStatus(id string) (string, bool)
	ImageID(id string) (string, error)
	Shutdown(ctx context.Context) error
}

// Notifier fans out completion events and runs per-client heartbeat loops.
type Notifier interface {
	Register(sub models.Subscriber) error
	Unregister(clientName string) error
	Notify(ctx context.Context, triggerID string)
	Shutdown(ctx context.Context)
}

// EventLog exposes the append-only audit log with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.GatewayEvent, error)
}

// GatewayStatus is the overall gateway state: idle, or busy with a trigger.
type GatewayStatus struct {
	State     string `json:"state"` // idle | busy
	TriggerID string `json:"trigger_id,omitempty"`
}

// Config carries service-level settings not owned by a repository.
type Config struct {
	StorageBucket   string
	StorageBasePath string
}

// Service aggregates all sub-services.
type Service struct {
	Gateway
	Notifier
	EventLog
}

// NewService wires repositories and the backend link into concrete services.
func NewService(repos *repository.Repository, link BackendLink, cfg Config, log *logger.Logger) *Service {
	notifier := NewNotifierService(repos.Triggers, repos.Events, cfg, log)
	return &Service{
		Gateway:  NewGatewayService(repos, link, notifier, log),
		Notifier: notifier,
		EventLog: NewEventLogService(repos.Events),
	}
}
