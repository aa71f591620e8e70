package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"remote_imaging/internal/backend"
	"remote_imaging/internal/logger"
	"remote_imaging/internal/models"
	"remote_imaging/internal/repository"

	"github.com/google/uuid"
)

var (
	// ErrNoMetadata is returned when a trigger arrives before any metadata.
	ErrNoMetadata = errors.New("no metadata provided before trigger")
	// ErrPlantMismatch is warning-class: the caller named a different plant
	// than the stored metadata. No trigger record is created.
	ErrPlantMismatch = errors.New("plant id mismatch")
	// ErrUnknownSettings is returned for a settings name outside the known list.
	ErrUnknownSettings = errors.New("settings file not found")
	// ErrImageNotReady is returned when the image id is requested before the
	// trigger finished.
	ErrImageNotReady = errors.New("image not available")
)

// GatewayService is the orchestration facade: it owns the current
// metadata/settings selection, creates trigger records and drives each one
// through the backend link in its own tracked goroutine.
type GatewayService struct {
	link     BackendLink
	triggers repository.TriggerRepo
	settings repository.SettingsRepo
	events   repository.EventRepo
	notifier Notifier
	log      *logger.Logger

	mu           sync.Mutex
	metadata     *models.ImagingMetadata
	settingsName string

	// Each processor goroutine is tracked here so Shutdown can await them.
	procCtx    context.Context
	procCancel context.CancelFunc
	procWG     sync.WaitGroup
	procMu     sync.Mutex
	running    map[string]context.CancelFunc
}

func NewGatewayService(repos *repository.Repository, link BackendLink, notifier Notifier, log *logger.Logger) *GatewayService {
	ctx, cancel := context.WithCancel(context.Background())
	return &GatewayService{
		link:       link,
		triggers:   repos.Triggers,
		settings:   repos.Settings,
		events:     repos.Events,
		notifier:   notifier,
		log:        log,
		procCtx:    ctx,
		procCancel: cancel,
		running:    make(map[string]context.CancelFunc),
	}
}

// SetMetadata stores the metadata used to build the next trigger request.
func (s *GatewayService) SetMetadata(meta models.ImagingMetadata) error {
	if meta.PlantId == "" {
		return errors.New("metadata requires a plant id")
	}
	s.mu.Lock()
	s.metadata = &meta
	s.mu.Unlock()
	return nil
}

// SetSettings selects a named settings document for the next trigger.
func (s *GatewayService) SetSettings(name string) error {
	if !s.settings.Exists(name) {
		return fmt.Errorf("%w: %q", ErrUnknownSettings, name)
	}
	s.mu.Lock()
	s.settingsName = name
	s.mu.Unlock()
	return nil
}

// SettingsList returns the names of the available settings documents.
func (s *GatewayService) SettingsList() []string {
	return s.settings.List()
}

// SubmitTrigger validates the request, creates a busy record and schedules a
// processor goroutine. It returns the trigger id immediately.
func (s *GatewayService) SubmitTrigger(plantID string) (string, error) {
	s.mu.Lock()
	meta := s.metadata
	settingsName := s.settingsName
	s.mu.Unlock()

	if meta == nil {
		return "", ErrNoMetadata
	}
	if plantID != meta.PlantId {
		return "", fmt.Errorf("%w: %s != %s", ErrPlantMismatch, plantID, meta.PlantId)
	}

	settingsDoc := s.loadSettings(settingsName)
	payload, err := backend.EncodeRequest(*meta, settingsDoc)
	if err != nil {
		return "", fmt.Errorf("encode trigger request: %w", err)
	}

	id := uuid.NewString()
	rec := models.TriggerRecord{
		ID:           id,
		PlantID:      plantID,
		State:        models.TriggerBusy,
		SettingsName: settingsName,
		Metadata:     *meta,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.triggers.Create(rec); err != nil {
		return "", err
	}
	s.appendEvent("TRIGGER", "Trigger submitted for plant "+plantID, map[string]any{
		"trigger_id": id,
		"settings":   settingsName,
	})

	procCtx, cancel := context.WithCancel(s.procCtx)
	s.procMu.Lock()
	s.running[id] = cancel
	s.procMu.Unlock()
	s.procWG.Add(1)
	go s.processTrigger(procCtx, id, payload)

	return id, nil
}

// Status reports the overall gateway state: busy with the oldest in-flight
// trigger, or idle.
func (s *GatewayService) Status() GatewayStatus {
	if id, ok := s.triggers.FirstBusy(); ok {
		return GatewayStatus{State: "busy", TriggerID: id}
	}
	return GatewayStatus{State: "idle"}
}

// TriggerStatus returns the lifecycle state of one trigger.
func (s *GatewayService) TriggerStatus(id string) (string, bool) {
	rec, ok := s.triggers.Get(id)
	if !ok {
		return "", false
	}
	return rec.State, true
}

// ImageID returns the image identifier of a finished trigger.
func (s *GatewayService) ImageID(id string) (string, error) {
	rec, ok := s.triggers.Get(id)
	if !ok {
		return "", repository.ErrTriggerNotFound
	}
	if rec.State != models.TriggerFinished {
		return "", fmt.Errorf("%w, status: %s", ErrImageNotReady, rec.State)
	}
	if rec.ImageID == "" {
		return "", errors.New("image id not available")
	}
	return rec.ImageID, nil
}

// Shutdown cancels outstanding processors and heartbeats, awaits their
// completion and closes the backend link.
func (s *GatewayService) Shutdown(ctx context.Context) error {
	s.procCancel()

	done := make(chan struct{})
	go func() {
		s.procWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warnw("gateway_shutdown_timeout", "err", ctx.Err())
	}

	s.notifier.Shutdown(ctx)
	return s.link.Close()
}

// processTrigger drives one trigger to a terminal state. Whatever happens in
// between, the record never stays busy: decoded errors, transport exhaustion
// and panics in the exchange path all funnel into MarkError, and a final
// safety net forces the error state if nothing else set one.
func (s *GatewayService) processTrigger(ctx context.Context, id string, payload []byte) {
	defer s.procWG.Done()
	defer func() {
		s.procMu.Lock()
		if cancel, ok := s.running[id]; ok {
			cancel()
			delete(s.running, id)
		}
		s.procMu.Unlock()
	}()
	defer func() {
		if rec, ok := s.triggers.Get(id); ok && !rec.Terminal() {
			s.log.Warnw("trigger_left_busy", "trigger_id", id)
			_ = s.triggers.MarkError(id, models.ErrFatalUnknown, "unexpected state")
		}
	}()

	reply, err := s.link.Exchange(ctx, payload)
	if err != nil {
		s.failTrigger(ctx, id, err)
		return
	}

	code, plantID, imageDir := backend.DecodeReply(reply)
	if plantID == "" {
		if rec, ok := s.triggers.Get(id); ok {
			plantID = rec.PlantID
		}
	}

	if code.IsSuccess() {
		imageID := "img_" + id
		if plantID != "" && imageDir != "" {
			imageID = plantID + "_" + imageDir
		}
		if err := s.triggers.MarkFinished(id, plantID, imageID, imageDir); err != nil {
			s.log.Errorw("trigger_mark_finished_failed", "trigger_id", id, "err", err)
		}
		s.log.Infow("trigger_finished", "trigger_id", id, "image_id", imageID, "image_dir", imageDir)
		s.appendEvent("FINISHED", "Image acquisition finished", map[string]any{
			"trigger_id": id, "image_id": imageID,
		})
	} else {
		if err := s.triggers.MarkError(id, code, ""); err != nil {
			s.log.Errorw("trigger_mark_error_failed", "trigger_id", id, "err", err)
		}
		s.log.Errorw("trigger_failed", "trigger_id", id, "code", int(code), "errors", code.String())
		s.appendEvent("ERROR", "Image acquisition failed: "+code.String(), map[string]any{
			"trigger_id": id, "code": int(code),
		})
	}

	s.notifier.Notify(ctx, id)
}

// failTrigger records a transport-level failure and still notifies subscribers.
func (s *GatewayService) failTrigger(ctx context.Context, id string, cause error) {
	s.log.Errorw("trigger_processing_failed", "trigger_id", id, "err", cause)
	if err := s.triggers.MarkError(id, models.ImageSuccess, cause.Error()); err != nil {
		s.log.Errorw("trigger_mark_error_failed", "trigger_id", id, "err", err)
	}
	s.appendEvent("ERROR", "Trigger processing failed: "+cause.Error(), map[string]any{
		"trigger_id": id,
	})
	s.notifier.Notify(ctx, id)
}

// loadSettings is best-effort: a broken settings file logs a warning and the
// trigger proceeds with codec defaults, matching the backend's expectations.
func (s *GatewayService) loadSettings(name string) map[string]any {
	if name == "" {
		return nil
	}
	doc, err := s.settings.Load(name)
	if err != nil {
		s.log.Warnw("settings_load_failed", "name", name, "err", err)
		return nil
	}
	return doc
}

func (s *GatewayService) appendEvent(typ, desc string, meta map[string]any) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.events.Append(ctx, models.GatewayEvent{Type: typ, Description: desc, Metadata: meta}); err != nil {
		s.log.Warnw("event_append_failed", "type", typ, "err", err)
	}
}
