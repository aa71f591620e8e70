package repository

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"remote_imaging/internal/models"
)

var (
	// ErrTriggerNotFound is returned for unknown trigger ids.
	ErrTriggerNotFound = errors.New("trigger not found")
	// ErrTriggerTerminal guards the busy -> terminal transition: a finished
	// or errored record is never reopened.
	ErrTriggerTerminal = errors.New("trigger already in terminal state")
)

// TriggerMemory is the in-memory trigger registry. Records accumulate for the
// process lifetime; persistence across restarts is intentionally not provided.
type TriggerMemory struct {
	mu      sync.RWMutex
	records map[string]models.TriggerRecord
	order   []string // ids in creation order, for FirstBusy
}

func NewTriggerMemory() *TriggerMemory {
	return &TriggerMemory{records: make(map[string]models.TriggerRecord)}
}

// Create stores a new record. The id must be unique.
func (r *TriggerMemory) Create(rec models.TriggerRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.ID]; ok {
		return fmt.Errorf("trigger %s already exists", rec.ID)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	r.records[rec.ID] = rec
	r.order = append(r.order, rec.ID)
	return nil
}

// Get returns a snapshot copy of the record.
func (r *TriggerMemory) Get(id string) (models.TriggerRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	return rec, ok
}

// MarkFinished moves a busy record to finished with its image result. A
// non-empty plantID replaces the stored one, so the record reflects what the
// backend actually imaged.
func (r *TriggerMemory) MarkFinished(id, plantID, imageID, imageDir string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return ErrTriggerNotFound
	}
	if rec.Terminal() {
		return ErrTriggerTerminal
	}
	rec.State = models.TriggerFinished
	if plantID != "" {
		rec.PlantID = plantID
	}
	rec.ImageID = imageID
	rec.ImageDir = imageDir
	rec.ErrorCode = models.ImageSuccess
	rec.ErrorMessage = ""
	rec.CompletedAt = time.Now().UTC()
	r.records[id] = rec
	return nil
}

// MarkError moves a busy record to error with a code and/or message.
func (r *TriggerMemory) MarkError(id string, code models.ImageError, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return ErrTriggerNotFound
	}
	if rec.Terminal() {
		return ErrTriggerTerminal
	}
	rec.State = models.TriggerError
	rec.ErrorCode = code
	rec.ErrorMessage = message
	rec.CompletedAt = time.Now().UTC()
	r.records[id] = rec
	return nil
}

// FirstBusy returns the oldest record still in the busy state.
func (r *TriggerMemory) FirstBusy() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		if r.records[id].State == models.TriggerBusy {
			return id, true
		}
	}
	return "", false
}
