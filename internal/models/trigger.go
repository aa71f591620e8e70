package models

import "time"

// Trigger lifecycle states.
const (
	TriggerBusy     = "busy"
	TriggerFinished = "finished"
	TriggerError    = "error"
)

// ImagingMetadata is the per-plant metadata set before a trigger.
// PlantId is mandatory; the rest is forwarded to the backend only when set.
type ImagingMetadata struct {
	PlantId      string   `json:"PlantId"`
	ExperimentId string   `json:"ExperimentId,omitempty"`
	TreatmentId  string   `json:"TreatmentId,omitempty"`
	Height       *float64 `json:"Height,omitempty"`
	Angle        *float64 `json:"Angle,omitempty"`
}

// TriggerRecord tracks one imaging request from submission to completion.
// Records are kept in memory for the process lifetime; they are never deleted.
type TriggerRecord struct {
	ID           string          `json:"trigger_id"`
	PlantID      string          `json:"plant_id"`
	State        string          `json:"state"` // busy | finished | error
	SettingsName string          `json:"settings,omitempty"`
	Metadata     ImagingMetadata `json:"metadata"`
	ErrorCode    ImageError      `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	ImageID      string          `json:"image_id,omitempty"`
	ImageDir     string          `json:"image_dir,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	CompletedAt  time.Time       `json:"completed_at,omitempty"`
}

// Terminal reports whether the record reached finished or error.
func (r TriggerRecord) Terminal() bool {
	return r.State == TriggerFinished || r.State == TriggerError
}
