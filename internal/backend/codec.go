package backend

import (
	"strconv"
	"strings"
	"time"

	"remote_imaging/internal/models"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Defaults used when no settings document overrides them.
const (
	defaultPath       = "test/test/"
	defaultGreenhouse = "default"
	timestampLayout   = "2006-01-02-15-04-05"
)

// defaultSensors returns the "all sensors in use, default settings" block.
func defaultSensors() map[string]any {
	return map[string]any{
		"spectral": map[string]any{"in-use": true, "default-settings": true},
		"thermal":  map[string]any{"in-use": true, "default-settings": true},
		"3D":       map[string]any{"in-use": true, "default-settings": true},
	}
}

// EncodeRequest builds the YAML configuration document sent to the imaging
// backend. The settings document (may be nil) can override path, greenhouse
// and the sensor configuration; metadata fields are included only when set.
func EncodeRequest(meta models.ImagingMetadata, settings map[string]any) ([]byte, error) {
	required := map[string]any{
		"path":       settingValue(settings, "path", defaultPath),
		"plant-id":   meta.PlantId,
		"uuid":       uuid.NewString(),
		"time-stamp": time.Now().Format(timestampLayout),
		"position": map[string]any{
			"greenhouse": settingValue(settings, "greenhouse", defaultGreenhouse),
			"is-fixed":   true,
			"fixed": map[string]any{
				"x": 1.0,
				"y": 1.0,
			},
		},
		"sensors": sensorsValue(settings),
	}

	if meta.Height != nil {
		required["height"] = *meta.Height
	}
	if meta.Angle != nil {
		required["angle"] = *meta.Angle
	}
	if meta.ExperimentId != "" {
		required["experiment-id"] = meta.ExperimentId
	}
	if meta.TreatmentId != "" {
		required["treatment-id"] = meta.TreatmentId
	}

	return yaml.Marshal(map[string]any{"required": required})
}

// DecodeReply parses the backend reply line "<error-bitmask> [plant-id] [image-dir]".
// Malformed input never fails: it degrades to (FATAL_UNKNOWN, "", "").
func DecodeReply(reply []byte) (models.ImageError, string, string) {
	fields := strings.Fields(string(reply))
	if len(fields) == 0 {
		return models.ErrFatalUnknown, "", ""
	}

	code, err := strconv.Atoi(fields[0])
	if err != nil {
		return models.ErrFatalUnknown, "", ""
	}

	var plantID, imageDir string
	if len(fields) > 1 {
		plantID = fields[1]
	}
	if len(fields) > 2 {
		imageDir = fields[2]
	}
	return models.ImageError(code), plantID, imageDir
}

func settingValue(settings map[string]any, key, fallback string) string {
	if settings == nil {
		return fallback
	}
	if v, ok := settings[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func sensorsValue(settings map[string]any) any {
	if settings != nil {
		if v, ok := settings["sensors"]; ok && v != nil {
			return v
		}
	}
	return defaultSensors()
}
