package backend

import (
	"regexp"
	"testing"

	"remote_imaging/internal/models"

	"gopkg.in/yaml.v3"
)

func TestDecodeReply(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name         string
		reply        string
		wantErr      models.ImageError
		wantPlantID  string
		wantImageDir string
	}{
		{"success with plant and dir", "0 plantA ImageSet_x", models.ImageSuccess, "plantA", "ImageSet_x"},
		{"all 3D cameras missing", "14 ", models.ErrThreeD0Corrupt | models.ErrThreeD1Corrupt | models.ErrThreeD2Corrupt, "", ""},
		{"garbage", "garbage", models.ErrFatalUnknown, "", ""},
		{"empty", "", models.ErrFatalUnknown, "", ""},
		{"code only", "16", models.ErrThermalCorrupt, "", ""},
		{"trailing newline", "0 plantB ImageSet_y\n", models.ImageSuccess, "plantB", "ImageSet_y"},
		{"extra tokens ignored", "0 plantC ImageSet_z extra", models.ImageSuccess, "plantC", "ImageSet_z"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			code, plantID, imageDir := DecodeReply([]byte(tc.reply))
			if code != tc.wantErr {
				t.Fatalf("code = %d (%s), want %d", int(code), code, int(tc.wantErr))
			}
			if plantID != tc.wantPlantID {
				t.Fatalf("plant id = %q, want %q", plantID, tc.wantPlantID)
			}
			if imageDir != tc.wantImageDir {
				t.Fatalf("image dir = %q, want %q", imageDir, tc.wantImageDir)
			}
		})
	}
}

// num tolerates YAML's int/float ambivalence for whole numbers.
func num(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case float64:
		return n
	default:
		return -1
	}
}

// decoded mirrors the document layout the backend consumes.
type decoded struct {
	Required map[string]any `yaml:"required"`
}

func encodeAndParse(t *testing.T, meta models.ImagingMetadata, settings map[string]any) decoded {
	t.Helper()
	payload, err := EncodeRequest(meta, settings)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var doc decoded
	if err := yaml.Unmarshal(payload, &doc); err != nil {
		t.Fatalf("generated document is not valid YAML: %v", err)
	}
	if doc.Required == nil {
		t.Fatalf("missing required block in %s", payload)
	}
	return doc
}

func TestEncodeRequest_Defaults(t *testing.T) {
	t.Parallel()

	doc := encodeAndParse(t, models.ImagingMetadata{PlantId: "plant-42"}, nil)
	req := doc.Required

	if req["plant-id"] != "plant-42" {
		t.Fatalf("plant-id = %v", req["plant-id"])
	}
	if req["path"] != defaultPath {
		t.Fatalf("path = %v, want default", req["path"])
	}
	uuidStr, _ := req["uuid"].(string)
	if len(uuidStr) != 36 {
		t.Fatalf("uuid = %q, want uuid4 string", uuidStr)
	}
	ts, _ := req["time-stamp"].(string)
	if ok, _ := regexp.MatchString(`^\d{4}-\d{2}-\d{2}-\d{2}-\d{2}-\d{2}$`, ts); !ok {
		t.Fatalf("time-stamp = %q, want YYYY-MM-DD-HH-MM-SS", ts)
	}

	pos, _ := req["position"].(map[string]any)
	if pos == nil {
		t.Fatalf("missing position block")
	}
	if pos["is-fixed"] != true {
		t.Fatalf("is-fixed = %v", pos["is-fixed"])
	}
	if pos["greenhouse"] != defaultGreenhouse {
		t.Fatalf("greenhouse = %v", pos["greenhouse"])
	}
	fixed, _ := pos["fixed"].(map[string]any)
	if fixed == nil || num(fixed["x"]) != 1.0 || num(fixed["y"]) != 1.0 {
		t.Fatalf("fixed position = %v", pos["fixed"])
	}

	sensors, _ := req["sensors"].(map[string]any)
	if sensors == nil {
		t.Fatalf("missing sensors block")
	}
	for _, name := range []string{"spectral", "thermal", "3D"} {
		s, _ := sensors[name].(map[string]any)
		if s == nil || s["in-use"] != true || s["default-settings"] != true {
			t.Fatalf("sensor %s = %v, want all-in-use defaults", name, sensors[name])
		}
	}

	// optional metadata fields absent
	for _, key := range []string{"height", "angle", "experiment-id", "treatment-id"} {
		if _, ok := req[key]; ok {
			t.Fatalf("unexpected optional field %q in %v", key, req)
		}
	}
}

func TestEncodeRequest_MetadataAndSettingsOverrides(t *testing.T) {
	t.Parallel()

	height := 10.5
	angle := 90.0
	meta := models.ImagingMetadata{
		PlantId:      "plant-7",
		ExperimentId: "exp-1",
		TreatmentId:  "trt-2",
		Height:       &height,
		Angle:        &angle,
	}
	settings := map[string]any{
		"path":       "greenhouse-a/daily/",
		"greenhouse": "greenhouse-a",
		"sensors": map[string]any{
			"thermal": map[string]any{"in-use": true, "default-settings": false},
		},
	}

	req := encodeAndParse(t, meta, settings).Required

	if req["path"] != "greenhouse-a/daily/" {
		t.Fatalf("path override lost: %v", req["path"])
	}
	pos, _ := req["position"].(map[string]any)
	if pos["greenhouse"] != "greenhouse-a" {
		t.Fatalf("greenhouse override lost: %v", pos["greenhouse"])
	}
	if num(req["height"]) != 10.5 || num(req["angle"]) != 90.0 {
		t.Fatalf("height/angle = %v/%v", req["height"], req["angle"])
	}
	if req["experiment-id"] != "exp-1" || req["treatment-id"] != "trt-2" {
		t.Fatalf("experiment/treatment = %v/%v", req["experiment-id"], req["treatment-id"])
	}
	sensors, _ := req["sensors"].(map[string]any)
	thermal, _ := sensors["thermal"].(map[string]any)
	if thermal == nil || thermal["default-settings"] != false {
		t.Fatalf("sensor override lost: %v", req["sensors"])
	}
	if _, ok := sensors["spectral"]; ok {
		t.Fatalf("settings sensors must replace the default block, got %v", sensors)
	}
}
