package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"remote_imaging/internal/repository"
	"remote_imaging/internal/service"
)

func doRequest(t *testing.T, s *service.Service, method, target string, body []byte) (int, Response) {
	t.Helper()
	r := newTestRouter(s)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	r.ServeHTTP(w, req)

	var resp Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal envelope: %v, body=%s", err, w.Body.String())
	}
	return w.Code, resp
}

func TestStatus_IdleAndBusy(t *testing.T) {
	gw := &mockGateway{status: service.GatewayStatus{State: "idle"}}
	s := &service.Service{Gateway: gw}

	code, resp := doRequest(t, s, http.MethodGet, "/status", nil)
	if code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if resp.Message.Type != msgMessage || resp.Message.MessageText != "idle" {
		t.Fatalf("idle envelope = %+v", resp)
	}
	if len(resp.Values) != 0 {
		t.Fatalf("idle values = %v, want empty", resp.Values)
	}

	gw.setStatus(service.GatewayStatus{State: "busy", TriggerID: "t-123"})
	_, resp = doRequest(t, s, http.MethodGet, "/status", nil)
	if resp.Message.MessageText != "busy" {
		t.Fatalf("busy envelope = %+v", resp)
	}
	if len(resp.Values) != 1 || resp.Values[0] != "t-123" {
		t.Fatalf("busy values = %v", resp.Values)
	}
}

func TestSettings_ListAndApply(t *testing.T) {
	gw := &mockGateway{settings: []string{"default", "thermal_only"}}
	s := &service.Service{Gateway: gw}

	_, resp := doRequest(t, s, http.MethodGet, "/settings", nil)
	if resp.Message.Type != msgNone {
		t.Fatalf("list message type = %q", resp.Message.Type)
	}
	if len(resp.Values) != 2 || resp.Values[0] != "default" {
		t.Fatalf("list values = %v", resp.Values)
	}

	_, resp = doRequest(t, s, http.MethodPut, "/settings/thermal_only", nil)
	if resp.Message.Type != msgSuccess {
		t.Fatalf("apply envelope = %+v", resp)
	}
	if gw.lastSettings != "thermal_only" {
		t.Fatalf("applied name = %q", gw.lastSettings)
	}

	gw.setErr = service.ErrUnknownSettings
	_, resp = doRequest(t, s, http.MethodPut, "/settings/bogus", nil)
	if resp.Message.Type != msgError {
		t.Fatalf("unknown settings envelope = %+v", resp)
	}
}

func TestSetMetadata(t *testing.T) {
	gw := &mockGateway{}
	s := &service.Service{Gateway: gw}

	body := []byte(`{"PlantId":"plantA","Height":1.5}`)
	code, resp := doRequest(t, s, http.MethodPost, "/metadata", body)
	if code != http.StatusOK || resp.Message.Type != msgSuccess {
		t.Fatalf("code=%d envelope=%+v", code, resp)
	}
	if gw.lastMetadata.PlantId != "plantA" {
		t.Fatalf("metadata = %+v", gw.lastMetadata)
	}
	if gw.lastMetadata.Height == nil || *gw.lastMetadata.Height != 1.5 {
		t.Fatalf("height = %v", gw.lastMetadata.Height)
	}

	// Malformed body never reaches the service.
	before := gw.lastMetadata
	_, resp = doRequest(t, s, http.MethodPost, "/metadata", []byte(`{"PlantId":`))
	if resp.Message.Type != msgError {
		t.Fatalf("bad body envelope = %+v", resp)
	}
	if gw.lastMetadata != before {
		t.Fatalf("service called with malformed body")
	}
}

func TestTrigger_OutcomeToMessageType(t *testing.T) {
	cases := []struct {
		name       string
		submitID   string
		submitErr  error
		wantType   string
		wantValues int
	}{
		{"accepted", "t-1", nil, msgSuccess, 1},
		{"plant mismatch is warning", "", service.ErrPlantMismatch, msgWarning, 0},
		{"no metadata is error", "", service.ErrNoMetadata, msgError, 0},
		{"backend unavailable is error", "", errors.New("backend not connected"), msgError, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gw := &mockGateway{submitID: tc.submitID, submitErr: tc.submitErr}
			s := &service.Service{Gateway: gw}

			code, resp := doRequest(t, s, http.MethodPut, "/trigger/plantA", nil)
			if code != http.StatusOK {
				t.Fatalf("status code = %d, want 200 for every outcome", code)
			}
			if resp.Message.Type != tc.wantType {
				t.Fatalf("message type = %q, want %q (%+v)", resp.Message.Type, tc.wantType, resp)
			}
			if len(resp.Values) != tc.wantValues {
				t.Fatalf("values = %v", resp.Values)
			}
			if gw.lastPlantID != "plantA" {
				t.Fatalf("plant id = %q", gw.lastPlantID)
			}
		})
	}
}

func TestTriggerStatus(t *testing.T) {
	gw := &mockGateway{triggerState: "finished", triggerKnown: true}
	s := &service.Service{Gateway: gw}

	_, resp := doRequest(t, s, http.MethodGet, "/status/t-1", nil)
	if resp.Message.Type != msgMessage || resp.Message.MessageText != "finished" {
		t.Fatalf("envelope = %+v", resp)
	}
	if gw.lastStatusID != "t-1" {
		t.Fatalf("queried id = %q", gw.lastStatusID)
	}

	gw.triggerKnown = false
	_, resp = doRequest(t, s, http.MethodGet, "/status/unknown", nil)
	if resp.Message.MessageText != "invalid" {
		t.Fatalf("unknown envelope = %+v", resp)
	}
}

func TestGetImageID(t *testing.T) {
	gw := &mockGateway{imageID: "plantA_ImageSet_x"}
	s := &service.Service{Gateway: gw}

	_, resp := doRequest(t, s, http.MethodGet, "/getimageid/t-1", nil)
	if resp.Message.Type != msgSuccess || len(resp.Values) != 1 || resp.Values[0] != "plantA_ImageSet_x" {
		t.Fatalf("envelope = %+v", resp)
	}

	gw.imageID, gw.imageErr = "", repository.ErrTriggerNotFound
	_, resp = doRequest(t, s, http.MethodGet, "/getimageid/ghost", nil)
	if resp.Message.Type != msgError || resp.Message.MessageText != "Invalid trigger ID" {
		t.Fatalf("not-found envelope = %+v", resp)
	}

	gw.imageErr = service.ErrImageNotReady
	_, resp = doRequest(t, s, http.MethodGet, "/getimageid/t-busy", nil)
	if resp.Message.Type != msgError {
		t.Fatalf("not-ready envelope = %+v", resp)
	}
}

func TestRegisterUnregister(t *testing.T) {
	n := &mockNotifier{}
	s := &service.Service{Notifier: n}

	body := []byte(`{"ClientName":"c1","Uri":"http://localhost:9/hook","SendPathInfo":true,"HeartBeatInterval":5000}`)
	_, resp := doRequest(t, s, http.MethodPost, "/register", body)
	if resp.Message.Type != msgSuccess {
		t.Fatalf("register envelope = %+v", resp)
	}
	if n.lastSub.ClientName != "c1" || !n.lastSub.SendPathInfo || n.lastSub.HeartBeatInterval != 5000 {
		t.Fatalf("subscriber = %+v", n.lastSub)
	}

	n.registerErr = service.ErrInvalidSubscriber
	_, resp = doRequest(t, s, http.MethodPost, "/register", []byte(`{"ClientName":""}`))
	if resp.Message.Type != msgError {
		t.Fatalf("invalid register envelope = %+v", resp)
	}

	_, resp = doRequest(t, s, http.MethodPost, "/unregister?ClientName=c1", nil)
	if resp.Message.Type != msgSuccess || n.lastUnregister != "c1" {
		t.Fatalf("unregister envelope=%+v last=%q", resp, n.lastUnregister)
	}

	// Missing client name is rejected before the service is asked.
	n.lastUnregister = ""
	_, resp = doRequest(t, s, http.MethodPost, "/unregister", nil)
	if resp.Message.Type != msgError || n.lastUnregister != "" {
		t.Fatalf("missing name envelope=%+v last=%q", resp, n.lastUnregister)
	}

	n.unregisterErr = service.ErrClientNotRegistered
	_, resp = doRequest(t, s, http.MethodPost, "/unregister?ClientName=ghost", nil)
	if resp.Message.Type != msgError {
		t.Fatalf("unknown client envelope = %+v", resp)
	}
}

func TestHealth(t *testing.T) {
	r := newTestRouter(&service.Service{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d", w.Code)
	}
}
