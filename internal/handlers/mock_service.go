package handlers

import (
	"context"
	"sync"
	"time"

	"remote_imaging/internal/models"
	"remote_imaging/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockGateway struct {
	statusMu     sync.Mutex
	status       service.GatewayStatus
	settings     []string
	submitID     string
	submitErr    error
	metaErr      error
	setErr       error
	imageID      string
	imageErr     error
	triggerState string
	triggerKnown bool

	lastMetadata models.ImagingMetadata
	lastSettings string
	lastPlantID  string
	lastStatusID string
	submitCalls  int
}

func (m *mockGateway) SetMetadata(meta models.ImagingMetadata) error {
	m.lastMetadata = meta
	return m.metaErr
}
func (m *mockGateway) SetSettings(name string) error {
	m.lastSettings = name
	return m.setErr
}
func (m *mockGateway) SettingsList() []string { return m.settings }
func (m *mockGateway) SubmitTrigger(plantID string) (string, error) {
	m.submitCalls++
	m.lastPlantID = plantID
	return m.submitID, m.submitErr
}
func (m *mockGateway) Status() service.GatewayStatus {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	return m.status
}

func (m *mockGateway) setStatus(st service.GatewayStatus) {
	m.statusMu.Lock()
	m.status = st
	m.statusMu.Unlock()
}
func (m *mockGateway) TriggerStatus(id string) (string, bool) {
	m.lastStatusID = id
	return m.triggerState, m.triggerKnown
}
func (m *mockGateway) ImageID(id string) (string, error) {
	return m.imageID, m.imageErr
}
func (m *mockGateway) Shutdown(ctx context.Context) error { return nil }

type mockNotifier struct {
	registerErr   error
	unregisterErr error

	lastSub        models.Subscriber
	lastUnregister string
	notifyCalls    int
}

func (m *mockNotifier) Register(sub models.Subscriber) error {
	m.lastSub = sub
	return m.registerErr
}
func (m *mockNotifier) Unregister(clientName string) error {
	m.lastUnregister = clientName
	return m.unregisterErr
}
func (m *mockNotifier) Notify(ctx context.Context, triggerID string) { m.notifyCalls++ }
func (m *mockNotifier) Shutdown(ctx context.Context)                 {}

type mockEventLog struct {
	resp     []models.GatewayEvent
	err      error
	lastFrom time.Time
	lastTo   time.Time
	lastType string
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.GatewayEvent, error) {
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}
