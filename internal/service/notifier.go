package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"remote_imaging/internal/logger"
	"remote_imaging/internal/models"
	"remote_imaging/internal/repository"
)

const (
	notifyTimeout        = 10 * time.Second
	minHeartbeatInterval = 1 * time.Second

	eventTypeAcquisition = "ImageAcquisition"
	eventTypeHeartbeat   = "Heartbeat"
)

var (
	// ErrInvalidSubscriber covers missing client name or a URI without
	// scheme/host.
	ErrInvalidSubscriber = errors.New("invalid subscriber registration")
	// ErrClientNotRegistered is returned when unregistering an unknown client.
	ErrClientNotRegistered = errors.New("client not registered")
)

// Notification is the outbound push payload.
type Notification struct {
	Type      string     `json:"Type"`
	Timestamp string     `json:"Timestamp"`
	TriggerId string     `json:"TriggerId,omitempty"`
	PlantId   string     `json:"PlantId,omitempty"`
	Status    string     `json:"Status,omitempty"`
	ImagePath string     `json:"ImagePath,omitempty"`
	ImageId   string     `json:"ImageId,omitempty"`
	Error     *ErrorInfo `json:"Error,omitempty"`
}

// ErrorInfo is the structured error block of a failed acquisition.
type ErrorInfo struct {
	Code    int    `json:"Code"`
	Message string `json:"Message"`
}

type heartbeatLoop struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NotifierService keeps the subscriber registry, pushes best-effort
// completion events and runs one heartbeat loop per subscribed client.
type NotifierService struct {
	triggers repository.TriggerRepo
	events   repository.EventRepo
	client   *http.Client
	log      *logger.Logger

	storageBucket   string
	storageBasePath string

	mu         sync.Mutex
	subs       map[string]models.Subscriber
	heartbeats map[string]*heartbeatLoop
}

func NewNotifierService(triggers repository.TriggerRepo, events repository.EventRepo, cfg Config, log *logger.Logger) *NotifierService {
	return &NotifierService{
		triggers:        triggers,
		events:          events,
		client:          &http.Client{Timeout: notifyTimeout},
		log:             log,
		storageBucket:   cfg.StorageBucket,
		storageBasePath: cfg.StorageBasePath,
		subs:            make(map[string]models.Subscriber),
		heartbeats:      make(map[string]*heartbeatLoop),
	}
}

// Register validates and stores a subscriber, replacing any previous
// registration under the same client name, and (re)starts its heartbeat loop.
func (n *NotifierService) Register(sub models.Subscriber) error {
	if strings.TrimSpace(sub.ClientName) == "" {
		return fmt.Errorf("%w: client name is required", ErrInvalidSubscriber)
	}
	if err := validateURI(sub.Uri); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSubscriber, err)
	}

	n.mu.Lock()
	n.subs[sub.ClientName] = sub
	n.mu.Unlock()

	n.StartHeartbeat(sub.ClientName, sub.Uri, sub.HeartBeatInterval)
	n.log.Infow("subscriber_registered", "client", sub.ClientName, "uri", sub.Uri,
		"heartbeat_ms", sub.HeartBeatInterval)
	n.appendEvent("REGISTER", "Client "+sub.ClientName+" registered", map[string]any{
		"uri": sub.Uri, "heartbeat_ms": sub.HeartBeatInterval,
	})
	return nil
}

// Unregister stops the client's heartbeat loop, waits for it to exit and
// removes the subscriber. After Unregister returns no further event is
// delivered to the client.
func (n *NotifierService) Unregister(clientName string) error {
	n.mu.Lock()
	_, ok := n.subs[clientName]
	if !ok {
		n.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrClientNotRegistered, clientName)
	}
	delete(n.subs, clientName)
	n.mu.Unlock()

	n.stopHeartbeat(clientName)
	n.log.Infow("subscriber_unregistered", "client", clientName)
	n.appendEvent("UNREGISTER", "Client "+clientName+" unregistered", nil)
	return nil
}

// Notify pushes the terminal state of a trigger to every subscriber.
// Delivery is one POST per subscriber; failures are logged, never retried and
// never surfaced to the trigger flow.
func (n *NotifierService) Notify(ctx context.Context, triggerID string) {
	n.mu.Lock()
	subs := make([]models.Subscriber, 0, len(n.subs))
	for _, s := range n.subs {
		subs = append(subs, s)
	}
	n.mu.Unlock()
	if len(subs) == 0 {
		return
	}

	rec, ok := n.triggers.Get(triggerID)
	if !ok {
		n.log.Errorw("notify_unknown_trigger", "trigger_id", triggerID)
		return
	}

	base := n.buildEvent(rec)
	for _, sub := range subs {
		payload := base
		if !sub.SendPathInfo {
			payload.ImagePath = ""
		}
		if sub.SendData {
			// Binary image payloads are not implemented; never pretend they were sent.
			n.log.Warnw("send_data_not_implemented", "client", sub.ClientName)
		}
		if err := n.post(ctx, sub.Uri, payload); err != nil {
			n.log.Errorw("notification_failed", "client", sub.ClientName, "uri", sub.Uri, "err", err)
			n.appendEvent("NOTIFY_FAILED", "Notification to "+sub.ClientName+" failed", map[string]any{
				"trigger_id": triggerID, "err": err.Error(),
			})
			continue
		}
		n.log.Infow("notification_sent", "client", sub.ClientName, "trigger_id", triggerID)
	}
}

// StartHeartbeat cancels any prior loop for the client and, when intervalMs
// is positive, starts a loop posting heartbeats every max(intervalMs/1000, 1)
// seconds until cancelled.
func (n *NotifierService) StartHeartbeat(clientName, uri string, intervalMs int) {
	n.stopHeartbeat(clientName)
	if intervalMs <= 0 {
		return
	}

	interval := time.Duration(intervalMs) * time.Millisecond
	if interval < minHeartbeatInterval {
		interval = minHeartbeatInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	hb := &heartbeatLoop{cancel: cancel, done: make(chan struct{})}
	n.mu.Lock()
	n.heartbeats[clientName] = hb
	n.mu.Unlock()

	go n.runHeartbeat(ctx, hb, clientName, uri, interval)
}

// Shutdown cancels every heartbeat loop and awaits their completion.
func (n *NotifierService) Shutdown(ctx context.Context) {
	n.mu.Lock()
	loops := n.heartbeats
	n.heartbeats = make(map[string]*heartbeatLoop)
	n.mu.Unlock()

	for name, hb := range loops {
		hb.cancel()
		select {
		case <-hb.done:
		case <-ctx.Done():
			n.log.Warnw("heartbeat_shutdown_timeout", "client", name)
		}
	}
}

func (n *NotifierService) runHeartbeat(ctx context.Context, hb *heartbeatLoop, clientName, uri string, interval time.Duration) {
	defer close(hb.done)
	n.log.Infow("heartbeat_started", "client", clientName, "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		payload := Notification{
			Type:      eventTypeHeartbeat,
			Timestamp: time.Now().Format(time.RFC3339),
			Status:    "alive",
		}
		if err := n.post(ctx, uri, payload); err != nil {
			if ctx.Err() != nil {
				return
			}
			n.log.Warnw("heartbeat_failed", "client", clientName, "err", err)
		}

		select {
		case <-ctx.Done():
			n.log.Infow("heartbeat_stopped", "client", clientName)
			return
		case <-ticker.C:
		}
	}
}

// stopHeartbeat cancels the loop for clientName and waits until it exits, so
// a stale loop can never post after removal completes.
func (n *NotifierService) stopHeartbeat(clientName string) {
	n.mu.Lock()
	hb, ok := n.heartbeats[clientName]
	if ok {
		delete(n.heartbeats, clientName)
	}
	n.mu.Unlock()
	if ok {
		hb.cancel()
		<-hb.done
	}
}

// buildEvent assembles the base ImageAcquisition payload for a terminal record.
func (n *NotifierService) buildEvent(rec models.TriggerRecord) Notification {
	status := "error"
	if rec.State == models.TriggerFinished {
		status = "success"
	}
	ev := Notification{
		Type:      eventTypeAcquisition,
		Timestamp: time.Now().Format(time.RFC3339),
		TriggerId: rec.ID,
		PlantId:   rec.PlantID,
		Status:    status,
	}
	if rec.State == models.TriggerFinished && rec.ImageDir != "" {
		ev.ImagePath = n.storageBucket + "/" + n.storageBasePath + "/" + rec.ImageDir
		ev.ImageId = rec.ImageID
	}
	if rec.State == models.TriggerError {
		msg := rec.ErrorMessage
		if msg == "" {
			msg = "Error code: " + rec.ErrorCode.String()
		}
		ev.Error = &ErrorInfo{Code: int(rec.ErrorCode), Message: msg}
	}
	return ev
}

func (n *NotifierService) post(ctx context.Context, uri string, payload Notification) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uri, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (n *NotifierService) appendEvent(typ, desc string, meta map[string]any) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := n.events.Append(ctx, models.GatewayEvent{Type: typ, Description: desc, Metadata: meta}); err != nil {
		n.log.Warnw("event_append_failed", "type", typ, "err", err)
	}
}

func validateURI(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("uri is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("uri %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("uri %q must include scheme and host", raw)
	}
	return nil
}
