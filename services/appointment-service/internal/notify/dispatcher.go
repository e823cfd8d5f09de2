// Package notify records notifications inside transition transactions and
// delivers them per channel out of band.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/model"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/outbox"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/storage"
)

const DefaultMaxAttempts = 5

type Dispatcher struct {
	maxAttempts int
}

func NewDispatcher(maxAttempts int) *Dispatcher {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Dispatcher{maxAttempts: maxAttempts}
}

type Request struct {
	RecipientID   string
	AppointmentID string
	Kind          model.NotificationKind
	Channels      []model.Channel
	Payload       map[string]any
}

type requestedEvent struct {
	NotificationID string                 `json:"notification_id"`
	RecipientID    string                 `json:"recipient_id"`
	AppointmentID  string                 `json:"appointment_id"`
	Kind           model.NotificationKind `json:"kind"`
	Channels       []model.Channel        `json:"channels"`
	Payload        map[string]any         `json:"payload"`
}

// Enqueue writes the notification, its deliveries and a requested event through tx.
// It never sends anything; if tx rolls back nothing was enqueued.
func (d *Dispatcher) Enqueue(ctx context.Context, tx storage.Tx, req Request) (model.Notification, error) {
	if req.RecipientID == "" {
		return model.Notification{}, fmt.Errorf("notify: %s has no recipient", req.Kind)
	}
	if len(req.Channels) == 0 {
		return model.Notification{}, fmt.Errorf("notify: %s has no channels", req.Kind)
	}
	if req.Payload == nil {
		req.Payload = map[string]any{}
	}
	n := model.Notification{
		ID:            uuid.NewString(),
		RecipientID:   req.RecipientID,
		AppointmentID: req.AppointmentID,
		Kind:          req.Kind,
		Payload:       req.Payload,
		Channels:      req.Channels,
	}
	if err := tx.InsertNotification(ctx, &n, d.maxAttempts); err != nil {
		return model.Notification{}, fmt.Errorf("insert notification: %w", err)
	}

	payload, err := json.Marshal(requestedEvent{
		NotificationID: n.ID,
		RecipientID:    n.RecipientID,
		AppointmentID:  n.AppointmentID,
		Kind:           n.Kind,
		Channels:       n.Channels,
		Payload:        n.Payload,
	})
	if err != nil {
		return model.Notification{}, err
	}
	if err := tx.InsertOutbox(ctx, outbox.Event{
		AggregateType: outbox.AggregateAppointment,
		AggregateID:   n.AppointmentID,
		EventType:     outbox.TopicNotificationRequested,
		Payload:       payload,
	}); err != nil {
		return model.Notification{}, fmt.Errorf("insert outbox: %w", err)
	}
	return n, nil
}
