package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/model"
)

func (t *pgTx) InsertNotification(ctx context.Context, n *model.Notification, maxAttempts int) error {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return err
	}
	channels := make([]string, 0, len(n.Channels))
	for _, c := range n.Channels {
		channels = append(channels, string(c))
	}
	if err := t.tx.QueryRow(ctx, `
		INSERT INTO notifications (id, recipient_id, appointment_id, kind, payload, channels)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, n.ID, n.RecipientID, n.AppointmentID, string(n.Kind), payload, channels).Scan(&n.CreatedAt); err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO notification_deliveries (notification_id, channel, max_attempts, next_run_at)
		SELECT $1, c, $3, now()
		FROM unnest($2::text[]) AS c
	`, n.ID, channels, maxAttempts)
	return err
}

func (t *pgTx) ClaimDueDeliveries(ctx context.Context, now, leaseUntil time.Time, limit int) ([]model.Delivery, error) {
	rows, err := t.tx.Query(ctx, `
		WITH due AS (
			SELECT id
			FROM notification_deliveries
			WHERE status = 'pending' AND next_run_at <= $1
			ORDER BY next_run_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		UPDATE notification_deliveries d
		SET next_run_at = $2, updated_at = now()
		FROM due, notifications n
		WHERE d.id = due.id AND n.id = d.notification_id
		RETURNING d.id, d.notification_id::text, n.recipient_id, n.kind, n.payload, d.channel, d.status,
			d.attempts, d.max_attempts, d.next_run_at, d.last_error
	`, now, leaseUntil, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Delivery
	for rows.Next() {
		var (
			d               model.Delivery
			kind, ch, state string
			raw             []byte
		)
		if err := rows.Scan(&d.ID, &d.NotificationID, &d.RecipientID, &kind, &raw, &ch, &state,
			&d.Attempts, &d.MaxAttempts, &d.NextRunAt, &d.LastError); err != nil {
			return nil, err
		}
		d.Kind = model.NotificationKind(kind)
		d.Channel = model.Channel(ch)
		d.Status = model.DeliveryStatus(state)
		d.Payload = map[string]any{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &d.Payload); err != nil {
				return nil, err
			}
		}
		out = append(out, d)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (t *pgTx) MarkDelivered(ctx context.Context, id int64, attempts int) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE notification_deliveries
		SET status = 'delivered', attempts = $2, delivered_at = now(), updated_at = now()
		WHERE id = $1
	`, id, attempts)
	return err
}

func (t *pgTx) MarkDeliveryFailed(ctx context.Context, id int64, attempts int, status model.DeliveryStatus, nextRunAt time.Time, lastError string) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE notification_deliveries
		SET attempts = $2,
			status = $3,
			next_run_at = $4,
			last_error = $5,
			updated_at = now()
		WHERE id = $1
	`, id, attempts, string(status), nextRunAt, lastError)
	return err
}

func (p *Postgres) ListNotifications(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := p.pool.Query(ctx, `
		SELECT id::text, recipient_id, appointment_id, kind, payload, channels, read_at, created_at
		FROM notifications
		WHERE recipient_id = $1 AND (NOT $2 OR read_at IS NULL)
		ORDER BY created_at DESC
		LIMIT $3
	`, recipientID, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		var (
			n        model.Notification
			kind     string
			raw      []byte
			channels []string
		)
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.AppointmentID, &kind, &raw, &channels, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Kind = model.NotificationKind(kind)
		n.Read = n.ReadAt != nil
		for _, c := range channels {
			n.Channels = append(n.Channels, model.Channel(c))
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &n.Payload); err != nil {
				return nil, err
			}
		}
		out = append(out, n)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (p *Postgres) MarkNotificationRead(ctx context.Context, id, recipientID string, at time.Time) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE notifications
		SET read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND recipient_id = $2
	`, id, recipientID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}
