package notify

import (
	"context"
	"encoding/json"

	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/model"
	"github.com/redis/go-redis/v9"
)

// InAppChannel returns the Redis pub/sub channel a recipient's clients subscribe to.
func InAppChannel(recipientID string) string {
	return "notifications:" + recipientID
}

// InAppPublisher pushes in-app notifications to connected clients. The notification
// row is the inbox, so a publish with no subscribers still counts as delivered.
type InAppPublisher struct {
	rdb *redis.Client
}

func NewInAppPublisher(rdb *redis.Client) *InAppPublisher {
	return &InAppPublisher{rdb: rdb}
}

type inAppMessage struct {
	NotificationID string                 `json:"notification_id"`
	Kind           model.NotificationKind `json:"kind"`
	Payload        map[string]any         `json:"payload"`
}

func (p *InAppPublisher) Send(ctx context.Context, d model.Delivery) error {
	raw, err := json.Marshal(inAppMessage{NotificationID: d.NotificationID, Kind: d.Kind, Payload: d.Payload})
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, InAppChannel(d.RecipientID), raw).Err()
}
