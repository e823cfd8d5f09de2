package notify

import (
	"context"
	"errors"

	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/model"
)

// ErrUndeliverable marks failures that retrying cannot fix, such as a recipient
// without an email address.
var ErrUndeliverable = errors.New("notification undeliverable")

// Sender delivers one channel of a notification.
type Sender interface {
	Send(ctx context.Context, d model.Delivery) error
}

type SenderFunc func(ctx context.Context, d model.Delivery) error

func (f SenderFunc) Send(ctx context.Context, d model.Delivery) error { return f(ctx, d) }
