package consumer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/model"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/payment"
	"github.com/segmentio/kafka-go"
)

// PaymentConfirmer is satisfied by *payment.Gate.
type PaymentConfirmer interface {
	ConfirmSigned(ctx context.Context, evt payment.Event) (model.Appointment, error)
}

// PaymentHandler feeds signed payment confirmations to the gate. Rejections are final
// and only logged; other errors are returned to the consumer.
func PaymentHandler(gate PaymentConfirmer, logger *slog.Logger) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		evt, err := payment.DecodeEvent(msg.Value)
		if err != nil {
			logger.Warn("payment event dropped", "err", err)
			return nil
		}
		_, err = gate.ConfirmSigned(ctx, evt)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, model.ErrPaymentVerificationFailed),
			errors.Is(err, model.ErrIllegalTransition),
			errors.Is(err, model.ErrValidation),
			errors.Is(err, model.ErrNotFound):
			logger.Warn("payment event rejected",
				"appointment_id", evt.AppointmentID,
				"provider_reference", evt.ProviderReference,
				"err", err,
			)
			return nil
		default:
			return err
		}
	}
}
