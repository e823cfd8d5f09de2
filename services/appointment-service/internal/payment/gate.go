package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/lifecycle"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/metrics"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/model"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/storage"
)

type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error
}

// Gate is the only caller allowed to confirm an appointment.
type Gate struct {
	store   TxRunner
	machine *lifecycle.Machine
	hmac    *HMACVerifier
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewGate(store TxRunner, machine *lifecycle.Machine, hmac *HMACVerifier, logger *slog.Logger, m *metrics.Metrics) *Gate {
	return &Gate{store: store, machine: machine, hmac: hmac, logger: logger, metrics: m}
}

// ConfirmSigned checks the shared-secret signature over the fields as received,
// then confirms the normalized event.
func (g *Gate) ConfirmSigned(ctx context.Context, evt Event) (model.Appointment, error) {
	if err := g.hmac.Verify(evt); err != nil {
		g.metrics.ObservePayment("signed", outcome(err))
		g.logger.Warn("payment signature rejected", "appointment_id", evt.AppointmentID, "provider_reference", evt.ProviderReference)
		return model.Appointment{}, err
	}
	return g.confirm(ctx, evt.normalized(), "signed")
}

// ConfirmVerified confirms an event whose authenticity the caller already established,
// e.g. through Stripe webhook signature verification.
func (g *Gate) ConfirmVerified(ctx context.Context, evt Event) (model.Appointment, error) {
	return g.confirm(ctx, evt.normalized(), evt.Provider)
}

func (g *Gate) confirm(ctx context.Context, evt Event, source string) (model.Appointment, error) {
	appt, err := g.apply(ctx, evt)
	g.metrics.ObservePayment(source, outcome(err))
	if err != nil {
		g.logger.Warn("payment not applied",
			"appointment_id", evt.AppointmentID,
			"provider_reference", evt.ProviderReference,
			"source", source,
			"err", err,
		)
		return model.Appointment{}, err
	}
	g.logger.Info("payment confirmed",
		"appointment_id", appt.ID,
		"provider_reference", evt.ProviderReference,
		"amount", evt.Amount,
		"currency", evt.Currency,
	)
	return appt, nil
}

func (g *Gate) apply(ctx context.Context, evt Event) (model.Appointment, error) {
	if _, err := uuid.Parse(evt.AppointmentID); err != nil {
		return model.Appointment{}, model.Invalid("appointment_id", "must be a uuid")
	}
	if strings.TrimSpace(evt.ProviderReference) == "" {
		return model.Appointment{}, model.Invalid("provider_reference", "required")
	}
	provider := evt.Provider
	if provider == "" {
		provider = "external"
	}

	var appt model.Appointment
	err := g.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		current, err := tx.AppointmentForUpdate(ctx, evt.AppointmentID)
		if err != nil {
			return err
		}
		if evt.Amount != current.ConsultationFee {
			return fmt.Errorf("%w: amount %d does not match fee %d", model.ErrPaymentVerificationFailed, evt.Amount, current.ConsultationFee)
		}
		if !strings.EqualFold(evt.Currency, current.Currency) {
			return fmt.Errorf("%w: currency %q does not match %q", model.ErrPaymentVerificationFailed, evt.Currency, current.Currency)
		}
		if err := tx.InsertPayment(ctx, model.PaymentRecord{
			ProviderReference: evt.ProviderReference,
			AppointmentID:     evt.AppointmentID,
			Amount:            evt.Amount,
			Currency:          strings.ToUpper(evt.Currency),
			Provider:          provider,
		}); err != nil {
			if errors.Is(err, storage.ErrDuplicatePayment) {
				return fmt.Errorf("%w: %w: provider reference %s", model.ErrPaymentVerificationFailed, err, evt.ProviderReference)
			}
			return err
		}

		appt, err = g.machine.TransitionTx(ctx, tx, lifecycle.Request{
			AppointmentID: evt.AppointmentID,
			To:            model.StatusConfirmed,
			Actor:         model.Actor{ID: provider, Role: model.RolePaymentGate},
		})
		return err
	})
	return appt, err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, model.ErrPaymentVerificationFailed):
		return "rejected"
	case errors.Is(err, model.ErrIllegalTransition):
		return "illegal"
	case errors.Is(err, model.ErrValidation):
		return "invalid"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
