package payment

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/model"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const (
	stripeProvider         = "stripe"
	metadataAppointment    = "appointment_id"
	defaultStripeTolerance = 5 * time.Minute
)

// StripeWebhook turns signed Stripe webhook deliveries into payment events.
type StripeWebhook struct {
	secret    string
	tolerance time.Duration
}

func NewStripeWebhook(secret string, tolerance time.Duration) *StripeWebhook {
	if tolerance <= 0 {
		tolerance = defaultStripeTolerance
	}
	return &StripeWebhook{secret: strings.TrimSpace(secret), tolerance: tolerance}
}

func (s *StripeWebhook) Configured() bool {
	return s != nil && s.secret != ""
}

// Parse verifies the Stripe-Signature header and extracts the payment. ok is false for
// event types that do not confirm an appointment payment.
func (s *StripeWebhook) Parse(payload []byte, header string) (evt Event, eventID string, ok bool, err error) {
	stripeEvt, err := webhook.ConstructEventWithOptions(payload, header, s.secret, webhook.ConstructEventOptions{
		Tolerance:                s.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, "", false, fmt.Errorf("%w: %v", model.ErrPaymentVerificationFailed, err)
	}

	switch stripeEvt.Type {
	case "payment_intent.succeeded":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(stripeEvt.Data.Raw, &pi); err != nil {
			return Event{}, stripeEvt.ID, false, model.Invalid("payload", "invalid payment intent")
		}
		evt = Event{
			AppointmentID:     strings.TrimSpace(pi.Metadata[metadataAppointment]),
			Amount:            pi.AmountReceived,
			Currency:          strings.ToUpper(string(pi.Currency)),
			ProviderReference: pi.ID,
			Provider:          stripeProvider,
		}
		if evt.Amount == 0 {
			evt.Amount = pi.Amount
		}

	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(stripeEvt.Data.Raw, &session); err != nil {
			return Event{}, stripeEvt.ID, false, model.Invalid("payload", "invalid checkout session")
		}
		if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			return Event{}, stripeEvt.ID, false, nil
		}
		ref := session.ID
		if session.PaymentIntent != nil && session.PaymentIntent.ID != "" {
			ref = session.PaymentIntent.ID
		}
		evt = Event{
			AppointmentID:     strings.TrimSpace(session.Metadata[metadataAppointment]),
			Amount:            session.AmountTotal,
			Currency:          strings.ToUpper(string(session.Currency)),
			ProviderReference: ref,
			Provider:          stripeProvider,
		}

	default:
		return Event{}, stripeEvt.ID, false, nil
	}

	if evt.AppointmentID == "" {
		return Event{}, stripeEvt.ID, false, model.Invalid("metadata", "missing appointment_id")
	}
	return evt, stripeEvt.ID, true, nil
}
