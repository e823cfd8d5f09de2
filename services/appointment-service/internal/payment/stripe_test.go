package payment

import (
	"fmt"
	"testing"

	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/model"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79/webhook"
)

const whsec = "whsec_test"

func signedStripe(t *testing.T, body string) (*StripeWebhook, []byte, string) {
	t.Helper()
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: []byte(body), Secret: whsec})
	return NewStripeWebhook(whsec, 0), sp.Payload, sp.Header
}

func TestStripePaymentIntentSucceeded(t *testing.T) {
	body := `{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","object":"payment_intent","amount":5000,"amount_received":5000,"currency":"usd","metadata":{"appointment_id":"appt-1"}}}}`
	s, payload, header := signedStripe(t, body)

	evt, eventID, ok, err := s.Parse(payload, header)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "evt_1", eventID)
	require.Equal(t, Event{AppointmentID: "appt-1", Amount: 5000, Currency: "USD", ProviderReference: "pi_1", Provider: "stripe"}, evt)
}

func TestStripeCheckoutSessionCompleted(t *testing.T) {
	tmpl := `{"id":"evt_2","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_1","object":"checkout.session","payment_status":%q,"amount_total":5000,"currency":"usd","payment_intent":"pi_9","metadata":{"appointment_id":"appt-2"}}}}`

	s, payload, header := signedStripe(t, fmt.Sprintf(tmpl, "paid"))
	evt, _, ok, err := s.Parse(payload, header)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "pi_9", evt.ProviderReference)
	require.Equal(t, "appt-2", evt.AppointmentID)

	s, payload, header = signedStripe(t, fmt.Sprintf(tmpl, "unpaid"))
	_, _, ok, err = s.Parse(payload, header)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStripeRejectsBadSignature(t *testing.T) {
	body := `{"id":"evt_3","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1"}}}`
	_, payload, header := signedStripe(t, body)

	_, _, _, err := NewStripeWebhook("whsec_other", 0).Parse(payload, header)
	require.ErrorIs(t, err, model.ErrPaymentVerificationFailed)
}

func TestStripeIgnoresOtherEventsAndRequiresMetadata(t *testing.T) {
	s, payload, header := signedStripe(t, `{"id":"evt_4","object":"event","type":"customer.created","data":{"object":{"id":"cus_1"}}}`)
	_, _, ok, err := s.Parse(payload, header)
	require.NoError(t, err)
	require.False(t, ok)

	s, payload, header = signedStripe(t, `{"id":"evt_5","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_2","amount":5000,"currency":"usd"}}}`)
	_, _, _, err = s.Parse(payload, header)
	require.ErrorIs(t, err, model.ErrValidation)
}
