// Package payment verifies external payment confirmations and turns them into the
// awaiting_payment -> confirmed transition.
package payment

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TopicPaymentConfirmed carries signed confirmations from the payment collaborator.
const TopicPaymentConfirmed = "payments.payment.confirmed.v1"

// Event is a payment confirmation as received from any provider.
type Event struct {
	AppointmentID     string `json:"appointment_id"`
	Amount            int64  `json:"amount"`
	Currency          string `json:"currency"`
	ProviderReference string `json:"provider_reference"`
	Provider          string `json:"provider,omitempty"`
	Signature         string `json:"signature,omitempty"`
}

// DecodeEvent parses a Kafka message value. Fields are kept as sent so the
// signature can be checked against them.
func DecodeEvent(raw []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		return Event{}, fmt.Errorf("decode payment event: %w", err)
	}
	return evt, nil
}

func (e Event) normalized() Event {
	e.AppointmentID = strings.TrimSpace(e.AppointmentID)
	e.Currency = strings.ToUpper(strings.TrimSpace(e.Currency))
	e.ProviderReference = strings.TrimSpace(e.ProviderReference)
	return e
}
