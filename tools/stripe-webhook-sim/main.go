package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79/webhook"
)

func main() {
	var (
		baseURL       = flag.String("base-url", getenv("BASE_URL", "http://localhost:8085"), "appointment service base url")
		evtType       = flag.String("type", getenv("STRIPE_EVENT_TYPE", "payment_intent.succeeded"), "stripe event type")
		appointmentID = flag.String("appointment-id", getenv("APPOINTMENT_ID", ""), "appointment_id metadata")
		amount        = flag.Int64("amount", 5000, "amount in minor units")
		currency      = flag.String("currency", getenv("CURRENCY", "usd"), "ISO currency code")
		secret        = flag.String("secret", getenv("STRIPE_WEBHOOK_SECRET", ""), "stripe webhook signing secret (whsec_...)")
	)
	flag.Parse()

	if strings.TrimSpace(*secret) == "" {
		fatal("STRIPE_WEBHOOK_SECRET is required")
	}
	if strings.TrimSpace(*appointmentID) == "" {
		fatal("APPOINTMENT_ID is required")
	}

	now := time.Now().UTC()
	eventID := fmt.Sprintf("evt_test_%d", now.UnixNano())

	payload, err := buildEventJSON(eventID, *evtType, now, *appointmentID, *amount, strings.ToLower(*currency))
	if err != nil {
		fatal(err.Error())
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    *secret,
		Timestamp: now,
		Scheme:    "v1",
	})

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(*baseURL, "/")+"/api/v1/payments/webhooks/stripe", bytes.NewReader(payload))
	if err != nil {
		fatal(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	fmt.Printf("status=%d body=%s\n", resp.StatusCode, strings.TrimSpace(string(body)))
}

func buildEventJSON(eventID, eventType string, t time.Time, appointmentID string, amount int64, currency string) ([]byte, error) {
	created := t.Unix()
	intentID := fmt.Sprintf("pi_test_%d", t.UnixNano())
	metadata := map[string]any{"appointment_id": appointmentID}

	var object map[string]any
	switch eventType {
	case "payment_intent.succeeded":
		object = map[string]any{
			"id":              intentID,
			"object":          "payment_intent",
			"amount":          amount,
			"amount_received": amount,
			"currency":        currency,
			"status":          "succeeded",
			"metadata":        metadata,
		}
	case "checkout.session.completed":
		object = map[string]any{
			"id":             fmt.Sprintf("cs_test_%d", t.UnixNano()),
			"object":         "checkout.session",
			"amount_total":   amount,
			"currency":       currency,
			"payment_status": "paid",
			"payment_intent": intentID,
			"metadata":       metadata,
		}
	default:
		return nil, fmt.Errorf("unsupported event type: %s", eventType)
	}

	return json.Marshal(map[string]any{
		"id":          eventID,
		"object":      "event",
		"created":     created,
		"type":        eventType,
		"api_version": "2024-06-20",
		"data":        map[string]any{"object": object},
	})
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
