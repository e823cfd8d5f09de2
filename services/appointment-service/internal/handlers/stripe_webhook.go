package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/model"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/storage"
)

// StripeWebhook confirms appointment payments reported by Stripe. The signature is the
// authentication; the gateway exposes this path publicly.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if !h.stripe.Configured() {
		http.Error(w, "stripe webhook not configured", http.StatusServiceUnavailable)
		return
	}
	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		http.Error(w, "missing Stripe-Signature header", http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	evt, eventID, ok, err := h.stripe.Parse(body, sigHeader)
	if err != nil {
		if errors.Is(err, model.ErrPaymentVerificationFailed) {
			http.Error(w, "invalid signature", http.StatusBadRequest)
			return
		}
		h.logger.Warn("stripe event ignored", "provider_event_id", eventID, "err", err)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	h.logger.Info("payment provider event received",
		"provider", evt.Provider,
		"provider_event_id", eventID,
		"appointment_id", evt.AppointmentID,
	)
	appt, err := h.gate.ConfirmVerified(r.Context(), evt)
	if errors.Is(err, storage.ErrDuplicatePayment) {
		// Stripe redelivers until it sees a 2xx.
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "confirmed", "appointment_id": appt.ID})
}
