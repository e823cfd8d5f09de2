package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/model"
)

// HMACVerifier checks the shared-secret signature on events arriving over Kafka.
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

// Sign returns the hex HMAC-SHA256 of appointmentId|amount|currency|providerReference.
func (v *HMACVerifier) Sign(evt Event) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(strings.Join([]string{
		evt.AppointmentID,
		strconv.FormatInt(evt.Amount, 10),
		evt.Currency,
		evt.ProviderReference,
	}, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}

func (v *HMACVerifier) Verify(evt Event) error {
	if len(v.secret) == 0 {
		return fmt.Errorf("%w: no signing secret configured", model.ErrPaymentVerificationFailed)
	}
	got, err := hex.DecodeString(strings.TrimSpace(evt.Signature))
	if err != nil || len(got) == 0 {
		return fmt.Errorf("%w: malformed signature", model.ErrPaymentVerificationFailed)
	}
	want, _ := hex.DecodeString(v.Sign(evt))
	if !hmac.Equal(got, want) {
		return fmt.Errorf("%w: signature mismatch", model.ErrPaymentVerificationFailed)
	}
	return nil
}
