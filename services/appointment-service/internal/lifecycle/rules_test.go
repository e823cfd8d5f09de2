package lifecycle

import (
	"testing"

	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/model"
	"github.com/stretchr/testify/require"
)

func TestLookupCancellation(t *testing.T) {
	for _, from := range []model.Status{model.StatusScheduled, model.StatusAwaitingPayment, model.StatusConfirmed} {
		for _, role := range []model.Role{model.RolePatient, model.RoleDoctor, model.RoleAdmin} {
			_, err := Lookup(from, model.StatusCancelled, role)
			require.NoError(t, err, "%s by %s", from, role)
		}
	}
	for _, from := range []model.Status{model.StatusCompleted, model.StatusCancelled, model.StatusNoShow} {
		_, err := Lookup(from, model.StatusCancelled, model.RoleAdmin)
		require.ErrorIs(t, err, model.ErrIllegalTransition, from)
	}
}

func TestLookupRoles(t *testing.T) {
	_, err := Lookup(model.StatusScheduled, model.StatusAwaitingPayment, model.RolePatient)
	require.ErrorIs(t, err, model.ErrIllegalTransition)

	_, err = Lookup(model.StatusAwaitingPayment, model.StatusConfirmed, model.RoleAdmin)
	require.ErrorIs(t, err, model.ErrIllegalTransition)

	r, err := Lookup(model.StatusAwaitingPayment, model.StatusConfirmed, model.RolePaymentGate)
	require.NoError(t, err)
	require.Equal(t, model.KindAppointmentConfirmed, r.Kind)

	_, err = Lookup(model.StatusScheduled, model.StatusNoShow, model.RolePatient)
	require.ErrorIs(t, err, model.ErrIllegalTransition)

	_, err = Lookup(model.StatusConfirmed, model.StatusScheduled, model.RoleAdmin)
	require.ErrorIs(t, err, model.ErrIllegalTransition)
}

func TestEveryRuleNotifiesOnBothChannels(t *testing.T) {
	for _, r := range Rules() {
		require.ElementsMatch(t, []model.Channel{model.ChannelEmail, model.ChannelInApp}, r.Channels, r.To)
		require.NotEmpty(t, r.Kind)
	}
}

func TestRecipient(t *testing.T) {
	appt := model.Appointment{DoctorID: "doc-1", PatientID: "pat-1"}
	doctor := model.Actor{ID: "doc-1", Role: model.RoleDoctor}
	patient := model.Actor{ID: "pat-1", Role: model.RolePatient}
	gate := model.Actor{ID: "stripe", Role: model.RolePaymentGate}

	require.Equal(t, "pat-1", Recipient(model.StatusAwaitingPayment, appt, doctor))
	require.Equal(t, "doc-1", Recipient(model.StatusConfirmed, appt, gate))
	require.Equal(t, "pat-1", Recipient(model.StatusCompleted, appt, doctor))
	require.Equal(t, "doc-1", Recipient(model.StatusCancelled, appt, patient))
	require.Equal(t, "pat-1", Recipient(model.StatusCancelled, appt, doctor))
	require.Equal(t, "pat-1", Recipient(model.StatusNoShow, appt, doctor))
}
