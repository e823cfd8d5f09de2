package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("no-show")
	require.NoError(t, err)
	require.Equal(t, StatusNoShow, s)

	s, err = ParseStatus("NO_SHOW")
	require.NoError(t, err)
	require.Equal(t, StatusNoShow, s)
	require.Equal(t, "no-show", s.String())

	s, err = ParseStatus(" Awaiting_Payment ")
	require.NoError(t, err)
	require.Equal(t, StatusAwaitingPayment, s)

	_, err = ParseStatus("pending")
	require.ErrorIs(t, err, ErrValidation)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, "status", verr.Field)
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusCancelled, StatusNoShow} {
		require.True(t, s.Terminal(), s)
	}
	for _, s := range []Status{StatusScheduled, StatusAwaitingPayment, StatusConfirmed} {
		require.False(t, s.Terminal(), s)
	}
	require.False(t, StatusCancelled.BlocksSlot())
	require.True(t, StatusAwaitingPayment.BlocksSlot())
}

func TestParseRoleRejectsInternalRole(t *testing.T) {
	_, err := ParseRole("payment_gate")
	require.ErrorIs(t, err, ErrValidation)
	r, err := ParseRole("DOCTOR")
	require.NoError(t, err)
	require.Equal(t, RoleDoctor, r)
}

func TestAppointmentOverlaps(t *testing.T) {
	start := time.Date(2026, 1, 28, 9, 0, 0, 0, time.UTC)
	a := Appointment{StartTime: start, DurationMinutes: 30}
	require.True(t, a.Overlaps(start.Add(15*time.Minute), start.Add(45*time.Minute)))
	require.False(t, a.Overlaps(start.Add(30*time.Minute), start.Add(60*time.Minute)))
	require.False(t, a.Overlaps(start.Add(-30*time.Minute), start))
}
