// Package lifecycle owns every appointment status change.
package lifecycle

import (
	"slices"

	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/model"
)

// Rule is one row of the transition table: who may move an appointment from which
// statuses into To, and what notification that produces.
type Rule struct {
	To       model.Status
	From     []model.Status
	Roles    []model.Role
	Kind     model.NotificationKind
	Channels []model.Channel
}

var rules = []Rule{
	{
		To:       model.StatusAwaitingPayment,
		From:     []model.Status{model.StatusScheduled},
		Roles:    []model.Role{model.RoleDoctor},
		Kind:     model.KindPaymentPending,
		Channels: []model.Channel{model.ChannelEmail, model.ChannelInApp},
	},
	{
		To:       model.StatusConfirmed,
		From:     []model.Status{model.StatusAwaitingPayment},
		Roles:    []model.Role{model.RolePaymentGate},
		Kind:     model.KindAppointmentConfirmed,
		Channels: []model.Channel{model.ChannelInApp, model.ChannelEmail},
	},
	{
		To:       model.StatusCompleted,
		From:     []model.Status{model.StatusScheduled, model.StatusConfirmed},
		Roles:    []model.Role{model.RoleDoctor, model.RoleAdmin},
		Kind:     model.KindAppointmentCompleted,
		Channels: []model.Channel{model.ChannelInApp, model.ChannelEmail},
	},
	{
		To:       model.StatusCancelled,
		From:     []model.Status{model.StatusScheduled, model.StatusConfirmed, model.StatusAwaitingPayment},
		Roles:    []model.Role{model.RoleDoctor, model.RoleAdmin, model.RolePatient},
		Kind:     model.KindAppointmentCancelled,
		Channels: []model.Channel{model.ChannelInApp, model.ChannelEmail},
	},
	{
		To:       model.StatusNoShow,
		From:     []model.Status{model.StatusScheduled, model.StatusConfirmed},
		Roles:    []model.Role{model.RoleDoctor, model.RoleAdmin},
		Kind:     model.KindNoShowRecorded,
		Channels: []model.Channel{model.ChannelInApp, model.ChannelEmail},
	},
}

// Rules returns a copy of the transition table.
func Rules() []Rule {
	return slices.Clone(rules)
}

// Lookup finds the rule permitting role to move an appointment from -> to.
func Lookup(from, to model.Status, role model.Role) (Rule, error) {
	for _, r := range rules {
		if r.To != to {
			continue
		}
		if !slices.Contains(r.From, from) {
			return Rule{}, model.IllegalTransition(from, to, "not allowed from this status")
		}
		if !slices.Contains(r.Roles, role) {
			return Rule{}, model.IllegalTransition(from, to, "role "+string(role)+" may not perform it")
		}
		return r, nil
	}
	return Rule{}, model.IllegalTransition(from, to, "no such transition")
}

// Recipient returns who is told about a transition performed by actor.
func Recipient(to model.Status, appt model.Appointment, actor model.Actor) string {
	switch to {
	case model.StatusConfirmed:
		return appt.DoctorID
	case model.StatusCancelled:
		if actor.Role == model.RolePatient {
			return appt.DoctorID
		}
		return appt.PatientID
	default:
		return appt.PatientID
	}
}
