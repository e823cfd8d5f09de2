package model

import "strings"

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
	// RolePaymentGate is internal; the identity collaborator never asserts it.
	RolePaymentGate Role = "payment_gate"
)

// ParseRole accepts only the roles the identity collaborator can assert.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RolePatient:
		return RolePatient, nil
	case RoleDoctor:
		return RoleDoctor, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", Invalid("role", "unknown role "+quote(raw))
	}
}

type Actor struct {
	ID   string
	Role Role
}
