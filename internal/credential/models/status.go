package models

import "fmt"

// Status is the lifecycle state of a certificate. It only moves forward.
type Status string

const (
	StatusActive     Status = "ACTIVE"
	StatusRevoked    Status = "REVOKED"
	StatusSuperseded Status = "SUPERSEDED"
)

// ParseStatus validates a raw status string.
func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case StatusActive, StatusRevoked, StatusSuperseded:
		return Status(raw), nil
	default:
		return "", fmt.Errorf("unknown certificate status %q", raw)
	}
}

func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusRevoked || s == StatusSuperseded
}

// CanTransitionTo reports whether s -> next is a legal lifecycle step.
// ACTIVE -> ACTIVE is accepted so activation stays idempotent.
func (s Status) CanTransitionTo(next Status) bool {
	if s != StatusActive {
		return false
	}
	switch next {
	case StatusActive, StatusRevoked, StatusSuperseded:
		return true
	default:
		return false
	}
}
