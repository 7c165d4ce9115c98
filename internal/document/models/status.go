package models

import (
	"fmt"

	"sigedoc/internal/permission"
)

// Status is the document lifecycle state. Wire values match the persisted
// enumeration used by the remote store.
type Status string

const (
	StatusBorrador Status = "BORRADOR"
	StatusRevision Status = "REVISION"
	StatusAprobado Status = "APROBADO"
	StatusVigente  Status = "VIGENTE"
	StatusObsoleto Status = "OBSOLETO"
)

// transitions is the single source of truth for legal lifecycle edges and the
// capability each one requires:
//
//	BORRADOR → REVISION  (submit)
//	REVISION → APROBADO  (publish)
//	REVISION → BORRADOR  (publish, rejection back-edge)
//	APROBADO → VIGENTE   (publish)
//	VIGENTE  → OBSOLETO  (publish)
//
// OBSOLETO is terminal. Any pair absent here is illegal.
var transitions = map[Status]map[Status]permission.Capability{
	StatusBorrador: {StatusRevision: permission.CapabilitySubmit},
	StatusRevision: {
		StatusAprobado: permission.CapabilityPublish,
		StatusBorrador: permission.CapabilityPublish,
	},
	StatusAprobado: {StatusVigente: permission.CapabilityPublish},
	StatusVigente:  {StatusObsoleto: permission.CapabilityPublish},
}

// CanTransitionTo reports whether the edge (s → target) exists.
func (s Status) CanTransitionTo(target Status) bool {
	_, ok := transitions[s][target]
	return ok
}

// RequiredCapability returns the capability gating the edge (s → target).
// The boolean is false when the edge does not exist.
func (s Status) RequiredCapability(target Status) (permission.Capability, bool) {
	capability, ok := transitions[s][target]
	return capability, ok
}

// IsTerminal reports whether no transition leaves this status.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// ParseStatus validates a wire value into a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusBorrador, StatusRevision, StatusAprobado, StatusVigente, StatusObsoleto:
		return Status(s), nil
	default:
		return "", fmt.Errorf("unknown document status: %q", s)
	}
}

// AllStatuses lists every lifecycle state, in lifecycle order.
func AllStatuses() []Status {
	return []Status{StatusBorrador, StatusRevision, StatusAprobado, StatusVigente, StatusObsoleto}
}
