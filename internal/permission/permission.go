// Package permission defines the actor model and the capability oracle that
// gates every document lifecycle action. The transition table in
// internal/document/engine consults the oracle; no other code path performs
// its own permission checks.
package permission

import (
	"slices"

	id "sigedoc/pkg/domain"
)

// Capability is a named permission string gating one class of action.
type Capability string

const (
	CapabilitySubmit   Capability = "submit"
	CapabilityPublish  Capability = "publish"
	CapabilityCreate   Capability = "create"
	CapabilityDownload Capability = "download"
	CapabilityEdit     Capability = "edit"
)

// Role is the coarse role attached to an actor. Roles grant a baseline
// capability set; explicit per-actor capabilities extend it.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleQuality     Role = "quality"
	RoleResponsible Role = "responsible"
	RoleViewer      Role = "viewer"
)

// Actor is the authenticated user/role pair initiating an operation.
type Actor struct {
	ID           id.UserID    `json:"id"`
	Name         string       `json:"name"`
	TenantID     id.TenantID  `json:"tenant_id"`
	Role         Role         `json:"role"`
	Capabilities []Capability `json:"capabilities"`
}

// IsAdmin reports whether the actor is a platform administrator. Admins bypass
// lifecycle gating for downloads and may start new versions regardless of the
// document's current state.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Oracle answers whether a named capability is granted to an actor.
type Oracle interface {
	HasPermission(actor Actor, capability Capability) bool
}

// StaticOracle resolves capabilities from the actor's role baseline plus its
// explicit capability set. It is the default oracle; deployments with an
// external policy service supply their own Oracle implementation.
type StaticOracle struct{}

func NewStaticOracle() StaticOracle {
	return StaticOracle{}
}

func (StaticOracle) HasPermission(actor Actor, capability Capability) bool {
	if roleGrants(actor.Role, capability) {
		return true
	}
	return slices.Contains(actor.Capabilities, capability)
}

func roleGrants(role Role, capability Capability) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleQuality:
		return capability == CapabilitySubmit || capability == CapabilityPublish ||
			capability == CapabilityCreate || capability == CapabilityDownload ||
			capability == CapabilityEdit
	case RoleResponsible:
		return capability == CapabilitySubmit || capability == CapabilityCreate ||
			capability == CapabilityDownload || capability == CapabilityEdit
	case RoleViewer:
		return false
	default:
		return false
	}
}

// Normalize maps an arbitrary role string to a known Role, defaulting to viewer.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleAdmin, RoleQuality, RoleResponsible, RoleViewer:
		return Role(role)
	default:
		return RoleViewer
	}
}
