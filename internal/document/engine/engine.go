// Package engine contains the pure lifecycle decision logic: whether a
// requested status transition is legal and which actions an actor may see for
// a document. It performs no I/O; the service layer issues the remote calls.
package engine

import (
	"sigedoc/internal/document/models"
	"sigedoc/internal/permission"
	dErrors "sigedoc/pkg/domain-errors"
)

// Engine validates lifecycle transitions against the transition table and the
// permission oracle.
type Engine struct {
	oracle permission.Oracle
}

// New constructs an Engine backed by the given oracle.
func New(oracle permission.Oracle) *Engine {
	return &Engine{oracle: oracle}
}

// Authorize decides whether the actor may move the document to the target
// status. It fails with an illegal-transition error when the (current, target)
// pair is outside the transition table, and with a permission-denied error
// when the actor lacks the required capability. Both checks run synchronously
// before any remote call; the catalog should prevent illegal requests from
// ever reaching here, but the table is re-checked defensively.
func (e *Engine) Authorize(doc *models.Document, target models.Status, actor permission.Actor) error {
	capability, ok := doc.Status.RequiredCapability(target)
	if !ok {
		return dErrors.Newf(dErrors.CodeIllegalTransition,
			"document %s cannot move from %s to %s", doc.Code, doc.Status, target)
	}
	if !e.oracle.HasPermission(actor, capability) {
		return dErrors.Newf(dErrors.CodePermissionDenied,
			"%s permission is required to move a document from %s to %s", capability, doc.Status, target)
	}
	return nil
}
