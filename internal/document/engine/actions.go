package engine

import (
	"sigedoc/internal/document/models"
	"sigedoc/internal/permission"
)

// ActionKind names an actor-visible action on a document.
type ActionKind string

const (
	ActionApprove    ActionKind = "approve"
	ActionReject     ActionKind = "reject"
	ActionPublish    ActionKind = "publish"
	ActionRetire     ActionKind = "retire"
	ActionSubmit     ActionKind = "submit"
	ActionNewVersion ActionKind = "new_version"
	ActionDownload   ActionKind = "download"
	ActionView       ActionKind = "view"
)

// Action is one entry of a document's action menu. Target is set only for
// lifecycle transitions.
type Action struct {
	Kind   ActionKind    `json:"kind"`
	Label  string        `json:"label"`
	Target models.Status `json:"target,omitempty"`
}

// VisibleActions produces the actions available to the actor for the document,
// recomputed on every call. The rules are evaluated independently and unioned;
// their order below is a user-facing contract (menu order) and must not change:
//
//  1. publish + REVISION:           Approve (→APROBADO), Reject (→BORRADOR)
//  2. publish + APROBADO:           Publish (→VIGENTE)
//  3. publish + VIGENTE:            Retire (→OBSOLETO)
//  4. submit + BORRADOR:            Submit for Review (→REVISION)
//  5. create + (VIGENTE or admin):  Create New Version
//  6. download or admin:            Download (bypasses lifecycle gating)
//  7. always:                       View details
func (e *Engine) VisibleActions(doc *models.Document, actor permission.Actor) []Action {
	var actions []Action

	if e.oracle.HasPermission(actor, permission.CapabilityPublish) {
		switch doc.Status {
		case models.StatusRevision:
			actions = append(actions,
				Action{Kind: ActionApprove, Label: "Aprobar", Target: models.StatusAprobado},
				Action{Kind: ActionReject, Label: "Rechazar", Target: models.StatusBorrador},
			)
		case models.StatusAprobado:
			actions = append(actions, Action{Kind: ActionPublish, Label: "Publicar", Target: models.StatusVigente})
		case models.StatusVigente:
			actions = append(actions, Action{Kind: ActionRetire, Label: "Marcar como obsoleto", Target: models.StatusObsoleto})
		}
	}

	if e.oracle.HasPermission(actor, permission.CapabilitySubmit) && doc.Status == models.StatusBorrador {
		actions = append(actions, Action{Kind: ActionSubmit, Label: "Enviar a revisión", Target: models.StatusRevision})
	}

	if e.oracle.HasPermission(actor, permission.CapabilityCreate) &&
		(doc.Status == models.StatusVigente || actor.IsAdmin()) {
		actions = append(actions, Action{Kind: ActionNewVersion, Label: "Crear nueva versión"})
	}

	if e.oracle.HasPermission(actor, permission.CapabilityDownload) || actor.IsAdmin() {
		actions = append(actions, Action{Kind: ActionDownload, Label: "Descargar"})
	}

	actions = append(actions, Action{Kind: ActionView, Label: "Ver detalle"})
	return actions
}
