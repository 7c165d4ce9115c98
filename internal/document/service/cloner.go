package service

import (
	"context"

	"sigedoc/internal/audit"
	"sigedoc/internal/document/models"
	"sigedoc/internal/permission"
	id "sigedoc/pkg/domain"
	dErrors "sigedoc/pkg/domain-errors"
)

// CreateNewVersion starts a new version of an existing document. The remote
// store copies the content, increments the version, resets the status to
// BORRADOR and appends the history entry; on success the new document is
// prepended to the authoritative collection (most-recently-created first).
//
// The operation is irreversible as a remote write, so it refuses to run
// without explicit confirmation from the initiating user. Concurrent calls
// for the same source document are not deduplicated: each confirmed call
// results in an independent remote clone.
func (s *Synchronizer) CreateNewVersion(ctx context.Context, docID id.DocumentID, confirmed bool, actor permission.Actor) (*models.Document, error) {
	ctx, span := s.tracer.Start(ctx, "Synchronizer.CreateNewVersion")
	defer span.End()

	if !confirmed {
		return nil, dErrors.New(dErrors.CodeConfirmationRequired, "creating a new version requires explicit confirmation")
	}
	if !s.oracle.HasPermission(actor, permission.CapabilityCreate) {
		return nil, dErrors.New(dErrors.CodePermissionDenied, "create permission is required to start a new version")
	}

	src, err := s.findByID(docID)
	if err != nil {
		return nil, err
	}
	if src.Status != models.StatusVigente && !actor.IsAdmin() {
		return nil, dErrors.Newf(dErrors.CodeIllegalTransition,
			"new versions start from a %s document, %s is %s", models.StatusVigente, src.Code, src.Status)
	}

	clone, err := s.store.CloneAsNewVersion(ctx, docID)
	if err != nil {
		span.RecordError(err)
		s.logger.ErrorContext(ctx, "version clone failed",
			"document_id", docID,
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeRemoteFailure, "failed to create new version")
	}

	s.Prepend(ctx, clone)
	if s.metrics != nil {
		s.metrics.IncrementVersionCloned()
	}
	s.emitAudit(ctx, audit.Event{
		TenantID:   actor.TenantID,
		DocumentID: clone.ID,
		Type:       audit.EventVersionCreated,
		ActorID:    actor.ID,
		ActorName:  actor.Name,
		Detail:     clone.Code,
	})
	return clone, nil
}
