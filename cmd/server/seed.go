package main

import (
	"context"
	"log/slog"
	"time"

	"sigedoc/internal/document/models"
	"sigedoc/internal/document/store/memory"
	"sigedoc/internal/jwtauth"
	"sigedoc/internal/permission"
	id "sigedoc/pkg/domain"
)

// seedDevData populates the in-memory store with a working data set and logs
// a bearer token so the API is usable immediately in development mode.
func seedDevData(ctx context.Context, log *slog.Logger, store *memory.Store, jwtSvc *jwtauth.Service) {
	tenantID := id.NewTenantID()
	now := time.Now()

	type seedDoc struct {
		name        string
		code        string
		process     models.Process
		subprocess  string
		docType     models.DocumentType
		contentType models.ContentType
		status      models.Status
		reviewIn    int
		fileURL     string
	}
	docs := []seedDoc{
		{"Procedimiento de auditoría interna", "PR-AUD-01", models.ProcessEvaluacion, "", models.TypeProcedimiento, models.ContentFile, models.StatusVigente, 20, "https://files.sigedoc.local/pr-aud-01.pdf"},
		{"Manual de calidad", "MN-CAL-01", models.ProcessEstrategico, "", models.TypeManual, models.ContentFile, models.StatusVigente, 200, "https://files.sigedoc.local/mn-cal-01.pdf"},
		{"Instructivo de compras", "IN-CMP-02", models.ProcessApoyo, "Compras", models.TypeInstructivo, models.ContentFile, models.StatusRevision, 0, ""},
		{"Formato de control de equipos", "FT-EQU-03", models.ProcessApoyo, "Mantenimiento", models.TypeFormato, models.ContentSpreadsheet, models.StatusVigente, 60, ""},
		{"Política de seguridad de la información", "PL-SEG-01", models.ProcessEstrategico, "", models.TypePolitica, models.ContentFile, models.StatusBorrador, 0, ""},
	}

	var spreadsheetID id.DocumentID
	for i, d := range docs {
		doc, err := models.NewDocument(id.NewDocumentID(), tenantID, d.name, d.code,
			d.process, d.subprocess, d.docType, d.contentType, now.Add(-time.Duration(i)*time.Hour))
		if err != nil {
			log.Error("seed document invalid", "code", d.code, "error", err)
			continue
		}
		doc.Status = d.status
		doc.FileURL = d.fileURL
		if d.reviewIn > 0 {
			doc.ReviewDate = models.DateOf(now).AddDays(d.reviewIn)
		}
		if err := store.Create(ctx, doc); err != nil {
			log.Error("seed document failed", "code", d.code, "error", err)
			continue
		}
		if d.contentType == models.ContentSpreadsheet {
			spreadsheetID = doc.ID
		}
	}

	if !spreadsheetID.IsNil() {
		rows := []models.Row{
			{"codigo": "EQ-001", "descripcion": "Torno CNC", "responsable": "Mantenimiento", "observaciones": ""},
			{"codigo": "EQ-002", "descripcion": "Compresor", "responsable": "Mantenimiento", "observaciones": "Revisión semestral"},
		}
		seeder := permission.Actor{ID: id.NewUserID(), Name: "seed", TenantID: tenantID, Role: permission.RoleAdmin}
		if err := store.PutRows(ctx, spreadsheetID, rows, seeder); err != nil {
			log.Error("seed rows failed", "error", err)
		}
	}

	kpis := []*models.KPI{
		{Name: "Cumplimiento de auditorías", Process: models.ProcessEvaluacion, Target: 100, Unit: "%", Periodicity: "trimestral"},
		{Name: "Documentos actualizados a tiempo", Process: models.ProcessEstrategico, Target: 95, Unit: "%", Periodicity: "mensual"},
	}
	for _, kpi := range kpis {
		if err := store.CreateKPI(ctx, tenantID, kpi); err != nil {
			log.Error("seed kpi failed", "name", kpi.Name, "error", err)
		}
	}

	token, err := jwtSvc.Generate(permission.Actor{
		ID:       id.NewUserID(),
		Name:     "Desarrollo Admin",
		TenantID: tenantID,
		Role:     permission.RoleAdmin,
	}, 24*time.Hour)
	if err != nil {
		log.Error("dev token generation failed", "error", err)
		return
	}
	log.Info("development data seeded",
		"tenant_id", tenantID,
		"documents", len(docs),
		"bearer_token", token,
	)
}
