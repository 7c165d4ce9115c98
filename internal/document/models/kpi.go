package models

// KPI is a quality indicator attached to a process. Read-mostly from this
// module's perspective: KPIs are created and updated only via the remote
// store and have no lifecycle.
type KPI struct {
	ID              string  `json:"id"`
	TenantID        string  `json:"tenant_id"`
	Name            string  `json:"nombre"`
	Process         Process `json:"proceso"`
	Subprocess      string  `json:"subproceso,omitempty"`
	Target          float64 `json:"meta"`
	Unit            string  `json:"unidad"`
	Periodicity     string  `json:"periodicidad"`
	ResponsibleName string  `json:"responsableNombre"`
}
