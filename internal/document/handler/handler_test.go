package handler

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigedoc/internal/audit"
	"sigedoc/internal/document/models"
	"sigedoc/internal/document/service"
	"sigedoc/internal/document/store/memory"
	"sigedoc/internal/download"
	"sigedoc/internal/jwtauth"
	"sigedoc/internal/permission"
	id "sigedoc/pkg/domain"
	"sigedoc/pkg/testutil"
)

type fixture struct {
	router   chi.Router
	store    *memory.Store
	jwt      *jwtauth.Service
	audit    *audit.InMemoryStore
	tenantID id.TenantID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	oracle := permission.NewStaticOracle()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	auditStore := audit.NewInMemoryStore()
	publisher := audit.NewPublisher(auditStore)

	sync := service.New(store, oracle,
		service.WithLogger(logger),
		service.WithAuditPublisher(publisher),
	)
	downloads := download.New(download.NewMemoryStore(), oracle,
		download.WithLogger(logger),
		download.WithAuditPublisher(publisher),
	)
	jwtSvc := jwtauth.NewService("handler-test-signing-key", "sigedoc", "sigedoc-api")

	h := New(sync, store, downloads, oracle, jwtSvc, logger,
		WithAuditPublisher(publisher),
	)
	router := chi.NewRouter()
	h.Register(router)

	return &fixture{
		router:   router,
		store:    store,
		jwt:      jwtSvc,
		audit:    auditStore,
		tenantID: id.NewTenantID(),
	}
}

// seed creates a document directly in the backing store. mutate runs before
// the insert so tests can set review dates or file URLs.
func (f *fixture) seed(t *testing.T, code string, status models.Status, mutate func(*models.Document)) *models.Document {
	t.Helper()
	doc, err := models.NewDocument(id.NewDocumentID(), f.tenantID, "Documento "+code, code,
		models.ProcessMisional, "", models.TypeProcedimiento, models.ContentFile, time.Now())
	require.NoError(t, err)
	doc.Status = status
	if mutate != nil {
		mutate(doc)
	}
	require.NoError(t, f.store.Create(context.Background(), doc))
	return doc
}

func (f *fixture) token(t *testing.T, role permission.Role, caps ...permission.Capability) string {
	t.Helper()
	token, err := f.jwt.Generate(permission.Actor{
		ID:           id.NewUserID(),
		Name:         "Julia Mora",
		TenantID:     f.tenantID,
		Role:         role,
		Capabilities: caps,
	}, time.Hour)
	require.NoError(t, err)
	return token
}

func (f *fixture) sync200(t *testing.T, token string) {
	t.Helper()
	rr := testutil.DoRequest(f.router, withBearer(testutil.NewJSONRequest(t, http.MethodPost, "/api/v1/sync", nil), token))
	require.Equal(t, http.StatusOK, rr.Code)
}

func withBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestRequiresAuthentication(t *testing.T) {
	f := newFixture(t)

	rr := testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/api/v1/documents"))
	testutil.AssertStatus(t, rr, http.StatusUnauthorized)

	rr = testutil.DoRequest(f.router, withBearer(testutil.NewRequest(t, http.MethodGet, "/api/v1/documents"), "garbage"))
	testutil.AssertStatus(t, rr, http.StatusUnauthorized)
}

func TestSyncAndListDocuments(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "PR-01", models.StatusVigente, nil)
	f.seed(t, "PR-02", models.StatusBorrador, nil)
	token := f.token(t, permission.RoleQuality)
	f.sync200(t, token)

	rr := testutil.DoRequest(f.router, withBearer(testutil.NewRequest(t, http.MethodGet, "/api/v1/documents"), token))
	testutil.AssertStatus(t, rr, http.StatusOK)

	type listResponse struct {
		Documents []*models.Document `json:"documentos"`
		Loading   bool               `json:"cargando"`
	}
	resp := testutil.UnmarshalResponse[listResponse](t, rr)
	assert.Len(t, resp.Documents, 2)
	assert.False(t, resp.Loading)
}

func TestStatusTransitionEndpoint(t *testing.T) {
	f := newFixture(t)
	draft := f.seed(t, "PR-01", models.StatusBorrador, nil)
	token := f.token(t, permission.RoleQuality)
	f.sync200(t, token)

	rr := testutil.DoRequest(f.router, withBearer(
		testutil.NewJSONRequest(t, http.MethodPost, "/api/v1/documents/"+draft.ID.String()+"/status",
			map[string]string{"estado": "REVISION"}), token))
	testutil.AssertStatus(t, rr, http.StatusOK)

	confirmed := testutil.UnmarshalResponse[models.Document](t, rr)
	assert.Equal(t, models.StatusRevision, confirmed.Status)
	assert.NotEmpty(t, confirmed.History)
}

func TestStatusTransitionIllegalEdge(t *testing.T) {
	f := newFixture(t)
	draft := f.seed(t, "PR-01", models.StatusBorrador, nil)
	token := f.token(t, permission.RoleQuality)
	f.sync200(t, token)

	rr := testutil.DoRequest(f.router, withBearer(
		testutil.NewJSONRequest(t, http.MethodPost, "/api/v1/documents/"+draft.ID.String()+"/status",
			map[string]string{"estado": "VIGENTE"}), token))
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	testutil.AssertErrorCode(t, rr, "illegal_transition")
}

func TestStatusTransitionWithoutPermission(t *testing.T) {
	f := newFixture(t)
	draft := f.seed(t, "PR-01", models.StatusBorrador, nil)
	// A quality user syncs so the draft is in the collection, then a plain
	// viewer attempts the transition.
	f.sync200(t, f.token(t, permission.RoleQuality))

	viewer := f.token(t, permission.RoleViewer)
	rr := testutil.DoRequest(f.router, withBearer(
		testutil.NewJSONRequest(t, http.MethodPost, "/api/v1/documents/"+draft.ID.String()+"/status",
			map[string]string{"estado": "REVISION"}), viewer))
	testutil.AssertStatus(t, rr, http.StatusForbidden)
	testutil.AssertErrorCode(t, rr, "permission_denied")
}

func TestCreateVersionEndpoint(t *testing.T) {
	f := newFixture(t)
	src := f.seed(t, "PR-01", models.StatusVigente, nil)
	token := f.token(t, permission.RoleResponsible)
	f.sync200(t, token)

	// Without confirmation the clone is refused.
	rr := testutil.DoRequest(f.router, withBearer(
		testutil.NewJSONRequest(t, http.MethodPost, "/api/v1/documents/"+src.ID.String()+"/versions",
			map[string]bool{"confirmado": false}), token))
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	testutil.AssertErrorCode(t, rr, "confirmation_required")

	rr = testutil.DoRequest(f.router, withBearer(
		testutil.NewJSONRequest(t, http.MethodPost, "/api/v1/documents/"+src.ID.String()+"/versions",
			map[string]bool{"confirmado": true}), token))
	testutil.AssertStatus(t, rr, http.StatusCreated)

	clone := testutil.UnmarshalResponse[models.Document](t, rr)
	assert.Equal(t, src.Version+1, clone.Version)
	assert.Equal(t, models.StatusBorrador, clone.Status)
}

func TestUpdateDocumentEndpoint(t *testing.T) {
	f := newFixture(t)
	doc := f.seed(t, "PR-01", models.StatusVigente, nil)
	token := f.token(t, permission.RoleResponsible)
	f.sync200(t, token)

	rr := testutil.DoRequest(f.router, withBearer(
		testutil.NewJSONRequest(t, http.MethodPut, "/api/v1/documents/"+doc.ID.String(),
			map[string]string{"nombre": "Procedimiento renovado"}), token))
	testutil.AssertStatus(t, rr, http.StatusOK)

	updated := testutil.UnmarshalResponse[models.Document](t, rr)
	assert.Equal(t, "Procedimiento renovado", updated.Name)
}

func TestActionsEndpoint(t *testing.T) {
	f := newFixture(t)
	doc := f.seed(t, "PR-01", models.StatusRevision, nil)
	token := f.token(t, permission.RoleQuality)
	f.sync200(t, token)

	rr := testutil.DoRequest(f.router, withBearer(
		testutil.NewRequest(t, http.MethodGet, "/api/v1/documents/"+doc.ID.String()+"/actions"), token))
	testutil.AssertStatus(t, rr, http.StatusOK)

	type actionsResponse struct {
		Actions []struct {
			Kind  string `json:"kind"`
			Label string `json:"label"`
		} `json:"acciones"`
	}
	resp := testutil.UnmarshalResponse[actionsResponse](t, rr)
	var kinds []string
	for _, a := range resp.Actions {
		kinds = append(kinds, a.Kind)
	}
	assert.Contains(t, kinds, "approve")
	assert.Contains(t, kinds, "reject")
	assert.Contains(t, kinds, "view")
}

func TestRowsEndpoints(t *testing.T) {
	f := newFixture(t)
	doc := f.seed(t, "FT-01", models.StatusVigente, nil)
	token := f.token(t, permission.RoleResponsible)
	f.sync200(t, token)

	// Empty remote state initializes the default schema with one blank row.
	rr := testutil.DoRequest(f.router, withBearer(
		testutil.NewRequest(t, http.MethodGet, "/api/v1/documents/"+doc.ID.String()+"/rows"), token))
	testutil.AssertStatus(t, rr, http.StatusOK)

	type rowsResponse struct {
		Columns []string     `json:"columnas"`
		Rows    []models.Row `json:"filas"`
	}
	resp := testutil.UnmarshalResponse[rowsResponse](t, rr)
	assert.Equal(t, []string{"codigo", "descripcion", "responsable", "observaciones"}, resp.Columns)
	require.Len(t, resp.Rows, 1)

	rr = testutil.DoRequest(f.router, withBearer(
		testutil.NewJSONRequest(t, http.MethodPut, "/api/v1/documents/"+doc.ID.String()+"/rows",
			map[string]any{"filas": []models.Row{{"codigo": "A", "descripcion": "", "responsable": "", "observaciones": ""}}}), token))
	testutil.AssertStatus(t, rr, http.StatusNoContent)

	rr = testutil.DoRequest(f.router, withBearer(
		testutil.NewRequest(t, http.MethodGet, "/api/v1/documents/"+doc.ID.String()+"/rows"), token))
	resp = testutil.UnmarshalResponse[rowsResponse](t, rr)
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, "A", resp.Rows[0]["codigo"])

	events, err := f.audit.ListByTenant(context.Background(), f.tenantID)
	require.NoError(t, err)
	var sawRowsSaved bool
	for _, e := range events {
		if e.Type == audit.EventRowsSaved {
			sawRowsSaved = true
		}
	}
	assert.True(t, sawRowsSaved)
}

func TestPutRowsValidation(t *testing.T) {
	f := newFixture(t)
	doc := f.seed(t, "FT-01", models.StatusVigente, nil)
	editor := f.token(t, permission.RoleResponsible)
	f.sync200(t, editor)

	rr := testutil.DoRequest(f.router, withBearer(
		testutil.NewJSONRequest(t, http.MethodPut, "/api/v1/documents/"+doc.ID.String()+"/rows",
			map[string]any{"filas": []models.Row{}}), editor))
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	testutil.AssertErrorCode(t, rr, "validation")

	viewer := f.token(t, permission.RoleViewer)
	rr = testutil.DoRequest(f.router, withBearer(
		testutil.NewJSONRequest(t, http.MethodPut, "/api/v1/documents/"+doc.ID.String()+"/rows",
			map[string]any{"filas": []models.Row{{"codigo": "A"}}}), viewer))
	testutil.AssertStatus(t, rr, http.StatusForbidden)
}

func TestPutRowsMergesColumnSets(t *testing.T) {
	f := newFixture(t)

	testutil.Given(t, "a spreadsheet document and an editor", func(t *testing.T) {
		doc := f.seed(t, "FT-01", models.StatusVigente, nil)
		token := f.token(t, permission.RoleResponsible)
		f.sync200(t, token)

		testutil.When(t, "saving rows with differing key sets", func(t *testing.T) {
			rr := testutil.DoRequest(f.router, withBearer(
				testutil.NewJSONRequest(t, http.MethodPut, "/api/v1/documents/"+doc.ID.String()+"/rows",
					map[string]any{"filas": []models.Row{
						{"equipo": "Torno"},
						{"serie": "T-100", "extra": "dato importante"},
					}}), token))
			testutil.AssertStatus(t, rr, http.StatusNoContent)

			testutil.Then(t, "every cell survives under the merged column set", func(t *testing.T) {
				rr := testutil.DoRequest(f.router, withBearer(
					testutil.NewRequest(t, http.MethodGet, "/api/v1/documents/"+doc.ID.String()+"/rows"), token))
				testutil.AssertStatus(t, rr, http.StatusOK)

				type rowsResponse struct {
					Columns []string     `json:"columnas"`
					Rows    []models.Row `json:"filas"`
				}
				resp := testutil.UnmarshalResponse[rowsResponse](t, rr)
				assert.Equal(t, []string{"equipo", "extra", "serie"}, resp.Columns)
				require.Len(t, resp.Rows, 2)
				assert.Equal(t, "Torno", resp.Rows[0]["equipo"])
				assert.Equal(t, "T-100", resp.Rows[1]["serie"])
				assert.Equal(t, "dato importante", resp.Rows[1]["extra"])
			})
		})
	})
}

func TestDownloadIssueAndResolve(t *testing.T) {
	f := newFixture(t)
	doc := f.seed(t, "PR-01", models.StatusVigente, func(d *models.Document) {
		d.FileURL = "https://files.example.com/pr-01.pdf"
	})
	token := f.token(t, permission.RoleQuality)
	f.sync200(t, token)

	rr := testutil.DoRequest(f.router, withBearer(
		testutil.NewJSONRequest(t, http.MethodPost, "/api/v1/documents/"+doc.ID.String()+"/download", nil), token))
	testutil.AssertStatus(t, rr, http.StatusCreated)

	issued := testutil.UnmarshalResponse[download.Token](t, rr)
	require.NotEmpty(t, issued.Value)

	// Resolution needs no bearer token; the link itself is the credential.
	rr = testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/download/"+issued.Value))
	testutil.AssertStatus(t, rr, http.StatusFound)
	assert.Equal(t, doc.FileURL, rr.Header().Get("Location"))

	// Single use.
	rr = testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/download/"+issued.Value))
	testutil.AssertStatus(t, rr, http.StatusNotFound)
}

func TestUnknownDocumentIs404(t *testing.T) {
	f := newFixture(t)
	token := f.token(t, permission.RoleQuality)
	f.sync200(t, token)

	rr := testutil.DoRequest(f.router, withBearer(
		testutil.NewRequest(t, http.MethodGet, "/api/v1/documents/"+id.NewDocumentID().String()), token))
	testutil.AssertStatus(t, rr, http.StatusNotFound)
}

func TestExpiringEndpoint(t *testing.T) {
	f := newFixture(t)
	soon := f.seed(t, "PR-01", models.StatusVigente, func(d *models.Document) {
		d.ReviewDate = models.DateOf(time.Now()).AddDays(10)
	})
	f.seed(t, "PR-02", models.StatusVigente, nil)

	token := f.token(t, permission.RoleQuality)
	f.sync200(t, token)

	rr := testutil.DoRequest(f.router, withBearer(
		testutil.NewRequest(t, http.MethodGet, "/api/v1/documents/expiring"), token))
	testutil.AssertStatus(t, rr, http.StatusOK)

	type expiringResponse struct {
		Documents []*models.Document `json:"documentos"`
	}
	resp := testutil.UnmarshalResponse[expiringResponse](t, rr)
	require.Len(t, resp.Documents, 1)
	assert.Equal(t, soon.ID, resp.Documents[0].ID)
}
