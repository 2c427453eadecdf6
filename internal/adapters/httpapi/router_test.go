package httpapi

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Ajanth06/medsafe-udi-sub000/internal/blob"
	"github.com/Ajanth06/medsafe-udi-sub000/internal/core"
	"github.com/Ajanth06/medsafe-udi-sub000/pkg/domain"
)

const actor = "qa.lead"

func newTestServer(t *testing.T, opts ...Option) *httptest.Server {
	t.Helper()
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine(), core.WithBlobStore(blob.NewMemory()))
	srv := httptest.NewServer(NewRouter(svc, opts...))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set(ActorHeader, actor)
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

type errorBody struct {
	Error  string              `json:"error"`
	Fields []domain.FieldError `json:"fields"`
}

const reviewJSON = `{"effect":"Alarm not audible","cause":"Speaker","severity":6,"occurrence":4,"detection":4}`

func TestRequestsWithoutActorAreUnauthorized(t *testing.T) {
	srv := newTestServer(t)
	resp, err := srv.Client().Get(srv.URL + "/api/v1/analyses/a-1/failure-modes")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestFailureModeCRUD(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, srv, http.MethodPost, "/api/v1/analyses/a-1/failure-modes", reviewJSON)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var created domain.FailureMode
	decode(t, resp, &created)
	if created.AnalysisID != "a-1" || created.RPN != 96 || created.ActionStatus != domain.ActionOpen {
		t.Fatalf("unexpected created row: %+v", created)
	}

	resp = do(t, srv, http.MethodGet, "/api/v1/analyses/a-1/failure-modes", "")
	var list struct {
		Items []domain.FailureMode `json:"items"`
	}
	decode(t, resp, &list)
	if len(list.Items) != 1 || list.Items[0].ID != created.ID {
		t.Fatalf("unexpected list: %+v", list.Items)
	}

	update := `{"effect":"Alarm not audible","cause":"Speaker","severity":10,"occurrence":4,"detection":4,
		"recommended_actions":"Redundant speaker","action_owner":"QA","due_date":"2026-03-01","action_status":"In Progress"}`
	resp = do(t, srv, http.MethodPut, "/api/v1/failure-modes/"+created.ID, update)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on update, got %d", resp.StatusCode)
	}
	var updated domain.FailureMode
	decode(t, resp, &updated)
	if updated.RPN != 160 || updated.AnalysisID != "a-1" || updated.ActionStatus != domain.ActionInProgress {
		t.Fatalf("unexpected updated row: %+v", updated)
	}

	resp = do(t, srv, http.MethodGet, "/api/v1/failure-modes/"+created.ID+"/audit", "")
	var audit struct {
		Items []domain.AuditRecord `json:"items"`
	}
	decode(t, resp, &audit)
	if len(audit.Items) != 2 || audit.Items[1].ChangedBy != actor || audit.Items[1].Action != domain.ActionUpdate {
		t.Fatalf("unexpected audit trail: %+v", audit.Items)
	}

	resp = do(t, srv, http.MethodDelete, "/api/v1/failure-modes/"+created.ID, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	resp = do(t, srv, http.MethodGet, "/api/v1/failure-modes/"+created.ID, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestCreateFailureModeValidationReturns422(t *testing.T) {
	srv := newTestServer(t)
	body := `{"effect":"x","severity":10,"occurrence":9,"detection":8,"action_status":"Done"}`
	resp := do(t, srv, http.MethodPost, "/api/v1/analyses/a-1/failure-modes", body)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
	var out errorBody
	decode(t, resp, &out)
	got := domain.ValidationErrors(out.Fields)
	for _, field := range []string{domain.FieldRecommendedActions, domain.FieldActionOwner, domain.FieldDueDate, domain.FieldActionStatus} {
		if !got.Has(field) {
			t.Fatalf("expected error on %s, got %+v", field, out.Fields)
		}
	}
	if fe, _ := got.Get(domain.FieldActionStatus); fe.Code != domain.CodeClosedWhileUnaccepted {
		t.Fatalf("unexpected action status code: %+v", fe)
	}
}

func TestClearedDueDateIsReportedAsMissing(t *testing.T) {
	srv := newTestServer(t)
	body := `{"effect":"x","severity":10,"occurrence":9,"detection":8,
		"recommended_actions":"Redundant speaker","action_owner":"QA","due_date":""}`
	resp := do(t, srv, http.MethodPost, "/api/v1/analyses/a-1/failure-modes", body)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
	var out errorBody
	decode(t, resp, &out)
	got := domain.ValidationErrors(out.Fields)
	if len(got) != 1 || !got.Has(domain.FieldDueDate) {
		t.Fatalf("expected only a due date error, got %+v", out.Fields)
	}

	resp = do(t, srv, http.MethodPost, "/api/v1/analyses/a-1/failure-modes", `{"effect":"x","severity":2,"occurrence":2,"detection":2,"due_date":""}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 for acceptable row with cleared due date, got %d", resp.StatusCode)
	}
	var created domain.FailureMode
	decode(t, resp, &created)
	if created.DueDate != nil {
		t.Fatalf("expected cleared due date to be stored as absent, got %v", created.DueDate)
	}
}

func TestEvaluateEndpoint(t *testing.T) {
	srv := newTestServer(t)
	resp := do(t, srv, http.MethodPost, "/api/v1/fmea/evaluate", `{"severity":10,"occurrence":10,"detection":10}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var eval core.Evaluation
	decode(t, resp, &eval)
	if eval.Valid || eval.Derived.RPN != 1000 || eval.Labels.Acceptability != "Nicht akzeptabel" {
		t.Fatalf("unexpected evaluation: %+v", eval)
	}

	resp = do(t, srv, http.MethodPost, "/api/v1/fmea/evaluate", `{"severity":`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed json, got %d", resp.StatusCode)
	}
	resp = do(t, srv, http.MethodPost, "/api/v1/fmea/evaluate", `{"unknown":1}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", resp.StatusCode)
	}
}

func uploadRequest(t *testing.T, srv *httptest.Server, fields map[string]string, content string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if content != "" {
		part, err := mw.CreateFormFile("file", "report.pdf")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write([]byte(content)); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/documents", &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set(ActorHeader, actor)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestDocumentEndpoints(t *testing.T) {
	srv := newTestServer(t)
	resp := do(t, srv, http.MethodPost, "/api/v1/analyses/a-1/failure-modes", reviewJSON)
	var row domain.FailureMode
	decode(t, resp, &row)

	resp = uploadRequest(t, srv, map[string]string{"title": "Test report", "udi": "(01)123", "failure_mode_id": row.ID}, "evidence")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var doc domain.Document
	decode(t, resp, &doc)
	if doc.CID != core.ContentID([]byte("evidence")) || doc.FailureModeID == nil || *doc.FailureModeID != row.ID {
		t.Fatalf("unexpected document: %+v", doc)
	}

	resp = do(t, srv, http.MethodGet, "/api/v1/documents?failure_mode_id="+row.ID, "")
	var list struct {
		Items []domain.Document `json:"items"`
	}
	decode(t, resp, &list)
	if len(list.Items) != 1 {
		t.Fatalf("expected one linked document, got %d", len(list.Items))
	}

	resp = do(t, srv, http.MethodGet, "/api/v1/documents/"+doc.ID+"/url?ttl=2m", "")
	var signed struct {
		URL string `json:"url"`
	}
	decode(t, resp, &signed)
	if !strings.Contains(signed.URL, doc.BlobKey) {
		t.Fatalf("unexpected url %q", signed.URL)
	}
	resp = do(t, srv, http.MethodGet, "/api/v1/documents/"+doc.ID+"/url?ttl=soon", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad ttl, got %d", resp.StatusCode)
	}

	resp = do(t, srv, http.MethodGet, "/api/v1/documents/"+doc.ID, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	resp = do(t, srv, http.MethodDelete, "/api/v1/documents/"+doc.ID, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	resp = do(t, srv, http.MethodGet, "/api/v1/documents/"+doc.ID+"/url", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestUploadDocumentErrors(t *testing.T) {
	srv := newTestServer(t)
	resp := uploadRequest(t, srv, map[string]string{"title": "No file"}, "")
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 without file, got %d", resp.StatusCode)
	}
	resp = uploadRequest(t, srv, map[string]string{"title": "Orphan", "failure_mode_id": "missing"}, "x")
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for missing failure mode, got %d", resp.StatusCode)
	}
	var out errorBody
	decode(t, resp, &out)
	if len(out.Fields) != 1 || out.Fields[0].Field != "failure_mode_id" {
		t.Fatalf("unexpected fields: %+v", out.Fields)
	}

	noBlobs := httptest.NewServer(NewRouter(core.NewInMemoryService(core.NewDefaultRulesEngine())))
	defer noBlobs.Close()
	resp = uploadRequest(t, noBlobs, map[string]string{"title": "x"}, "x")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without blob store, got %d", resp.StatusCode)
	}
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("medsafe_service_operations_total 1\n"))
	})
	srv := newTestServer(t, WithMetrics("/metrics", metrics))
	for _, path := range []string{"/healthz", "/metrics"} {
		resp, err := srv.Client().Get(srv.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200 for %s, got %d", path, resp.StatusCode)
		}
	}
}
