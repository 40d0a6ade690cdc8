package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foodform/foodform/internal/config"
	"github.com/foodform/foodform/internal/core"
	"github.com/foodform/foodform/internal/record"
	"github.com/foodform/foodform/internal/schema"
	"github.com/foodform/foodform/internal/store"
)

const testSchema = `
food_consumption:
  commodity: {type: str, required: true}
  age_group: {type: str, required: true}
  mean_consumption_chronic: {type: float, min: 0, max: 1000}
surveys:
  survey_name: {type: str, required: true}
`

const testCSV = "commodity,age_group,mean_consumption_chronic\n" +
	"Almonds,adult,12.5\n" +
	"Rice,child,3\n" +
	",adult,1\n"

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.RequestTimeout = time.Minute
	cfg.Upload.MaxFileSize = 1 << 20
	cfg.Security.EnableCSP = true
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *core.Service) {
	t.Helper()
	sch, err := schema.Load(strings.NewReader(testSchema), schema.FormatYAML)
	require.NoError(t, err)

	db, err := store.Open(context.Background(), store.Options{
		DSN: filepath.Join(t.TempDir(), "food.db"),
	}, sch)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc, err := core.NewService(db, core.Options{})
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	srv := NewServer(svc, cfg)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return srv, svc
}

func do(t *testing.T, srv *Server, method, target string, body string, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func createAlmonds(t *testing.T, svc *core.Service) *record.Record {
	t.Helper()
	rec, err := svc.CreateRecord(context.Background(), "food_consumption", record.Values{
		"commodity": "Almonds",
		"age_group": "adult",
	})
	require.NoError(t, err)
	return rec
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	rec := do(t, srv, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestIndexRedirectsToDefaultTable(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	rec := do(t, srv, http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/tables/food_consumption", rec.Header().Get("Location"))
}

// -----------------------------------------------------------------------------
// JSON API
// -----------------------------------------------------------------------------

func TestAPI_Tables(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	rec := do(t, srv, http.MethodGet, "/api/tables", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "food_consumption", body["default"])
	require.Len(t, body["tables"], 2)

	rec = do(t, srv, http.MethodGet, "/api/tables/food_consumption", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	fields := decode(t, rec)["fields"].([]any)
	require.Len(t, fields, 3)
	chronic := fields[2].(map[string]any)
	assert.Equal(t, "mean_consumption_chronic", chronic["name"])
	assert.Equal(t, "float", chronic["type"])
	assert.EqualValues(t, 1000, chronic["max"])
}

func TestAPI_RecordLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())
	base := "/api/tables/food_consumption/records"

	rec := do(t, srv, http.MethodPost, base,
		`{"commodity": "Almonds", "age_group": "adult", "mean_consumption_chronic": 12.5}`, "application/json")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode(t, rec)
	id := created["id"].(string)
	assert.EqualValues(t, 1, created["version"])
	assert.EqualValues(t, 12.5, created["mean_consumption_chronic"])
	assert.Equal(t, base+"/"+id, rec.Header().Get("Location"))

	rec = do(t, srv, http.MethodPatch, base+"/"+id, `{"mean_consumption_chronic": 20}`, "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode(t, rec)
	assert.EqualValues(t, 2, updated["version"])
	assert.Equal(t, "Almonds", updated["commodity"])

	rec = do(t, srv, http.MethodDelete, base+"/"+id, "", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, srv, http.MethodGet, base+"/"+id, "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "REC001", decode(t, rec)["code"])

	rec = do(t, srv, http.MethodGet, base+"/"+id+"?include_deleted=true", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["deleted"])

	rec = do(t, srv, http.MethodPost, base+"/"+id+"/restore", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["deleted"])

	rec = do(t, srv, http.MethodPost, base+"/"+id+"/restore", "", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "REC002", decode(t, rec)["code"])
}

func TestAPI_CreateValidationError(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	rec := do(t, srv, http.MethodPost, "/api/tables/food_consumption/records",
		`{"age_group": "adult", "mean_consumption_chronic": -1}`, "application/json")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "VAL001", body["code"])
	fields := body["fields"].([]any)
	require.Len(t, fields, 2)
	assert.Equal(t, "commodity", fields[0].(map[string]any)["field"])
	assert.Equal(t, record.ReasonMissing, fields[0].(map[string]any)["reason"])
	assert.Equal(t, "mean_consumption_chronic", fields[1].(map[string]any)["field"])
}

func TestAPI_BadRequests(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"unknown table", http.MethodGet, "/api/tables/nope/records", "", http.StatusNotFound, "TBL001"},
		{"malformed json", http.MethodPost, "/api/tables/food_consumption/records", `{"commodity":`, http.StatusBadRequest, "REQ003"},
		{"null body", http.MethodPost, "/api/tables/food_consumption/records", `null`, http.StatusBadRequest, "REQ003"},
		{"unknown operator", http.MethodGet, "/api/tables/food_consumption/records?filter[commodity]=a&op[commodity]=like", "", http.StatusBadRequest, "FLT001"},
		{"non-numeric bound", http.MethodGet, "/api/tables/food_consumption/records?filter[mean_consumption_chronic]=abc&op[mean_consumption_chronic]=gt", "", http.StatusBadRequest, "FLT001"},
		{"bad deleted mode", http.MethodGet, "/api/tables/food_consumption/records?deleted=maybe", "", http.StatusBadRequest, "REQ003"},
		{"negative limit", http.MethodGet, "/api/tables/food_consumption/records?limit=-1", "", http.StatusBadRequest, "REQ003"},
		{"unknown export format", http.MethodGet, "/api/tables/food_consumption/export?format=pdf", "", http.StatusBadRequest, "REQ003"},
		{"unknown import", http.MethodGet, "/api/imports/missing", "", http.StatusNotFound, "IMP001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, tt.method, tt.target, tt.body, "application/json")
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, decode(t, rec)["code"])
		})
	}
}

func TestAPI_ListRecordsFilterAndPaging(t *testing.T) {
	srv, svc := newTestServer(t, testConfig())
	ctx := context.Background()
	for _, c := range []string{"Almonds", "Rice", "Wild rice"} {
		_, err := svc.CreateRecord(ctx, "food_consumption", record.Values{"commodity": c, "age_group": "adult"})
		require.NoError(t, err)
	}

	rec := do(t, srv, http.MethodGet, "/api/tables/food_consumption/records?filter[commodity]=RICE&op[commodity]=contains", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode(t, rec)["total"])

	rec = do(t, srv, http.MethodGet, "/api/tables/food_consumption/records?limit=1&offset=1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 3, body["total"])
	records := body["records"].([]any)
	require.Len(t, records, 1)
	assert.Equal(t, "Rice", records[0].(map[string]any)["commodity"])
}

func TestAPI_ImportPreviewThenCommit(t *testing.T) {
	srv, svc := newTestServer(t, testConfig())

	rec := do(t, srv, http.MethodPost, "/api/tables/food_consumption/import?filename=batch.csv", testCSV, "text/csv")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	id := body["id"].(string)
	assert.Equal(t, "batch.csv", body["file_name"])
	report := body["report"].(map[string]any)
	assert.EqualValues(t, 3, report["total"])
	assert.EqualValues(t, 2, report["valid"])
	assert.EqualValues(t, 1, report["invalid"])
	assert.Nil(t, body["result"])

	rec = do(t, srv, http.MethodGet, "/api/imports/"+id, "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/imports/"+id+"/commit", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decode(t, rec)["inserted"], 2)

	page, err := svc.ListRecords(context.Background(), "food_consumption", store.Filter{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.Total)

	rec = do(t, srv, http.MethodPost, "/api/imports/"+id+"/commit", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_ImportCommitInOneStep(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	rec := do(t, srv, http.MethodPost, "/api/tables/food_consumption/import?commit=true", testCSV, "text/csv")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	result := decode(t, rec)["result"].(map[string]any)
	assert.Len(t, result["inserted"], 2)
	assert.EqualValues(t, 1, result["skipped"])
}

func TestAPI_ImportRejected(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	rec := do(t, srv, http.MethodPost, "/api/tables/food_consumption/import", "", "text/csv")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "IMP002", decode(t, rec)["code"])

	rec = do(t, srv, http.MethodPost, "/api/tables/food_consumption/import",
		"commodity,commodity\nA,B\n", "text/csv")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "IMP004", decode(t, rec)["code"])

	rec = do(t, srv, http.MethodPost, "/api/tables/food_consumption/import?filename=book.xlsx",
		"not a workbook", "application/octet-stream")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "IMP006", decode(t, rec)["code"])
}

func TestAPI_ImportTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.Upload.MaxFileSize = 16
	srv, _ := newTestServer(t, cfg)

	rec := do(t, srv, http.MethodPost, "/api/tables/food_consumption/import", testCSV, "text/csv")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "FILE001", decode(t, rec)["code"])
}

func TestAPI_ImportNothingValid(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	rec := do(t, srv, http.MethodPost, "/api/tables/food_consumption/import",
		"commodity,age_group\n,adult\n", "text/csv")
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode(t, rec)["id"].(string)

	rec = do(t, srv, http.MethodPost, "/api/imports/"+id+"/commit", "", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "IMP002", decode(t, rec)["code"])

	rec = do(t, srv, http.MethodDelete, "/api/imports/"+id, "", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, srv, http.MethodDelete, "/api/imports/"+id, "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_Export(t *testing.T) {
	srv, svc := newTestServer(t, testConfig())
	createAlmonds(t, svc)

	rec := do(t, srv, http.MethodGet, "/api/tables/food_consumption/export?format=csv", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="food_consumption_`)

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "id,commodity,age_group,mean_consumption_chronic,version,created_at,updated_at", lines[0])
	assert.Contains(t, lines[1], "Almonds,adult,,1,")

	rec = do(t, srv, http.MethodGet, "/api/tables/food_consumption/export?format=xlsx", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")), "xlsx is a zip archive")
}

func TestAPI_Template(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	rec := do(t, srv, http.MethodGet, "/api/tables/food_consumption/template", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "commodity,age_group,mean_consumption_chronic\n", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "food_consumption_template.csv")
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate.Enabled = true
	cfg.Rate.RequestsPerMinute = 2
	cfg.Rate.UploadLimit = 1
	srv, _ := newTestServer(t, cfg)

	for i := 0; i < 2; i++ {
		rec := do(t, srv, http.MethodGet, "/healthz", "", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := do(t, srv, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE001", decode(t, rec)["code"])
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

// -----------------------------------------------------------------------------
// HTML pages
// -----------------------------------------------------------------------------

func TestTablePage(t *testing.T) {
	srv, svc := newTestServer(t, testConfig())
	rec := createAlmonds(t, svc)

	resp := do(t, srv, http.MethodGet, "/tables/food_consumption", "", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header().Get("Content-Type"))
	body := resp.Body.String()
	assert.Contains(t, body, "New record")
	assert.Contains(t, body, "Almonds")
	assert.Contains(t, body, "/tables/food_consumption/records/"+rec.ID+"/edit")
	assert.Contains(t, body, `href="/tables/surveys"`)

	resp = do(t, srv, http.MethodGet, "/tables/food_consumption?filter[commodity]=zzz", "", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "No records match.")

	resp = do(t, srv, http.MethodGet, "/tables/food_consumption?filter[commodity]=a&op[commodity]=bogus", "", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), "FLT001")
}

func TestTablePage_UnknownTable(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	resp := do(t, srv, http.MethodGet, "/tables/nope", "", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Contains(t, resp.Body.String(), "Error 404")
	assert.Contains(t, resp.Body.String(), "TBL001")
}

func postForm(t *testing.T, srv *Server, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	return do(t, srv, http.MethodPost, target, form.Encode(), "application/x-www-form-urlencoded")
}

func TestForms_CreateEditDeleteRestore(t *testing.T) {
	srv, svc := newTestServer(t, testConfig())
	ctx := context.Background()

	resp := postForm(t, srv, "/tables/food_consumption/records", url.Values{
		"commodity":                {"Almonds"},
		"age_group":                {"adult"},
		"mean_consumption_chronic": {""},
	})
	require.Equal(t, http.StatusSeeOther, resp.Code, resp.Body.String())
	assert.Equal(t, "/tables/food_consumption?notice=created", resp.Header().Get("Location"))

	page, err := svc.ListRecords(ctx, "food_consumption", store.Filter{})
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	id := page.Records[0].ID
	assert.Nil(t, page.Records[0].Fields["mean_consumption_chronic"])

	resp = do(t, srv, http.MethodGet, "/tables/food_consumption/records/"+id+"/edit", "", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "Edit record")
	assert.Contains(t, resp.Body.String(), `value="Almonds"`)

	resp = postForm(t, srv, "/tables/food_consumption/records/"+id, url.Values{
		"commodity":                {"Almonds"},
		"age_group":                {"child"},
		"mean_consumption_chronic": {"4.5"},
	})
	require.Equal(t, http.StatusSeeOther, resp.Code, resp.Body.String())

	got, err := svc.GetRecord(ctx, "food_consumption", id, false)
	require.NoError(t, err)
	assert.Equal(t, "child", got.Fields["age_group"])
	assert.EqualValues(t, 2, got.Version)

	resp = postForm(t, srv, "/tables/food_consumption/records/"+id+"/delete", nil)
	require.Equal(t, http.StatusSeeOther, resp.Code)
	assert.Equal(t, "/tables/food_consumption?notice=deleted", resp.Header().Get("Location"))

	resp = do(t, srv, http.MethodGet, "/tables/food_consumption?notice=deleted", "", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "Deleted records")
	assert.Contains(t, resp.Body.String(), "It can be restored")

	resp = postForm(t, srv, "/tables/food_consumption/records/"+id+"/restore", nil)
	require.Equal(t, http.StatusSeeOther, resp.Code)

	got, err = svc.GetRecord(ctx, "food_consumption", id, false)
	require.NoError(t, err)
	assert.False(t, got.Deleted)
}

func TestForms_ValidationKeepsInput(t *testing.T) {
	srv, svc := newTestServer(t, testConfig())

	resp := postForm(t, srv, "/tables/food_consumption/records", url.Values{
		"commodity":                {""},
		"age_group":                {"adult"},
		"mean_consumption_chronic": {"lots"},
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	body := resp.Body.String()
	assert.Contains(t, body, "VAL001")
	assert.Contains(t, body, record.ReasonMissing)
	assert.Contains(t, body, `value="lots"`)

	rec := createAlmonds(t, svc)
	resp = postForm(t, srv, "/tables/food_consumption/records/"+rec.ID, url.Values{
		"commodity": {"Almonds"},
		"age_group": {""},
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	assert.Contains(t, resp.Body.String(), "Edit record")

	got, err := svc.GetRecord(context.Background(), "food_consumption", rec.ID, false)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.Version)
}

func TestForms_DeleteTwiceIsNotFound(t *testing.T) {
	srv, svc := newTestServer(t, testConfig())
	rec := createAlmonds(t, svc)

	resp := postForm(t, srv, "/tables/food_consumption/records/"+rec.ID+"/delete", nil)
	require.Equal(t, http.StatusSeeOther, resp.Code)

	resp = postForm(t, srv, "/tables/food_consumption/records/"+rec.ID+"/delete", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Contains(t, resp.Body.String(), "REC001")
}

func multipartPaste(t *testing.T, paste string) (string, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("paste", paste))
	require.NoError(t, mw.Close())
	return buf.String(), mw.FormDataContentType()
}

func TestForms_ImportPreviewAndCommit(t *testing.T) {
	srv, svc := newTestServer(t, testConfig())

	body, ct := multipartPaste(t, testCSV)
	resp := do(t, srv, http.MethodPost, "/tables/food_consumption/import/preview", body, ct)
	require.Equal(t, http.StatusSeeOther, resp.Code, resp.Body.String())
	location := resp.Header().Get("Location")
	require.True(t, strings.HasPrefix(location, "/imports/"), location)

	resp = do(t, srv, http.MethodGet, location, "", "")
	require.Equal(t, http.StatusOK, resp.Code)
	page := resp.Body.String()
	assert.Contains(t, page, "Import preview: pasted.csv")
	assert.Contains(t, page, "3 rows: 2 valid, 1 with errors.")
	assert.Contains(t, page, record.ReasonMissing)

	resp = postForm(t, srv, location+"/commit", nil)
	require.Equal(t, http.StatusSeeOther, resp.Code, resp.Body.String())
	assert.Equal(t, "/tables/food_consumption?failed=0&inserted=2&notice=imported", resp.Header().Get("Location"))

	resp = do(t, srv, http.MethodGet, "/tables/food_consumption?failed=0&inserted=2&notice=imported", "", "")
	assert.Contains(t, resp.Body.String(), "Import committed: 2 inserted.")

	assert.Equal(t, 0, svc.PendingImports())
}

func TestForms_ImportDiscard(t *testing.T) {
	srv, svc := newTestServer(t, testConfig())

	body, ct := multipartPaste(t, testCSV)
	resp := do(t, srv, http.MethodPost, "/tables/food_consumption/import/preview", body, ct)
	require.Equal(t, http.StatusSeeOther, resp.Code)
	location := resp.Header().Get("Location")

	resp = postForm(t, srv, location+"/discard", nil)
	require.Equal(t, http.StatusSeeOther, resp.Code)
	assert.Equal(t, "/tables/food_consumption?notice=discarded", resp.Header().Get("Location"))
	assert.Equal(t, 0, svc.PendingImports())

	resp = do(t, srv, http.MethodGet, location, "", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestForms_ImportWithoutInput(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	body, ct := multipartPaste(t, "   ")
	resp := do(t, srv, http.MethodPost, "/tables/food_consumption/import/preview", body, ct)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), "REQ003")
}

func TestNewestFirst(t *testing.T) {
	recs := make([]*record.Record, 12)
	for i := range recs {
		recs[i] = &record.Record{ID: string(rune('a' + i))}
	}

	got := newestFirst(recs, 3)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"l", "k", "j"}, []string{got[0].ID, got[1].ID, got[2].ID})

	got = newestFirst(recs[:2], 10)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Empty(t, newestFirst(nil, 10))
}
