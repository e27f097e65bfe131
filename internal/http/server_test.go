package http

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"budgetproof/internal/services"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return NewServer(":0", services.NewSessionService(), 50<<20)
}

// workbookFixture builds a minimal split-sheet budget with one expense row.
func workbookFixture(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	if _, err := f.NewSheet("Personnel_Expenses"); err != nil {
		t.Fatalf("NewSheet: %v", err)
	}
	row := []any{"Staff", "Research", "Phase 1", "", "", "PI salary", "42000"}
	if err := f.SetSheetRow("Personnel_Expenses", "A7", &row); err != nil {
		t.Fatalf("SetSheetRow: %v", err)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}
	return buf.Bytes()
}

// multipartBody builds a single-file multipart form.
func multipartBody(t *testing.T, field, filename, contentType string, data []byte, extra map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(map[string][]string)
	h["Content-Disposition"] = []string{`form-data; name="` + field + `"; filename="` + filename + `"`}
	h["Content-Type"] = []string{contentType}
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatalf("CreatePart: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	for k, v := range extra {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func loadBudget(t *testing.T, srv *Server) {
	t.Helper()
	body, ct := multipartBody(t, "budget", "budget.xlsx",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		workbookFixture(t), map[string]string{"version": "2"})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/budget", body)
	req.Header.Set("Content-Type", ct)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("load budget status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestIndexAndHealth(t *testing.T) {
	srv := newTestServer(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("index status=%d", rr.Code)
	}
	if got := rr.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		srv.Handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
}

func TestLoadBudgetAndSession(t *testing.T) {
	srv := newTestServer(t)
	loadBudget(t, srv)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("session status=%d", rr.Code)
	}
	var resp struct {
		Expenses []services.SlotView `json:"expenses"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if len(resp.Expenses) != 1 {
		t.Fatalf("expected 1 expense, got %d", len(resp.Expenses))
	}
	if resp.Expenses[0].Amount != "$42,000.00" {
		t.Errorf("amount = %q", resp.Expenses[0].Amount)
	}
}

func TestLoadBudgetRejectsBadUploads(t *testing.T) {
	srv := newTestServer(t)

	// No multipart body at all
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/budget", strings.NewReader("plain"))
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	// Unknown template version
	body, ct := multipartBody(t, "budget", "b.xlsx", "application/octet-stream",
		workbookFixture(t), map[string]string{"version": "7"})
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/budget", body)
	req.Header.Set("Content-Type", ct)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestAttachValidationOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	loadBudget(t, srv)

	// Unsupported type
	body, ct := multipartBody(t, "file", "x.gif", "image/gif", []byte("GIF89a"), nil)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/expenses/1/invoice", body)
	req.Header.Set("Content-Type", ct)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", rr.Code)
	}

	// Index out of range
	body, ct = multipartBody(t, "file", "inv.pdf", "application/pdf", []byte("%PDF-1.4"), nil)
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/expenses/99/invoice", body)
	req.Header.Set("Content-Type", ct)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	// Unknown side
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/expenses/1/receipt", nil)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown side, got %d", rr.Code)
	}

	// Valid upload
	body, ct = multipartBody(t, "file", "inv.pdf", "application/pdf", []byte("%PDF-1.4"), nil)
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/expenses/1/invoice", body)
	req.Header.Set("Content-Type", ct)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("attach status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestReportDownload(t *testing.T) {
	srv := newTestServer(t)
	loadBudget(t, srv)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/report", nil)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("report status=%d body=%s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content type = %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "expense-report.pdf") {
		t.Errorf("content disposition = %q", cd)
	}
	if !bytes.HasPrefix(rr.Body.Bytes(), []byte("%PDF-")) {
		t.Error("report body is not a PDF")
	}
}

func TestReportWithoutSession(t *testing.T) {
	srv := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/report", nil)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestSavePointRoundTripOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	loadBudget(t, srv)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/savepoint", nil)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("savepoint status=%d body=%s", rr.Code, rr.Body.String())
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, ".btsp") {
		t.Errorf("content disposition = %q", cd)
	}
	blob := rr.Body.Bytes()

	restored := newTestServer(t)
	body, ct := multipartBody(t, "file", "progress.btsp", "application/octet-stream", blob, nil)
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/savepoint", body)
	req.Header.Set("Content-Type", ct)
	restored.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("restore status=%d body=%s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Expenses int `json:"expenses"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode restore response: %v", err)
	}
	if resp.Expenses != 1 {
		t.Fatalf("restored %d expenses, want 1", resp.Expenses)
	}
}

func TestRestoreRejectsGarbage(t *testing.T) {
	srv := newTestServer(t)
	for _, path := range []string{"/savepoint", "/progress-pdf"} {
		body, ct := multipartBody(t, "file", "junk.bin", "application/octet-stream", []byte("garbage"), nil)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, path, body)
		req.Header.Set("Content-Type", ct)
		srv.Handler.ServeHTTP(rr, req)
		if rr.Code < 400 || rr.Code >= 500 {
			t.Fatalf("%s: expected client error, got %d", path, rr.Code)
		}
	}
}

func TestClearSession(t *testing.T) {
	srv := newTestServer(t)
	loadBudget(t, srv)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/session/clear", nil)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("clear status=%d", rr.Code)
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/session", nil)
	srv.Handler.ServeHTTP(rr, req)
	var resp struct {
		Expenses []services.SlotView `json:"expenses"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if len(resp.Expenses) != 0 {
		t.Fatalf("expected empty session, got %d", len(resp.Expenses))
	}
}
