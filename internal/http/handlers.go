package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"budgetproof/internal/core"
	applog "budgetproof/internal/log"
	"budgetproof/internal/report"
	"budgetproof/internal/services"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		slog.ErrorContext(r.Context(), "Templates not loaded", applog.FieldPath, r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	data := struct {
		Expenses []services.SlotView
	}{
		Expenses: s.sessions.Snapshot(),
	}
	if err := s.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		slog.ErrorContext(r.Context(), "Index template execution failed", applog.FieldError, err, "template", "index.html")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.startedAt).String(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := "ready"
	httpStatus := http.StatusOK
	checks := map[string]string{"templates": "ok"}
	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleLoadBudget ingests a spreadsheet upload and replaces the session.
func (s *Server) handleLoadBudget(w http.ResponseWriter, r *http.Request) {
	data, _, ok := s.readUpload(w, r, "budget")
	if !ok {
		return
	}

	version := core.TemplateV2SplitSheets
	if v := strings.TrimSpace(r.FormValue("version")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("invalid template version %q", v))
			return
		}
		version = core.TemplateVersion(n)
	}

	count, err := s.sessions.LoadBudget(r.Context(), data, version)
	if err != nil {
		s.writeServiceError(w, r, applog.OpExtract, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expenses": count})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	views := s.sessions.Snapshot()
	if views == nil {
		views = []services.SlotView{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"expenses": views})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.sessions.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// handleAttach stores or clears an invoice/proof upload for one expense.
// The index path segment is 1-based, matching the rendered list.
func (s *Server) handleAttach(w http.ResponseWriter, r *http.Request) {
	side := r.PathValue("side")
	if side != "invoice" && side != "proof" {
		http.NotFound(w, r)
		return
	}
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || index < 1 {
		writeError(w, http.StatusNotFound, "invalid expense index")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid upload")
		return
	}

	var ref *core.FileRef
	if file, header, err := r.FormFile("file"); err == nil {
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable upload")
			return
		}
		ref = &core.FileRef{
			Name:     filepath.Base(header.Filename),
			MimeType: attachmentMime(header.Filename, header.Header.Get("Content-Type"), data),
			Bytes:    data,
		}
	}

	if err := s.sessions.Attach(r.Context(), index-1, side, ref); err != nil {
		s.writeServiceError(w, r, applog.OpAttach, err)
		return
	}
	if ref == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": ref.Name, "mime_type": ref.MimeType})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	data, err := s.sessions.Report(r.Context())
	if err != nil {
		s.writeServiceError(w, r, applog.OpRender, err)
		return
	}
	writeDownload(w, "expense-report.pdf", report.MimePDF, data)
}

func (s *Server) handleSavePointDownload(w http.ResponseWriter, r *http.Request) {
	data, err := s.sessions.SavePoint(r.Context())
	if err != nil {
		s.writeServiceError(w, r, applog.OpSerialize, err)
		return
	}
	name := "budget-progress-" + time.Now().Format("2006-01-02") + ".btsp"
	writeDownload(w, name, "application/octet-stream", data)
}

func (s *Server) handleSavePointRestore(w http.ResponseWriter, r *http.Request) {
	data, _, ok := s.readUpload(w, r, "file")
	if !ok {
		return
	}
	count, err := s.sessions.RestoreSavePoint(r.Context(), data)
	if err != nil {
		s.writeRestoreError(w, r, applog.OpRestore, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expenses": count})
}

func (s *Server) handleProgressPDFDownload(w http.ResponseWriter, r *http.Request) {
	data, err := s.sessions.ProgressPDF(r.Context())
	if err != nil {
		s.writeServiceError(w, r, applog.OpSerialize, err)
		return
	}
	writeDownload(w, "budget-progress.pdf", report.MimePDF, data)
}

func (s *Server) handleProgressPDFRestore(w http.ResponseWriter, r *http.Request) {
	data, _, ok := s.readUpload(w, r, "file")
	if !ok {
		return
	}
	count, err := s.sessions.RestoreProgressPDF(r.Context(), data)
	if err != nil {
		s.writeRestoreError(w, r, applog.OpRestore, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expenses": count})
}

// readUpload pulls one required multipart file into memory, bounded by the
// configured upload limit. Writes the error response itself on failure.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request, field string) ([]byte, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid upload")
		return nil, "", false
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("missing %q file", field))
		return nil, "", false
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable upload")
		return nil, "", false
	}
	return data, header.Filename, true
}

// writeServiceError maps service and codec failures to HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, services.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, core.ErrNoExpenses):
		writeError(w, http.StatusConflict, "no expenses loaded")
	case errors.Is(err, core.ErrSlotOutOfRange):
		writeError(w, http.StatusNotFound, "expense index out of range")
	case errors.Is(err, services.ErrUnsupportedType):
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, core.ErrUnknownTemplate),
		errors.Is(err, core.ErrSchemaVersion),
		errors.Is(err, core.ErrSaveKind),
		errors.Is(err, core.ErrMissingState):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		slog.ErrorContext(ctx, "Request failed", applog.FieldOperation, op, applog.FieldError, err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// writeRestoreError treats every restore failure except a busy pipeline as
// a problem with the uploaded container.
func (s *Server) writeRestoreError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, services.ErrBusy) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	slog.WarnContext(r.Context(), "Restore rejected", applog.FieldOperation, op, applog.FieldError, err)
	writeError(w, http.StatusUnprocessableEntity, err.Error())
}

// attachmentMime resolves an upload's type from its declared header, file
// extension, and finally content sniffing.
func attachmentMime(filename, declared string, data []byte) string {
	normalize := func(ct string) string {
		ct, _, _ = strings.Cut(ct, ";")
		ct = strings.TrimSpace(strings.ToLower(ct))
		if ct == "image/jpg" {
			return report.MimeJPEG
		}
		return ct
	}

	if ct := normalize(declared); ct == report.MimePDF || ct == report.MimePNG || ct == report.MimeJPEG {
		return ct
	}
	if ct := normalize(mime.TypeByExtension(filepath.Ext(filename))); ct != "" {
		return ct
	}
	return normalize(http.DetectContentType(data))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeDownload(w http.ResponseWriter, filename, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}
