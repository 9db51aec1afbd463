package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/dgallion1/docset/internal/events"
	"github.com/dgallion1/docset/internal/parser"
	"github.com/dgallion1/docset/internal/pipeline"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type ingestRequest struct {
	SourceURL string           `json:"source_url"`
	UploadID  string           `json:"upload_id"`
	Options   pipeline.Options `json:"options"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	req := ingestRequest{Options: pipeline.DefaultOptions()}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}
	req.SourceURL = strings.TrimSpace(req.SourceURL)
	req.UploadID = strings.TrimSpace(req.UploadID)
	if (req.SourceURL == "") == (req.UploadID == "") {
		jsonError(w, "exactly one of source_url or upload_id is required", http.StatusBadRequest)
		return
	}
	if req.SourceURL != "" {
		if err := validate.Var(req.SourceURL, "http_url"); err != nil {
			jsonError(w, "source_url must be an http or https URL", http.StatusBadRequest)
			return
		}
	}

	ref := req.SourceURL
	if req.UploadID != "" {
		up, err := s.uploads.Get(req.UploadID)
		if err != nil {
			jsonError(w, err.Error(), http.StatusNotFound)
			return
		}
		ref = up.Ref
	}

	runID, err := s.orchestrator.Start(r.Context(), ref, req.Options)
	if err != nil {
		if errors.Is(err, pipeline.ErrInvalidOptions) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error": err.Error(),
				"kind":  events.KindInvalidOptions,
			})
			return
		}
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id":     runID,
		"status":     "started",
		"source_ref": ref,
		"stream_url": fmt.Sprintf("/api/ingest/%s/stream", runID),
		"status_url": fmt.Sprintf("/api/ingest/%s/status", runID),
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if !parser.IsSupportedExtension(filename) {
		jsonError(w, fmt.Sprintf("unsupported file type: %s (accepted: %s)", filepath.Ext(filename), strings.Join(parser.Extensions(), ", ")), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}
	if len(data) == 0 {
		jsonError(w, "file is empty", http.StatusBadRequest)
		return
	}

	up := s.uploads.Put(filename, data)
	s.log.Info("upload stored", "upload_id", up.ID, "filename", filename, "bytes", up.Bytes)
	writeJSON(w, http.StatusCreated, map[string]any{
		"upload_id":  up.ID,
		"source_ref": up.Ref,
		"filename":   up.Filename,
		"bytes":      up.Bytes,
	})
}

func (s *Server) handleIngestStatus(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	snap, ok := s.orchestrator.Status(runID)
	if !ok {
		jsonError(w, "run not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleIngestCancel(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	switch err := s.orchestrator.Cancel(runID); {
	case errors.Is(err, pipeline.ErrRunNotFound):
		jsonError(w, "run not found", http.StatusNotFound)
	case errors.Is(err, pipeline.ErrRunFinished):
		jsonError(w, "run already finished", http.StatusConflict)
	case err != nil:
		jsonError(w, err.Error(), http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusAccepted, map[string]any{
			"run_id": runID,
			"status": "cancelling",
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." || name == "/" {
		name = "unnamed"
	}
	return name
}
