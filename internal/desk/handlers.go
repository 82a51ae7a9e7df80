package desk

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/zombor/parcel-desk/internal/parcel"
	"github.com/zombor/parcel-desk/internal/scanning"
)

// maxUploadSize covers full resolution phone photos
const maxUploadSize = int64(50 << 20)

// errorResponse is the body of every failed request
type errorResponse struct {
	Error     string           `json:"error"`
	Kind      string           `json:"kind,omitempty"`
	Stage     parcel.Stage     `json:"stage,omitempty"`
	Fields    []scanning.Field `json:"fields,omitempty"`
	Retryable bool             `json:"retryable"`
}

// writeJSON writes a JSON response with the given status
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes a plain error message as JSON
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// statusFor maps pipeline error kinds onto HTTP statuses
func statusFor(err error) int {
	switch {
	case errors.Is(err, parcel.ErrCapture):
		return http.StatusBadRequest
	case errors.Is(err, parcel.ErrExtractionIncomplete):
		return http.StatusUnprocessableEntity
	case errors.Is(err, parcel.ErrExtractionService):
		return http.StatusBadGateway
	case errors.Is(err, parcel.ErrLedgerUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, parcel.ErrLedgerRejected):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writePipelineError reports a failed pipeline run
func writePipelineError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	if perr, ok := parcel.AsError(err); ok {
		resp.Kind = perr.KindName()
		resp.Stage = perr.Stage
		resp.Fields = perr.Fields
		resp.Retryable = perr.Retryable()
	}
	writeJSON(w, statusFor(err), resp)
}

// handleIndex serves the camera page
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// handleUpload runs the pipeline on an uploaded label photo
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			errorMsg = "File is too large. Maximum size is 50MB. Please compress or resize your image."
		}
		writeError(w, http.StatusBadRequest, errorMsg)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		errorMsg := "No file provided"
		if errors.Is(err, http.ErrMissingFile) {
			errorMsg = "No file was selected. Please take a photo of the label."
		}
		writeError(w, http.StatusBadRequest, errorMsg)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return
	}

	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))

	ctx := r.Context()
	if s.opts.UploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.UploadTimeout)
		defer cancel()
	}

	result, err := s.service.LogUpload(ctx, header.Filename, data, contentType)
	if err != nil {
		slog.Error("Error logging parcel", "filename", header.Filename, "error", err)
		writePipelineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// handlePending returns the notices waiting to be sent
func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	notices, err := s.service.PendingNotices()
	if err != nil {
		s.queueError(w, err)
		return
	}

	status := "pending"
	if len(notices) == 0 {
		status = "empty"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": status,
		"count":  len(notices),
		"units":  notices,
	})
}

// handleComplete removes a unit once its resident was notified
func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Unit    string `json:"unit"`
		Success bool   `json:"success"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Unit) == "" {
		writeError(w, http.StatusBadRequest, "Unit is required")
		return
	}
	if !req.Success {
		slog.Warn("Resident notice failed", "unit", req.Unit)
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"status":  "error",
			"message": "Failed to notify unit " + req.Unit,
		})
		return
	}

	removed, remaining, err := s.service.CompleteUnit(req.Unit)
	if err != nil {
		s.queueError(w, err)
		return
	}

	slog.Info("Unit notified", "unit", req.Unit, "removed", removed, "remaining", remaining)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"removed":   removed,
		"remaining": remaining,
	})
}

// handleQueueStatus returns the queue size and pending units
func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.service.QueueStatus()
	if err != nil {
		s.queueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleClearQueue empties the queue
func (s *Server) handleClearQueue(w http.ResponseWriter, r *http.Request) {
	count, err := s.service.ClearQueue()
	if err != nil {
		s.queueError(w, err)
		return
	}

	slog.Info("Cleared notification queue", "count", count)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"cleared": count,
	})
}

func (s *Server) queueError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrQueueDisabled) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	slog.Error("Notification queue error", "error", err)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}
