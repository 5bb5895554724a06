package review

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/estimate-analyzer/internal/classify"
	"github.com/zombor/estimate-analyzer/internal/scanning"
	"github.com/zombor/estimate-analyzer/internal/supervisor"
)

// maxUploadSize bounds multipart uploads (multi-page scanned estimates are large)
const maxUploadSize = int64(50 << 20)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// rejectionBody is the error body for UNKNOWN and AMBIGUOUS verdicts
func rejectionBody(rej *classify.RejectionError) map[string]any {
	return map[string]any{
		"error":          "classification rejected",
		"reason":         rej.Reason,
		"classification": rej.Verdict.Classification,
		"scores":         rej.Verdict.Scores,
	}
}

// writeServiceError maps the pipeline error taxonomy to HTTP status codes
func writeServiceError(w http.ResponseWriter, err error) {
	var rej *classify.RejectionError
	switch {
	case errors.Is(err, ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "Review not found")
	case errors.As(err, &rej):
		writeJSON(w, http.StatusUnprocessableEntity, rejectionBody(rej))
	case errors.Is(err, ErrClassificationRejected):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, supervisor.ErrDeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, ErrExtractionFailed):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, ErrStorageFailed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

type classifyRequest struct {
	Text      string   `json:"text"`
	LineItems []string `json:"lineItems"`
}

// handleClassify runs the keyword classifier on posted text
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	verdict, err := s.service.Classify(req.Text, req.LineItems)
	var rej *classify.RejectionError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, verdict)
	case errors.As(err, &rej):
		writeJSON(w, http.StatusBadRequest, rejectionBody(rej))
	case errors.Is(err, classify.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "text or lineItems is required")
	default:
		slog.Error("Error classifying estimate", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// handleListReviews returns a list of all reviews
func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := s.service.ListReviews()
	if err != nil {
		slog.Error("Error listing reviews", "error", err)
		writeServiceError(w, err)
		return
	}

	// Ensure we always return an array, not null
	if reviews == nil {
		reviews = []*Review{}
	}
	writeJSON(w, http.StatusOK, reviews)
}

// detectContentType falls back to the file extension when the part has no type
func detectContentType(header string, filename string) string {
	contentType := strings.ToLower(strings.TrimSpace(header))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

// handleUploadReview uploads an estimate and analyzes it
func (s *Server) handleUploadReview(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errorMsg = "File is too large. Maximum size is 50MB."
		}
		writeError(w, http.StatusBadRequest, errorMsg)
		return
	}

	source, err := scanning.ParseDocumentType(r.FormValue("documentType"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "documentType must be contractor or carrier")
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		writeError(w, http.StatusBadRequest, "No file was selected. Please choose a file to upload.")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return
	}

	contentType := detectContentType(header.Header.Get("Content-Type"), header.Filename)

	review, err := s.service.Upload(r.Context(), header.Filename, data, contentType, source)
	if err != nil {
		slog.Error("Error processing estimate", "filename", header.Filename, "error", err)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, review)
}

// handleGetReview returns a single review
func (s *Server) handleGetReview(w http.ResponseWriter, r *http.Request) {
	review, err := s.service.GetReview(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

// handleReanalyze re-runs the pipeline on a stored document
func (s *Server) handleReanalyze(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	review, err := s.service.Reanalyze(r.Context(), id)
	if err != nil {
		slog.Error("Error reanalyzing review", "review_id", id, "error", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

// handleGetDocument returns the original uploaded document
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetDocument(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleExportReview returns the review as an XLSX workbook
func (s *Server) handleExportReview(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	data, err := s.service.ExportWorkbook(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="review-`+id+`.xlsx"`)
	w.Write(data)
}

// handleDeleteReview deletes a review and its document
func (s *Server) handleDeleteReview(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteReview(r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListOperations returns the supervisor log
func (s *Server) handleListOperations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Operations())
}

// handleOperationsSummary returns aggregate pipeline statistics
func (s *Server) handleOperationsSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.OperationsSummary())
}

// handleClearOperations empties the supervisor log
func (s *Server) handleClearOperations(w http.ResponseWriter, r *http.Request) {
	s.service.ClearOperations()
	w.WriteHeader(http.StatusNoContent)
}
