package inventory

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pantrypal/pantry-tracker/internal/capture"
)

// maxUploadSize bounds multipart parsing; high-resolution phone photos
// can run large before normalization shrinks them.
const maxUploadSize = int64(50 << 20) // 50MB

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	setCORSHeaders(w)
	writeJSON(w, code, map[string]string{"error": message})
}

// handleCreateScan accepts a multipart upload and starts the pipeline.
// The optional "source" field distinguishes a live camera frame from a
// gallery selection; the two take different normalization paths.
func (s *Server) handleCreateScan(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		writeError(w, http.StatusBadRequest, "Error parsing form")
		return
	}

	// A client that could not get camera access reports it here so the
	// failure is distinguishable from a bad file.
	if r.FormValue("permission_denied") == "true" {
		writeError(w, http.StatusForbidden, capture.ErrPermissionDenied.Error())
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file was selected. Please choose a file to upload.")
		return
	}
	defer f.Close()

	if header.Size > maxUploadSize {
		writeError(w, http.StatusBadRequest, "File is too large. Maximum size is 50MB.")
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = contentTypeFromExt(header.Filename)
	}

	sess, err := s.service.StartScan(data, contentType, r.FormValue("source"))
	if err != nil {
		var decodeErr *capture.DecodeError
		if errors.As(err, &decodeErr) {
			writeError(w, http.StatusBadRequest, "Could not read the image. Supported formats: JPEG, PNG, GIF, HEIC, HEIF, PDF.")
			return
		}
		slog.Error("Error starting scan", "filename", header.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "Error processing image. Please try again.")
		return
	}

	setCORSHeaders(w)
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

func contentTypeFromExt(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	}
	return "application/octet-stream"
}

// handleGetScan returns the session snapshot: state, progress, items,
// and any pending error with its recovery options.
func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	sess, err := s.service.GetSession(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Scan not found")
		return
	}
	setCORSHeaders(w)
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// handleGetScanImage serves the stored capture for the review screen.
func (s *Server) handleGetScanImage(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.GetSessionImage(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Capture not found")
		return
	}
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(data)
}

// handleRetryScan re-runs the analysis on the stored capture.
func (s *Server) handleRetryScan(w http.ResponseWriter, r *http.Request) {
	err := s.service.Retry(r.PathValue("id"))
	switch {
	case err == nil:
	case errors.Is(err, ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "Scan not found")
		return
	case errors.Is(err, ErrBusy):
		writeError(w, http.StatusConflict, "Analysis already in progress")
		return
	default:
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	sess, _ := s.service.GetSession(r.PathValue("id"))
	setCORSHeaders(w)
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// handleRetakeScan discards the session.
func (s *Server) handleRetakeScan(w http.ResponseWriter, r *http.Request) {
	err := s.service.Retake(r.PathValue("id"))
	switch {
	case err == nil:
	case errors.Is(err, ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "Scan not found")
		return
	default:
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleUpdateScanItem edits one review item: field replacements plus
// an optional quantity delta, clamped at 1.
func (s *Server) handleUpdateScanItem(w http.ResponseWriter, r *http.Request) {
	sess, err := s.service.GetSession(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Scan not found")
		return
	}

	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid item index")
		return
	}

	var req struct {
		ItemEdit
		QuantityDelta *int `json:"quantity_delta,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := sess.EditItem(index, req.ItemEdit); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if req.QuantityDelta != nil {
		if err := sess.AdjustQuantity(index, *req.QuantityDelta); err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
	}

	setCORSHeaders(w)
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// handleDeleteScanItem removes one review item. Deleting the last item
// leaves an empty, still committable set.
func (s *Server) handleDeleteScanItem(w http.ResponseWriter, r *http.Request) {
	sess, err := s.service.GetSession(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Scan not found")
		return
	}

	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid item index")
		return
	}

	if err := sess.DeleteItem(index); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	setCORSHeaders(w)
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// handleCommitScan bulk-inserts the reviewed items.
func (s *Server) handleCommitScan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AddToShoppingList bool `json:"add_to_shopping_list"`
	}
	if r.Body != nil {
		// Body is optional; a bare POST commits with defaults.
		json.NewDecoder(r.Body).Decode(&req)
	}

	count, err := s.service.Commit(r.PathValue("id"), req.AddToShoppingList)
	switch {
	case err == nil:
	case errors.Is(err, ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "Scan not found")
		return
	case errors.Is(err, ErrCommitFailed):
		slog.Error("Error committing scan", "id", r.PathValue("id"), "error", err)
		writeError(w, http.StatusInternalServerError, "Could not save items. Please try again.")
		return
	default:
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	setCORSHeaders(w)
	writeJSON(w, http.StatusOK, map[string]int{"committed": count})
}

// handleListInventory returns all inventory items.
func (s *Server) handleListInventory(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.ListItems()
	if err != nil {
		slog.Error("Error listing inventory", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	setCORSHeaders(w)
	writeJSON(w, http.StatusOK, items)
}

// handleDeleteInventoryItem removes an inventory item.
func (s *Server) handleDeleteInventoryItem(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteItem(r.PathValue("id")); err != nil {
		writeError(w, http.StatusInternalServerError, "Error deleting item")
		return
	}
	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleListShoppingItems returns the shopping list.
func (s *Server) handleListShoppingItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.ListShoppingItems()
	if err != nil {
		slog.Error("Error listing shopping items", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	setCORSHeaders(w)
	writeJSON(w, http.StatusOK, items)
}

// handleAddShoppingItems appends entries to the shopping list.
func (s *Server) handleAddShoppingItems(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items []*ShoppingItem `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "At least one item is required")
		return
	}

	if err := s.service.AddShoppingItems(req.Items); err != nil {
		slog.Error("Error adding shopping items", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	setCORSHeaders(w)
	w.WriteHeader(http.StatusCreated)
}
