package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dvloznov/momo-tracker/internal/api/middleware"
	"github.com/dvloznov/momo-tracker/internal/domain"
	"github.com/dvloznov/momo-tracker/internal/pipeline"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// allowedExtension is the only accepted upload type.
const allowedExtension = ".xml"

// Importer runs one import batch.
type Importer interface {
	Import(ctx context.Context, log zerolog.Logger, req pipeline.ImportRequest) (*pipeline.ImportResult, error)
}

// UploadHandler accepts a backup file, imports it in replace mode and
// deletes the saved copy.
type UploadHandler struct {
	importer  Importer
	uploadDir string
	maxBytes  int64
	log       zerolog.Logger
}

// NewUploadHandler creates a new upload handler.
func NewUploadHandler(importer Importer, uploadDir string, maxBytes int64, log zerolog.Logger) *UploadHandler {
	return &UploadHandler{
		importer:  importer,
		uploadDir: uploadDir,
		maxBytes:  maxBytes,
		log:       log,
	}
}

// Upload handles POST /upload
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, "File too large")
		default:
			h.log.Warn().Err(err).Msg("No file part in request")
			middleware.WriteError(w, http.StatusBadRequest, "No file part")
		}
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if header.Filename == "" || name == "." || name == string(filepath.Separator) {
		middleware.WriteError(w, http.StatusBadRequest, "No selected file")
		return
	}
	if !strings.EqualFold(filepath.Ext(name), allowedExtension) {
		h.log.Warn().Str("filename", name).Msg("Invalid file type")
		middleware.WriteError(w, http.StatusBadRequest, "Invalid file type")
		return
	}

	path, err := h.save(file, name)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to save upload")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to save file")
		return
	}
	defer func() {
		if err := os.Remove(path); err != nil {
			h.log.Warn().Err(err).Str("path", path).Msg("Failed to remove uploaded file")
			return
		}
		h.log.Debug().Str("path", path).Msg("Cleaned up uploaded file")
	}()

	log := middleware.RequestLogger(r, h.log)
	result, err := h.importer.Import(r.Context(), log, pipeline.ImportRequest{
		SourceURI: path,
		Mode:      domain.ImportModeReplace,
	})
	if err != nil {
		log.Error().Err(err).Msg("Error processing file")
		middleware.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message":         "File uploaded and processed successfully",
		"processed_count": result.Persisted,
		"batch_id":        result.BatchID,
	})
}

// save writes the upload under uploadDir with a unique prefix.
func (h *UploadHandler) save(src io.Reader, name string) (string, error) {
	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("save: creating upload dir: %w", err)
	}
	path := filepath.Join(h.uploadDir, uuid.NewString()+"-"+name)

	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("save: creating file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", fmt.Errorf("save: writing file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("save: closing file: %w", err)
	}
	return path, nil
}
