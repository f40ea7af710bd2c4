package api

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/quickdesk/livechat/internal/domain"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

type uploadResponse struct {
	FileURL  string `json:"file_url"`
	FileName string `json:"file_name"`
	FileType string `json:"file_type"`
}

// Upload stores a multipart file under a generated name and returns
// its retrievable URL.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		Error(w, http.StatusBadRequest, fmt.Sprintf("file too large (max %d bytes)", h.maxUploadBytes))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		Error(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			slog.Debug("Failed to close uploaded file", "error", closeErr)
		}
	}()

	if err := os.MkdirAll(h.uploadDir, 0755); err != nil {
		Error(w, http.StatusInternalServerError, "failed to prepare upload directory")
		return
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	uniqueName := uuid.NewString() + ext
	dst, err := os.Create(filepath.Join(h.uploadDir, uniqueName))
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to store file")
		return
	}
	defer func() {
		_ = dst.Close()
	}()

	if _, err := io.Copy(dst, file); err != nil {
		Error(w, http.StatusInternalServerError, "failed to store file")
		return
	}

	fileType := domain.MessageFile
	if imageExtensions[ext] {
		fileType = domain.MessageImage
	}

	JSON(w, http.StatusOK, uploadResponse{
		FileURL:  "/api/uploads/" + uniqueName,
		FileName: header.Filename,
		FileType: fileType,
	})
}
