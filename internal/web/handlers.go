package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/amosdev/attendance/internal/detect"
	"github.com/amosdev/attendance/internal/feature"
	"github.com/amosdev/attendance/internal/recognizer"
	"github.com/amosdev/attendance/internal/store"
)

// maxUploadSize bounds multipart request bodies (32 MB).
const maxUploadSize = 32 << 20

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// saveUploadedFiles saves multipart files to a temporary directory and
// returns their paths.
func saveUploadedFiles(files []*multipart.FileHeader, tempDir string) ([]string, error) {
	var paths []string
	for i, fileHeader := range files {
		if err := func() error {
			file, err := fileHeader.Open()
			if err != nil {
				return fmt.Errorf("failed to open file: %s", fileHeader.Filename)
			}
			defer file.Close()

			// Prefix with the part index so uploads sharing a basename
			// do not overwrite each other.
			safeName := fmt.Sprintf("%d_%s", i, filepath.Base(fileHeader.Filename))
			tempPath := filepath.Join(tempDir, safeName)
			out, err := os.Create(tempPath)
			if err != nil {
				return errors.New("failed to create temp file")
			}

			if _, err := io.Copy(out, file); err != nil {
				out.Close()
				return errors.New("failed to save file")
			}
			out.Close()

			paths = append(paths, tempPath)
			return nil
		}(); err != nil {
			return nil, err
		}
	}
	return paths, nil
}

// Register enrolls a person from uploaded face images. Multipart fields:
// name (required), images (one or more files), replace (optional "true").
func (s *Server) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	name := r.FormValue("name")
	if name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	files := r.MultipartForm.File["images"]
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "at least one image is required")
		return
	}
	replace := r.FormValue("replace") == "true"

	tempDir, err := os.MkdirTemp("", "register-*")
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create temp directory")
		return
	}
	defer os.RemoveAll(tempDir)

	paths, err := saveUploadedFiles(files, tempDir)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := s.rec.Register(r.Context(), name, paths, replace)
	switch {
	case errors.Is(err, recognizer.ErrDuplicateIdentity):
		respondError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, feature.ErrPoorQuality), errors.Is(err, feature.ErrFaceTooSmall), errors.Is(err, detect.ErrNoFace):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	respondJSON(w, http.StatusCreated, user)
}

// Recognize runs one frame through the pipeline. Multipart field: image.
func (s *Server) Recognize(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "image is required")
		return
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to decode image")
		return
	}

	event, err := s.rec.Recognize(r.Context(), img)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "recognition failed")
		return
	}
	respondJSON(w, http.StatusOK, event)
}

// ListUsers returns all enrolled users.
func (s *Server) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	if users == nil {
		users = []store.User{}
	}
	respondJSON(w, http.StatusOK, users)
}

// ListAttendance returns attendance rows, filtered by ?day=YYYY-MM-DD.
func (s *Server) ListAttendance(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.ListAttendance(r.Context(), r.URL.Query().Get("day"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list attendance")
		return
	}
	if rows == nil {
		rows = []store.Row{}
	}
	respondJSON(w, http.StatusOK, rows)
}

// Stats returns per-day attendance aggregates.
func (s *Server) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to aggregate attendance")
		return
	}
	if stats == nil {
		stats = []store.DayStats{}
	}
	respondJSON(w, http.StatusOK, stats)
}

// CacheStatus reports the feature cache's shape.
func (s *Server) CacheStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"identities": s.cache.Identities(),
		"samples":    s.cache.SampleCount(),
	})
}

// CacheSweep triggers a staleness sweep and reports what was rebuilt.
func (s *Server) CacheSweep(w http.ResponseWriter, r *http.Request) {
	rebuilt, err := s.rec.SweepStale(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "cache sweep failed")
		return
	}
	if rebuilt == nil {
		rebuilt = []string{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"rebuilt": rebuilt})
}
