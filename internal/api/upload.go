package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const maxUploadSize = 10 << 20

type UploadResponse struct {
	Url  string `json:"url"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// upload stores the multipart "file" part under a random name, keeping only
// the original extension.
func (s *DevHubApp) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+1024)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		var maxErr *http.MaxBytesError
		var errResp *ApiError
		if errors.As(err, &maxErr) {
			errResp = NewRequestEntityTooLargeError()
		} else {
			errResp = NewBadRequestError()
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		errResp := NewValidationError("missing file")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	defer file.Close()

	if header.Size > maxUploadSize {
		errResp := NewRequestEntityTooLargeError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	name := uuid.New().String() + strings.ToLower(filepath.Ext(filepath.Base(header.Filename)))
	size, err := s.saveUpload(name, file)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, UploadResponse{
		Url:  "/uploads/" + name,
		Name: filepath.Base(header.Filename),
		Size: size,
	})
}

func (s *DevHubApp) saveUpload(name string, src io.Reader) (int64, error) {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return 0, fmt.Errorf("create upload dir: %w", err)
	}

	dst, err := os.Create(filepath.Join(s.uploadDir, name))
	if err != nil {
		return 0, fmt.Errorf("create file: %w", err)
	}
	defer dst.Close()

	n, err := io.Copy(dst, src)
	if err != nil {
		os.Remove(dst.Name())
		return 0, fmt.Errorf("write file: %w", err)
	}

	return n, nil
}
