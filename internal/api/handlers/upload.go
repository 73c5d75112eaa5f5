package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var errNoFile = errors.New("file required")

// uploadName reduces a client supplied filename to a safe base name.
func uploadName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "upload.wav"
	}
	return name
}

// parseUpload parses a multipart request no larger than maxBytes.
func parseUpload(w http.ResponseWriter, r *http.Request, maxBytes int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return fmt.Errorf("invalid multipart form: %w", err)
	}
	return nil
}

// saveTemp writes fh into a fresh temporary directory under its own name and
// returns the path with a cleanup that removes the directory.
func saveTemp(fh *multipart.FileHeader) (string, func(), error) {
	dir, err := os.MkdirTemp("", "voicepro-upload-")
	if err != nil {
		return "", nil, fmt.Errorf("create temp dir: %w", err)
	}
	cleanup := func() { os.RemoveAll(dir) }

	path := filepath.Join(dir, uploadName(fh.Filename))
	if err := copyUpload(fh, path); err != nil {
		cleanup()
		return "", nil, err
	}
	return path, cleanup, nil
}

// spool writes fh into dir under a unique name for a worker to pick up.
func spool(fh *multipart.FileHeader, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create spool dir: %w", err)
	}
	path := filepath.Join(dir, uuid.NewString()+filepath.Ext(uploadName(fh.Filename)))
	if err := copyUpload(fh, path); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

func copyUpload(fh *multipart.FileHeader, path string) error {
	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("save upload: %w", err)
	}
	return dst.Close()
}

func formFile(r *http.Request, field string) (*multipart.FileHeader, error) {
	if r.MultipartForm == nil || len(r.MultipartForm.File[field]) == 0 {
		return nil, errNoFile
	}
	return r.MultipartForm.File[field][0], nil
}

func formValue(r *http.Request, key, def string) string {
	if v := r.FormValue(key); v != "" {
		return v
	}
	return def
}
