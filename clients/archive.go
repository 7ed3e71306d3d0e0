package clients

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
)

// --- Report archive (/upload) ---
type ArchiveResp struct {
	ID       string `json:"id"`
	Location string `json:"location"`
}

// Archive uploads a persisted report bundle as multipart form data.
func (h *HTTP) Archive(ctx context.Context, url, bundlePath, runID string) (*ArchiveResp, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	if err := w.WriteField("run_id", runID); err != nil {
		return nil, err
	}
	fw, err := w.CreateFormFile("file", filepath.Base(bundlePath))
	if err != nil {
		return nil, err
	}
	fd, err := os.Open(bundlePath)
	if err != nil {
		return nil, err
	}
	defer fd.Close()

	if _, err = io.Copy(fw, fd); err != nil {
		return nil, err
	}
	if err = w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url+"/upload", &b)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var out ArchiveResp
	if err := h.do(req, "archive", &out); err != nil {
		return nil, err
	}
	return &out, nil
}
