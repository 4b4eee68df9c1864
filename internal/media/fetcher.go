package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	pkgerrors "github.com/forgelabs-ai/mediaforge-backend/pkg/errors"
)

// Fetcher downloads provider-hosted results before they expire. Downloads
// are size-bounded because provider URLs are untrusted input.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

func NewFetcher(client *http.Client, maxBytes int64) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{client: client, maxBytes: maxBytes}
}

// Fetch downloads the object at url and reports its bytes and content type.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "media URL must be http or https")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build media request")
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeNetwork, err, "fetch media")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", pkgerrors.New(pkgerrors.CodeNetwork, fmt.Sprintf("media host returned status %d", resp.StatusCode))
	}
	if resp.ContentLength > f.maxBytes {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "media exceeds the size limit")
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeNetwork, err, "read media body")
	}
	if int64(len(data)) > f.maxBytes {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "media exceeds the size limit")
	}

	contentType := resp.Header.Get("Content-Type")
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = contentType[:idx]
	}
	contentType = strings.TrimSpace(contentType)
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}

var extByMime = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/webp": "webp",
	"image/gif":  "gif",
	"video/mp4":  "mp4",
	"video/webm": "webm",
}

func extensionFor(mimeType string) string {
	if ext, ok := extByMime[mimeType]; ok {
		return ext
	}
	return "bin"
}
