package tiles

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rob634/rmhtitiler-sub001/internal/api/presenter"
	"github.com/rob634/rmhtitiler-sub001/internal/config"
)

// relayHeaders are the response headers a blob answer carries through to
// the tile client.
var relayHeaders = []string{
	"Content-Type",
	"Content-Length",
	"Content-Range",
	"Accept-Ranges",
	"ETag",
	"Last-Modified",
	"Cache-Control",
}

// conditionalHeaders are the request headers forwarded to blob storage
// so range reads and client caching keep working through the relay.
var conditionalHeaders = []string{
	"Range",
	"If-None-Match",
	"If-Modified-Since",
}

// BlobHandler serves pre-rendered tiles straight out of blob storage.
//
// It deliberately reads the account and SAS token from the environment
// on every request instead of taking them as constructor arguments:
// the environment is the publishing contract, and this handler consumes
// it exactly like an external reader would.
type BlobHandler struct {
	client    *http.Client
	endpoint  string
	container string

	accountVar string
	tokenVar   string
}

func NewBlobHandler(cfg config.StorageConfig) *BlobHandler {
	return &BlobHandler{
		client:     &http.Client{Timeout: 30 * time.Second},
		endpoint:   cfg.Endpoint,
		container:  cfg.Container,
		accountVar: cfg.AccountVar,
		tokenVar:   cfg.TokenVar,
	}
}

func (h *BlobHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		presenter.Error(w, r, "missing tile key", http.StatusNotFound)
		return
	}

	account := os.Getenv(h.accountVar)
	if account == "" {
		presenter.Error(w, r, "storage credentials not published yet", http.StatusServiceUnavailable)
		return
	}

	endpoint := h.endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.blob.core.windows.net", account)
	}
	blobURL := fmt.Sprintf("%s/%s/%s", endpoint, h.container, key)
	if token := os.Getenv(h.tokenVar); token != "" {
		blobURL += "?" + token
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, blobURL, nil)
	if err != nil {
		presenter.Error(w, r, "invalid tile key", http.StatusBadRequest)
		return
	}
	for _, name := range conditionalHeaders {
		if value := r.Header.Get(name); value != "" {
			req.Header.Set(name, value)
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		log.Ctx(r.Context()).Error().
			Err(err).
			Str("key", key).
			Msg("blob fetch failed")
		presenter.Error(w, r, "fetching tile from storage failed", http.StatusBadGateway)
		return
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	for _, name := range relayHeaders {
		if value := resp.Header.Get(name); value != "" {
			w.Header().Set(name, value)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		log.Ctx(r.Context()).Debug().
			Err(err).
			Str("key", key).
			Msg("tile relay interrupted")
	}
}
