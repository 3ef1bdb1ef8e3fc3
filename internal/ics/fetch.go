package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"agendacal/internal/cache"
	appLog "agendacal/internal/log"
)

// Source represents a single ICS subscription.
type Source struct {
	// ID is the configured source id.
	ID string
	// URL is the ICS endpoint.
	URL string
	// Username/Password enable HTTP basic auth when both are set.
	Username string
	Password string
}

// FetchResult contains the outcome of fetching a single ICS source.
type FetchResult struct {
	Source    Source
	Body      []byte // ICS payload (either freshly fetched or from cache)
	FromCache bool   // true if we reused the cached body
}

// httpMeta holds HTTP cache metadata for a single ICS URL.
type httpMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher fetches ICS feeds with HTTP conditional requests (ETag /
// Last-Modified). Bodies and metadata are kept in a cache.Store so a feed
// that is temporarily unreachable can still be served.
type Fetcher struct {
	client *http.Client
	store  cache.Store
}

// NewFetcher creates a new ICS Fetcher. A nil store keeps bodies in memory.
func NewFetcher(store cache.Store) *Fetcher {
	if store == nil {
		store = cache.NewMemoryStore()
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		store: store,
	}
}

// WithClient replaces the HTTP client.
func (f *Fetcher) WithClient(c *http.Client) *Fetcher {
	f.client = c
	return f
}

// FetchOne fetches a single ICS source, honoring ETag and Last-Modified.
func (f *Fetcher) FetchOne(ctx context.Context, src Source) (FetchResult, error) {
	if src.URL == "" {
		return FetchResult{}, errors.New("source URL is empty")
	}

	metaKey, bodyKey := cacheKeysForURL(src.URL)
	meta, _ := f.loadMeta(metaKey)
	cachedBody, _ := f.store.Get(bodyKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return FetchResult{}, err
	}
	if src.Username != "" && src.Password != "" {
		req.SetBasicAuth(src.Username, src.Password)
	}

	// Conditional headers only make sense when we still hold the body.
	if len(cachedBody) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	appLog.Debug("ics fetch start", "id", src.ID, "url", redactURL(src.URL))

	resp, err := f.client.Do(req)
	if err != nil {
		// Network error; if we have a cached body, fall back to it.
		if len(cachedBody) > 0 {
			appLog.Error("ics fetch network error, using cached body", err, "id", src.ID, "url", redactURL(src.URL))
			return FetchResult{Source: src, Body: cachedBody, FromCache: true}, nil
		}
		return FetchResult{}, fmt.Errorf("fetch %s: %w", redactURL(src.URL), err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return FetchResult{}, readErr
		}

		newMeta := httpMeta{
			URL:          src.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if err := f.save(metaKey, bodyKey, newMeta, body); err != nil {
			// Log but still return the freshly fetched body.
			appLog.Error("ics cache save failed", err, "id", src.ID, "url", redactURL(src.URL))
		}

		appLog.Info("ics fetch success", "id", src.ID, "url", redactURL(src.URL), "bytes", len(body))
		return FetchResult{Source: src, Body: body}, nil

	case http.StatusNotModified:
		if len(cachedBody) == 0 {
			return FetchResult{}, errors.New("received 304 Not Modified but no cached body available")
		}
		appLog.Debug("ics fetch not modified; using cache", "id", src.ID, "url", redactURL(src.URL))
		return FetchResult{Source: src, Body: cachedBody, FromCache: true}, nil

	default:
		if len(cachedBody) > 0 {
			appLog.Error("ics fetch non-OK, using cached body", errors.New(resp.Status), "id", src.ID, "url", redactURL(src.URL), "status", resp.StatusCode)
			return FetchResult{Source: src, Body: cachedBody, FromCache: true}, nil
		}
		return FetchResult{}, fmt.Errorf("fetch %s: %s", redactURL(src.URL), resp.Status)
	}
}

// cacheKeysForURL derives store keys from a hash of the URL.
func cacheKeysForURL(url string) (meta, body string) {
	sum := sha256.Sum256([]byte(url))
	id := hex.EncodeToString(sum[:8])
	return "ics-" + id + ".meta", "ics-" + id + ".body"
}

func (f *Fetcher) loadMeta(key string) (httpMeta, error) {
	var meta httpMeta
	data, err := f.store.Get(key)
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return httpMeta{}, err
	}
	return meta, nil
}

func (f *Fetcher) save(metaKey, bodyKey string, meta httpMeta, body []byte) error {
	// Write body first so meta never points at a missing body.
	if err := f.store.Set(bodyKey, body); err != nil {
		return err
	}
	meta.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(&meta)
	if err != nil {
		return err
	}
	return f.store.Set(metaKey, data)
}

// redactURL hides sensitive parts of an ICS URL for logging purposes.
//
//	https://example.com/path/to/private.ics?token=abcd
//	-> https://example.com/...(redacted)
func redactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := -1
	for idx := 0; idx+2 < len(u); idx++ {
		if u[idx:idx+3] == "://" {
			i = idx + 3
			break
		}
	}
	if i == -1 {
		return "ics://...(redacted)"
	}

	j := i
	for j < len(u) && u[j] != '/' {
		j++
	}
	return u[:j] + redactedSuffix
}
