// Package client talks to a running solar-vector-store server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hunkim/solar-vector-store/internal/registry"
	"github.com/hunkim/solar-vector-store/internal/vectordb"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("server returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Detail)
}

// UploadResult is the answer to a file upload.
type UploadResult struct {
	FileID string `json:"file_id"`
	Pages  int    `json:"pages"`
}

// Health is the answer of the health endpoint.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Stores  int    `json:"stores"`
}

// Client calls the HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the server at baseURL.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", baseURL)
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.doJSON(ctx, http.MethodGet, "/healthz", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// CreateStore creates a vector store and returns its ID.
func (c *Client) CreateStore(ctx context.Context, name string, dimension int, distance vectordb.Distance) (string, error) {
	body := map[string]any{"name": name, "dimension": dimension}
	if distance != "" {
		body["distance"] = distance
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/vector_stores", body, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// ListStores lists every store.
func (c *Client) ListStores(ctx context.Context) ([]registry.Summary, error) {
	var stores []registry.Summary
	if err := c.doJSON(ctx, http.MethodGet, "/vector_stores", nil, &stores); err != nil {
		return nil, err
	}
	return stores, nil
}

// GetStore returns the metadata of one store.
func (c *Client) GetStore(ctx context.Context, id string) (*registry.VectorStore, error) {
	var st registry.VectorStore
	if err := c.doJSON(ctx, http.MethodGet, storePath(id), nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// UpdateStore renames a store and/or changes its metric. Nil arguments are
// left unchanged.
func (c *Client) UpdateStore(ctx context.Context, id string, name *string, distance *vectordb.Distance) (*registry.VectorStore, error) {
	body := map[string]any{}
	if name != nil {
		body["name"] = *name
	}
	if distance != nil {
		body["distance"] = *distance
	}
	var st registry.VectorStore
	if err := c.doJSON(ctx, http.MethodPatch, storePath(id), body, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// DeleteStore deletes a store and its collection.
func (c *Client) DeleteStore(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, storePath(id), nil, nil)
}

// Upload sends one document to a store.
func (c *Client) Upload(ctx context.Context, storeID, filename string, content io.Reader) (*UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := io.Copy(fw, content); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+storePath(storeID)+"/files", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var res UploadResult
	if err := c.send(req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListFiles returns the file records of a store keyed by file ID.
func (c *Client) ListFiles(ctx context.Context, storeID string) (map[string]registry.FileRecord, error) {
	var files map[string]registry.FileRecord
	if err := c.doJSON(ctx, http.MethodGet, storePath(storeID)+"/files", nil, &files); err != nil {
		return nil, err
	}
	return files, nil
}

// GetFile returns one file record.
func (c *Client) GetFile(ctx context.Context, storeID, fileID string) (*registry.FileRecord, error) {
	var rec registry.FileRecord
	if err := c.doJSON(ctx, http.MethodGet, filePath(storeID, fileID), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeleteFile removes a file record and the vectors stored under its name.
func (c *Client) DeleteFile(ctx context.Context, storeID, fileID string) error {
	return c.doJSON(ctx, http.MethodDelete, filePath(storeID, fileID), nil, nil)
}

// Query returns the topK pages nearest to text.
func (c *Client) Query(ctx context.Context, storeID, text string, topK int) ([]vectordb.Hit, error) {
	body := map[string]any{"query": text}
	if topK > 0 {
		body["top_k"] = topK
	}
	var hits []vectordb.Hit
	if err := c.doJSON(ctx, http.MethodPost, storePath(storeID)+"/query", body, &hits); err != nil {
		return nil, err
	}
	return hits, nil
}

func storePath(id string) string {
	return "/vector_stores/" + url.PathEscape(id)
}

func filePath(storeID, fileID string) string {
	return storePath(storeID) + "/files/" + url.PathEscape(fileID)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var body struct {
			Detail string `json:"detail"`
		}
		if data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); err == nil {
			if json.Unmarshal(data, &body) == nil {
				apiErr.Detail = body.Detail
			} else {
				apiErr.Detail = strings.TrimSpace(string(data))
			}
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
