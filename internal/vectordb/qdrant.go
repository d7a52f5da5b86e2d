package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/hunkim/solar-vector-store/internal/errs"
)

// QdrantIndex is a REST client to a Qdrant server.
type QdrantIndex struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// QdrantConfig configures a QdrantIndex.
type QdrantConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// NewQdrantIndex creates a Qdrant client. No request is made until first use.
func NewQdrantIndex(cfg QdrantConfig) (*QdrantIndex, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant URL is required")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid qdrant URL: %w", err)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 300 * time.Second
	}
	return &QdrantIndex{
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (q *QdrantIndex) Backend() string { return "qdrant" }

type qdrantVectorParams struct {
	Size     int      `json:"size"`
	Distance Distance `json:"distance"`
}

// CreateCollection drops the collection if present, then creates it.
func (q *QdrantIndex) CreateCollection(ctx context.Context, name string, dimension int, distance Distance) error {
	const op = "create collection"
	if err := q.dropCollection(ctx, name); err != nil {
		return backingErr(op, err)
	}
	body := map[string]any{
		"vectors": qdrantVectorParams{Size: dimension, Distance: distance},
	}
	if err := q.do(ctx, http.MethodPut, q.collectionPath(name), body, nil); err != nil {
		return backingErr(op, err)
	}
	log.Debug("Created qdrant collection", "collection", name, "dimension", dimension, "distance", distance)
	return nil
}

func (q *QdrantIndex) CreateIndex(ctx context.Context, collection, field string) error {
	body := map[string]any{
		"field_name":   field,
		"field_schema": "keyword",
	}
	if err := q.do(ctx, http.MethodPut, q.collectionPath(collection)+"/index?wait=true", body, nil); err != nil {
		return backingErr("create index", err)
	}
	return nil
}

func (q *QdrantIndex) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	body := map[string]any{"points": points}
	if err := q.do(ctx, http.MethodPut, q.collectionPath(collection)+"/points?wait=true", body, nil); err != nil {
		return backingErr("upsert", err)
	}
	return nil
}

func (q *QdrantIndex) DeleteByFilter(ctx context.Context, collection, field, value string) error {
	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": field, "match": map[string]any{"value": value}},
			},
		},
	}
	if err := q.do(ctx, http.MethodPost, q.collectionPath(collection)+"/points/delete?wait=true", body, nil); err != nil {
		return backingErr("delete points", err)
	}
	return nil
}

func (q *QdrantIndex) DeleteCollection(ctx context.Context, name string) error {
	if err := q.dropCollection(ctx, name); err != nil {
		return backingErr("delete collection", err)
	}
	return nil
}

// dropCollection deletes a collection, treating 404 as success.
func (q *QdrantIndex) dropCollection(ctx context.Context, name string) error {
	err := q.do(ctx, http.MethodDelete, q.collectionPath(name), nil, nil)
	var up *errs.UpstreamError
	if err != nil && errors.As(err, &up) && up.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}

type qdrantPointID string

func (id *qdrantPointID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = qdrantPointID(s)
		return nil
	}
	var n uint64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("unsupported point id %s", string(data))
	}
	*id = qdrantPointID(strconv.FormatUint(n, 10))
	return nil
}

type qdrantSearchResponse struct {
	Result []struct {
		ID      qdrantPointID `json:"id"`
		Score   float64       `json:"score"`
		Payload Payload       `json:"payload"`
	} `json:"result"`
}

func (q *QdrantIndex) Search(ctx context.Context, collection string, vector []float32, limit int) ([]Hit, error) {
	body := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	var resp qdrantSearchResponse
	if err := q.do(ctx, http.MethodPost, q.collectionPath(collection)+"/points/search", body, &resp); err != nil {
		return nil, backingErr("search", err)
	}

	hits := make([]Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		hits = append(hits, Hit{ID: string(r.ID), Score: r.Score, Payload: r.Payload})
	}
	return hits, nil
}

// Close releases idle connections.
func (q *QdrantIndex) Close() error {
	q.client.CloseIdleConnections()
	return nil
}

func (q *QdrantIndex) collectionPath(name string) string {
	return "/collections/" + url.PathEscape(name)
}

// do sends a JSON request and decodes a JSON response into out when non-nil.
func (q *QdrantIndex) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	log.Debug("Qdrant request", "method", method, "path", path)

	resp, err := q.client.Do(req)
	if err != nil {
		return errs.Transport("qdrant "+method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &errs.UpstreamError{Service: "qdrant", StatusCode: resp.StatusCode, Body: string(data)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errs.E("qdrant "+method, errs.ErrUpstream, fmt.Errorf("failed to decode response: %w", err))
		}
	}
	return nil
}
