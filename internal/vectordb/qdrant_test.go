package vectordb

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hunkim/solar-vector-store/internal/errs"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	APIKey string
	Body   map[string]any
}

func newQdrantTestServer(t *testing.T, handler func(w http.ResponseWriter, r recordedRequest)) (*QdrantIndex, *[]recordedRequest) {
	t.Helper()
	var requests []recordedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			APIKey: r.Header.Get("api-key"),
		}
		data, _ := io.ReadAll(r.Body)
		if len(data) > 0 {
			require.NoError(t, json.Unmarshal(data, &rec.Body))
		}
		requests = append(requests, rec)
		handler(w, rec)
	}))
	t.Cleanup(server.Close)

	idx, err := NewQdrantIndex(QdrantConfig{URL: server.URL + "/", APIKey: "secret", Timeout: 5 * time.Second})
	require.NoError(t, err)
	return idx, &requests
}

func okHandler(w http.ResponseWriter, r recordedRequest) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"result":true,"status":"ok"}`))
}

func TestQdrantCreateCollection(t *testing.T) {
	idx, requests := newQdrantTestServer(t, func(w http.ResponseWriter, r recordedRequest) {
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"status":{"error":"Not found"}}`))
			return
		}
		okHandler(w, r)
	})

	err := idx.CreateCollection(context.Background(), "vs_1", 4096, Cosine)
	require.NoError(t, err)

	require.Len(t, *requests, 2)
	del, put := (*requests)[0], (*requests)[1]
	assert.Equal(t, http.MethodDelete, del.Method)
	assert.Equal(t, "/collections/vs_1", del.Path)
	assert.Equal(t, http.MethodPut, put.Method)
	assert.Equal(t, "/collections/vs_1", put.Path)
	assert.Equal(t, "secret", put.APIKey)
	assert.Equal(t, map[string]any{"size": float64(4096), "distance": "Cosine"}, put.Body["vectors"])
}

func TestQdrantCreateIndex(t *testing.T) {
	idx, requests := newQdrantTestServer(t, okHandler)

	require.NoError(t, idx.CreateIndex(context.Background(), "vs_1", FieldFile))

	req := (*requests)[0]
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/collections/vs_1/index", req.Path)
	assert.Equal(t, "wait=true", req.Query)
	assert.Equal(t, "file", req.Body["field_name"])
	assert.Equal(t, "keyword", req.Body["field_schema"])
}

func TestQdrantUpsert(t *testing.T) {
	idx, requests := newQdrantTestServer(t, okHandler)

	err := idx.Upsert(context.Background(), "vs_1", []Point{
		{ID: "p1", Vector: []float32{0.5, 1}, Payload: Payload{File: "a.pdf", Page: 2}},
	})
	require.NoError(t, err)

	req := (*requests)[0]
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/collections/vs_1/points", req.Path)
	assert.Equal(t, "wait=true", req.Query)

	points := req.Body["points"].([]any)
	require.Len(t, points, 1)
	p := points[0].(map[string]any)
	assert.Equal(t, "p1", p["id"])
	assert.Equal(t, []any{0.5, float64(1)}, p["vector"])
	assert.Equal(t, map[string]any{"file": "a.pdf", "page": float64(2)}, p["payload"])

	// Empty batches make no request
	require.NoError(t, idx.Upsert(context.Background(), "vs_1", nil))
	assert.Len(t, *requests, 1)
}

func TestQdrantDeleteByFilter(t *testing.T) {
	idx, requests := newQdrantTestServer(t, okHandler)

	require.NoError(t, idx.DeleteByFilter(context.Background(), "vs_1", FieldFile, "report.pdf"))

	req := (*requests)[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/collections/vs_1/points/delete", req.Path)
	filter := req.Body["filter"].(map[string]any)
	must := filter["must"].([]any)
	require.Len(t, must, 1)
	assert.Equal(t, map[string]any{"key": "file", "match": map[string]any{"value": "report.pdf"}}, must[0])
}

func TestQdrantSearch(t *testing.T) {
	idx, requests := newQdrantTestServer(t, func(w http.ResponseWriter, r recordedRequest) {
		w.Write([]byte(`{"result":[
			{"id":"7c9e6679-7425-40de-944b-e07fc1f90ae7","version":1,"score":0.91,"payload":{"file":"a.pdf","page":3}},
			{"id":42,"version":1,"score":0.5,"payload":{"file":"b.pdf","page":0}}
		],"status":"ok"}`))
	})

	hits, err := idx.Search(context.Background(), "vs_1", []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, Hit{ID: "7c9e6679-7425-40de-944b-e07fc1f90ae7", Score: 0.91, Payload: Payload{File: "a.pdf", Page: 3}}, hits[0])
	assert.Equal(t, "42", hits[1].ID)

	req := (*requests)[0]
	assert.Equal(t, "/collections/vs_1/points/search", req.Path)
	assert.Equal(t, float64(2), req.Body["limit"])
	assert.Equal(t, true, req.Body["with_payload"])
}

func TestQdrantErrors(t *testing.T) {
	t.Run("upstream status", func(t *testing.T) {
		idx, _ := newQdrantTestServer(t, func(w http.ResponseWriter, r recordedRequest) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":{"error":"overloaded"}}`))
		})

		err := idx.Upsert(context.Background(), "vs_1", []Point{{ID: "p", Vector: []float32{1}}})
		assert.ErrorIs(t, err, errs.ErrBackingStore)
		assert.ErrorIs(t, err, errs.ErrUpstream)

		var up *errs.UpstreamError
		require.ErrorAs(t, err, &up)
		assert.Equal(t, http.StatusServiceUnavailable, up.StatusCode)
		assert.Contains(t, up.Body, "overloaded")
	})

	t.Run("delete of a missing collection is not an error", func(t *testing.T) {
		idx, _ := newQdrantTestServer(t, func(w http.ResponseWriter, r recordedRequest) {
			w.WriteHeader(http.StatusNotFound)
		})
		assert.NoError(t, idx.DeleteCollection(context.Background(), "vs_gone"))
	})

	t.Run("transport failure", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		idx, err := NewQdrantIndex(QdrantConfig{URL: url, Timeout: time.Second})
		require.NoError(t, err)

		_, err = idx.Search(context.Background(), "vs_1", []float32{1}, 1)
		assert.ErrorIs(t, err, errs.ErrBackingStore)
		assert.ErrorIs(t, err, errs.ErrTransport)
	})

	t.Run("bad json", func(t *testing.T) {
		idx, _ := newQdrantTestServer(t, func(w http.ResponseWriter, r recordedRequest) {
			w.Write([]byte(`not json`))
		})
		_, err := idx.Search(context.Background(), "vs_1", []float32{1}, 1)
		assert.ErrorIs(t, err, errs.ErrBackingStore)
		assert.ErrorIs(t, err, errs.ErrUpstream)
	})
}

func TestNewQdrantIndexRequiresURL(t *testing.T) {
	_, err := NewQdrantIndex(QdrantConfig{})
	assert.Error(t, err)
}
