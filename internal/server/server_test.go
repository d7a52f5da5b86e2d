package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hunkim/solar-vector-store/internal/embeddings"
	"github.com/hunkim/solar-vector-store/internal/errs"
	"github.com/hunkim/solar-vector-store/internal/ingest"
	"github.com/hunkim/solar-vector-store/internal/metrics"
	"github.com/hunkim/solar-vector-store/internal/parser"
	"github.com/hunkim/solar-vector-store/internal/registry"
	"github.com/hunkim/solar-vector-store/internal/search"
	"github.com/hunkim/solar-vector-store/internal/vectordb"
)

const dim = 4

// pageParser splits the uploaded bytes on "|" and returns one element per
// piece. A body of "!" fails like an unreachable parser.
type pageParser struct{}

func (pageParser) Parse(ctx context.Context, filename string, content []byte) (*parser.Response, error) {
	if string(content) == "!" {
		return nil, errs.Transport("parse", errors.New("dial tcp: secret-host:443 refused"))
	}
	resp := &parser.Response{}
	for i, piece := range strings.Split(string(content), "|") {
		resp.Elements = append(resp.Elements, parser.Element{Page: i + 1, Content: parser.Content{Text: piece}})
	}
	return resp, nil
}

// textEmbedder maps a text onto a fixed vector and fails for texts that
// start with "fail".
type textEmbedder struct{}

func (textEmbedder) vector(text string) []float32 {
	v := []float32{0.1, 0.1, 0.1, 0.1}
	v[len(text)%dim] = 1
	return v
}

func (e textEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.HasPrefix(text, "fail") {
		return nil, &errs.UpstreamError{Service: "embeddings", StatusCode: 500, Body: "secret upstream body"}
	}
	return e.vector(text), nil
}

func (e textEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if strings.HasPrefix(text, "fail") {
		return nil, errs.Transport("embed", context.DeadlineExceeded)
	}
	return e.vector(text), nil
}

func (textEmbedder) Provider() embeddings.Provider         { return "test" }
func (textEmbedder) ModelName(mode embeddings.Mode) string { return "test" }

type testServer struct {
	handler http.Handler
	index   *vectordb.MemoryIndex
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()

	index := vectordb.NewMemoryIndex()
	reg := registry.New(index)
	m := metrics.New()

	opts.Mode = gin.TestMode
	if opts.Version == "" {
		opts.Version = "test"
	}
	srv, err := New(Dependencies{
		Registry: reg,
		Ingester: ingest.New(reg, pageParser{}, textEmbedder{}, ingest.Options{Concurrency: 2, Metrics: m}),
		Searcher: search.New(reg, index, textEmbedder{}, m),
		Metrics:  m,
	}, opts)
	require.NoError(t, err)

	return &testServer{handler: srv.Handler(), index: index}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func (ts *testServer) upload(t *testing.T, storeID, filename, content string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/vector_stores/"+storeID+"/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func (ts *testServer) createStore(t *testing.T, name string) string {
	t.Helper()

	w := ts.do(t, http.MethodPost, "/vector_stores", map[string]any{"name": name, "dimension": dim})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, name, resp.Name)
	return resp.ID
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func detail(t *testing.T, w *httptest.ResponseRecorder) string {
	return decode[map[string]string](t, w)["detail"]
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Dependencies{}, Options{Mode: gin.TestMode})
	assert.Error(t, err)
}

func TestStoreLifecycle(t *testing.T) {
	ts := newTestServer(t, Options{})
	id := ts.createStore(t, "docs")

	w := ts.do(t, http.MethodGet, "/vector_stores", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]registry.Summary](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, registry.Summary{ID: id, Name: "docs", Dimension: dim, Distance: vectordb.Cosine}, list[0])

	w = ts.do(t, http.MethodGet, "/vector_stores/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[registry.VectorStore](t, w)
	assert.Equal(t, "vs_"+id, st.Collection)
	assert.Empty(t, st.Files)

	w = ts.do(t, http.MethodPatch, "/vector_stores/"+id, map[string]any{"name": "renamed"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "renamed", decode[registry.VectorStore](t, w).Name)

	w = ts.do(t, http.MethodDelete, "/vector_stores/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "deleted", decode[map[string]string](t, w)["status"])
	assert.Equal(t, -1, ts.index.Count("vs_"+id))

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		w = ts.do(t, method, "/vector_stores/"+id, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "Vector store not found", detail(t, w))
	}
	w = ts.do(t, http.MethodPatch, "/vector_stores/"+id, map[string]any{"name": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListStoresEmpty(t *testing.T) {
	ts := newTestServer(t, Options{})
	w := ts.do(t, http.MethodGet, "/vector_stores", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestCreateStoreValidation(t *testing.T) {
	ts := newTestServer(t, Options{})

	tests := []struct {
		name string
		body any
	}{
		{"malformed json", `{"name":`},
		{"wrong type", map[string]any{"name": "a", "dimension": "big"}},
		{"missing name", map[string]any{"dimension": 4}},
		{"zero dimension", map[string]any{"name": "a", "dimension": 0}},
		{"unknown distance", map[string]any{"name": "a", "dimension": 4, "distance": "Hamming"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/vector_stores", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.NotEmpty(t, detail(t, w))
		})
	}

	assert.JSONEq(t, `[]`, ts.do(t, http.MethodGet, "/vector_stores", nil).Body.String())
}

func TestCreateStoreDistance(t *testing.T) {
	ts := newTestServer(t, Options{})

	w := ts.do(t, http.MethodPost, "/vector_stores", map[string]any{"name": "e", "dimension": 8, "distance": "euclid"})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode[map[string]string](t, w)["id"]

	st := decode[registry.VectorStore](t, ts.do(t, http.MethodGet, "/vector_stores/"+id, nil))
	assert.Equal(t, vectordb.Euclid, st.Distance)
	assert.Equal(t, 8, st.Dimension)
}

func TestUploadAndQuery(t *testing.T) {
	ts := newTestServer(t, Options{})
	id := ts.createStore(t, "docs")

	w := ts.upload(t, id, "report.pdf", "a|bb|ccc")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	up := decode[struct {
		FileID string `json:"file_id"`
		Pages  int    `json:"pages"`
	}](t, w)
	assert.NotEmpty(t, up.FileID)
	assert.Equal(t, 3, up.Pages)

	w = ts.do(t, http.MethodGet, "/vector_stores/"+id+"/files", nil)
	require.Equal(t, http.StatusOK, w.Code)
	files := decode[map[string]registry.FileRecord](t, w)
	require.Contains(t, files, up.FileID)
	assert.Equal(t, "report.pdf", files[up.FileID].Filename)
	assert.Equal(t, 3, files[up.FileID].Pages)

	w = ts.do(t, http.MethodGet, "/vector_stores/"+id+"/files/"+up.FileID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(8), decode[registry.FileRecord](t, w).Size)

	w = ts.do(t, http.MethodPost, "/vector_stores/"+id+"/query", map[string]any{"query": "xx", "top_k": 2})
	require.Equal(t, http.StatusOK, w.Code)
	hits := decode[[]vectordb.Hit](t, w)
	require.Len(t, hits, 2)
	assert.Equal(t, "report.pdf", hits[0].Payload.File)
	assert.Equal(t, 1, hits[0].Payload.Page, "the page with the same embedding ranks first")

	w = ts.do(t, http.MethodPost, "/vector_stores/"+id+"/query", map[string]any{"query": "xx"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]vectordb.Hit](t, w), 3, "top_k defaults to 10")

	w = ts.do(t, http.MethodDelete, "/vector_stores/"+id+"/files/"+up.FileID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, ts.index.Count("vs_"+id))

	w = ts.do(t, http.MethodGet, "/vector_stores/"+id+"/files/"+up.FileID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "File not found", detail(t, w))

	w = ts.do(t, http.MethodPost, "/vector_stores/"+id+"/query", map[string]any{"query": "xx"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestUploadPartialFailure(t *testing.T) {
	ts := newTestServer(t, Options{})
	id := ts.createStore(t, "docs")

	w := ts.upload(t, id, "mixed.pdf", "one|fail here|three|fail again")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, float64(2), decode[map[string]any](t, w)["pages"])
	assert.Equal(t, 2, ts.index.Count("vs_"+id))
}

func TestUploadErrors(t *testing.T) {
	ts := newTestServer(t, Options{})
	id := ts.createStore(t, "docs")

	t.Run("unknown store", func(t *testing.T) {
		w := ts.upload(t, "missing", "a.pdf", "a")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "Vector store not found", detail(t, w))
	})

	t.Run("no file field", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/vector_stores/"+id+"/files", map[string]any{"file": "x"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Invalid file upload", detail(t, w))
	})

	t.Run("empty file", func(t *testing.T) {
		w := ts.upload(t, id, "empty.pdf", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("parser unreachable", func(t *testing.T) {
		w := ts.upload(t, id, "a.pdf", "!")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "Document parsing failed", detail(t, w))
		assert.NotContains(t, w.Body.String(), "secret-host")
	})

	t.Run("every page fails", func(t *testing.T) {
		w := ts.upload(t, id, "a.pdf", "fail1|fail2")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "No embeddings generated", detail(t, w))
		assert.NotContains(t, w.Body.String(), "secret upstream body")
	})

	files := decode[map[string]registry.FileRecord](t, ts.do(t, http.MethodGet, "/vector_stores/"+id+"/files", nil))
	assert.Empty(t, files)
	assert.Equal(t, 0, ts.index.Count("vs_"+id))
}

func TestUploadTooLarge(t *testing.T) {
	ts := newTestServer(t, Options{MaxUploadBytes: 512})
	id := ts.createStore(t, "docs")

	w := ts.upload(t, id, "big.pdf", strings.Repeat("x", 4096))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, ts.index.Count("vs_"+id))
}

func TestMetricChangeClearsVectors(t *testing.T) {
	ts := newTestServer(t, Options{})
	id := ts.createStore(t, "docs")

	require.Equal(t, http.StatusCreated, ts.upload(t, id, "a.pdf", "a|bb").Code)
	require.Equal(t, 2, ts.index.Count("vs_"+id))

	w := ts.do(t, http.MethodPatch, "/vector_stores/"+id, map[string]any{"distance": "Dot"})
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[registry.VectorStore](t, w)
	assert.Equal(t, vectordb.Dot, st.Distance)
	assert.Equal(t, dim, st.Dimension)
	assert.Empty(t, st.Files)
	assert.Equal(t, 0, ts.index.Count("vs_"+id))

	w = ts.do(t, http.MethodPatch, "/vector_stores/"+id, map[string]any{"distance": "Chebyshev"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteFileSharedFilename(t *testing.T) {
	ts := newTestServer(t, Options{})
	id := ts.createStore(t, "docs")

	first := decode[map[string]any](t, ts.upload(t, id, "same.pdf", "a|bb"))["file_id"].(string)
	second := decode[map[string]any](t, ts.upload(t, id, "same.pdf", "ccc"))["file_id"].(string)
	require.Equal(t, 3, ts.index.Count("vs_"+id))

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodDelete, "/vector_stores/"+id+"/files/"+first, nil).Code)

	assert.Equal(t, 0, ts.index.Count("vs_"+id), "vectors of every upload named same.pdf are removed")
	w := ts.do(t, http.MethodGet, "/vector_stores/"+id+"/files/"+second, nil)
	assert.Equal(t, http.StatusOK, w.Code, "the other record survives")
}

func TestQueryErrors(t *testing.T) {
	ts := newTestServer(t, Options{})
	id := ts.createStore(t, "docs")

	tests := []struct {
		name   string
		store  string
		body   any
		status int
		detail string
	}{
		{"unknown store", "missing", map[string]any{"query": "q"}, http.StatusNotFound, "Vector store not found"},
		{"empty query", id, map[string]any{"query": ""}, http.StatusBadRequest, "Invalid query"},
		{"negative top_k", id, map[string]any{"query": "q", "top_k": -1}, http.StatusBadRequest, "Invalid query"},
		{"malformed body", id, `{`, http.StatusBadRequest, "Invalid request body"},
		{"embedding failure", id, map[string]any{"query": "fail"}, http.StatusInternalServerError, "Failed to embed query"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/vector_stores/"+tt.store+"/query", tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.detail, detail(t, w))
		})
	}
}

func TestFileRoutesUnknownStore(t *testing.T) {
	ts := newTestServer(t, Options{})

	w := ts.do(t, http.MethodGet, "/vector_stores/missing/files", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Vector store not found", detail(t, w))

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		w = ts.do(t, method, "/vector_stores/missing/files/abc", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "File not found", detail(t, w))
	}
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, Options{Version: "1.2.3"})
	ts.createStore(t, "docs")

	w := ts.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	health := decode[map[string]any](t, w)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "1.2.3", health["version"])
	assert.Equal(t, float64(1), health["stores"])

	w = ts.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "svs_http_requests_total")
	assert.Contains(t, w.Body.String(), "svs_vector_stores 1")
}

func TestRequestID(t *testing.T) {
	ts := newTestServer(t, Options{})

	w := ts.do(t, http.MethodGet, "/healthz", nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w = httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}

func TestAPIReference(t *testing.T) {
	assert.Contains(t, APIReference, "/vector_stores/{id}/query")
}
