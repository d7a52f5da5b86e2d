package parser

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hunkim/solar-vector-store/internal/errs"
)

func TestUpstageParse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/document-digitization", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "force", r.FormValue("ocr"))
		assert.Equal(t, "['table']", r.FormValue("base64_encoding"))
		assert.Equal(t, "document-parse", r.FormValue("model"))

		file, header, err := r.FormFile("document")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "report.pdf", header.Filename)
		data, _ := io.ReadAll(file)
		assert.Equal(t, "%PDF-1.7 fake", string(data))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"api": "2.0",
			"model": "document-parse-250116",
			"content": {"html": "<h1>Title</h1><p>Body</p>", "markdown": "", "text": ""},
			"elements": [
				{"id": 0, "category": "heading1", "page": 1, "content": {"html": "<h1>Title</h1>"}},
				{"id": 1, "category": "paragraph", "page": 2, "content": {"html": "<p>Body</p>"}}
			]
		}`))
	}))
	defer server.Close()

	client, err := NewUpstage(server.URL+"/v1/document-digitization", "test-key", 5*time.Second)
	require.NoError(t, err)

	resp, err := client.Parse(context.Background(), "report.pdf", []byte("%PDF-1.7 fake"))
	require.NoError(t, err)
	assert.Equal(t, "document-parse-250116", resp.Model)
	require.Len(t, resp.Elements, 2)
	assert.Equal(t, "heading1", resp.Elements[0].Category)
	assert.Equal(t, []string{"<h1>Title</h1>", "<p>Body</p>"}, resp.Pages())
}

func TestUpstageParseErrors(t *testing.T) {
	t.Run("non-2xx", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
		}))
		defer server.Close()

		client, err := NewUpstage(server.URL, "bad", time.Second)
		require.NoError(t, err)

		_, err = client.Parse(context.Background(), "a.pdf", []byte("x"))
		var up *errs.UpstreamError
		require.ErrorAs(t, err, &up)
		assert.Equal(t, http.StatusUnauthorized, up.StatusCode)
		assert.ErrorIs(t, err, errs.ErrUpstream)
	})

	t.Run("bad json", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>gateway</html>`))
		}))
		defer server.Close()

		client, err := NewUpstage(server.URL, "k", time.Second)
		require.NoError(t, err)

		_, err = client.Parse(context.Background(), "a.pdf", []byte("x"))
		assert.ErrorIs(t, err, errs.ErrUpstream)
	})

	t.Run("timeout", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer server.Close()

		client, err := NewUpstage(server.URL, "k", 20*time.Millisecond)
		require.NoError(t, err)

		_, err = client.Parse(context.Background(), "a.pdf", []byte("x"))
		assert.ErrorIs(t, err, errs.ErrTransport)
	})
}

func TestNewUpstageValidation(t *testing.T) {
	_, err := NewUpstage("", "k", time.Second)
	assert.Error(t, err)

	_, err = NewUpstage("http://example.com", "", time.Second)
	assert.Error(t, err)
}
