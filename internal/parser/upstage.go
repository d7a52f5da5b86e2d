package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/hunkim/solar-vector-store/internal/errs"
)

const (
	upstageModel          = "document-parse"
	upstageOCR            = "force"
	upstageBase64Encoding = "['table']"
)

// Upstage calls the Upstage document digitization API.
type Upstage struct {
	url    string
	apiKey string
	client *http.Client
}

// NewUpstage creates a parser client. timeout bounds each call.
func NewUpstage(url, apiKey string, timeout time.Duration) (*Upstage, error) {
	if url == "" {
		return nil, fmt.Errorf("document parse URL is required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("Upstage API key is required")
	}
	return &Upstage{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// Parse uploads the document and decodes the parse result. Network failures
// are reported as errs.ErrTransport, non-2xx answers and undecodable bodies
// as errs.ErrUpstream.
func (u *Upstage) Parse(ctx context.Context, filename string, content []byte) (*Response, error) {
	const op = "parse document"

	body, contentType, err := buildForm(filename, content)
	if err != nil {
		return nil, fmt.Errorf("failed to build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+u.apiKey)

	log.Debug("Requesting document parse", "file", filename, "bytes", len(content))

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, errs.Transport(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &errs.UpstreamError{Service: "document parse", StatusCode: resp.StatusCode, Body: string(data)}
	}

	var result Response
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errs.E(op, errs.ErrUpstream, fmt.Errorf("failed to decode response: %w", err))
	}
	return &result, nil
}

func buildForm(filename string, content []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("document", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(content); err != nil {
		return nil, "", err
	}

	fields := [][2]string{
		{"ocr", upstageOCR},
		{"base64_encoding", upstageBase64Encoding},
		{"model", upstageModel},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
