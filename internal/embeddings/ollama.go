package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/hunkim/solar-vector-store/internal/errs"
)

// Task prefixes for specific models
var taskPrefixes = map[string]struct {
	passage string
	query   string
}{
	"nomic-embed-text": {
		passage: "search_document: ",
		query:   "search_query: ",
	},
	"mxbai-embed-large": {
		passage: "", // No prefix for passages
		query:   "Represent this sentence for searching relevant passages: ",
	},
}

// OllamaService implements the embedding service using a local Ollama server.
type OllamaService struct {
	baseURL      string
	passageModel string
	queryModel   string
	client       *http.Client
}

// ollamaEmbedRequest is the request body for the Ollama embed API.
type ollamaEmbedRequest struct {
	Model    string   `json:"model"`
	Input    []string `json:"input"`
	Truncate bool     `json:"truncate,omitempty"`
}

// ollamaEmbedResponse is the response from the Ollama embed API.
type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaService creates a new Ollama embedding service. An empty query
// model means the passage model is used for both.
func NewOllamaService(baseURL, passageModel, queryModel string, timeout time.Duration) (*OllamaService, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if passageModel == "" {
		return nil, fmt.Errorf("ollama embedding model is required")
	}
	if queryModel == "" {
		queryModel = passageModel
	}
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &OllamaService{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		passageModel: passageModel,
		queryModel:   queryModel,
		client:       &http.Client{Timeout: timeout},
	}, nil
}

// Embed generates a passage embedding.
func (s *OllamaService) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.embed(ctx, s.passageModel, applyPrefix(s.passageModel, text, ModePassage))
}

// EmbedQuery generates a query embedding.
func (s *OllamaService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return s.embed(ctx, s.queryModel, applyPrefix(s.queryModel, text, ModeQuery))
}

// Provider returns the provider name.
func (s *OllamaService) Provider() Provider {
	return ProviderOllama
}

// ModelName returns the model name for a mode.
func (s *OllamaService) ModelName(mode Mode) string {
	if mode == ModeQuery {
		return s.queryModel
	}
	return s.passageModel
}

// applyPrefix applies the appropriate task prefix for the model.
func applyPrefix(model, text string, mode Mode) string {
	prefixes, ok := taskPrefixes[model]
	if !ok {
		return text
	}

	if mode == ModeQuery {
		return prefixes.query + text
	}
	return prefixes.passage + text
}

// embed performs the actual embedding request.
func (s *OllamaService) embed(ctx context.Context, model, text string) ([]float32, error) {
	const op = "embed"

	jsonBody, err := json.Marshal(ollamaEmbedRequest{
		Model:    model,
		Input:    []string{text},
		Truncate: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/embed", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	log.Debug("Requesting embedding from Ollama", "model", model, "chars", len(text))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errs.Transport(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &errs.UpstreamError{Service: "ollama", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errs.E(op, errs.ErrUpstream, fmt.Errorf("failed to decode response: %w", err))
	}
	if len(result.Embeddings) == 0 || len(result.Embeddings[0]) == 0 {
		return nil, errs.E(op, errs.ErrUpstream, fmt.Errorf("no embedding returned"))
	}

	return result.Embeddings[0], nil
}
