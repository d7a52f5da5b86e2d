package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/hunkim/solar-vector-store/internal/errs"
)

// UpstageService implements the embedding service against Upstage's
// OpenAI-compatible embeddings endpoint.
type UpstageService struct {
	client       openai.Client
	passageModel string
	queryModel   string
}

// UpstageOptions configures an UpstageService.
type UpstageOptions struct {
	APIKey string
	// EmbedURL is the full embeddings endpoint, e.g.
	// https://api.upstage.ai/v1/solar/embeddings.
	EmbedURL     string
	PassageModel string
	QueryModel   string
	Timeout      time.Duration
}

// NewUpstageService creates a new Upstage embedding service. The client
// never retries; a failed call is reported to the caller as is.
func NewUpstageService(opts UpstageOptions) (*UpstageService, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("Upstage API key is required")
	}
	if opts.PassageModel == "" || opts.QueryModel == "" {
		return nil, fmt.Errorf("passage and query models are required")
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if base := baseURL(opts.EmbedURL); base != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(base))
	}
	if opts.Timeout > 0 {
		clientOpts = append(clientOpts, option.WithRequestTimeout(opts.Timeout))
	}

	return &UpstageService{
		client:       openai.NewClient(clientOpts...),
		passageModel: opts.PassageModel,
		queryModel:   opts.QueryModel,
	}, nil
}

// baseURL strips the endpoint name so the SDK can append it again.
func baseURL(embedURL string) string {
	return strings.TrimSuffix(strings.TrimSuffix(embedURL, "/"), "/embeddings")
}

// Embed generates a passage embedding.
func (s *UpstageService) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.embed(ctx, s.passageModel, text)
}

// EmbedQuery generates a query embedding.
func (s *UpstageService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return s.embed(ctx, s.queryModel, text)
}

// Provider returns the provider name.
func (s *UpstageService) Provider() Provider {
	return ProviderUpstage
}

// ModelName returns the model name for a mode.
func (s *UpstageService) ModelName(mode Mode) string {
	if mode == ModeQuery {
		return s.queryModel
	}
	return s.passageModel
}

func (s *UpstageService) embed(ctx context.Context, model, text string) ([]float32, error) {
	const op = "embed"
	log.Debug("Requesting embedding from Upstage", "model", model, "chars", len(text))

	resp, err := s.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: []string{text},
		},
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &errs.UpstreamError{Service: "embeddings", StatusCode: apiErr.StatusCode, Body: apiErr.Message}
		}
		return nil, errs.Transport(op, err)
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errs.E(op, errs.ErrUpstream, fmt.Errorf("no embedding returned"))
	}

	// Convert float64 to float32
	src := resp.Data[0].Embedding
	embedding := make([]float32, len(src))
	for i, v := range src {
		embedding[i] = float32(v)
	}
	return embedding, nil
}
