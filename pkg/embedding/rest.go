package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/docindex/docindex/internal/errors"
)

var defaultBaseURLs = map[Provider]string{
	ProviderOpenAI:    "https://api.openai.com/v1/embeddings",
	ProviderVertex:    "https://us-central1-aiplatform.googleapis.com/v1/embeddings",
	ProviderGemini:    "https://generativelanguage.googleapis.com/v1beta/models",
	ProviderAWS:       "https://bedrock-runtime.us-east-1.amazonaws.com/embeddings",
	ProviderMicrosoft: "https://api.cognitive.microsoft.com/embeddings",
	ProviderSageMaker: "https://runtime.sagemaker.us-east-1.amazonaws.com/embeddings",
}

// restEmbedder embeds text against an HTTP endpoint exposing an
// OpenAI-compatible `{"input": [...], "model": "..."}` to
// `{"data": [{"embedding": [...]}]}` contract. Every recognized cloud
// provider is treated as an instance of this same request/response shape,
// differing only in base URL and headers. A provider that genuinely
// diverges (distinct auth scheme, distinct payload) would get its own
// implementation file.
type restEmbedder struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string

	mu   sync.RWMutex
	dims int
}

func newRESTEmbedder(cfg Config) *restEmbedder {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURLs[cfg.Provider]
	}
	key := cfg.APIKey
	if key == "" {
		key = cfg.Credentials
	}
	return &restEmbedder{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: baseURL,
		apiKey:  key,
		model:   cfg.Model,
	}
}

type restEmbedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type restEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (e *restEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *restEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	cfg := errors.DefaultRetryConfig()
	result, err := errors.RetryWithResult(ctx, cfg, func() ([][]float32, error) {
		return e.doEmbed(ctx, texts)
	})
	if err != nil {
		return nil, errors.ProviderError(fmt.Sprintf("embedding request to %s failed", e.model), err)
	}

	e.mu.Lock()
	if e.dims == 0 && len(result) > 0 {
		e.dims = len(result[0])
	}
	e.mu.Unlock()

	return result, nil
}

func (e *restEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(restEmbedRequest{Input: texts, Model: e.model})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(e.apiKey))
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding endpoint returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var decoded restEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}
	if len(decoded.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(decoded.Data))
	}

	vectors := make([][]float32, len(decoded.Data))
	for i, d := range decoded.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

func (e *restEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

func (e *restEmbedder) ModelName() string { return e.model }

func (e *restEmbedder) Close() error {
	e.client.CloseIdleConnections()
	return nil
}
