package vector

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
)

// HTTPEmbedder calls a sentence-transformers- or Infinity-compatible
// embeddings endpoint (`POST {url}/embeddings`, OpenAI-shaped request and
// response) — the same request/response shape the teacher's OpenAI-family
// providers already speak.
type HTTPEmbedder struct {
	url    string
	model  string
	client *http.Client
}

func NewHTTPEmbedder(url, model string) *HTTPEmbedder {
	return &HTTPEmbedder{url: url, model: model, client: &http.Client{Timeout: 30 * time.Second}}
}

type embeddingRequest struct {
	Input string `json:"input"`
	Model string `json:"model,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := sonic.Marshal(embeddingRequest{Input: text, Model: e.model})
	if err != nil {
		return nil, fmt.Errorf("vector: encode embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("vector: build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vector: embedding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vector: embedding endpoint returned %s", resp.Status)
	}

	var out embeddingResponse
	if err := sonic.ConfigDefault.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("vector: decode embedding response: %w", err)
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("vector: embedding endpoint returned no vectors")
	}
	return out.Data[0].Embedding, nil
}
