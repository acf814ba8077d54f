package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPReranker scores (query, passage) pairs against a remote cross-encoder
// endpoint, mirroring the LLM Router's provider-client shape: one small
// HTTP client parameterized by base URL and API key.
type HTTPReranker struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPReranker(baseURL, apiKey string) *HTTPReranker {
	return &HTTPReranker{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	} `json:"results"`
}

// Score calls the remote endpoint once for all passages and returns logits
// in the same order as the input. Any transport or decode failure is
// returned as an error, which the retriever treats as a degrade-to-no-rerank
// signal rather than a hard failure.
func (h *HTTPReranker) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	payload, err := json.Marshal(rerankRequest{Query: query, Documents: passages})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/rerank", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+h.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
		return nil, fmt.Errorf("reranker request failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	scores := make([]float64, len(passages))
	for _, r := range out.Results {
		if r.Index >= 0 && r.Index < len(scores) {
			scores[r.Index] = r.Score
		}
	}
	return scores, nil
}
