// Package openaicompat implements the OpenRouter and SiliconFlow members of
// ModelGateway's closed provider variant (spec §9) over a single
// OpenAI-compatible client, grounded on the teacher's
// pkg/model/provider/dmr.Client (same openai-go/v3 client, swapped base
// URL, no Docker-specific endpoint discovery).
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/claude-memory/claude-memory-go/pkg/httpclient"
	"github.com/claude-memory/claude-memory-go/pkg/modelgateway"
)

// Client talks to any OpenAI-compatible endpoint (openrouter.ai,
// api.siliconflow.cn) via openai-go/v3, plus a native rerank REST call for
// providers exposing /v1/rerank.
type Client struct {
	name       string
	baseURL    string
	apiKey     string
	client     openai.Client
	httpClient *http.Client
}

// New builds a Client. name identifies the provider for error messages and
// cost-tracker attribution ("openrouter" or "siliconflow").
func New(name, baseURL, apiKey string) *Client {
	hc := httpclient.NewHTTPClient(httpclient.WithProvider(name))
	return &Client{
		name:    name,
		baseURL: baseURL,
		apiKey:  apiKey,
		client: openai.NewClient(
			option.WithBaseURL(baseURL),
			option.WithAPIKey(apiKey),
			option.WithHTTPClient(hc),
		),
		httpClient: hc,
	}
}

func (c *Client) Name() string { return c.name }

func (c *Client) Initialize(context.Context) error { return nil }

func (c *Client) IsAvailable(context.Context) bool { return c.apiKey != "" }

func (c *Client) SupportedTasks() []string { return []string{"complete", "embed", "rerank"} }

func (c *Client) Cleanup() error { return nil }

func (c *Client) Complete(ctx context.Context, model string, messages []modelgateway.Message, params modelgateway.CompletionParams) (modelgateway.CompletionResult, error) {
	msgParams := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			msgParams = append(msgParams, openai.SystemMessage(m.Content))
		case "assistant":
			msgParams = append(msgParams, openai.AssistantMessage(m.Content))
		default:
			msgParams = append(msgParams, openai.UserMessage(m.Content))
		}
	}

	req := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: msgParams,
	}
	if params.Temperature > 0 {
		req.Temperature = openai.Float(params.Temperature)
	}
	if params.MaxTokens > 0 {
		req.MaxTokens = openai.Int(int64(params.MaxTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, req)
	if err != nil {
		return modelgateway.CompletionResult{}, modelgateway.Retryable(err, classifyOpenAIErr(err))
	}
	if len(resp.Choices) == 0 {
		return modelgateway.CompletionResult{}, fmt.Errorf("%s: no completion choices returned", c.name)
	}

	return modelgateway.CompletionResult{
		Content: resp.Choices[0].Message.Content,
		Usage: modelgateway.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

func (c *Client) Embed(ctx context.Context, model, text string) (modelgateway.EmbedResult, error) {
	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: model,
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{text}},
	})
	if err != nil {
		return modelgateway.EmbedResult{}, modelgateway.Retryable(err, classifyOpenAIErr(err))
	}
	if len(resp.Data) == 0 {
		return modelgateway.EmbedResult{}, fmt.Errorf("%s: no embedding returned", c.name)
	}

	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return modelgateway.EmbedResult{Vector: vec, Dim: len(vec)}, nil
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n,omitempty"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Rerank calls the provider's native /rerank endpoint (OpenAI's chat API has
// no rerank operation), mirroring the teacher's DMR rerank REST call.
func (c *Client) Rerank(ctx context.Context, model, query string, docs []string, topK int) (modelgateway.RerankResult, error) {
	if len(docs) == 0 {
		return modelgateway.RerankResult{}, nil
	}

	body, err := json.Marshal(rerankRequest{Model: model, Query: query, Documents: docs, TopN: topK})
	if err != nil {
		return modelgateway.RerankResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return modelgateway.RerankResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return modelgateway.RerankResult{}, modelgateway.Retryable(err, true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return modelgateway.RerankResult{}, modelgateway.Retryable(
			fmt.Errorf("%s: rerank failed with status %d: %s", c.name, resp.StatusCode, string(b)),
			resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
		)
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return modelgateway.RerankResult{}, err
	}
	if len(parsed.Results) != len(docs) {
		return modelgateway.RerankResult{}, fmt.Errorf("%s: expected %d rerank scores, got %d", c.name, len(docs), len(parsed.Results))
	}

	scores := make([]float64, len(docs))
	for _, r := range parsed.Results {
		if r.Index < 0 || r.Index >= len(docs) {
			continue
		}
		scores[r.Index] = r.RelevanceScore
	}
	return modelgateway.RerankResult{Scores: scores}, nil
}

// classifyOpenAIErr treats timeouts and 5xx/429 as retryable, other 4xx as not.
func classifyOpenAIErr(err error) bool {
	var apiErr *openai.Error
	if asOpenAIError(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusTooManyRequests
	}
	return true
}

func asOpenAIError(err error, target **openai.Error) bool {
	for err != nil {
		if e, ok := err.(*openai.Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
