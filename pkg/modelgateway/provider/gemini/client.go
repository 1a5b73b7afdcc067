// Package gemini implements the Gemini member of ModelGateway's closed
// provider variant (spec §9) as a hand-rolled REST client: no Gemini Go SDK
// appears anywhere in the example pack, so this follows the teacher's
// pattern of a direct net/http call for endpoints without SDK coverage (see
// pkg/model/provider/dmr.Client's native /rerank call) rather than adding a
// dependency absent from the corpus.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/claude-memory/claude-memory-go/pkg/httpclient"
	"github.com/claude-memory/claude-memory-go/pkg/modelgateway"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func New(apiKey string) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: httpclient.NewHTTPClient(httpclient.WithProvider("gemini")),
	}
}

func (c *Client) Name() string { return "gemini" }

func (c *Client) Initialize(context.Context) error { return nil }

func (c *Client) IsAvailable(context.Context) bool { return c.apiKey != "" }

func (c *Client) SupportedTasks() []string { return []string{"complete", "embed"} }

func (c *Client) Cleanup() error { return nil }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type generateRequest struct {
	Contents          []geminiContent  `json:"contents"`
	SystemInstruction *geminiContent   `json:"systemInstruction,omitempty"`
	GenerationConfig  generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int64 `json:"promptTokenCount"`
		CandidatesTokenCount int64 `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

func (c *Client) Complete(ctx context.Context, model string, messages []modelgateway.Message, params modelgateway.CompletionParams) (modelgateway.CompletionResult, error) {
	req := generateRequest{
		GenerationConfig: generationConfig{
			Temperature:     params.Temperature,
			MaxOutputTokens: params.MaxTokens,
		},
	}

	for _, m := range messages {
		if m.Role == "system" {
			sys := geminiContent{Parts: []geminiPart{{Text: m.Content}}}
			req.SystemInstruction = &sys
			continue
		}
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		req.Contents = append(req.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, model, c.apiKey)

	var parsed generateResponse
	if err := c.post(ctx, url, req, &parsed); err != nil {
		return modelgateway.CompletionResult{}, err
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return modelgateway.CompletionResult{}, fmt.Errorf("gemini: no candidates returned")
	}

	return modelgateway.CompletionResult{
		Content: parsed.Candidates[0].Content.Parts[0].Text,
		Usage: modelgateway.Usage{
			InputTokens:  parsed.UsageMetadata.PromptTokenCount,
			OutputTokens: parsed.UsageMetadata.CandidatesTokenCount,
		},
	}, nil
}

type embedRequest struct {
	Model   string        `json:"model"`
	Content geminiContent `json:"content"`
}

type embedResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

func (c *Client) Embed(ctx context.Context, model, text string) (modelgateway.EmbedResult, error) {
	req := embedRequest{
		Model:   "models/" + model,
		Content: geminiContent{Parts: []geminiPart{{Text: text}}},
	}
	url := fmt.Sprintf("%s/models/%s:embedContent?key=%s", c.baseURL, model, c.apiKey)

	var parsed embedResponse
	if err := c.post(ctx, url, req, &parsed); err != nil {
		return modelgateway.EmbedResult{}, err
	}
	return modelgateway.EmbedResult{Vector: parsed.Embedding.Values, Dim: len(parsed.Embedding.Values)}, nil
}

// Rerank is not offered by the Gemini API and always fails with a
// non-retryable error; Gateway.Rerank routes by model name only and does
// not fall back to another provider.
func (c *Client) Rerank(context.Context, string, string, []string, int) (modelgateway.RerankResult, error) {
	return modelgateway.RerankResult{}, modelgateway.Retryable(fmt.Errorf("gemini: rerank not supported"), false)
}

func (c *Client) post(ctx context.Context, url string, reqBody, out any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return modelgateway.Retryable(err, true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		retryable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return modelgateway.Retryable(fmt.Errorf("gemini: request failed with status %d: %s", resp.StatusCode, string(b)), retryable)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
