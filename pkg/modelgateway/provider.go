// Package modelgateway implements ModelGateway (spec §4.4): a uniform
// complete/embed/rerank contract over the closed provider variant
// {gemini, openrouter, siliconflow}, with ordered fallback, retry with
// exponential backoff, and a per-provider circuit breaker. Grounded on the
// teacher's pkg/model/provider.New dispatch-by-type shape and
// pkg/model/provider/base.Config embedding pattern.
package modelgateway

import "context"

// Message is a single chat turn passed to Complete.
type Message struct {
	Role    string
	Content string
}

// CompletionParams carries the knobs spec §4.4/§4.12 name.
type CompletionParams struct {
	Temperature float64
	MaxTokens   int
}

// Usage is the token accounting a provider call reports.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// CompletionResult is ModelGateway.complete's return value.
type CompletionResult struct {
	Content  string
	Usage    Usage
	Cost     float64
	Metadata map[string]any
}

// EmbedResult is ModelGateway.embed's return value.
type EmbedResult struct {
	Vector []float32
	Dim    int
	Cost   float64
}

// RerankResult is ModelGateway.rerank's return value: one score per input
// document, same order.
type RerankResult struct {
	Scores []float64
	Cost   float64
}

// Provider is the closed tagged variant {Gemini, OpenRouter, SiliconFlow}
// behind a common interface (spec §9).
type Provider interface {
	Name() string
	Initialize(ctx context.Context) error
	Complete(ctx context.Context, model string, messages []Message, params CompletionParams) (CompletionResult, error)
	Embed(ctx context.Context, model, text string) (EmbedResult, error)
	Rerank(ctx context.Context, model, query string, docs []string, topK int) (RerankResult, error)
	IsAvailable(ctx context.Context) bool
	SupportedTasks() []string
	Cleanup() error
}

// RetryableError is implemented by provider errors that know whether a
// retry is worthwhile (timeouts, 5xx, rate-limit vs. other 4xx).
type RetryableError interface {
	error
	Retryable() bool
}

// wrappedErr adapts a plain error into a RetryableError.
type wrappedErr struct {
	err       error
	retryable bool
}

func (w *wrappedErr) Error() string   { return w.err.Error() }
func (w *wrappedErr) Unwrap() error   { return w.err }
func (w *wrappedErr) Retryable() bool { return w.retryable }

// Retryable wraps err marking it retryable or not for the gateway's retry
// loop.
func Retryable(err error, retryable bool) error {
	if err == nil {
		return nil
	}
	return &wrappedErr{err: err, retryable: retryable}
}

func isRetryable(err error) bool {
	var re RetryableError
	if ok := asRetryable(err, &re); ok {
		return re.Retryable()
	}
	// Unknown errors default to retryable (network class is the common case).
	return true
}

func asRetryable(err error, target *RetryableError) bool {
	for err != nil {
		if re, ok := err.(RetryableError); ok {
			*target = re
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
