package modelgateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/claude-memory/claude-memory-go/pkg/cost"
)

// UnitTier names a model tier a caller can request by conversation-unit
// characteristics rather than by a literal model string.
type UnitTier string

const (
	TierLight      UnitTier = "light"
	TierLightSmall UnitTier = "light_small"
	TierHeavy      UnitTier = "heavy"
)

// Tiers maps unit types to their tier and declares the small-variant token
// cutoff, the configurable "tier manager" surface named in the domain
// supplement (mini_llm_manager.py's light/heavy split as a first-class
// concept rather than an inline parameter).
type Tiers struct {
	Light       string
	LightSmall  string
	Heavy       string
	HeavyTiered map[string]bool // unit types that escalate to heavy by default
	SmallCutoff int             // token count below which LightSmall applies
}

func (t Tiers) smallCutoff() int {
	if t.SmallCutoff > 0 {
		return t.SmallCutoff
	}
	return 2000
}

// Tier resolves the model name for a unit type and preprocessed token
// count (spec §4.8's model-selection rule, addressable here for any
// caller holding a concrete Gateway rather than SemanticCompressor's own
// local copy of the same decision).
func (t Tiers) Tier(unitType string, tokenCount int) string {
	if t.HeavyTiered[unitType] {
		return t.Heavy
	}
	if tokenCount < t.smallCutoff() && t.LightSmall != "" {
		return t.LightSmall
	}
	return t.Light
}

// registeredProvider pairs a Provider with its declared models and
// fallback priority (lower runs first).
type registeredProvider struct {
	name     string
	provider Provider
	models   []string
	priority int
	breaker  *circuitBreaker
}

// Gateway is ModelGateway: provider registry + ordered fallback + retry +
// circuit breaker + cost accounting.
type Gateway struct {
	providers []*registeredProvider
	byModel   map[string]*registeredProvider
	tracker   *cost.Tracker
	logger    *slog.Logger

	maxRetries   int
	backoffBase  time.Duration
	backoffCap   time.Duration
}

// Opt configures a Gateway at construction.
type Opt func(*Gateway)

func WithLogger(l *slog.Logger) Opt { return func(g *Gateway) { g.logger = l } }

// New builds a Gateway. providers are registered in fallback priority
// order (ties broken by registration order); each provider's declared
// models map to it in the by-model index used by complete/embed/rerank
// when a caller passes a bare model name that belongs to exactly one
// provider.
func New(tracker *cost.Tracker, opts ...Opt) *Gateway {
	g := &Gateway{
		byModel:     make(map[string]*registeredProvider),
		tracker:     tracker,
		logger:      slog.Default(),
		maxRetries:  3,
		backoffBase: time.Second,
		backoffCap:  60 * time.Second,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Register adds a provider with its declared model list and fallback
// priority. Each model name maps to exactly one provider (spec §4.4).
func (g *Gateway) Register(name string, p Provider, models []string, priority int) {
	rp := &registeredProvider{name: name, provider: p, models: models, priority: priority, breaker: newCircuitBreaker()}
	g.providers = append(g.providers, rp)
	for _, m := range models {
		g.byModel[m] = rp
	}
	// keep providers sorted by priority, stable on ties.
	for i := len(g.providers) - 1; i > 0; i-- {
		if g.providers[i].priority < g.providers[i-1].priority {
			g.providers[i], g.providers[i-1] = g.providers[i-1], g.providers[i]
		} else {
			break
		}
	}
}

// FallbackErr is returned when every provider in the priority list fails.
type FallbackErr struct {
	Attempts []string
	Errs     []error
}

func (e *FallbackErr) Error() string {
	msg := "all providers failed:"
	for i, a := range e.Attempts {
		msg += fmt.Sprintf(" [%s: %v]", a, e.Errs[i])
	}
	return msg
}

// Complete implements complete(model, messages, params) with retry,
// fallback, circuit breaker, and cost accounting (spec §4.4).
func (g *Gateway) Complete(ctx context.Context, model string, messages []Message, params CompletionParams) (CompletionResult, error) {
	order := g.fallbackOrder(model)
	if len(order) == 0 {
		return CompletionResult{}, fmt.Errorf("no provider registered for model %q", model)
	}

	var attempts []string
	var errs []error

	for i, rp := range order {
		if !rp.breaker.Allow() {
			attempts = append(attempts, rp.name)
			errs = append(errs, errors.New("circuit open"))
			continue
		}

		effectiveModel := model
		if i > 0 && len(rp.models) > 0 {
			effectiveModel = rp.models[0]
		}

		res, err := g.completeWithRetry(ctx, rp, effectiveModel, messages, params)
		attempts = append(attempts, rp.name)
		if err != nil {
			errs = append(errs, err)
			rp.breaker.RecordFailure()
			continue
		}
		rp.breaker.RecordSuccess()

		if res.Metadata == nil {
			res.Metadata = map[string]any{}
		}
		if i > 0 {
			res.Metadata["fallback"] = true
			res.Metadata["fallback_provider"] = rp.name
			res.Metadata["fallback_attempt"] = i + 1
		}

		res.Cost = g.tracker.Calculate(effectiveModel, res.Usage.InputTokens, res.Usage.OutputTokens)
		g.tracker.Record(rp.name, effectiveModel, "complete", res.Usage.InputTokens, res.Usage.OutputTokens, time.Now())

		return res, nil
	}

	return CompletionResult{}, &FallbackErr{Attempts: attempts, Errs: errs}
}

// Embed implements embed(model, text).
func (g *Gateway) Embed(ctx context.Context, model, text string) (EmbedResult, error) {
	rp, ok := g.byModel[model]
	if !ok {
		return EmbedResult{}, fmt.Errorf("no provider registered for embedding model %q", model)
	}
	if !rp.breaker.Allow() {
		return EmbedResult{}, fmt.Errorf("circuit open for provider %s", rp.name)
	}

	res, err := rp.provider.Embed(ctx, model, text)
	if err != nil {
		rp.breaker.RecordFailure()
		return EmbedResult{}, err
	}
	rp.breaker.RecordSuccess()

	res.Cost = g.tracker.Calculate(model, int64(len(text))/4, 0)
	g.tracker.Record(rp.name, model, "embed", int64(len(text))/4, 0, time.Now())
	return res, nil
}

// Rerank implements rerank(model, query, docs, top_k).
func (g *Gateway) Rerank(ctx context.Context, model, query string, docs []string, topK int) (RerankResult, error) {
	rp, ok := g.byModel[model]
	if !ok {
		return RerankResult{}, fmt.Errorf("no provider registered for rerank model %q", model)
	}
	if !rp.breaker.Allow() {
		return RerankResult{}, fmt.Errorf("circuit open for provider %s", rp.name)
	}

	res, err := rp.provider.Rerank(ctx, model, query, docs, topK)
	if err != nil {
		rp.breaker.RecordFailure()
		return RerankResult{}, err
	}
	rp.breaker.RecordSuccess()

	g.tracker.Record(rp.name, model, "rerank", int64(len(query))/4, 0, time.Now())
	return res, nil
}

// fallbackOrder returns the model's own provider first (if any), followed
// by every other registered provider in priority order, so a failure can
// fall through to a differently-modeled provider.
func (g *Gateway) fallbackOrder(model string) []*registeredProvider {
	var order []*registeredProvider
	seen := make(map[*registeredProvider]bool)

	if rp, ok := g.byModel[model]; ok {
		order = append(order, rp)
		seen[rp] = true
	}
	for _, rp := range g.providers {
		if !seen[rp] {
			order = append(order, rp)
			seen[rp] = true
		}
	}
	return order
}

// completeWithRetry attempts up to maxRetries retries with exponential
// backoff for retryable errors only; non-retryable errors short-circuit
// immediately to the caller's fallback loop (spec §4.4).
func (g *Gateway) completeWithRetry(ctx context.Context, rp *registeredProvider, model string, messages []Message, params CompletionParams) (CompletionResult, error) {
	var lastErr error
	backoff := g.backoffBase

	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return CompletionResult{}, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > g.backoffCap {
				backoff = g.backoffCap
			}
		}

		res, err := rp.provider.Complete(ctx, model, messages, params)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return CompletionResult{}, err
		}
		g.logger.Debug("provider call failed, retrying", "provider", rp.name, "attempt", attempt, "error", err)
	}

	return CompletionResult{}, lastErr
}
