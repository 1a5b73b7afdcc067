// Package fuser implements MemoryFuser (spec §4.10): reduces N retrieved
// memory units to one structured context block via a single ModelGateway
// call, with TTL-bounded caching and an identity-concatenation fallback.
package fuser

import (
	"bytes"
	"context"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/kofalt/go-memoize"

	"github.com/claude-memory/claude-memory-go/pkg/memtypes"
)

//go:embed default_prompt.txt
var defaultPromptTemplate string

// Gateway is the narrow ModelGateway surface MemoryFuser needs.
type Gateway interface {
	Complete(ctx context.Context, model string, messages []GatewayMessage, params GatewayParams) (GatewayResult, error)
}

type GatewayMessage struct {
	Role    string
	Content string
}

type GatewayParams struct {
	Temperature float64
	MaxTokens   int
}

type GatewayResult struct {
	Content string
	Cost    float64
	Usage   struct {
		InputTokens  int64
		OutputTokens int64
	}
}

// Config holds MemoryFuser's tunables (spec §4.10).
type Config struct {
	Enabled    bool
	Model      string
	Language   string // "zh" | "en"
	TokenLimit int
	PromptPath string // optional on-disk override; falls back to the embedded default
	CacheTTL   time.Duration
}

func (c Config) tokenLimit() int {
	if c.TokenLimit > 0 {
		return c.TokenLimit
	}
	return 2000
}

func (c Config) language() string {
	if c.Language != "" {
		return c.Language
	}
	return "en"
}

// Result is Fuse's return value.
type Result struct {
	Content     string
	FusionModel string // the model used, or "none" on identity fallback/disabled mode
	Cost        float64
	Cached      bool
}

// Fuser is MemoryFuser.
type Fuser struct {
	gw    Gateway
	cfg   Config
	tmpl  *template.Template
	cache *memoize.Memoizer
}

func New(gw Gateway, cfg Config) (*Fuser, error) {
	raw := defaultPromptTemplate
	if cfg.PromptPath != "" {
		if b, err := os.ReadFile(cfg.PromptPath); err == nil {
			raw = string(b)
		}
	}
	tmpl, err := template.New("fusion").Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse fusion prompt template: %w", err)
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Fuser{gw: gw, cfg: cfg, tmpl: tmpl, cache: memoize.NewMemoizer(ttl, 2*ttl)}, nil
}

type fragment struct {
	Index    int
	Time     string
	Type     string
	Metadata string
	Content  string
}

func packFragments(units []*memtypes.MemoryUnit) []fragment {
	out := make([]fragment, len(units))
	for i, u := range units {
		meta, _ := json.Marshal(u.Metadata)
		out[i] = fragment{
			Index:    i + 1,
			Time:     u.CreatedAt.UTC().Format(time.RFC3339),
			Type:     string(u.UnitType),
			Metadata: string(meta),
			Content:  u.Content,
		}
	}
	return out
}

func renderFragments(frags []fragment) string {
	var b strings.Builder
	for _, f := range frags {
		fmt.Fprintf(&b, "<fragment_%02d>\nTime: %s\nType: %s\nMetadata: %s\nContent: %s\n</fragment_%02d>\n\n",
			f.Index, f.Time, f.Type, f.Metadata, f.Content, f.Index)
	}
	return b.String()
}

// identityFuse concatenates unit content directly, the fallback used on
// fusion failure or disabled mode.
func identityFuse(units []*memtypes.MemoryUnit) string {
	parts := make([]string, len(units))
	for i, u := range units {
		parts[i] = u.Content
	}
	return strings.Join(parts, "\n\n")
}

// Fuse reduces units to a single context block for query. Disabled mode
// and an empty unit set both short-circuit to identity concatenation.
func (f *Fuser) Fuse(ctx context.Context, query string, units []*memtypes.MemoryUnit) Result {
	if !f.cfg.Enabled || len(units) == 0 {
		return Result{Content: identityFuse(units), FusionModel: "none"}
	}

	key := cacheKey(query, units)
	raw, cached, err := f.cache.Memoize(key, func() (any, error) {
		return f.runFusion(ctx, query, units)
	})
	if err != nil {
		return Result{Content: identityFuse(units), FusionModel: "none"}
	}

	res := raw.(Result)
	res.Cached = cached
	return res
}

func (f *Fuser) runFusion(ctx context.Context, query string, units []*memtypes.MemoryUnit) (Result, error) {
	frags := packFragments(units)

	var buf bytes.Buffer
	err := f.tmpl.Execute(&buf, struct {
		Query         string
		FragmentCount int
		TokenLimit    int
		Language      string
		Fragments     string
	}{
		Query:         query,
		FragmentCount: len(frags),
		TokenLimit:    f.cfg.tokenLimit(),
		Language:      f.cfg.language(),
		Fragments:     renderFragments(frags),
	})
	if err != nil {
		return Result{}, fmt.Errorf("render fusion prompt: %w", err)
	}

	out, err := f.gw.Complete(ctx, f.cfg.Model, []GatewayMessage{{Role: "user", Content: buf.String()}},
		GatewayParams{Temperature: 0.2, MaxTokens: f.cfg.tokenLimit()})
	if err != nil {
		return Result{}, err
	}
	return Result{Content: out.Content, FusionModel: f.cfg.Model, Cost: out.Cost}, nil
}

func cacheKey(query string, units []*memtypes.MemoryUnit) string {
	ids := make([]string, len(units))
	for i, u := range units {
		ids[i] = u.ID
	}
	sort.Strings(ids)
	sum := sha256.Sum256([]byte(query + "|" + strings.Join(ids, ",")))
	return hex.EncodeToString(sum[:])
}
