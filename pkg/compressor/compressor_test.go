package compressor

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/claude-memory/claude-memory-go/pkg/memtypes"
	"github.com/claude-memory/claude-memory-go/pkg/textproc"
	"github.com/claude-memory/claude-memory-go/pkg/tokencount"
)

type fakeGateway struct {
	calls   int
	scripts []GatewayResult
	models  []string
}

func (f *fakeGateway) Complete(_ context.Context, model string, _ []GatewayMessage, _ GatewayParams) (GatewayResult, error) {
	f.models = append(f.models, model)
	i := f.calls
	if i >= len(f.scripts) {
		i = len(f.scripts) - 1
	}
	f.calls++
	return f.scripts[i], nil
}

func goodJSON(quality string) string {
	fields := compressedFields{
		Title:      "A decision about caching",
		Summary:    "We decided to use an LRU cache bounded at 1000 entries for embeddings, discussed tradeoffs versus TTL caches and settled on count-based eviction. " + quality,
		Content:    "full reconstructed content here, reasonably long and substantive for scoring purposes across the whole conversation",
		KeyTopics:  []string{"caching", "lru", "embeddings"},
		Importance: 0.8,
		Metadata:   map[string]any{"main_intent": "design", "outcome": "decided", "action_items": []string{}},
	}
	b, _ := json.Marshal(fields)
	return string(b)
}

func newTestCompressor(gw Gateway) *Compressor {
	counter := tokencount.New()
	tp := textproc.New(counter)
	tiers := ModelTiers{Light: "light-model", LightSmall: "light-small", Heavy: "heavy-model"}
	thresholds := QualityThresholds{Default: 0.7}
	return New(gw, tp, tiers, thresholds)
}

func TestCompressSelectsLightModelForConversation(t *testing.T) {
	gw := &fakeGateway{scripts: []GatewayResult{{Content: goodJSON("")}}}
	c := newTestCompressor(gw)

	unit, err := c.Compress(context.Background(), Request{
		ConversationID: "c1",
		ProjectID:      memtypes.DefaultProjectID,
		UnitType:       memtypes.UnitConversation,
		Messages: []memtypes.Message{
			{MessageType: memtypes.MessageHuman, Content: "how should we cache embeddings?"},
			{MessageType: memtypes.MessageAssistant, Content: "let's use an LRU cache"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "light-small", gw.models[0])
	require.Equal(t, memtypes.UnitConversation, unit.UnitType)
	require.Contains(t, unit.Keywords, "caching")
}

func TestCompressSelectsHeavyModelForDecision(t *testing.T) {
	gw := &fakeGateway{scripts: []GatewayResult{{Content: goodJSON("")}}}
	c := newTestCompressor(gw)

	_, err := c.Compress(context.Background(), Request{
		ConversationID: "c2",
		ProjectID:      memtypes.DefaultProjectID,
		UnitType:       memtypes.UnitDecision,
		Messages:       []memtypes.Message{{MessageType: memtypes.MessageHuman, Content: "we decided to adopt the new schema"}},
	})
	require.NoError(t, err)
	require.Equal(t, "heavy-model", gw.models[0])
}

func TestCompressEscalatesOnLowQuality(t *testing.T) {
	lowQuality := `{"title": "x", "summary": "", "content": "", "key_topics": [], "importance_score": 0}`
	gw := &fakeGateway{scripts: []GatewayResult{{Content: lowQuality}, {Content: goodJSON("")}}}
	c := newTestCompressor(gw)

	unit, err := c.Compress(context.Background(), Request{
		ConversationID: "c3",
		ProjectID:      memtypes.DefaultProjectID,
		UnitType:       memtypes.UnitConversation,
		Messages:       []memtypes.Message{{MessageType: memtypes.MessageHuman, Content: "a message well under two thousand tokens, so the light-small tier is chosen first and the low-quality reply from it has to be escalated to the heavy tier, padded with a few more words so the transcript is not trivially short for this particular test case"}},
	})
	require.NoError(t, err)
	require.Len(t, gw.models, 2)
	require.Equal(t, "heavy-model", gw.models[1])
	require.Contains(t, unit.Metadata["models_attempted"], "heavy-model")
}

func TestCompressCachesByConversationAndUnitType(t *testing.T) {
	gw := &fakeGateway{scripts: []GatewayResult{{Content: goodJSON("")}}}
	c := newTestCompressor(gw)

	req := Request{
		ConversationID: "c4",
		ProjectID:      memtypes.DefaultProjectID,
		UnitType:       memtypes.UnitConversation,
		Messages:       []memtypes.Message{{MessageType: memtypes.MessageHuman, Content: "hello there"}},
	}
	_, err := c.Compress(context.Background(), req)
	require.NoError(t, err)
	_, err = c.Compress(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 1, gw.calls, "second call should hit cache, not the gateway")
}

func TestParseCompressedFallsBackToSynthesis(t *testing.T) {
	fields := parseCompressed("not json at all, just prose from a misbehaving model", "source text for synthesis")
	require.Equal(t, "source text for synthesis", fields.Content)
	require.NotEmpty(t, fields.Summary)
}

func TestParseCompressedExtractsEmbeddedJSON(t *testing.T) {
	raw := "Here is the result:\n" + goodJSON("") + "\nThanks!"
	fields := parseCompressed(raw, "source")
	require.Equal(t, "A decision about caching", fields.Title)
}

func TestCompressBatchIsolatesFailures(t *testing.T) {
	gw := &fakeGateway{scripts: []GatewayResult{{Content: goodJSON("")}}}
	c := newTestCompressor(gw)

	reqs := []Request{
		{ConversationID: "b1", ProjectID: memtypes.DefaultProjectID, UnitType: memtypes.UnitConversation, Messages: []memtypes.Message{{MessageType: memtypes.MessageHuman, Content: "one"}}},
		{ConversationID: "b2", ProjectID: memtypes.DefaultProjectID, UnitType: memtypes.UnitConversation, Messages: []memtypes.Message{{MessageType: memtypes.MessageHuman, Content: "two"}}},
	}
	results := c.CompressBatch(context.Background(), reqs)
	require.Len(t, results, 2)
	for _, r := range results {
		require.NoError(t, r.Err)
		require.NotNil(t, r.Unit)
	}
}

func TestGlobalReviewAggregatesKeywordsAndMetadata(t *testing.T) {
	gw := &fakeGateway{scripts: []GatewayResult{{Content: goodJSON("")}}}
	c := newTestCompressor(gw)

	convs := []Request{
		{ConversationID: "g1", ProjectID: memtypes.DefaultProjectID, UnitType: memtypes.UnitConversation, Messages: []memtypes.Message{{MessageType: memtypes.MessageHuman, Content: "one"}}},
	}
	unit, err := c.GlobalReview(context.Background(), memtypes.DefaultProjectID, convs, 7)
	require.NoError(t, err)
	require.Equal(t, "global_memory_review", unit.Metadata["review_type"])
	require.Equal(t, 7, unit.Metadata["timeframe_days"])
	require.Equal(t, 1, unit.Metadata["conversations_count"])
}
