package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/claude-memory/claude-memory-go/pkg/mcp"
	"github.com/claude-memory/claude-memory-go/pkg/memerr"
	"github.com/claude-memory/claude-memory-go/pkg/memtypes"
)

type fakeConversationStore struct {
	unit    *memtypes.MemoryUnit
	err     error
	gotConv *memtypes.Conversation
	gotMsgs []*memtypes.Message
}

func (f *fakeConversationStore) StoreConversation(_ context.Context, conv *memtypes.Conversation, msgs []*memtypes.Message) (*memtypes.MemoryUnit, error) {
	f.gotConv, f.gotMsgs = conv, msgs
	if f.err != nil {
		return nil, f.err
	}
	return f.unit, nil
}

type fakeSearcher struct {
	resp   mcp.SearchResponse
	err    error
	gotReq mcp.SearchRequest
}

func (f *fakeSearcher) Search(_ context.Context, req mcp.SearchRequest) (mcp.SearchResponse, error) {
	f.gotReq = req
	return f.resp, f.err
}

type fakeInjector struct {
	resp   mcp.InjectResponse
	err    error
	gotReq mcp.InjectRequest
}

func (f *fakeInjector) Inject(_ context.Context, req mcp.InjectRequest) (mcp.InjectResponse, error) {
	f.gotReq = req
	return f.resp, f.err
}

type fakeHealthChecker struct {
	resp        mcp.HealthResponse
	gotDetailed bool
}

func (f *fakeHealthChecker) HealthCheck(_ context.Context, detailed bool) mcp.HealthResponse {
	f.gotDetailed = detailed
	return f.resp
}

func newTestServer(cs ConversationStore, s Searcher, inj Injector, h HealthChecker) *Server {
	return New(cs, s, inj, h, "default")
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func TestStoreConversationPersistsAndScopesDefaultProject(t *testing.T) {
	cs := &fakeConversationStore{unit: &memtypes.MemoryUnit{ID: "mu1", UnitType: memtypes.UnitConversation, TokenCount: 42}}
	s := newTestServer(cs, &fakeSearcher{}, &fakeInjector{}, &fakeHealthChecker{})

	rec := doRequest(t, s, http.MethodPost, "/conversation/store", conversationStoreRequest{
		Messages: []messageDTO{{Role: "human", Content: "hello"}},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "default", cs.gotConv.ProjectID)
	require.Len(t, cs.gotMsgs, 1)

	var out conversationStoreResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, "mu1", out.MemoryUnitID)
}

func TestStoreConversationRejectsEmptyMessages(t *testing.T) {
	cs := &fakeConversationStore{}
	s := newTestServer(cs, &fakeSearcher{}, &fakeInjector{}, &fakeHealthChecker{})

	rec := doRequest(t, s, http.MethodPost, "/conversation/store", conversationStoreRequest{})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "VALIDATION", body.ErrorCode)
}

func TestStoreConversationSurfacesDatabaseErrorAs502(t *testing.T) {
	cs := &fakeConversationStore{err: memerr.ErrDatabase}
	s := newTestServer(cs, &fakeSearcher{}, &fakeInjector{}, &fakeHealthChecker{})

	rec := doRequest(t, s, http.MethodPost, "/conversation/store", conversationStoreRequest{
		Messages: []messageDTO{{Role: "human", Content: "hello"}},
	})

	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	s := newTestServer(&fakeConversationStore{}, &fakeSearcher{}, &fakeInjector{}, &fakeHealthChecker{})

	rec := doRequest(t, s, http.MethodPost, "/memory/search", searchRequest{})

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchDefaultsToConfiguredProject(t *testing.T) {
	fs := &fakeSearcher{resp: mcp.SearchResponse{TotalFound: 1}}
	s := newTestServer(&fakeConversationStore{}, fs, &fakeInjector{}, &fakeHealthChecker{})

	rec := doRequest(t, s, http.MethodPost, "/memory/search", searchRequest{Query: "deploy"})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "default", fs.gotReq.ProjectID)
}

func TestInjectDefaultsQueryTextToOriginalPrompt(t *testing.T) {
	fi := &fakeInjector{resp: mcp.InjectResponse{EnhancedPrompt: "enhanced"}}
	s := newTestServer(&fakeConversationStore{}, &fakeSearcher{}, fi, &fakeHealthChecker{})

	rec := doRequest(t, s, http.MethodPost, "/memory/inject", injectRequest{OriginalPrompt: "help me deploy"})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "help me deploy", fi.gotReq.QueryText)
}

func TestHealthReturns503WhenUnhealthy(t *testing.T) {
	hc := &fakeHealthChecker{resp: mcp.HealthResponse{HealthStatus: "unhealthy", Issues: []string{"relational_store: down"}}}
	s := newTestServer(&fakeConversationStore{}, &fakeSearcher{}, &fakeInjector{}, hc)

	rec := doRequest(t, s, http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthPassesDetailedQueryParamThrough(t *testing.T) {
	hc := &fakeHealthChecker{resp: mcp.HealthResponse{HealthStatus: "healthy"}}
	s := newTestServer(&fakeConversationStore{}, &fakeSearcher{}, &fakeInjector{}, hc)

	rec := doRequest(t, s, http.MethodGet, "/health?detailed=true", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, hc.gotDetailed)
}
