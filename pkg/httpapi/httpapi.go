// Package httpapi implements the HTTP surface named in spec §6:
// POST /conversation/store, POST /memory/search, POST /memory/inject,
// and GET /health. It is a thin echo.Echo wrapper delegating every
// request to the narrow Core interfaces below, the same pattern every
// other package in this tree uses to keep transport code ignorant of
// storage, retrieval, and fusion internals.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/claude-memory/claude-memory-go/pkg/mcp"
	"github.com/claude-memory/claude-memory-go/pkg/memerr"
	"github.com/claude-memory/claude-memory-go/pkg/memtypes"
)

// ConversationStore is the narrow StoreConversation surface backing
// POST /conversation/store.
type ConversationStore interface {
	StoreConversation(ctx context.Context, conv *memtypes.Conversation, msgs []*memtypes.Message) (*memtypes.MemoryUnit, error)
}

// Searcher backs POST /memory/search.
type Searcher interface {
	Search(ctx context.Context, req mcp.SearchRequest) (mcp.SearchResponse, error)
}

// Injector backs POST /memory/inject.
type Injector interface {
	Inject(ctx context.Context, req mcp.InjectRequest) (mcp.InjectResponse, error)
}

// HealthChecker backs GET /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context, detailed bool) mcp.HealthResponse
}

// Server is the HTTP API (spec §6). It holds no state of its own beyond
// the Core-backed collaborators it dispatches to.
type Server struct {
	e *echo.Echo

	conversations ConversationStore
	searcher      Searcher
	injector      Injector
	health        HealthChecker
	projectID     string
}

// New builds the HTTP API server, wired to the given ServiceCore-backed
// collaborators. projectID is the fallback project scope for requests
// that omit one, matching the MCP server's default-project behavior.
func New(conversations ConversationStore, searcher Searcher, injector Injector, health HealthChecker, projectID string) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())

	s := &Server{
		e:             e,
		conversations: conversations,
		searcher:      searcher,
		injector:      injector,
		health:        health,
		projectID:     projectID,
	}

	e.POST("/conversation/store", s.storeConversation)
	e.POST("/memory/search", s.search)
	e.POST("/memory/inject", s.inject)
	e.GET("/health", s.health_)

	return s
}

// Serve blocks serving HTTP on ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.e}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// errorBody is the JSON error envelope spec §6 requires:
// {error, error_code, details}.
type errorBody struct {
	Error     string `json:"error"`
	ErrorCode string `json:"error_code"`
	Details   string `json:"details,omitempty"`
}

func writeError(c echo.Context, err error) error {
	kind := memerr.Kind(err)
	status := memerr.HTTPStatus(kind)
	if kind == "" {
		kind = "PROCESSING"
	}
	return c.JSON(status, errorBody{Error: err.Error(), ErrorCode: kind, Details: ""})
}

// messageDTO is one inbound message in the conversation-store body.
type messageDTO struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// conversationStoreRequest is the Conversation DTO spec §6 names.
type conversationStoreRequest struct {
	ProjectID      string       `json:"project_id"`
	ConversationID string       `json:"conversation_id"`
	SessionID      string       `json:"session_id"`
	Title          string       `json:"title"`
	Messages       []messageDTO `json:"messages"`
}

type conversationStoreResponse struct {
	MemoryUnitID string `json:"memory_unit_id"`
	UnitType     string `json:"unit_type"`
	TokenCount   int    `json:"token_count"`
}

func (s *Server) storeConversation(c echo.Context) error {
	var req conversationStoreRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, fmt.Errorf("%w: %v", memerr.ErrValidation, err))
	}
	if len(req.Messages) == 0 {
		return writeError(c, fmt.Errorf("%w: conversation must contain at least one message", memerr.ErrValidation))
	}

	projectID := req.ProjectID
	if projectID == "" {
		projectID = s.projectID
	}
	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	now := time.Now().UTC()
	conv := &memtypes.Conversation{
		ID:        conversationID,
		ProjectID: projectID,
		SessionID: req.SessionID,
		Title:     req.Title,
		StartedAt: now,
	}

	msgs := make([]*memtypes.Message, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = &memtypes.Message{
			ID:             uuid.NewString(),
			ConversationID: conversationID,
			SequenceNumber: i,
			MessageType:    messageTypeFor(m.Role),
			Content:        m.Content,
			Timestamp:      now,
		}
	}

	unit, err := s.conversations.StoreConversation(c.Request().Context(), conv, msgs)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, conversationStoreResponse{
		MemoryUnitID: unit.ID,
		UnitType:     string(unit.UnitType),
		TokenCount:   unit.TokenCount,
	})
}

func messageTypeFor(role string) memtypes.MessageType {
	switch role {
	case "assistant":
		return memtypes.MessageAssistant
	case "system":
		return memtypes.MessageSystem
	default:
		return memtypes.MessageHuman
	}
}

// searchRequest is the Search DTO spec §6 names.
type searchRequest struct {
	Query       string   `json:"query"`
	ProjectID   string   `json:"project_id"`
	Limit       int      `json:"limit"`
	MinScore    float64  `json:"min_score"`
	MemoryTypes []string `json:"memory_types"`
}

func (s *Server) search(c echo.Context) error {
	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, fmt.Errorf("%w: %v", memerr.ErrValidation, err))
	}
	if req.Query == "" {
		return writeError(c, fmt.Errorf("%w: query is required", memerr.ErrValidation))
	}

	projectID := req.ProjectID
	if projectID == "" {
		projectID = s.projectID
	}

	resp, err := s.searcher.Search(c.Request().Context(), mcp.SearchRequest{
		Query:       req.Query,
		ProjectID:   projectID,
		Limit:       req.Limit,
		MinScore:    req.MinScore,
		MemoryTypes: req.MemoryTypes,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// injectRequest is the Inject DTO spec §6 names.
type injectRequest struct {
	OriginalPrompt string `json:"original_prompt"`
	QueryText      string `json:"query_text"`
	ContextHint    string `json:"context_hint"`
	ProjectID      string `json:"project_id"`
	ConversationID string `json:"conversation_id"`
	InjectionMode  string `json:"injection_mode"`
	MaxTokens      int    `json:"max_tokens"`
}

func (s *Server) inject(c echo.Context) error {
	var req injectRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, fmt.Errorf("%w: %v", memerr.ErrValidation, err))
	}
	if req.OriginalPrompt == "" {
		return writeError(c, fmt.Errorf("%w: original_prompt is required", memerr.ErrValidation))
	}

	projectID := req.ProjectID
	if projectID == "" {
		projectID = s.projectID
	}
	queryText := req.QueryText
	if queryText == "" {
		queryText = req.OriginalPrompt
	}

	resp, err := s.injector.Inject(c.Request().Context(), mcp.InjectRequest{
		OriginalPrompt: req.OriginalPrompt,
		QueryText:      queryText,
		ContextHint:    req.ContextHint,
		ProjectID:      projectID,
		ConversationID: req.ConversationID,
		InjectionMode:  req.InjectionMode,
		MaxTokens:      req.MaxTokens,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) health_(c echo.Context) error {
	detailed := c.QueryParam("detailed") == "true"
	resp := s.health.HealthCheck(c.Request().Context(), detailed)

	status := http.StatusOK
	switch resp.HealthStatus {
	case "unhealthy":
		status = http.StatusServiceUnavailable
	case "degraded":
		status = http.StatusOK
	}
	return c.JSON(status, resp)
}
