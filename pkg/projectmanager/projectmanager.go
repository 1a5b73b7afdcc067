// Package projectmanager implements ProjectManager: enforces the "default"
// project invariant (spec §3) and backs the cross-project search MCP tool
// supplemented from original_source/managers/cross_project_search.py.
package projectmanager

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/claude-memory/claude-memory-go/pkg/memtypes"
)

// Store is the narrow RelationalStore surface ProjectManager needs.
type Store interface {
	ListActiveProjects(ctx context.Context) ([]*memtypes.Project, error)
	UpsertProject(ctx context.Context, p *memtypes.Project) error
}

// Retriever is the narrow SemanticRetriever surface the cross-project
// search path needs.
type Retriever interface {
	Retrieve(ctx context.Context, req RetrieveRequest) ([]memtypes.SearchResult, error)
}

// RetrieveRequest mirrors the fields of SemanticRetriever's request type
// that cross-project search populates per-project.
type RetrieveRequest struct {
	Query string
	ProjectID string
	TopK      int
}

// Manager is ProjectManager.
type Manager struct {
	store     Store
	retriever Retriever
}

func New(store Store, retriever Retriever) *Manager {
	return &Manager{store: store, retriever: retriever}
}

// EnsureDefault creates the "default" project if it doesn't already exist.
// RelationalStore.Open already does this at startup; this is the
// addressable version ServiceCore calls explicitly per §4.14 step 3, and
// the one other callers use to assert the invariant holds mid-run.
func (m *Manager) EnsureDefault(ctx context.Context) error {
	_, err := m.EnsureProject(ctx, memtypes.DefaultProjectID, "default")
	return err
}

// EnsureProject creates a project with id/name if it doesn't exist yet
// (spec §3: "created on first reference"). Returns the existing project
// unchanged if already present, never bumping its timestamps.
func (m *Manager) EnsureProject(ctx context.Context, id, name string) (*memtypes.Project, error) {
	projects, err := m.store.ListActiveProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active projects: %w", err)
	}
	for _, p := range projects {
		if p.ID == id {
			return p, nil
		}
	}

	now := time.Now().UTC()
	p := &memtypes.Project{ID: id, Name: name, IsActive: true, CreatedAt: now, UpdatedAt: now}
	if err := m.store.UpsertProject(ctx, p); err != nil {
		return nil, fmt.Errorf("create project %q: %w", id, err)
	}
	return p, nil
}

// SearchAllProjects relaxes the project filter and searches every active
// project, merging and re-ranking by score (spec supplement: a distinct
// code path, not a thin single-project alias).
func (m *Manager) SearchAllProjects(ctx context.Context, query string, topK int) ([]memtypes.SearchResult, error) {
	projects, err := m.store.ListActiveProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active projects: %w", err)
	}

	var all []memtypes.SearchResult
	for _, p := range projects {
		results, err := m.retriever.Retrieve(ctx, RetrieveRequest{Query: query, ProjectID: p.ID, TopK: topK})
		if err != nil {
			continue // one project's failure must not sink the cross-project search
		}
		all = append(all, results...)
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].Score > all[j].Score })
	if topK > 0 && len(all) > topK {
		all = all[:topK]
	}
	return all, nil
}
