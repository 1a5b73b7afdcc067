package projectmanager

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/claude-memory/claude-memory-go/pkg/memtypes"
)

type fakeStore struct {
	projects []*memtypes.Project
	upserts  int
}

func (f *fakeStore) ListActiveProjects(context.Context) ([]*memtypes.Project, error) {
	return f.projects, nil
}

func (f *fakeStore) UpsertProject(_ context.Context, p *memtypes.Project) error {
	f.upserts++
	f.projects = append(f.projects, p)
	return nil
}

type fakeRetriever struct {
	byProject map[string][]memtypes.SearchResult
	err       error
}

func (f *fakeRetriever) Retrieve(_ context.Context, req RetrieveRequest) ([]memtypes.SearchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byProject[req.ProjectID], nil
}

func TestEnsureProjectCreatesWhenMissing(t *testing.T) {
	store := &fakeStore{}
	m := New(store, &fakeRetriever{})

	p, err := m.EnsureProject(context.Background(), "proj-a", "Project A")
	require.NoError(t, err)
	require.Equal(t, "proj-a", p.ID)
	require.Equal(t, 1, store.upserts)
}

func TestEnsureProjectIsNoOpWhenPresent(t *testing.T) {
	store := &fakeStore{projects: []*memtypes.Project{{ID: "proj-a", Name: "Project A", IsActive: true}}}
	m := New(store, &fakeRetriever{})

	p, err := m.EnsureProject(context.Background(), "proj-a", "Project A")
	require.NoError(t, err)
	require.Equal(t, "Project A", p.Name)
	require.Equal(t, 0, store.upserts)
}

func TestEnsureDefaultCreatesDefaultProject(t *testing.T) {
	store := &fakeStore{}
	m := New(store, &fakeRetriever{})

	require.NoError(t, m.EnsureDefault(context.Background()))
	require.Len(t, store.projects, 1)
	require.Equal(t, memtypes.DefaultProjectID, store.projects[0].ID)
}

func TestSearchAllProjectsMergesAndRanks(t *testing.T) {
	store := &fakeStore{projects: []*memtypes.Project{
		{ID: "proj-a", IsActive: true},
		{ID: "proj-b", IsActive: true},
	}}
	retr := &fakeRetriever{byProject: map[string][]memtypes.SearchResult{
		"proj-a": {{Unit: &memtypes.MemoryUnit{ID: "a1"}, Score: 0.5}},
		"proj-b": {{Unit: &memtypes.MemoryUnit{ID: "b1"}, Score: 0.9}},
	}}
	m := New(store, retr)

	results, err := m.SearchAllProjects(context.Background(), "query", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "b1", results[0].Unit.ID, "higher-scoring result from a different project should rank first")
}

func TestSearchAllProjectsTruncatesToTopK(t *testing.T) {
	store := &fakeStore{projects: []*memtypes.Project{{ID: "proj-a", IsActive: true}}}
	retr := &fakeRetriever{byProject: map[string][]memtypes.SearchResult{
		"proj-a": {
			{Unit: &memtypes.MemoryUnit{ID: "a1"}, Score: 0.9},
			{Unit: &memtypes.MemoryUnit{ID: "a2"}, Score: 0.8},
		},
	}}
	m := New(store, retr)

	results, err := m.SearchAllProjects(context.Background(), "query", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "a1", results[0].Unit.ID)
}

func TestSearchAllProjectsSkipsFailingProject(t *testing.T) {
	store := &fakeStore{projects: []*memtypes.Project{
		{ID: "proj-a", IsActive: true},
		{ID: "proj-b", IsActive: true},
	}}
	retr := &fakeRetriever{err: errors.New("project store unreachable")}
	m := New(store, retr)

	results, err := m.SearchAllProjects(context.Background(), "query", 10)
	require.NoError(t, err)
	require.Empty(t, results)
}
