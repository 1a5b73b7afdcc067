package relational

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/claude-memory/claude-memory-go/pkg/memtypes"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenCreatesDefaultProject(t *testing.T) {
	s := openTestStore(t)
	projects, err := s.ListActiveProjects(context.Background())
	require.NoError(t, err)
	require.Len(t, projects, 1)
	require.Equal(t, memtypes.DefaultProjectID, projects[0].ID)
}

func TestDefaultProjectCannotBeDeleted(t *testing.T) {
	s := openTestStore(t)
	err := s.DeleteProject(context.Background(), memtypes.DefaultProjectID)
	require.Error(t, err)
}

func TestInsertConversationAndAppendMessages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	conv := &memtypes.Conversation{
		ID: "c1", ProjectID: memtypes.DefaultProjectID, Title: "test",
		StartedAt: time.Now(), Metadata: map[string]any{"k": "v"},
	}
	require.NoError(t, s.InsertConversation(ctx, conv))

	msgs := []*memtypes.Message{
		{ID: "m1", ConversationID: "c1", SequenceNumber: 0, MessageType: memtypes.MessageHuman, Content: "hi", TokenCount: 1, Timestamp: time.Now()},
		{ID: "m2", ConversationID: "c1", SequenceNumber: 1, MessageType: memtypes.MessageAssistant, Content: "hello", TokenCount: 1, Timestamp: time.Now()},
	}
	require.NoError(t, s.AppendMessages(ctx, "c1", msgs))
}

func TestMemoryUnitCRUDAndExpiryFilter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()
	past := now.Add(-time.Hour)

	active := &memtypes.MemoryUnit{
		ID: "u1", ProjectID: memtypes.DefaultProjectID, UnitType: memtypes.UnitDecision,
		Title: "t1", Keywords: []string{"a", "b"}, CreatedAt: now, UpdatedAt: now, IsActive: true,
	}
	expired := &memtypes.MemoryUnit{
		ID: "u2", ProjectID: memtypes.DefaultProjectID, UnitType: memtypes.UnitArchive,
		Title: "t2", Keywords: []string{"c"}, CreatedAt: now, UpdatedAt: now, ExpiresAt: &past, IsActive: true,
	}
	require.NoError(t, s.InsertMemoryUnit(ctx, nil, active))
	require.NoError(t, s.InsertMemoryUnit(ctx, nil, expired))

	ids, err := s.ListExpiredMemoryUnits(ctx, now)
	require.NoError(t, err)
	require.Equal(t, []string{"u2"}, ids)

	units, err := s.ListByProjectAndType(ctx, memtypes.DefaultProjectID, memtypes.UnitDecision, false, 10)
	require.NoError(t, err)
	require.Len(t, units, 1)
	require.Equal(t, "u1", units[0].ID)

	require.NoError(t, s.DeleteMemoryUnit(ctx, nil, "u1"))
	units, err = s.ListByProjectAndType(ctx, memtypes.DefaultProjectID, memtypes.UnitDecision, false, 10)
	require.NoError(t, err)
	require.Empty(t, units)
}

func TestTransactionRollsBackOnFailure(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	u := &memtypes.MemoryUnit{ID: "u3", ProjectID: memtypes.DefaultProjectID, UnitType: memtypes.UnitDecision, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	require.NoError(t, s.InsertMemoryUnit(ctx, tx, u))
	require.NoError(t, tx.Rollback())

	units, err := s.GetMemoryUnits(ctx, []string{"u3"}, true)
	require.NoError(t, err)
	require.Empty(t, units, "rolled-back insert must not be visible")
}
