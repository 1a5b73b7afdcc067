package collector

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/claude-memory/claude-memory-go/pkg/memtypes"
)

type fakeStore struct {
	mu    sync.Mutex
	convs []*memtypes.Conversation
	msgs  [][]*memtypes.Message
}

func (f *fakeStore) StoreConversation(_ context.Context, conv *memtypes.Conversation, msgs []*memtypes.Message) (*memtypes.MemoryUnit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.convs = append(f.convs, conv)
	f.msgs = append(f.msgs, msgs)
	return &memtypes.MemoryUnit{ID: "mu-" + conv.ID}, nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.convs)
}

func TestIngestParsesJSONLIntoOneConversation(t *testing.T) {
	dir := t.TempDir()
	store := &fakeStore{}
	c := New(store, dir, "proj-1")

	path := filepath.Join(dir, "session-abc.jsonl")
	content := "{\"role\":\"human\",\"content\":\"hi\"}\n{\"role\":\"assistant\",\"content\":\"hello\"}\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	require.NoError(t, c.ingest(context.Background(), path))
	require.Equal(t, 1, store.count())
	require.Equal(t, "proj-1", store.convs[0].ProjectID)
	require.Equal(t, "session-abc", store.convs[0].SessionID)
	require.Len(t, store.msgs[0], 2)
	require.Equal(t, memtypes.MessageHuman, store.msgs[0][0].MessageType)
	require.Equal(t, memtypes.MessageAssistant, store.msgs[0][1].MessageType)
}

func TestIngestSkipsMalformedLinesButKeepsGoodOnes(t *testing.T) {
	dir := t.TempDir()
	store := &fakeStore{}
	c := New(store, dir, "proj-1")

	path := filepath.Join(dir, "session.jsonl")
	content := "not json\n{\"role\":\"human\",\"content\":\"hi\"}\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	require.NoError(t, c.ingest(context.Background(), path))
	require.Len(t, store.msgs[0], 1)
}

func TestIngestSkipsEmptyFile(t *testing.T) {
	dir := t.TempDir()
	store := &fakeStore{}
	c := New(store, dir, "proj-1")

	path := filepath.Join(dir, "empty.jsonl")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	require.NoError(t, c.ingest(context.Background(), path))
	require.Equal(t, 0, store.count())
}

func TestWatchDebouncesRepeatedWritesIntoOneIngest(t *testing.T) {
	dir := t.TempDir()
	store := &fakeStore{}
	c := New(store, dir, "proj-1")
	require.NoError(t, c.Watch())
	defer c.Stop()

	path := filepath.Join(dir, "live.jsonl")
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte("{\"role\":\"human\",\"content\":\"hi\"}\n"), 0o644))
		time.Sleep(50 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return store.count() == 1 }, 2*time.Second, 50*time.Millisecond)
}
