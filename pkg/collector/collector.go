// Package collector implements the file-watching conversation collector
// named in spec §1. Its watching mechanics are explicitly out of scope
// (the spec only fixes the output contract: Collector -> ServiceCore's
// store_conversation), so this watches a directory of newline-delimited
// JSON transcript files and feeds each one into ConversationStore on
// change, debounced the way the teacher's file watchers are.
package collector

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/claude-memory/claude-memory-go/pkg/memtypes"
)

const debounceWindow = 500 * time.Millisecond

// ConversationStore is the narrow store_conversation surface the
// collector feeds (spec §4.14's ingestion entry point).
type ConversationStore interface {
	StoreConversation(ctx context.Context, conv *memtypes.Conversation, msgs []*memtypes.Message) (*memtypes.MemoryUnit, error)
}

// line is one record in a watched transcript file.
type line struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Collector watches a directory of transcript files and stores each one
// as a conversation whenever it is written.
type Collector struct {
	store     ConversationStore
	dir       string
	projectID string

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	timers   map[string]*time.Timer
}

// New builds a Collector watching dir for transcript files, storing
// every ingested conversation under projectID.
func New(store ConversationStore, dir, projectID string) *Collector {
	return &Collector{store: store, dir: dir, projectID: projectID, timers: make(map[string]*time.Timer)}
}

// Watch starts watching the collector's directory. It is idempotent:
// calling Watch again after Stop restarts watching.
func (c *Collector) Watch() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.watcher != nil {
		return nil
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("ensure collector dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(c.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch collector dir: %w", err)
	}

	c.watcher = watcher
	c.stopChan = make(chan struct{})
	go c.watchLoop(watcher, c.stopChan)

	slog.Info("collector watching directory", "dir", c.dir)
	return nil
}

// Stop stops watching and cancels any pending debounce timers.
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopChan != nil {
		close(c.stopChan)
		c.stopChan = nil
	}
	if c.watcher != nil {
		c.watcher.Close()
		c.watcher = nil
	}
	for _, t := range c.timers {
		t.Stop()
	}
	c.timers = make(map[string]*time.Timer)
}

func (c *Collector) watchLoop(watcher *fsnotify.Watcher, stopChan chan struct{}) {
	for {
		select {
		case <-stopChan:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !strings.HasSuffix(event.Name, ".jsonl") {
				continue
			}
			c.debounce(event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("collector watcher error", "error", err)
		}
	}
}

// debounce delays ingestion of path until writes to it have quieted
// down, since editors and streaming writers emit several events per
// save.
func (c *Collector) debounce(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.timers[path]; ok {
		t.Stop()
	}
	c.timers[path] = time.AfterFunc(debounceWindow, func() {
		if err := c.ingest(context.Background(), path); err != nil {
			slog.Error("collector ingest failed", "path", path, "error", err)
		}
	})
}

// ingest parses path as newline-delimited JSON messages and stores it
// as one conversation.
func (c *Collector) ingest(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	now := time.Now().UTC()
	sessionID := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	conversationID := uuid.NewString()

	var msgs []*memtypes.Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for seq := 0; scanner.Scan(); seq++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var l line
		if err := json.Unmarshal([]byte(text), &l); err != nil {
			slog.Warn("collector skipped malformed line", "path", path, "line", seq, "error", err)
			continue
		}
		msgs = append(msgs, &memtypes.Message{
			ID:             uuid.NewString(),
			ConversationID: conversationID,
			SequenceNumber: seq,
			MessageType:    messageTypeFor(l.Role),
			Content:        l.Content,
			Timestamp:      now,
		})
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan transcript: %w", err)
	}
	if len(msgs) == 0 {
		return nil
	}

	conv := &memtypes.Conversation{
		ID:        conversationID,
		ProjectID: c.projectID,
		SessionID: sessionID,
		StartedAt: now,
	}

	_, err = c.store.StoreConversation(ctx, conv, msgs)
	return err
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
