// Package relational implements RelationalStore (spec §4.6): transactional
// CRUD over Project/Conversation/Message/MemoryUnit/Embedding, on SQLite via
// modernc.org/sqlite (pure Go, no cgo), grounded on the teacher's
// pkg/sqliteutil.OpenDB connection-setup idiom.
package relational

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/claude-memory/claude-memory-go/pkg/memerr"
	"github.com/claude-memory/claude-memory-go/pkg/memtypes"
	"github.com/claude-memory/claude-memory-go/pkg/sqliteutil"
)

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	is_active INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	settings TEXT
);

CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id),
	session_id TEXT,
	title TEXT,
	started_at TEXT NOT NULL,
	ended_at TEXT,
	message_count INTEGER NOT NULL DEFAULT 0,
	token_count INTEGER NOT NULL DEFAULT 0,
	metadata TEXT
);
CREATE INDEX IF NOT EXISTS idx_conversations_project ON conversations(project_id);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id),
	sequence_number INTEGER NOT NULL,
	message_type TEXT NOT NULL,
	content TEXT NOT NULL,
	token_count INTEGER NOT NULL DEFAULT 0,
	timestamp TEXT NOT NULL,
	metadata TEXT,
	UNIQUE(conversation_id, sequence_number)
);

CREATE TABLE IF NOT EXISTS memory_units (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id),
	conversation_id TEXT,
	unit_type TEXT NOT NULL,
	title TEXT,
	summary TEXT,
	content TEXT,
	keywords TEXT,
	token_count INTEGER NOT NULL DEFAULT 0,
	relevance_score REAL NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	expires_at TEXT,
	is_active INTEGER NOT NULL DEFAULT 1,
	metadata TEXT
);
CREATE INDEX IF NOT EXISTS idx_mu_project_type_created ON memory_units(project_id, unit_type, created_at);
CREATE INDEX IF NOT EXISTS idx_mu_keywords ON memory_units(keywords);

CREATE TABLE IF NOT EXISTS embeddings (
	id TEXT PRIMARY KEY,
	memory_unit_id TEXT NOT NULL REFERENCES memory_units(id),
	model_name TEXT NOT NULL,
	dimension INTEGER NOT NULL,
	UNIQUE(memory_unit_id, model_name)
);

CREATE TABLE IF NOT EXISTS cost_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	provider TEXT NOT NULL,
	model_name TEXT NOT NULL,
	operation_type TEXT NOT NULL,
	input_tokens INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	cost_usd REAL NOT NULL,
	timestamp TEXT NOT NULL,
	metadata TEXT
);
`

// Store is RelationalStore.
type Store struct {
	db *sql.DB
}

// Open creates/migrates the database at path and configures the connection
// pool per spec §4.6 (default 10 + 20 overflow).
func Open(path string) (*Store, error) {
	db, err := sqliteutil.OpenDB(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", memerr.ErrDatabase, err)
	}
	db.SetMaxOpenConns(30)
	db.SetMaxIdleConns(10)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrating schema: %v", memerr.ErrDatabase, err)
	}

	s := &Store{db: db}
	if err := s.ensureDefaultProject(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) ensureDefaultProject(ctx context.Context) error {
	now := time.Now().UTC()
	return s.UpsertProject(ctx, &memtypes.Project{
		ID:        memtypes.DefaultProjectID,
		Name:      "default",
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// Tx wraps a *sql.Tx with the same CRUD surface as Store, so callers that
// need several writes in one transaction (SemanticRetriever's dual-store
// protocol) can use begin/commit/rollback explicitly.
type Tx struct {
	tx *sql.Tx
}

func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", memerr.ErrDatabase, err)
	}
	return &Tx{tx: tx}, nil
}

func (t *Tx) Commit() error   { return t.tx.Commit() }
func (t *Tx) Rollback() error { return t.tx.Rollback() }

func marshalMap(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	return string(b), err
}

func unmarshalMap(s sql.NullString) map[string]any {
	if !s.Valid || s.String == "" {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return map[string]any{}
	}
	return m
}

// UpsertProject inserts or updates a project; the "default" project is
// never deleted by DeleteProject.
func (s *Store) UpsertProject(ctx context.Context, p *memtypes.Project) error {
	settings, err := marshalMap(p.Settings)
	if err != nil {
		return fmt.Errorf("%w: marshal settings: %v", memerr.ErrValidation, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, description, is_active, created_at, updated_at, settings)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, description=excluded.description,
			is_active=excluded.is_active, updated_at=excluded.updated_at,
			settings=excluded.settings`,
		p.ID, p.Name, p.Description, p.IsActive, p.CreatedAt.UTC(), p.UpdatedAt.UTC(), settings,
	)
	if err != nil {
		return fmt.Errorf("%w: upsert project: %v", memerr.ErrDatabase, err)
	}
	return nil
}

// DeleteProject deactivates a non-default project (soft-delete per §3).
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	if id == memtypes.DefaultProjectID {
		return fmt.Errorf("%w: the default project cannot be deleted", memerr.ErrValidation)
	}
	_, err := s.db.ExecContext(ctx, `UPDATE projects SET is_active = 0, updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("%w: %v", memerr.ErrDatabase, err)
	}
	return nil
}

// ListActiveProjects returns every active project.
func (s *Store) ListActiveProjects(ctx context.Context) ([]*memtypes.Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, description, is_active, created_at, updated_at, settings FROM projects WHERE is_active = 1`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", memerr.ErrDatabase, err)
	}
	defer rows.Close()

	var out []*memtypes.Project
	for rows.Next() {
		var p memtypes.Project
		var settings sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.IsActive, &p.CreatedAt, &p.UpdatedAt, &settings); err != nil {
			return nil, fmt.Errorf("%w: %v", memerr.ErrDatabase, err)
		}
		p.Settings = unmarshalMap(settings)
		out = append(out, &p)
	}
	return out, rows.Err()
}

// InsertConversation creates a new conversation row.
func (s *Store) InsertConversation(ctx context.Context, c *memtypes.Conversation) error {
	metadata, err := marshalMap(c.Metadata)
	if err != nil {
		return fmt.Errorf("%w: %v", memerr.ErrValidation, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, project_id, session_id, title, started_at, message_count, token_count, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ProjectID, c.SessionID, c.Title, c.StartedAt.UTC(), c.MessageCount, c.TokenCount, metadata,
	)
	if err != nil {
		return fmt.Errorf("%w: insert conversation: %v", memerr.ErrDatabase, err)
	}
	return nil
}

// EndConversation stamps ended_at; no further messages may be appended.
func (s *Store) EndConversation(ctx context.Context, id string, endedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE conversations SET ended_at = ? WHERE id = ?`, endedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("%w: %v", memerr.ErrDatabase, err)
	}
	return nil
}

// AppendMessages inserts a batch of messages into a conversation that has
// not been ended, and bumps the conversation's running counters. The UNIQUE
// constraint rejects a duplicate (conversation_id, sequence_number) pair;
// gaps in the sequence are not checked.
func (s *Store) AppendMessages(ctx context.Context, convID string, msgs []*memtypes.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", memerr.ErrDatabase, err)
	}
	defer tx.Rollback()

	var endedAt sql.NullString
	if err := tx.QueryRowContext(ctx, `SELECT ended_at FROM conversations WHERE id = ?`, convID).Scan(&endedAt); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", memerr.ErrDatabase, err)
	}
	if endedAt.Valid {
		return fmt.Errorf("%w: conversation %s has ended", memerr.ErrValidation, convID)
	}

	var tokenDelta int
	for _, m := range msgs {
		metadata, err := marshalMap(m.Metadata)
		if err != nil {
			return fmt.Errorf("%w: %v", memerr.ErrValidation, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, conversation_id, sequence_number, message_type, content, token_count, timestamp, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, convID, m.SequenceNumber, m.MessageType, m.Content, m.TokenCount, m.Timestamp.UTC(), metadata,
		); err != nil {
			return fmt.Errorf("%w: append message: %v", memerr.ErrDatabase, err)
		}
		tokenDelta += m.TokenCount
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations SET message_count = message_count + ?, token_count = token_count + ? WHERE id = ?`,
		len(msgs), tokenDelta, convID,
	); err != nil {
		return fmt.Errorf("%w: %v", memerr.ErrDatabase, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", memerr.ErrDatabase, err)
	}
	return nil
}

// InsertMemoryUnit stores a MemoryUnit row. The caller is responsible for
// also upserting the matching VectorStore point (spec §3 invariant a).
func (s *Store) InsertMemoryUnit(ctx context.Context, tx *Tx, u *memtypes.MemoryUnit) error {
	keywords, err := json.Marshal(u.Keywords)
	if err != nil {
		return fmt.Errorf("%w: %v", memerr.ErrValidation, err)
	}
	metadata, err := marshalMap(u.Metadata)
	if err != nil {
		return fmt.Errorf("%w: %v", memerr.ErrValidation, err)
	}

	exec := s.execer(tx)
	_, err = exec.ExecContext(ctx, `
		INSERT INTO memory_units (id, project_id, conversation_id, unit_type, title, summary, content, keywords, token_count, relevance_score, created_at, updated_at, expires_at, is_active, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.ProjectID, u.ConversationID, u.UnitType, u.Title, u.Summary, u.Content, string(keywords),
		u.TokenCount, u.RelevanceScore, u.CreatedAt.UTC(), u.UpdatedAt.UTC(), nullTime(u.ExpiresAt), u.IsActive, metadata,
	)
	if err != nil {
		return fmt.Errorf("%w: insert memory unit: %v", memerr.ErrDatabase, err)
	}
	return nil
}

// DeleteMemoryUnit removes a unit and its embedding record. Idempotent.
func (s *Store) DeleteMemoryUnit(ctx context.Context, tx *Tx, id string) error {
	exec := s.execer(tx)
	if _, err := exec.ExecContext(ctx, `DELETE FROM embeddings WHERE memory_unit_id = ?`, id); err != nil {
		return fmt.Errorf("%w: %v", memerr.ErrDatabase, err)
	}
	if _, err := exec.ExecContext(ctx, `DELETE FROM memory_units WHERE id = ?`, id); err != nil {
		return fmt.Errorf("%w: %v", memerr.ErrDatabase, err)
	}
	return nil
}

// InsertEmbeddingRecord stores the informational relational copy of an
// embedding (the vector itself lives only in VectorStore).
func (s *Store) InsertEmbeddingRecord(ctx context.Context, tx *Tx, e *memtypes.Embedding) error {
	exec := s.execer(tx)
	_, err := exec.ExecContext(ctx, `
		INSERT INTO embeddings (id, memory_unit_id, model_name, dimension)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(memory_unit_id, model_name) DO UPDATE SET dimension = excluded.dimension`,
		e.ID, e.MemoryUnitID, e.ModelName, e.Dimension,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", memerr.ErrDatabase, err)
	}
	return nil
}

func (s *Store) DeleteEmbeddingRecord(ctx context.Context, tx *Tx, memoryUnitID string) error {
	exec := s.execer(tx)
	_, err := exec.ExecContext(ctx, `DELETE FROM embeddings WHERE memory_unit_id = ?`, memoryUnitID)
	if err != nil {
		return fmt.Errorf("%w: %v", memerr.ErrDatabase, err)
	}
	return nil
}

type execerCtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) execer(tx *Tx) execerCtx {
	if tx != nil {
		return tx.tx
	}
	return s.db
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// ListExpiredMemoryUnits returns the ids of every unit whose expires_at has
// passed as of now.
func (s *Store) ListExpiredMemoryUnits(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM memory_units WHERE expires_at IS NOT NULL AND expires_at <= ? AND is_active = 1`, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", memerr.ErrDatabase, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: %v", memerr.ErrDatabase, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListByProjectAndType is the indexed read path from spec §4.6: filters by
// project_id and unit_type, ordered by created_at descending, honoring the
// expiry filter unless includeExpired is set.
func (s *Store) ListByProjectAndType(ctx context.Context, projectID string, unitType memtypes.UnitType, includeExpired bool, limit int) ([]*memtypes.MemoryUnit, error) {
	query := `SELECT id, project_id, conversation_id, unit_type, title, summary, content, keywords, token_count, relevance_score, created_at, updated_at, expires_at, is_active, metadata
		FROM memory_units WHERE project_id = ? AND unit_type = ? AND is_active = 1`
	args := []any{projectID, unitType}
	if !includeExpired {
		query += ` AND (expires_at IS NULL OR expires_at > ?)`
		args = append(args, time.Now().UTC())
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	return s.queryUnits(ctx, query, args...)
}

// SearchByKeyword performs a LIKE-based containment scan across the
// keywords, title, and summary columns (spec §4.9's keyword retrieval
// path candidate-set rule), scoped to a project and expiry-filtered.
func (s *Store) SearchByKeyword(ctx context.Context, projectID, keyword string, includeExpired bool, limit int) ([]*memtypes.MemoryUnit, error) {
	query := `SELECT id, project_id, conversation_id, unit_type, title, summary, content, keywords, token_count, relevance_score, created_at, updated_at, expires_at, is_active, metadata
		FROM memory_units WHERE project_id = ? AND is_active = 1 AND (keywords LIKE ? OR title LIKE ? OR summary LIKE ?)`
	needle := "%" + keyword + "%"
	args := []any{projectID, needle, needle, needle}
	if !includeExpired {
		query += ` AND (expires_at IS NULL OR expires_at > ?)`
		args = append(args, time.Now().UTC())
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	return s.queryUnits(ctx, query, args...)
}

// GetMemoryUnits hydrates the given ids, honoring expiry unless includeExpired.
func (s *Store) GetMemoryUnits(ctx context.Context, ids []string, includeExpired bool) ([]*memtypes.MemoryUnit, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT id, project_id, conversation_id, unit_type, title, summary, content, keywords, token_count, relevance_score, created_at, updated_at, expires_at, is_active, metadata
		FROM memory_units WHERE id IN (` + placeholders(len(ids)) + `) AND is_active = 1`
	args := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	if !includeExpired {
		query += ` AND (expires_at IS NULL OR expires_at > ?)`
		args = append(args, time.Now().UTC())
	}
	return s.queryUnits(ctx, query, args...)
}

func placeholders(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			out += ","
		}
		out += "?"
	}
	return out
}

func (s *Store) queryUnits(ctx context.Context, query string, args ...any) ([]*memtypes.MemoryUnit, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", memerr.ErrDatabase, err)
	}
	defer rows.Close()

	var out []*memtypes.MemoryUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", memerr.ErrDatabase, err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUnit(row rowScanner) (*memtypes.MemoryUnit, error) {
	var u memtypes.MemoryUnit
	var convID sql.NullString
	var keywords string
	var expiresAt sql.NullTime
	var metadata sql.NullString

	if err := row.Scan(&u.ID, &u.ProjectID, &convID, &u.UnitType, &u.Title, &u.Summary, &u.Content,
		&keywords, &u.TokenCount, &u.RelevanceScore, &u.CreatedAt, &u.UpdatedAt, &expiresAt, &u.IsActive, &metadata); err != nil {
		return nil, err
	}
	if convID.Valid {
		u.ConversationID = &convID.String
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		u.ExpiresAt = &t
	}
	_ = json.Unmarshal([]byte(keywords), &u.Keywords)
	u.Metadata = unmarshalMap(metadata)
	return &u, nil
}

// ErrNotFound is returned (wrapped) when a single-entity lookup misses.
var ErrNotFound = errors.New("not found")
