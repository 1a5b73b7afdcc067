// Package vector implements VectorStore (spec §4.7): a collection of
// points stored as float32 blobs in SQLite with cosine similarity computed
// in Go, grounded on the teacher's pkg/rag/database.CosineSimilarity and
// pkg/rag/strategy/vector_store.go's manual-search approach.
package vector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/claude-memory/claude-memory-go/pkg/memerr"
	"github.com/claude-memory/claude-memory-go/pkg/memtypes"
	"github.com/claude-memory/claude-memory-go/pkg/sqliteutil"
)

// CollectionName is the fixed collection spec §4.7 names.
const CollectionName = "claude_memory_vectors_v14"

// Dimension is the default configured vector size.
const Dimension = 4096

const schema = `
CREATE TABLE IF NOT EXISTS vector_points (
	id TEXT PRIMARY KEY,
	vector BLOB NOT NULL,
	payload TEXT NOT NULL
);
`

// Store is VectorStore. It owns its own SQLite connection, separate from
// RelationalStore, so the two can be wired independently (spec §3:
// "vectors are the authoritative source; relational copy is informational").
type Store struct {
	db     *sql.DB
	dim    int
	metric string
}

// Opt configures a Store at Open time.
type Opt func(*Store)

func WithDimension(dim int) Opt { return func(s *Store) { s.dim = dim } }

// Open creates/migrates the vector database at path and ensures the
// collection with the configured dimension and metric.
func Open(path string, opts ...Opt) (*Store, error) {
	db, err := sqliteutil.OpenDB(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", memerr.ErrDatabase, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrating vector schema: %v", memerr.ErrDatabase, err)
	}

	s := &Store{db: db, dim: Dimension, metric: "cosine"}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Dim is the configured vector dimension, used by callers that must assert
// an embedding's size before upserting (spec §4.9 step 1).
func (s *Store) Dim() int { return s.dim }

// EnsureCollection is a no-op once Open has run the schema migration; it
// exists to satisfy spec §4.7's named operation and to validate dim/metric
// against what this Store was configured with.
func (s *Store) EnsureCollection(name string, dim int, metric string) error {
	if name != CollectionName {
		return fmt.Errorf("%w: unknown collection %q", memerr.ErrValidation, name)
	}
	if dim != s.dim {
		return fmt.Errorf("%w: dimension mismatch: collection configured for %d, got %d", memerr.ErrValidation, s.dim, dim)
	}
	if metric != s.metric {
		return fmt.Errorf("%w: unsupported metric %q", memerr.ErrValidation, metric)
	}
	return nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		bits := math.Float32bits(f)
		buf[4*i] = byte(bits)
		buf[4*i+1] = byte(bits >> 8)
		buf[4*i+2] = byte(bits >> 16)
		buf[4*i+3] = byte(bits >> 24)
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		bits := uint32(buf[4*i]) | uint32(buf[4*i+1])<<8 | uint32(buf[4*i+2])<<16 | uint32(buf[4*i+3])<<24
		v[i] = math.Float32frombits(bits)
	}
	return v
}

// Upsert stores or replaces a point's vector and payload.
func (s *Store) Upsert(ctx context.Context, id string, vec []float32, payload memtypes.VectorPayload) error {
	if len(vec) != s.dim {
		return fmt.Errorf("%w: vector has %d dims, collection expects %d", memerr.ErrValidation, len(vec), s.dim)
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", memerr.ErrValidation, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO vector_points (id, vector, payload) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET vector = excluded.vector, payload = excluded.payload`,
		id, encodeVector(vec), string(payloadJSON),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", memerr.ErrDatabase, err)
	}
	return nil
}

// Delete removes points by id. Idempotent: missing ids are not an error.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM vector_points WHERE id = ?`, id); err != nil {
			return fmt.Errorf("%w: %v", memerr.ErrDatabase, err)
		}
	}
	return nil
}

// Get hydrates points by id.
func (s *Store) Get(ctx context.Context, ids []string) ([]Point, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	out := make([]Point, 0, len(ids))
	for _, id := range ids {
		row := s.db.QueryRowContext(ctx, `SELECT id, vector, payload FROM vector_points WHERE id = ?`, id)
		p, err := scanPoint(row)
		if err != nil {
			if err == sql.ErrNoRows {
				continue
			}
			return nil, fmt.Errorf("%w: %v", memerr.ErrDatabase, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// Point is a hydrated vector store entry.
type Point struct {
	ID      string
	Vector  []float32
	Payload memtypes.VectorPayload
}

// ScoredPoint is a Point with its similarity score against a query vector.
type ScoredPoint struct {
	Point
	Score float64
}

// Filter is the grammar spec §4.7 requires: equality, set membership, and
// null-or-range over payload fields. Only one of the three predicate kinds
// is evaluated per Filter value; combine multiple Filters with AND
// semantics by passing several.
type Filter struct {
	Field         string
	Equals        any
	In            []any
	NullOrAtLeast *float64 // field IS NULL OR field >= *NullOrAtLeast
}

func (f Filter) matches(payload memtypes.VectorPayload) bool {
	raw := fieldValue(payload, f.Field)

	if f.Equals != nil {
		return raw == f.Equals
	}
	if f.In != nil {
		for _, v := range f.In {
			if raw == v {
				return true
			}
		}
		return false
	}
	if f.NullOrAtLeast != nil {
		if raw == nil {
			return true
		}
		num, ok := raw.(float64)
		if !ok {
			return false
		}
		return num >= *f.NullOrAtLeast
	}
	return true
}

func fieldValue(p memtypes.VectorPayload, field string) any {
	switch field {
	case "project_id":
		return p.ProjectID
	case "conversation_id":
		return p.ConversationID
	case "unit_type":
		return string(p.UnitType)
	case "importance_score":
		return p.ImportanceScore
	case "quality_score":
		return p.QualityScore
	case "expires_at":
		if p.ExpiresAt == nil {
			return nil
		}
		return float64(*p.ExpiresAt)
	default:
		return nil
	}
}

// Search returns the top-`limit` points by cosine similarity to vec,
// restricted to points passing every filter and at or above scoreThreshold.
func (s *Store) Search(ctx context.Context, vec []float32, limit int, filters []Filter, scoreThreshold float64) ([]ScoredPoint, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, vector, payload FROM vector_points`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", memerr.ErrDatabase, err)
	}
	defer rows.Close()

	var candidates []ScoredPoint
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", memerr.ErrDatabase, err)
		}

		matched := true
		for _, f := range filters {
			if !f.matches(p.Payload) {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}

		score := cosineSimilarity(vec, p.Vector)
		if score < scoreThreshold {
			continue
		}
		candidates = append(candidates, ScoredPoint{Point: p, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", memerr.ErrDatabase, err)
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func scanPoint(row interface{ Scan(...any) error }) (Point, error) {
	var p Point
	var vecBlob []byte
	var payloadJSON string
	if err := row.Scan(&p.ID, &vecBlob, &payloadJSON); err != nil {
		return Point{}, err
	}
	p.Vector = decodeVector(vecBlob)
	_ = json.Unmarshal([]byte(payloadJSON), &p.Payload)
	return p, nil
}

// cosineSimilarity mirrors the teacher's pkg/rag/database.CosineSimilarity,
// adapted for float32 vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// PayloadExpiresAtEpoch converts a nullable time to the epoch-seconds form
// VectorPayload carries, per spec §4.7.
func PayloadExpiresAtEpoch(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	e := t.Unix()
	return &e
}
