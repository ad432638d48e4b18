// Package category implements the dynamic category system: compact
// learned profiles of topic clusters, a two-stage (vector+BM25 retrieve,
// LLM decide) classifier, and profile evolution, grounded on
// original_source's category_profile.py / category_retriever.py /
// category_classifier.py / category_profile_manager.py and spec.md §4.4.
package category

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const defaultEmbeddingDim = 768

// Profile is a compact, evolving description of a topic cluster. It is
// not a card — it exists purely for fast retrieval and LLM reasoning.
type Profile struct {
	ID          string
	Name        string
	Description string

	CentroidEmbedding []float32
	Keywords          []string
	KeywordScores     map[string]float64

	Snippets []string

	ParentID   string
	SiblingIDs []string
	ChildIDs   []string

	CardCount   int
	CreatedAt   time.Time
	LastUpdated time.Time
	Confidence  float64

	UserCorrections int
	AutoAssignments int
}

// Compact returns the minimal fields used in an LLM prompt (spec §4.4
// Stage B — keep prompts small).
func (p Profile) Compact() map[string]any {
	kws := p.Keywords
	if len(kws) > 10 {
		kws = kws[:10]
	}
	return map[string]any{
		"name":        p.Name,
		"description": p.Description,
		"keywords":    kws,
		"snippets":    p.Snippets,
		"card_count":  p.CardCount,
		"confidence":  round2(p.Confidence),
	}
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

// UpdateStatistics recomputes Confidence = auto/(auto+user) and bumps the
// relevant counter (spec §3 Category profile invariant).
func (p *Profile) UpdateStatistics(isUserCorrection bool) {
	p.LastUpdated = time.Now()
	if isUserCorrection {
		p.UserCorrections++
	} else {
		p.AutoAssignments++
	}
	total := p.UserCorrections + p.AutoAssignments
	if total > 0 {
		p.Confidence = float64(p.AutoAssignments) / float64(total)
	}
}

// Store persists and retrieves profiles by id or name.
type Store interface {
	Add(ctx context.Context, p Profile) error
	Get(ctx context.Context, id string) (Profile, bool, error)
	GetByName(ctx context.Context, name string) (Profile, bool, error)
	GetAll(ctx context.Context) ([]Profile, error)
	Update(ctx context.Context, p Profile) error
	Remove(ctx context.Context, id string) error
}

// SqliteStore implements Store over a single table, following
// store/sqlite/sqlite.go's open/InitSchema/upsert shape.
type SqliteStore struct {
	db        *sql.DB
	tableName string
}

// SqliteOptions configures the backing database.
type SqliteOptions struct {
	Path      string // e.g. "data/category_profiles.db"
	TableName string // default "category_profiles"
}

// NewSqliteStore opens (creating if absent) the sqlite-backed profile
// store and ensures its schema exists.
func NewSqliteStore(opts SqliteOptions) (*SqliteStore, error) {
	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("category: open database: %w", err)
	}

	tableName := opts.TableName
	if tableName == "" {
		tableName = "category_profiles"
	}

	s := &SqliteStore{db: db, tableName: tableName}
	if err := s.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SqliteStore) initSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL,
			centroid_embedding TEXT NOT NULL,
			keywords TEXT NOT NULL,
			keyword_scores TEXT NOT NULL,
			snippets TEXT NOT NULL,
			parent_id TEXT NOT NULL DEFAULT '',
			sibling_ids TEXT NOT NULL DEFAULT '[]',
			child_ids TEXT NOT NULL DEFAULT '[]',
			card_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			last_updated DATETIME NOT NULL,
			confidence REAL NOT NULL DEFAULT 0.5,
			user_corrections INTEGER NOT NULL DEFAULT 0,
			auto_assignments INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_%s_name ON %s (name);
	`, s.tableName, s.tableName, s.tableName)

	_, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("category: init schema: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SqliteStore) Close() error { return s.db.Close() }

func (s *SqliteStore) Add(ctx context.Context, p Profile) error {
	return s.upsert(ctx, p)
}

func (s *SqliteStore) Update(ctx context.Context, p Profile) error {
	return s.upsert(ctx, p)
}

func (s *SqliteStore) upsert(ctx context.Context, p Profile) error {
	emb, err := json.Marshal(p.CentroidEmbedding)
	if err != nil {
		return fmt.Errorf("category: marshal embedding: %w", err)
	}
	kw, err := json.Marshal(p.Keywords)
	if err != nil {
		return fmt.Errorf("category: marshal keywords: %w", err)
	}
	kwScores, err := json.Marshal(p.KeywordScores)
	if err != nil {
		return fmt.Errorf("category: marshal keyword scores: %w", err)
	}
	snippets, err := json.Marshal(p.Snippets)
	if err != nil {
		return fmt.Errorf("category: marshal snippets: %w", err)
	}
	siblings, err := json.Marshal(p.SiblingIDs)
	if err != nil {
		return fmt.Errorf("category: marshal siblings: %w", err)
	}
	children, err := json.Marshal(p.ChildIDs)
	if err != nil {
		return fmt.Errorf("category: marshal children: %w", err)
	}

	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	if p.LastUpdated.IsZero() {
		p.LastUpdated = p.CreatedAt
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (
			id, name, description, centroid_embedding, keywords, keyword_scores,
			snippets, parent_id, sibling_ids, child_ids, card_count, created_at,
			last_updated, confidence, user_corrections, auto_assignments
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			centroid_embedding = excluded.centroid_embedding,
			keywords = excluded.keywords,
			keyword_scores = excluded.keyword_scores,
			snippets = excluded.snippets,
			parent_id = excluded.parent_id,
			sibling_ids = excluded.sibling_ids,
			child_ids = excluded.child_ids,
			card_count = excluded.card_count,
			last_updated = excluded.last_updated,
			confidence = excluded.confidence,
			user_corrections = excluded.user_corrections,
			auto_assignments = excluded.auto_assignments
	`, s.tableName)

	_, err = s.db.ExecContext(ctx, query,
		p.ID, p.Name, p.Description, string(emb), string(kw), string(kwScores),
		string(snippets), p.ParentID, string(siblings), string(children),
		p.CardCount, p.CreatedAt, p.LastUpdated, p.Confidence,
		p.UserCorrections, p.AutoAssignments,
	)
	if err != nil {
		return fmt.Errorf("category: upsert profile: %w", err)
	}
	return nil
}

func (s *SqliteStore) Get(ctx context.Context, id string) (Profile, bool, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT
		id, name, description, centroid_embedding, keywords, keyword_scores,
		snippets, parent_id, sibling_ids, child_ids, card_count, created_at,
		last_updated, confidence, user_corrections, auto_assignments
		FROM %s WHERE id = ?`, s.tableName), id)
	return s.scan(row)
}

func (s *SqliteStore) GetByName(ctx context.Context, name string) (Profile, bool, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT
		id, name, description, centroid_embedding, keywords, keyword_scores,
		snippets, parent_id, sibling_ids, child_ids, card_count, created_at,
		last_updated, confidence, user_corrections, auto_assignments
		FROM %s WHERE name = ? COLLATE NOCASE`, s.tableName), name)
	return s.scan(row)
}

func (s *SqliteStore) scan(row *sql.Row) (Profile, bool, error) {
	var p Profile
	var emb, kw, kwScores, snippets, siblings, children string
	err := row.Scan(&p.ID, &p.Name, &p.Description, &emb, &kw, &kwScores,
		&snippets, &p.ParentID, &siblings, &children, &p.CardCount,
		&p.CreatedAt, &p.LastUpdated, &p.Confidence, &p.UserCorrections, &p.AutoAssignments)
	if err == sql.ErrNoRows {
		return Profile{}, false, nil
	}
	if err != nil {
		return Profile{}, false, fmt.Errorf("category: scan profile: %w", err)
	}
	if err := json.Unmarshal([]byte(emb), &p.CentroidEmbedding); err != nil {
		return Profile{}, false, fmt.Errorf("category: unmarshal embedding: %w", err)
	}
	if err := json.Unmarshal([]byte(kw), &p.Keywords); err != nil {
		return Profile{}, false, fmt.Errorf("category: unmarshal keywords: %w", err)
	}
	if err := json.Unmarshal([]byte(kwScores), &p.KeywordScores); err != nil {
		return Profile{}, false, fmt.Errorf("category: unmarshal keyword scores: %w", err)
	}
	if err := json.Unmarshal([]byte(snippets), &p.Snippets); err != nil {
		return Profile{}, false, fmt.Errorf("category: unmarshal snippets: %w", err)
	}
	if err := json.Unmarshal([]byte(siblings), &p.SiblingIDs); err != nil {
		return Profile{}, false, fmt.Errorf("category: unmarshal siblings: %w", err)
	}
	if err := json.Unmarshal([]byte(children), &p.ChildIDs); err != nil {
		return Profile{}, false, fmt.Errorf("category: unmarshal children: %w", err)
	}
	return p, true, nil
}

func (s *SqliteStore) GetAll(ctx context.Context) ([]Profile, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT
		id, name, description, centroid_embedding, keywords, keyword_scores,
		snippets, parent_id, sibling_ids, child_ids, card_count, created_at,
		last_updated, confidence, user_corrections, auto_assignments
		FROM %s`, s.tableName))
	if err != nil {
		return nil, fmt.Errorf("category: list profiles: %w", err)
	}
	defer rows.Close()

	var out []Profile
	for rows.Next() {
		var p Profile
		var emb, kw, kwScores, snippets, siblings, children string
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &emb, &kw, &kwScores,
			&snippets, &p.ParentID, &siblings, &children, &p.CardCount,
			&p.CreatedAt, &p.LastUpdated, &p.Confidence, &p.UserCorrections, &p.AutoAssignments); err != nil {
			return nil, fmt.Errorf("category: scan profile row: %w", err)
		}
		json.Unmarshal([]byte(emb), &p.CentroidEmbedding)
		json.Unmarshal([]byte(kw), &p.Keywords)
		json.Unmarshal([]byte(kwScores), &p.KeywordScores)
		json.Unmarshal([]byte(snippets), &p.Snippets)
		json.Unmarshal([]byte(siblings), &p.SiblingIDs)
		json.Unmarshal([]byte(children), &p.ChildIDs)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SqliteStore) Remove(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, s.tableName), id)
	if err != nil {
		return fmt.Errorf("category: remove profile: %w", err)
	}
	return nil
}

// MemoryStore is a Store backed by an in-process map, used by tests and
// by any deployment that does not need SqliteStore's durability.
type MemoryStore struct {
	profiles map[string]Profile
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[string]Profile)}
}

func (m *MemoryStore) Add(_ context.Context, p Profile) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	if p.LastUpdated.IsZero() {
		p.LastUpdated = p.CreatedAt
	}
	m.profiles[p.ID] = p
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (Profile, bool, error) {
	p, ok := m.profiles[id]
	return p, ok, nil
}

func (m *MemoryStore) GetByName(_ context.Context, name string) (Profile, bool, error) {
	for _, p := range m.profiles {
		if strings.EqualFold(p.Name, name) {
			return p, true, nil
		}
	}
	return Profile{}, false, nil
}

func (m *MemoryStore) GetAll(_ context.Context) ([]Profile, error) {
	out := make([]Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		out = append(out, p)
	}
	return out, nil
}

func (m *MemoryStore) Update(_ context.Context, p Profile) error {
	m.profiles[p.ID] = p
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, id string) error {
	delete(m.profiles, id)
	return nil
}
