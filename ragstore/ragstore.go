// Package ragstore implements the RAG store interface the core consumes
// (spec §4.9): chunk/embed/upsert, hybrid-filtered search, and content-hash
// "needs reindex" tracking, grounded on rag/pipeline.go's node shape,
// rag/splitter/recursive.go's overlapping-window splitter, and
// rag/store/vector.go's in-memory cosine-similarity index.
package ragstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// Status is the lifecycle state of one entity's index record (spec §3,
// "Index record").
type Status string

const (
	StatusIndexed Status = "indexed"
	StatusFailed  Status = "failed"
	StatusDeleted Status = "deleted"
	StatusPending Status = "pending"
)

// IndexRecord tracks one (entity_id, entity_type) pair's indexing state.
type IndexRecord struct {
	EntityID    string
	EntityType  string
	ContentHash string
	ChunkCount  int
	PointIDs    []string
	Model       string
	Status      Status
	RetryCount  int
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SearchResult is one scored hit, per spec §4.9 ("{score, content,
// entity_id, ...}").
type SearchResult struct {
	Score      float64
	Content    string
	EntityID   string
	EntityType string
	CanvasID   string
	ChunkIndex int
	Metadata   map[string]any
}

// Embedder is the embedding surface ragstore needs; model.Provider
// satisfies it directly.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Store is the RAG store interface consumed by the rest of the core
// (spec §4.9).
type Store interface {
	IndexCard(ctx context.Context, id, content, canvasID, entityType string, metadata map[string]any, force bool) error
	DeleteCardIndex(ctx context.Context, id string) error
	Search(ctx context.Context, query, canvasID, entityType string, topK int, scoreThreshold float64) ([]SearchResult, error)
	RetrieveContext(ctx context.Context, query, canvasID string, topK int, scoreThreshold float64) (string, []SearchResult, error)
}

// point is one embedded chunk living in the in-memory vector index.
type point struct {
	id         string
	entityID   string
	entityType string
	canvasID   string
	chunkIndex int
	content    string
	embedding  []float32
	metadata   map[string]any
}

// VectorStore is the default in-process Store implementation: an
// in-memory cosine-similarity index plus a content-hash tracker, grounded
// on rag/store/vector.go's InMemoryVectorStore.
type VectorStore struct {
	mu sync.RWMutex

	embedder     Embedder
	modelName    string
	chunkSize    int
	chunkOverlap int

	points  map[string]*point          // point id -> point
	index   map[string][]string        // entity key -> point ids
	records map[string]*IndexRecord    // entity key -> record
}

// NewVectorStore builds an empty store. chunkSize/chunkOverlap default to
// 500/50 words (spec §6) when zero.
func NewVectorStore(embedder Embedder, modelName string, chunkSize, chunkOverlap int) *VectorStore {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	if chunkOverlap <= 0 {
		chunkOverlap = 50
	}
	return &VectorStore{
		embedder:     embedder,
		modelName:    modelName,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		points:       make(map[string]*point),
		index:        make(map[string][]string),
		records:      make(map[string]*IndexRecord),
	}
}

func entityKey(id, entityType string) string { return entityType + ":" + id }

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// IndexCard chunks, embeds, and upserts content under (id, entityType). If
// the content's SHA-256 hash matches the stored record's and force is
// false, this is a no-op (spec §4.9, "re-indexing the same content is a
// no-op unless force is true").
func (s *VectorStore) IndexCard(ctx context.Context, id, content, canvasID, entityType string, metadata map[string]any, force bool) error {
	key := entityKey(id, entityType)
	hash := contentHash(content)

	s.mu.Lock()
	existing, ok := s.records[key]
	if ok && !force && existing.ContentHash == hash && existing.Status == StatusIndexed {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	chunks := chunkWords(content, s.chunkSize, s.chunkOverlap)
	var texts []string
	for _, c := range chunks {
		texts = append(texts, c.Content)
	}

	embeddings, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		s.recordFailure(key, id, entityType, hash, err)
		return fmt.Errorf("ragstore: embed %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// drop any points from a prior version of this entity before upserting.
	s.removeLocked(key)

	pointIDs := make([]string, 0, len(chunks))
	for i, c := range chunks {
		pid := fmt.Sprintf("%s#%d", key, i)
		s.points[pid] = &point{
			id: pid, entityID: id, entityType: entityType, canvasID: canvasID,
			chunkIndex: c.Index, content: c.Content, embedding: embeddings[i],
			metadata: metadata,
		}
		s.index[key] = append(s.index[key], pid)
		pointIDs = append(pointIDs, pid)
	}

	now := time.Now()
	createdAt := now
	if ok {
		createdAt = existing.CreatedAt
	}
	s.records[key] = &IndexRecord{
		EntityID: id, EntityType: entityType, ContentHash: hash,
		ChunkCount: len(chunks), PointIDs: pointIDs, Model: s.modelName,
		Status: StatusIndexed, RetryCount: 0,
		CreatedAt: createdAt, UpdatedAt: now,
	}
	return nil
}

// recordFailure marks the entity's index record failed and bumps its
// retry counter, per spec §4.9 ("on indexing failure, status is set to
// failed, retry counter is incremented, and the error message is
// retained").
func (s *VectorStore) recordFailure(key, id, entityType, hash string, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		rec = &IndexRecord{EntityID: id, EntityType: entityType, CreatedAt: time.Now()}
		s.records[key] = rec
	}
	rec.ContentHash = hash
	rec.Status = StatusFailed
	rec.RetryCount++
	rec.LastError = cause.Error()
	rec.UpdatedAt = time.Now()
}

// DeleteCardIndex removes every chunk indexed for id across entity types
// and marks the record deleted. id alone is ambiguous across entity
// types in principle, but cards are the only entity type that calls
// this, so a direct "card" lookup covers the real call sites; other
// entity types are swept too in case one was indexed under the same id.
func (s *VectorStore) DeleteCardIndex(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, rec := range s.records {
		if rec.EntityID != id {
			continue
		}
		s.removeLocked(key)
		rec.Status = StatusDeleted
		rec.PointIDs = nil
		rec.ChunkCount = 0
		rec.UpdatedAt = time.Now()
	}
	return nil
}

// removeLocked drops every point indexed under key. Caller holds s.mu.
func (s *VectorStore) removeLocked(key string) {
	for _, pid := range s.index[key] {
		delete(s.points, pid)
	}
	delete(s.index, key)
}

// Search embeds query and returns the top_k points matching canvasID/
// entityType (either may be empty to skip that filter) with
// score >= scoreThreshold, sorted by score descending (spec §4.9).
func (s *VectorStore) Search(ctx context.Context, query, canvasID, entityType string, topK int, scoreThreshold float64) ([]SearchResult, error) {
	if topK <= 0 {
		topK = 4
	}
	queryEmbedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ragstore: embed query: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []SearchResult
	for _, p := range s.points {
		if canvasID != "" && p.canvasID != canvasID {
			continue
		}
		if entityType != "" && p.entityType != entityType {
			continue
		}
		score := cosineSimilarity(queryEmbedding, p.embedding)
		if score < scoreThreshold {
			continue
		}
		results = append(results, SearchResult{
			Score: score, Content: p.content, EntityID: p.entityID,
			EntityType: p.entityType, CanvasID: p.canvasID,
			ChunkIndex: p.chunkIndex, Metadata: p.metadata,
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// RetrieveContext runs Search and joins the hits into one context block
// in score order, for the learning-assistant agent's RAG-backed answers.
func (s *VectorStore) RetrieveContext(ctx context.Context, query, canvasID string, topK int, scoreThreshold float64) (string, []SearchResult, error) {
	results, err := s.Search(ctx, query, canvasID, "", topK, scoreThreshold)
	if err != nil {
		return "", nil, err
	}

	var parts []string
	for i, r := range results {
		parts = append(parts, fmt.Sprintf("[%d] %s", i+1, r.Content))
	}
	return joinWithBlankLine(parts), results, nil
}

func joinWithBlankLine(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "\n\n"
		}
		out += p
	}
	return out
}

// RecordFor returns the current index record for (id, entityType), if any
// — used by tests and by the self-correction job's "reindex failed
// entities" sweep.
func (s *VectorStore) RecordFor(id, entityType string) (IndexRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[entityKey(id, entityType)]
	if !ok {
		return IndexRecord{}, false
	}
	return *rec, true
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
