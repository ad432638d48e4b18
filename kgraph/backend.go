// Package kgraph defines the graph-backend capability interface (node/edge
// CRUD, similarity, neighborhood, path, subgraph, bulk persist/load,
// stats) and its two implementations, following the dispatch-by-URL-scheme
// constructor idiom of rag/store/knowledge_graph.go.
package kgraph

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNodeNotFound is returned by operations addressing a missing node id.
var ErrNodeNotFound = errors.New("kgraph: node not found")

// Node mirrors a card inside the backend (spec §3: "Graph node").
type Node struct {
	ID         string
	Content    string // normalized content used for similarity
	Embedding  []float32
	Category   string
	Attributes map[string]any
}

// EdgeType enumerates connection types (spec §3).
type EdgeType string

const (
	EdgeParentChild EdgeType = "parent-child"
	EdgeRelated     EdgeType = "related"
	EdgeReference   EdgeType = "reference"
	EdgeSimilar     EdgeType = "similar"
	EdgeMentions    EdgeType = "mentions"
	EdgeChallenges  EdgeType = "challenges"
	EdgeDefault     EdgeType = "default"
)

// Edge is a directed, typed edge between two nodes.
type Edge struct {
	Source     string
	Target     string
	Type       EdgeType
	Weight     float64 // similarity_score when Type == EdgeSimilar
	Attributes map[string]any
}

// Scored pairs a node id with a similarity score, used by
// FindSimilarNodes and neighborhood/path results.
type Scored struct {
	ID    string
	Score float64
}

// Stats summarizes backend size for observability and the ~10k-node
// suitability note on the in-memory backend (spec §4.2).
type Stats struct {
	NodeCount int
	EdgeCount int
}

// Backend is the capability set every implementation must satisfy.
// add_edge fails silently (returns false, no error) when an endpoint is
// missing, per spec §4.2; callers that need to know why should check
// HasNode first.
type Backend interface {
	AddNode(ctx context.Context, n Node) error
	GetNode(ctx context.Context, id string) (Node, bool, error)
	UpdateNode(ctx context.Context, id string, fn func(*Node)) error
	RemoveNode(ctx context.Context, id string) error
	HasNode(ctx context.Context, id string) (bool, error)

	// AddEdge upserts (source, target) for type t. Returns false (no
	// error) if either endpoint is missing.
	AddEdge(ctx context.Context, e Edge) (bool, error)
	RemoveEdge(ctx context.Context, source, target string, t EdgeType) error
	RemoveEdgesOfType(ctx context.Context, nodeID string, t EdgeType, direction Direction) error
	Edges(ctx context.Context, nodeID string, t EdgeType, direction Direction) ([]Edge, error)

	// FindSimilarNodes returns (id, score) pairs sorted by score
	// descending, combining both out- and in-neighbors across
	// "similar" edges (spec §4.2), limited to limit entries with
	// score >= minSimilarity.
	FindSimilarNodes(ctx context.Context, nodeID string, limit int, minSimilarity float64) ([]Scored, error)

	Neighborhood(ctx context.Context, nodeID string, depth int) ([]string, error)
	Path(ctx context.Context, fromID, toID string) ([]string, bool, error)
	Subgraph(ctx context.Context, nodeIDs []string) ([]Node, []Edge, error)

	AllNodeIDs(ctx context.Context) ([]string, error)
	Stats(ctx context.Context) (Stats, error)

	// Persist flushes durable state (snapshot file / external store,
	// depending on implementation); Load restores it. Both are no-ops
	// for implementations with nothing to flush.
	Persist(ctx context.Context) error
	Load(ctx context.Context) error
}

// Direction constrains RemoveEdgesOfType / Edges to outgoing, incoming, or
// both.
type Direction int

const (
	Outgoing Direction = iota
	Incoming
	Both
)

// New dispatches on databaseURL's scheme, mirroring
// rag/store/knowledge_graph.go's NewKnowledgeGraph: "memory://" for the
// in-memory + snapshot-file backend, "postgres://" for the external
// graph-DB backend.
func New(ctx context.Context, databaseURL string) (Backend, error) {
	switch {
	case strings.HasPrefix(databaseURL, "memory://"):
		path := strings.TrimPrefix(databaseURL, "memory://")
		return NewMemoryBackend(path), nil
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return NewPostgresBackend(ctx, databaseURL)
	default:
		return nil, fmt.Errorf("kgraph: unsupported backend url %q", databaseURL)
	}
}
