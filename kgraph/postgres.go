package kgraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBPool is the minimal surface PostgresBackend depends on, mirroring
// store/postgres/postgres.go's DBPool so tests can swap in
// pashagolub/pgxmock/v3 without a live database.
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresBackend implements Backend against a graph database modeled as
// two tables, with secondary indexes on the category attribute and on the
// similarity weight (spec §4.2).
type PostgresBackend struct {
	pool      DBPool
	nodeTable string
	edgeTable string
}

var _ Backend = (*PostgresBackend)(nil)

// PostgresOptions configures table names; both default when empty.
type PostgresOptions struct {
	NodeTable string // default "kg_nodes"
	EdgeTable string // default "kg_edges"
}

// NewPostgresBackend opens a pool against connString and ensures the
// schema exists.
func NewPostgresBackend(ctx context.Context, connString string) (*PostgresBackend, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("kgraph: connect postgres: %w", err)
	}
	b := NewPostgresBackendWithPool(pool, PostgresOptions{})
	if err := b.InitSchema(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

// NewPostgresBackendWithPool wires an already-constructed pool (or mock),
// for tests.
func NewPostgresBackendWithPool(pool DBPool, opts PostgresOptions) *PostgresBackend {
	nodeTable := opts.NodeTable
	if nodeTable == "" {
		nodeTable = "kg_nodes"
	}
	edgeTable := opts.EdgeTable
	if edgeTable == "" {
		edgeTable = "kg_edges"
	}
	return &PostgresBackend{pool: pool, nodeTable: nodeTable, edgeTable: edgeTable}
}

// InitSchema creates the backing tables and secondary indexes if absent.
func (b *PostgresBackend) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			embedding JSONB NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			attributes JSONB
		);
		CREATE INDEX IF NOT EXISTS idx_%s_category ON %s (category);

		CREATE TABLE IF NOT EXISTS %s (
			source TEXT NOT NULL,
			target TEXT NOT NULL,
			type TEXT NOT NULL,
			weight DOUBLE PRECISION NOT NULL DEFAULT 0,
			attributes JSONB,
			PRIMARY KEY (source, target, type)
		);
		CREATE INDEX IF NOT EXISTS idx_%s_weight ON %s (weight);
		CREATE INDEX IF NOT EXISTS idx_%s_source_type ON %s (source, type);
		CREATE INDEX IF NOT EXISTS idx_%s_target_type ON %s (target, type);
	`,
		b.nodeTable, b.nodeTable, b.nodeTable,
		b.edgeTable, b.edgeTable, b.edgeTable,
		b.edgeTable, b.edgeTable,
		b.edgeTable, b.edgeTable,
	)
	if _, err := b.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("kgraph: init schema: %w", err)
	}
	return nil
}

// Close releases the pool.
func (b *PostgresBackend) Close() { b.pool.Close() }

// AddNode implements Backend.
func (b *PostgresBackend) AddNode(ctx context.Context, n Node) error {
	emb, err := json.Marshal(n.Embedding)
	if err != nil {
		return fmt.Errorf("kgraph: marshal embedding: %w", err)
	}
	attrs, err := json.Marshal(n.Attributes)
	if err != nil {
		return fmt.Errorf("kgraph: marshal attributes: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, content, embedding, category, attributes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			category = EXCLUDED.category,
			attributes = EXCLUDED.attributes
	`, b.nodeTable)

	_, err = b.pool.Exec(ctx, query, n.ID, n.Content, emb, n.Category, attrs)
	if err != nil {
		return fmt.Errorf("kgraph: insert node: %w", err)
	}
	return nil
}

// GetNode implements Backend.
func (b *PostgresBackend) GetNode(ctx context.Context, id string) (Node, bool, error) {
	query := fmt.Sprintf(`SELECT id, content, embedding, category, attributes FROM %s WHERE id = $1`, b.nodeTable)

	var n Node
	var emb, attrs []byte
	err := b.pool.QueryRow(ctx, query, id).Scan(&n.ID, &n.Content, &emb, &n.Category, &attrs)
	if errors.Is(err, pgx.ErrNoRows) {
		return Node{}, false, nil
	}
	if err != nil {
		return Node{}, false, fmt.Errorf("kgraph: get node: %w", err)
	}
	if err := json.Unmarshal(emb, &n.Embedding); err != nil {
		return Node{}, false, fmt.Errorf("kgraph: unmarshal embedding: %w", err)
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &n.Attributes); err != nil {
			return Node{}, false, fmt.Errorf("kgraph: unmarshal attributes: %w", err)
		}
	}
	return n, true, nil
}

// UpdateNode implements Backend.
func (b *PostgresBackend) UpdateNode(ctx context.Context, id string, fn func(*Node)) error {
	n, ok, err := b.GetNode(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	fn(&n)
	return b.AddNode(ctx, n)
}

// RemoveNode implements Backend; the edge table's FK-less design means we
// explicitly delete incident edges in the same call, preserving the
// "removing a node removes its incident edges" invariant (spec §3).
func (b *PostgresBackend) RemoveNode(ctx context.Context, id string) error {
	if _, err := b.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE source = $1 OR target = $1`, b.edgeTable), id); err != nil {
		return fmt.Errorf("kgraph: delete incident edges: %w", err)
	}
	if _, err := b.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, b.nodeTable), id); err != nil {
		return fmt.Errorf("kgraph: delete node: %w", err)
	}
	return nil
}

// HasNode implements Backend.
func (b *PostgresBackend) HasNode(ctx context.Context, id string) (bool, error) {
	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1)`, b.nodeTable)
	if err := b.pool.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("kgraph: has node: %w", err)
	}
	return exists, nil
}

// AddEdge implements Backend: fails silently if either endpoint is
// missing.
func (b *PostgresBackend) AddEdge(ctx context.Context, e Edge) (bool, error) {
	srcOK, err := b.HasNode(ctx, e.Source)
	if err != nil {
		return false, err
	}
	dstOK, err := b.HasNode(ctx, e.Target)
	if err != nil {
		return false, err
	}
	if !srcOK || !dstOK {
		return false, nil
	}

	attrs, err := json.Marshal(e.Attributes)
	if err != nil {
		return false, fmt.Errorf("kgraph: marshal edge attributes: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (source, target, type, weight, attributes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (source, target, type) DO UPDATE SET
			weight = EXCLUDED.weight,
			attributes = EXCLUDED.attributes
	`, b.edgeTable)

	if _, err := b.pool.Exec(ctx, query, e.Source, e.Target, string(e.Type), e.Weight, attrs); err != nil {
		return false, fmt.Errorf("kgraph: upsert edge: %w", err)
	}
	return true, nil
}

// RemoveEdge implements Backend.
func (b *PostgresBackend) RemoveEdge(ctx context.Context, source, target string, t EdgeType) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE source = $1 AND target = $2 AND type = $3`, b.edgeTable)
	if _, err := b.pool.Exec(ctx, query, source, target, string(t)); err != nil {
		return fmt.Errorf("kgraph: remove edge: %w", err)
	}
	return nil
}

// RemoveEdgesOfType implements Backend.
func (b *PostgresBackend) RemoveEdgesOfType(ctx context.Context, nodeID string, t EdgeType, direction Direction) error {
	switch direction {
	case Outgoing:
		_, err := b.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE source = $1 AND type = $2`, b.edgeTable), nodeID, string(t))
		return wrapExec(err, "remove outgoing edges")
	case Incoming:
		_, err := b.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE target = $1 AND type = $2`, b.edgeTable), nodeID, string(t))
		return wrapExec(err, "remove incoming edges")
	default:
		_, err := b.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE (source = $1 OR target = $1) AND type = $2`, b.edgeTable), nodeID, string(t))
		return wrapExec(err, "remove edges")
	}
}

func wrapExec(err error, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("kgraph: %s: %w", action, err)
}

// Edges implements Backend.
func (b *PostgresBackend) Edges(ctx context.Context, nodeID string, t EdgeType, direction Direction) ([]Edge, error) {
	var query string
	switch direction {
	case Outgoing:
		query = fmt.Sprintf(`SELECT source, target, type, weight, attributes FROM %s WHERE source = $1 AND type = $2`, b.edgeTable)
	case Incoming:
		query = fmt.Sprintf(`SELECT source, target, type, weight, attributes FROM %s WHERE target = $1 AND type = $2`, b.edgeTable)
	default:
		query = fmt.Sprintf(`SELECT source, target, type, weight, attributes FROM %s WHERE (source = $1 OR target = $1) AND type = $2`, b.edgeTable)
	}

	rows, err := b.pool.Query(ctx, query, nodeID, string(t))
	if err != nil {
		return nil, fmt.Errorf("kgraph: query edges: %w", err)
	}
	defer rows.Close()

	return scanEdges(rows)
}

func scanEdges(rows pgx.Rows) ([]Edge, error) {
	var edges []Edge
	for rows.Next() {
		var e Edge
		var typ string
		var attrs []byte
		if err := rows.Scan(&e.Source, &e.Target, &typ, &e.Weight, &attrs); err != nil {
			return nil, fmt.Errorf("kgraph: scan edge: %w", err)
		}
		e.Type = EdgeType(typ)
		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &e.Attributes); err != nil {
				return nil, fmt.Errorf("kgraph: unmarshal edge attributes: %w", err)
			}
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// FindSimilarNodes implements Backend using the weight secondary index,
// combining out- and in-neighbors across "similar" edges.
func (b *PostgresBackend) FindSimilarNodes(ctx context.Context, nodeID string, limit int, minSimilarity float64) ([]Scored, error) {
	query := fmt.Sprintf(`
		SELECT target AS other, weight FROM %s WHERE source = $1 AND type = $2 AND weight >= $3
		UNION
		SELECT source AS other, weight FROM %s WHERE target = $1 AND type = $2 AND weight >= $3
	`, b.edgeTable, b.edgeTable)

	rows, err := b.pool.Query(ctx, query, nodeID, string(EdgeSimilar), minSimilarity)
	if err != nil {
		return nil, fmt.Errorf("kgraph: find similar: %w", err)
	}
	defer rows.Close()

	best := make(map[string]float64)
	for rows.Next() {
		var id string
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			return nil, fmt.Errorf("kgraph: scan similar: %w", err)
		}
		if score > best[id] {
			best[id] = score
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	results := make([]Scored, 0, len(best))
	for id, score := range best {
		results = append(results, Scored{ID: id, Score: score})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Neighborhood implements Backend with an iterative expansion query,
// bounded by depth.
func (b *PostgresBackend) Neighborhood(ctx context.Context, nodeID string, depth int) ([]string, error) {
	visited := map[string]bool{nodeID: true}
	frontier := []string{nodeID}

	for d := 0; d < depth && len(frontier) > 0; d++ {
		query := fmt.Sprintf(`
			SELECT target FROM %s WHERE source = ANY($1)
			UNION
			SELECT source FROM %s WHERE target = ANY($1)
		`, b.edgeTable, b.edgeTable)

		rows, err := b.pool.Query(ctx, query, frontier)
		if err != nil {
			return nil, fmt.Errorf("kgraph: neighborhood: %w", err)
		}

		var next []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("kgraph: scan neighborhood: %w", err)
			}
			if !visited[id] {
				visited[id] = true
				next = append(next, id)
			}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
		frontier = next
	}

	delete(visited, nodeID)
	out := make([]string, 0, len(visited))
	for id := range visited {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// Path implements Backend with a breadth-first expansion, one round-trip
// per depth level; acceptable for the moderate fan-out graphs this
// backend targets.
func (b *PostgresBackend) Path(ctx context.Context, fromID, toID string) ([]string, bool, error) {
	if fromID == toID {
		return []string{fromID}, true, nil
	}

	visited := map[string]string{fromID: ""} // child -> parent
	frontier := []string{fromID}

	for len(frontier) > 0 {
		query := fmt.Sprintf(`
			SELECT source, target FROM %s WHERE source = ANY($1)
			UNION
			SELECT target AS source, source AS target FROM %s WHERE target = ANY($1)
		`, b.edgeTable, b.edgeTable)

		rows, err := b.pool.Query(ctx, query, frontier)
		if err != nil {
			return nil, false, fmt.Errorf("kgraph: path: %w", err)
		}

		var next []string
		found := false
		for rows.Next() {
			var from, to string
			if err := rows.Scan(&from, &to); err != nil {
				rows.Close()
				return nil, false, fmt.Errorf("kgraph: scan path: %w", err)
			}
			if _, ok := visited[to]; !ok {
				visited[to] = from
				next = append(next, to)
				if to == toID {
					found = true
				}
			}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, false, err
		}
		if found {
			return reconstructPath(visited, fromID, toID), true, nil
		}
		frontier = next
	}

	return nil, false, nil
}

func reconstructPath(visited map[string]string, fromID, toID string) []string {
	var path []string
	cur := toID
	for cur != fromID {
		path = append([]string{cur}, path...)
		cur = visited[cur]
	}
	path = append([]string{fromID}, path...)
	return path
}

// Subgraph implements Backend.
func (b *PostgresBackend) Subgraph(ctx context.Context, nodeIDs []string) ([]Node, []Edge, error) {
	nodes := make([]Node, 0, len(nodeIDs))
	for _, id := range nodeIDs {
		n, ok, err := b.GetNode(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			nodes = append(nodes, n)
		}
	}

	query := fmt.Sprintf(`SELECT source, target, type, weight, attributes FROM %s WHERE source = ANY($1) AND target = ANY($1)`, b.edgeTable)
	rows, err := b.pool.Query(ctx, query, nodeIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("kgraph: subgraph edges: %w", err)
	}
	defer rows.Close()

	edges, err := scanEdges(rows)
	if err != nil {
		return nil, nil, err
	}
	return nodes, edges, nil
}

// AllNodeIDs implements Backend.
func (b *PostgresBackend) AllNodeIDs(ctx context.Context) ([]string, error) {
	rows, err := b.pool.Query(ctx, fmt.Sprintf(`SELECT id FROM %s ORDER BY id`, b.nodeTable))
	if err != nil {
		return nil, fmt.Errorf("kgraph: all node ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("kgraph: scan node id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Stats implements Backend.
func (b *PostgresBackend) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	if err := b.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, b.nodeTable)).Scan(&s.NodeCount); err != nil {
		return Stats{}, fmt.Errorf("kgraph: count nodes: %w", err)
	}
	if err := b.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, b.edgeTable)).Scan(&s.EdgeCount); err != nil {
		return Stats{}, fmt.Errorf("kgraph: count edges: %w", err)
	}
	return s, nil
}

// Persist is a no-op: every write already durably lands in Postgres.
func (b *PostgresBackend) Persist(_ context.Context) error { return nil }

// Load is a no-op for the same reason.
func (b *PostgresBackend) Load(_ context.Context) error { return nil }
