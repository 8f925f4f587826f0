package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/scrypster/ontograph/internal/storage"
	"github.com/scrypster/ontograph/pkg/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// UpsertNode merges a node on (type, name). The ID is deterministic, so the
// same merge key always maps to the same row.
func (s *Store) UpsertNode(ctx context.Context, entityType, name string, props map[string]interface{}) (string, error) {
	if err := storage.ValidateNode(entityType, name); err != nil {
		return "", err
	}
	entityType = strings.ToUpper(entityType)
	id := types.NodeID(entityType, name)

	var propsJSON sql.NullString
	if props != nil {
		b, err := json.Marshal(props)
		if err != nil {
			return "", fmt.Errorf("%w: node properties: %v", storage.ErrInvalidInput, err)
		}
		propsJSON = sql.NullString{String: string(b), Valid: true}
	}

	now := time.Now().UTC()
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO nodes (id, type, name, properties, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(type, name) DO UPDATE SET
			properties = COALESCE(excluded.properties, nodes.properties),
			updated_at = excluded.updated_at
	`, id, entityType, name, propsJSON, now, now)
	if err != nil {
		return "", fmt.Errorf("sqlite: upsert node %s: %w", id, err)
	}
	return id, nil
}

// UpsertEdge merges a directed edge. Both endpoints must exist.
func (s *Store) UpsertEdge(ctx context.Context, fromID, toID, relType string) error {
	if err := storage.ValidateEdge(fromID, toID, relType); err != nil {
		return err
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO edges (from_id, to_id, type, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(from_id, to_id, type) DO NOTHING
	`, fromID, toID, relType, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("sqlite: upsert edge %s -[%s]-> %s: %w", fromID, relType, toID, err)
	}
	return nil
}

const nodeColumns = "id, type, name, properties, page_rank, community_id"

// Nodes returns every node ordered by ID.
func (s *Store) Nodes(ctx context.Context) ([]types.Node, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT "+nodeColumns+" FROM nodes ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("sqlite: list nodes: %w", err)
	}
	return scanNodes(rows)
}

// Edges returns every edge.
func (s *Store) Edges(ctx context.Context) ([]types.Edge, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT from_id, to_id, type FROM edges ORDER BY from_id, to_id, type")
	if err != nil {
		return nil, fmt.Errorf("sqlite: list edges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var edges []types.Edge
	for rows.Next() {
		var e types.Edge
		if err := rows.Scan(&e.FromID, &e.ToID, &e.Type); err != nil {
			return nil, fmt.Errorf("sqlite: scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// Node returns one node by ID.
func (s *Store) Node(ctx context.Context, id string) (*types.Node, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT "+nodeColumns+" FROM nodes WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get node: %w", err)
	}
	nodes, err := scanNodes(rows)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, storage.ErrNotFound
	}
	return &nodes[0], nil
}

// SearchNodes matches term as a case-insensitive substring of node names.
func (s *Store) SearchNodes(ctx context.Context, term string, limit int) ([]types.Node, error) {
	if strings.TrimSpace(term) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+nodeColumns+` FROM nodes
		WHERE lower(name) LIKE ? ESCAPE '\'
		ORDER BY page_rank DESC NULLS LAST, name
		LIMIT ?
	`, storage.LikePattern(term), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: search nodes: %w", err)
	}
	return scanNodes(rows)
}

// Neighbors returns facts where nodeID is either endpoint, strongest
// neighbours (by PageRank) first.
func (s *Store) Neighbors(ctx context.Context, nodeID string, limit int) ([]storage.Fact, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.q.QueryContext(ctx, `
		SELECT e.type,
			a.id, a.type, a.name, a.page_rank, a.community_id,
			b.id, b.type, b.name, b.page_rank, b.community_id
		FROM edges e
		JOIN nodes a ON a.id = e.from_id
		JOIN nodes b ON b.id = e.to_id
		WHERE e.from_id = ? OR e.to_id = ?
		ORDER BY MAX(COALESCE(a.page_rank, 0), COALESCE(b.page_rank, 0)) DESC, e.type, a.name, b.name
		LIMIT ?
	`, nodeID, nodeID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: neighbors of %s: %w", nodeID, err)
	}
	defer func() { _ = rows.Close() }()

	var facts []storage.Fact
	for rows.Next() {
		var (
			f          storage.Fact
			aPR, bPR   sql.NullFloat64
			aCom, bCom sql.NullInt64
		)
		if err := rows.Scan(&f.Relation,
			&f.From.ID, &f.From.Type, &f.From.Name, &aPR, &aCom,
			&f.To.ID, &f.To.Type, &f.To.Name, &bPR, &bCom); err != nil {
			return nil, fmt.Errorf("sqlite: scan fact: %w", err)
		}
		f.From.PageRank, f.From.CommunityID = nullableAnalytics(aPR, aCom)
		f.To.PageRank, f.To.CommunityID = nullableAnalytics(bPR, bCom)
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// SetNodeAnalytics stores PageRank and community on a node.
func (s *Store) SetNodeAnalytics(ctx context.Context, nodeID string, pageRank float64, communityID int64) error {
	res, err := s.q.ExecContext(ctx,
		"UPDATE nodes SET page_rank = ?, community_id = ?, updated_at = ? WHERE id = ?",
		pageRank, communityID, time.Now().UTC(), nodeID)
	if err != nil {
		return fmt.Errorf("sqlite: set analytics on %s: %w", nodeID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: node %s", storage.ErrNotFound, nodeID)
	}
	return nil
}

// Counts returns the number of nodes and edges.
func (s *Store) Counts(ctx context.Context) (nodes, edges int, err error) {
	err = s.q.QueryRowContext(ctx, "SELECT (SELECT COUNT(*) FROM nodes), (SELECT COUNT(*) FROM edges)").Scan(&nodes, &edges)
	if err != nil {
		return 0, 0, fmt.Errorf("sqlite: count: %w", err)
	}
	return nodes, edges, nil
}

func scanNodes(rows *sql.Rows) ([]types.Node, error) {
	defer func() { _ = rows.Close() }()

	var nodes []types.Node
	for rows.Next() {
		var (
			n     types.Node
			props sql.NullString
			pr    sql.NullFloat64
			com   sql.NullInt64
		)
		if err := rows.Scan(&n.ID, &n.Type, &n.Name, &props, &pr, &com); err != nil {
			return nil, fmt.Errorf("sqlite: scan node: %w", err)
		}
		if props.Valid && props.String != "" {
			if err := json.UnmarshalFromString(props.String, &n.Properties); err != nil {
				return nil, fmt.Errorf("sqlite: decode properties of %s: %w", n.ID, err)
			}
		}
		n.PageRank, n.CommunityID = nullableAnalytics(pr, com)
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

func nullableAnalytics(pr sql.NullFloat64, com sql.NullInt64) (*float64, *int64) {
	var (
		p *float64
		c *int64
	)
	if pr.Valid {
		v := pr.Float64
		p = &v
	}
	if com.Valid {
		v := com.Int64
		c = &v
	}
	return p, c
}
