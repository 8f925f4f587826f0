package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/scrypster/ontograph/internal/storage"
	"github.com/scrypster/ontograph/pkg/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// UpsertNode merges a node on (type, name) with a single INSERT ... ON CONFLICT.
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

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO nodes (id, type, name, properties, created_at, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, NOW(), NOW())
		ON CONFLICT (type, name) DO UPDATE SET
			properties = COALESCE(EXCLUDED.properties, nodes.properties),
			updated_at = NOW()
	`, id, entityType, name, propsJSON)
	if err != nil {
		return "", fmt.Errorf("postgres: upsert node %s: %w", id, err)
	}
	return id, nil
}

// UpsertEdge merges a directed edge.
func (s *Store) UpsertEdge(ctx context.Context, fromID, toID, relType string) error {
	if err := storage.ValidateEdge(fromID, toID, relType); err != nil {
		return err
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO edges (from_id, to_id, type) VALUES ($1, $2, $3)
		ON CONFLICT (from_id, to_id, type) DO NOTHING
	`, fromID, toID, relType)
	if err != nil {
		return fmt.Errorf("postgres: upsert edge %s -[%s]-> %s: %w", fromID, relType, toID, err)
	}
	return nil
}

const nodeColumns = "id, type, name, properties, page_rank, community_id"

// Nodes returns every node ordered by ID.
func (s *Store) Nodes(ctx context.Context) ([]types.Node, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT "+nodeColumns+" FROM nodes ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("postgres: list nodes: %w", err)
	}
	return scanNodes(rows)
}

// Edges returns every edge.
func (s *Store) Edges(ctx context.Context) ([]types.Edge, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT from_id, to_id, type FROM edges ORDER BY from_id, to_id, type")
	if err != nil {
		return nil, fmt.Errorf("postgres: list edges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var edges []types.Edge
	for rows.Next() {
		var e types.Edge
		if err := rows.Scan(&e.FromID, &e.ToID, &e.Type); err != nil {
			return nil, fmt.Errorf("postgres: scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
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
		WHERE lower(name) LIKE $1 ESCAPE '\'
		ORDER BY page_rank DESC NULLS LAST, name
		LIMIT $2
	`, storage.LikePattern(term), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: search nodes: %w", err)
	}
	return scanNodes(rows)
}

// Neighbors returns facts where nodeID is either endpoint.
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
		WHERE e.from_id = $1 OR e.to_id = $1
		ORDER BY GREATEST(COALESCE(a.page_rank, 0), COALESCE(b.page_rank, 0)) DESC, e.type, a.name, b.name
		LIMIT $2
	`, nodeID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: neighbors of %s: %w", nodeID, err)
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
			return nil, fmt.Errorf("postgres: scan fact: %w", err)
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
		"UPDATE nodes SET page_rank = $1, community_id = $2, updated_at = NOW() WHERE id = $3",
		pageRank, communityID, nodeID)
	if err != nil {
		return fmt.Errorf("postgres: set analytics on %s: %w", nodeID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: node %s", storage.ErrNotFound, nodeID)
	}
	return nil
}

// SetNodeEmbedding stores embedding on a node.
func (s *Store) SetNodeEmbedding(ctx context.Context, nodeID string, embedding []float32) error {
	if !s.pgvectorAvailable {
		return fmt.Errorf("postgres: %w: pgvector extension not installed", storage.ErrNotSupported)
	}
	if len(embedding) == 0 {
		return fmt.Errorf("%w: embedding vector cannot be empty", storage.ErrInvalidInput)
	}
	res, err := s.q.ExecContext(ctx,
		"UPDATE nodes SET embedding = $1, updated_at = NOW() WHERE id = $2",
		pgvector.NewVector(embedding), nodeID)
	if err != nil {
		return fmt.Errorf("postgres: set embedding on %s: %w", nodeID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: node %s", storage.ErrNotFound, nodeID)
	}
	return nil
}

// SimilarNodes returns the nodes closest to embedding by cosine distance.
func (s *Store) SimilarNodes(ctx context.Context, embedding []float32, limit int) ([]types.Node, error) {
	if !s.pgvectorAvailable {
		return nil, fmt.Errorf("postgres: %w: pgvector extension not installed", storage.ErrNotSupported)
	}
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+nodeColumns+` FROM nodes
		WHERE embedding IS NOT NULL AND vector_dims(embedding) = $2
		ORDER BY embedding <=> $1::vector
		LIMIT $3
	`, pgvector.NewVector(embedding), len(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: similar nodes: %w", err)
	}
	return scanNodes(rows)
}

func scanNodes(rows *sql.Rows) ([]types.Node, error) {
	defer func() { _ = rows.Close() }()

	var nodes []types.Node
	for rows.Next() {
		var (
			n     types.Node
			props []byte
			pr    sql.NullFloat64
			com   sql.NullInt64
		)
		if err := rows.Scan(&n.ID, &n.Type, &n.Name, &props, &pr, &com); err != nil {
			return nil, fmt.Errorf("postgres: scan node: %w", err)
		}
		if len(props) > 0 {
			if err := json.Unmarshal(props, &n.Properties); err != nil {
				return nil, fmt.Errorf("postgres: decode properties of %s: %w", n.ID, err)
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

// QueryByHash returns the document record for hash, or storage.ErrNotFound.
func (s *Store) QueryByHash(ctx context.Context, hash string) (*types.DocumentRecord, error) {
	var rec types.DocumentRecord
	err := s.q.QueryRowContext(ctx,
		"SELECT content_hash, filename, ingested_at FROM documents WHERE content_hash = $1", hash,
	).Scan(&rec.ContentHash, &rec.Filename, &rec.IngestedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: query document %s: %w", hash, err)
	}
	return &rec, nil
}

// WriteDocumentRecord upserts rec keyed by content hash.
func (s *Store) WriteDocumentRecord(ctx context.Context, rec types.DocumentRecord) error {
	if err := storage.ValidateHash(rec.ContentHash); err != nil {
		return err
	}
	if rec.IngestedAt.IsZero() {
		rec.IngestedAt = time.Now()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO documents (content_hash, filename, ingested_at) VALUES ($1, $2, $3)
		ON CONFLICT (content_hash) DO UPDATE SET
			filename = EXCLUDED.filename,
			ingested_at = EXCLUDED.ingested_at
	`, rec.ContentHash, rec.Filename, rec.IngestedAt.UTC())
	if err != nil {
		return fmt.Errorf("postgres: write document %s: %w", rec.ContentHash, err)
	}
	return nil
}
