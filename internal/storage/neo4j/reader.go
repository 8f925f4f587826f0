package neo4j

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/scrypster/ontograph/internal/storage"
	"github.com/scrypster/ontograph/pkg/types"
)

const nodeReturn = "n.id AS id, n.type AS type, n.name AS name, properties(n) AS props, n.pageRankScore AS pr, n.communityId AS com"

// internal keys that are surfaced as struct fields, not Properties.
var reservedProps = map[string]bool{
	"id": true, "type": true, "name": true, "createdAt": true, "updatedAt": true,
	"pageRankScore": true, "communityId": true,
}

// Nodes returns every entity node.
func (s *Store) Nodes(ctx context.Context) ([]types.Node, error) {
	return s.queryNodes(ctx, "MATCH (n:Entity) RETURN "+nodeReturn+" ORDER BY n.id", nil, "")
}

// Edges returns every relationship between entities.
func (s *Store) Edges(ctx context.Context) ([]types.Edge, error) {
	res, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		result, err := tx.Run(ctx, `
			MATCH (a:Entity)-[r]->(b:Entity)
			RETURN a.id AS src, b.id AS dst, type(r) AS rel
			ORDER BY src, dst, rel
		`, nil)
		if err != nil {
			return nil, err
		}
		var edges []types.Edge
		for result.Next(ctx) {
			rec := result.Record()
			edges = append(edges, types.Edge{
				FromID: getString(rec, "src"),
				ToID:   getString(rec, "dst"),
				Type:   getString(rec, "rel"),
			})
		}
		return edges, result.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j: list edges: %w", err)
	}
	edges, _ := res.([]types.Edge)
	return edges, nil
}

// SearchNodes matches term as a case-insensitive substring of entity names.
func (s *Store) SearchNodes(ctx context.Context, term string, limit int) ([]types.Node, error) {
	if strings.TrimSpace(term) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	return s.queryNodes(ctx, `
		MATCH (n:Entity) WHERE toLower(n.name) CONTAINS toLower($term)
		RETURN `+nodeReturn+`
		ORDER BY coalesce(n.pageRankScore, 0) DESC, n.name
		LIMIT $limit
	`, map[string]interface{}{"term": term, "limit": int64(limit)}, "search nodes")
}

// Neighbors returns facts touching nodeID in either direction.
func (s *Store) Neighbors(ctx context.Context, nodeID string, limit int) ([]storage.Fact, error) {
	if limit <= 0 {
		limit = 20
	}
	res, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		result, err := tx.Run(ctx, `
			MATCH (x:Entity {id: $id})-[r]-(y:Entity)
			WITH r, startNode(r) AS a, endNode(r) AS b
			RETURN type(r) AS rel,
				a.id AS aid, a.type AS atype, a.name AS aname, a.pageRankScore AS apr, a.communityId AS acom,
				b.id AS bid, b.type AS btype, b.name AS bname, b.pageRankScore AS bpr, b.communityId AS bcom
			ORDER BY CASE WHEN coalesce(a.pageRankScore, 0) > coalesce(b.pageRankScore, 0)
				THEN coalesce(a.pageRankScore, 0) ELSE coalesce(b.pageRankScore, 0) END DESC, rel, aname, bname
			LIMIT $limit
		`, map[string]interface{}{"id": nodeID, "limit": int64(limit)})
		if err != nil {
			return nil, err
		}
		var facts []storage.Fact
		for result.Next(ctx) {
			rec := result.Record()
			f := storage.Fact{
				Relation: getString(rec, "rel"),
				From:     types.Node{ID: getString(rec, "aid"), Type: getString(rec, "atype"), Name: getString(rec, "aname")},
				To:       types.Node{ID: getString(rec, "bid"), Type: getString(rec, "btype"), Name: getString(rec, "bname")},
			}
			f.From.PageRank, f.From.CommunityID = analytics(rec, "apr", "acom")
			f.To.PageRank, f.To.CommunityID = analytics(rec, "bpr", "bcom")
			facts = append(facts, f)
		}
		return facts, result.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j: neighbors of %s: %w", nodeID, err)
	}
	facts, _ := res.([]storage.Fact)
	return facts, nil
}

// SetNodeAnalytics writes pageRankScore and communityId on an entity.
func (s *Store) SetNodeAnalytics(ctx context.Context, nodeID string, pageRank float64, communityID int64) error {
	res, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		result, err := tx.Run(ctx, `
			MATCH (n:Entity {id: $id})
			SET n.pageRankScore = $pr, n.communityId = $com
			RETURN count(n) AS n
		`, map[string]interface{}{"id": nodeID, "pr": pageRank, "com": communityID})
		if err != nil {
			return nil, err
		}
		record, err := result.Single(ctx)
		if err != nil {
			return nil, err
		}
		n, _ := record.Get("n")
		return n, nil
	})
	if err != nil {
		return fmt.Errorf("neo4j: set analytics on %s: %w", nodeID, err)
	}
	if n, _ := res.(int64); n == 0 {
		return fmt.Errorf("%w: node %s", storage.ErrNotFound, nodeID)
	}
	return nil
}

// QueryByHash looks up a (:Document {hash}) node.
func (s *Store) QueryByHash(ctx context.Context, hash string) (*types.DocumentRecord, error) {
	res, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		result, err := tx.Run(ctx,
			"MATCH (d:Document {hash: $hash}) RETURN d.hash AS hash, d.filename AS filename, d.ingestedAt AS at",
			map[string]interface{}{"hash": hash})
		if err != nil {
			return nil, err
		}
		if !result.Next(ctx) {
			return nil, result.Err()
		}
		rec := result.Record()
		doc := &types.DocumentRecord{ContentHash: getString(rec, "hash"), Filename: getString(rec, "filename")}
		if at, ok := rec.Get("at"); ok {
			if t, ok := at.(time.Time); ok {
				doc.IngestedAt = t
			}
		}
		return doc, nil
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j: query document %s: %w", hash, err)
	}
	doc, _ := res.(*types.DocumentRecord)
	if doc == nil {
		return nil, storage.ErrNotFound
	}
	return doc, nil
}

// WriteDocumentRecord merges the document node and refreshes its metadata.
func (s *Store) WriteDocumentRecord(ctx context.Context, rec types.DocumentRecord) error {
	if err := storage.ValidateHash(rec.ContentHash); err != nil {
		return err
	}
	if rec.IngestedAt.IsZero() {
		rec.IngestedAt = time.Now()
	}
	_, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		_, err := tx.Run(ctx, `
			MERGE (d:Document {hash: $hash})
			SET d.filename = $filename, d.ingestedAt = $at
		`, map[string]interface{}{"hash": rec.ContentHash, "filename": rec.Filename, "at": rec.IngestedAt.UTC()})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("neo4j: write document %s: %w", rec.ContentHash, err)
	}
	return nil
}

func (s *Store) queryNodes(ctx context.Context, cypher string, params map[string]interface{}, op string) ([]types.Node, error) {
	res, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		result, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		var nodes []types.Node
		for result.Next(ctx) {
			nodes = append(nodes, recordToNode(result.Record()))
		}
		return nodes, result.Err()
	})
	if err != nil {
		if op == "" {
			op = "list nodes"
		}
		return nil, fmt.Errorf("neo4j: %s: %w", op, err)
	}
	nodes, _ := res.([]types.Node)
	return nodes, nil
}

func recordToNode(rec *neo4j.Record) types.Node {
	n := types.Node{ID: getString(rec, "id"), Type: getString(rec, "type"), Name: getString(rec, "name")}
	if raw, ok := rec.Get("props"); ok {
		if props, ok := raw.(map[string]interface{}); ok {
			for k, v := range props {
				if reservedProps[k] {
					continue
				}
				if n.Properties == nil {
					n.Properties = map[string]interface{}{}
				}
				n.Properties[k] = v
			}
		}
	}
	n.PageRank, n.CommunityID = analytics(rec, "pr", "com")
	return n
}

func getString(rec *neo4j.Record, key string) string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func analytics(rec *neo4j.Record, prKey, comKey string) (*float64, *int64) {
	var (
		p *float64
		c *int64
	)
	if v, ok := rec.Get(prKey); ok {
		if f, ok := v.(float64); ok {
			p = &f
		}
	}
	if v, ok := rec.Get(comKey); ok {
		if i, ok := v.(int64); ok {
			c = &i
		}
	}
	return p, c
}

var (
	_ storage.GraphStore      = (*Store)(nil)
	_ storage.DocumentStore   = (*Store)(nil)
	_ storage.Transactor      = (*Store)(nil)
	_ storage.GraphReader     = (*Store)(nil)
	_ storage.AnalyticsWriter = (*Store)(nil)
)
