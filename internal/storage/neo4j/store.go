// Package neo4j stores the knowledge graph in Neo4j. Entities are
// (:Entity {id, type, name}) nodes carrying their type as a second label;
// relations are typed relationships; ingested documents are
// (:Document {hash}) nodes.
package neo4j

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/scrypster/ontograph/internal/config"
	"github.com/scrypster/ontograph/internal/storage"
	"github.com/scrypster/ontograph/pkg/types"
)

// Store implements the storage interfaces on a Neo4j database.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
	tx       neo4j.ManagedTransaction // set on transaction-bound stores
}

// Open validates cfg, connects and verifies connectivity, then creates the
// uniqueness constraints the upserts rely on.
func Open(ctx context.Context, cfg config.Neo4jConfig) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("neo4j: %w", err)
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, storage.Unavailable("neo4j", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, storage.Unavailable("neo4j", err)
	}

	s := &Store{driver: driver, database: cfg.Database}
	for _, stmt := range []string{
		"CREATE CONSTRAINT entity_id IF NOT EXISTS FOR (n:Entity) REQUIRE n.id IS UNIQUE",
		"CREATE CONSTRAINT document_hash IF NOT EXISTS FOR (d:Document) REQUIRE d.hash IS UNIQUE",
	} {
		if _, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
			_, err := tx.Run(ctx, stmt, nil)
			return nil, err
		}); err != nil {
			_ = driver.Close(ctx)
			return nil, fmt.Errorf("neo4j: create constraint: %w", err)
		}
	}
	return s, nil
}

func (s *Store) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database, AccessMode: mode})
}

// write runs fn in the bound transaction, or in a fresh managed write
// transaction with the driver's retry policy.
func (s *Store) write(ctx context.Context, fn neo4j.ManagedTransactionWork) (interface{}, error) {
	if s.tx != nil {
		return fn(s.tx)
	}
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer func() { _ = session.Close(ctx) }()
	return session.ExecuteWrite(ctx, fn)
}

func (s *Store) read(ctx context.Context, fn neo4j.ManagedTransactionWork) (interface{}, error) {
	if s.tx != nil {
		return fn(s.tx)
	}
	session := s.session(ctx, neo4j.AccessModeRead)
	defer func() { _ = session.Close(ctx) }()
	return session.ExecuteRead(ctx, fn)
}

// InTx runs fn inside one managed write transaction. The driver may retry fn
// on transient cluster errors, so fn must be idempotent; upserts are.
func (s *Store) InTx(ctx context.Context, fn func(storage.GraphStore) error) error {
	if s.tx != nil {
		return fn(s)
	}
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer func() { _ = session.Close(ctx) }()

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		return nil, fn(&Store{driver: s.driver, database: s.database, tx: tx})
	})
	return err
}

// Close closes the driver. It is a no-op on transaction-bound stores.
func (s *Store) Close() error {
	if s.tx != nil {
		return nil
	}
	return s.driver.Close(context.Background())
}

// UpsertNode merges (:Entity {type, name}) and adds the type label.
func (s *Store) UpsertNode(ctx context.Context, entityType, name string, props map[string]interface{}) (string, error) {
	if err := storage.ValidateNode(entityType, name); err != nil {
		return "", err
	}
	entityType = strings.ToUpper(entityType)
	if !storage.IsLabel(entityType) {
		return "", fmt.Errorf("%w: entity type %q is not label-safe", storage.ErrInvalidInput, entityType)
	}
	id := types.NodeID(entityType, name)

	params := map[string]interface{}{"id": id, "type": entityType, "name": name, "props": props}
	if props == nil {
		params["props"] = map[string]interface{}{}
	}

	// Labels cannot be parameters; entityType was checked above.
	cypher := fmt.Sprintf(`
		MERGE (n:Entity {type: $type, name: $name})
		ON CREATE SET n.id = $id, n.createdAt = datetime()
		SET n:%s, n.updatedAt = datetime(), n += $props
	`, entityType)

	_, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		_, err := tx.Run(ctx, cypher, params)
		return nil, err
	})
	if err != nil {
		return "", fmt.Errorf("neo4j: upsert node %s: %w", id, err)
	}
	return id, nil
}

// UpsertEdge merges a relationship typed relType between two entities.
func (s *Store) UpsertEdge(ctx context.Context, fromID, toID, relType string) error {
	if err := storage.ValidateEdge(fromID, toID, relType); err != nil {
		return err
	}
	cypher := fmt.Sprintf(`
		MATCH (a:Entity {id: $from}), (b:Entity {id: $to})
		MERGE (a)-[r:%s]->(b)
		ON CREATE SET r.createdAt = datetime()
		RETURN count(r) AS n
	`, relType)

	res, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		result, err := tx.Run(ctx, cypher, map[string]interface{}{"from": fromID, "to": toID})
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
		return fmt.Errorf("neo4j: upsert edge %s -[%s]-> %s: %w", fromID, relType, toID, err)
	}
	if n, _ := res.(int64); n == 0 {
		return fmt.Errorf("%w: edge endpoint missing (%s, %s)", storage.ErrNotFound, fromID, toID)
	}
	return nil
}
