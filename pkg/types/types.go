// Package types defines the core data structures shared across the ontograph
// pipeline: extracted entities and triplets, persisted graph nodes and edges,
// and the document records that make ingestion idempotent.
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Entity is one side of an extracted triplet.
// Type is always one of the ontology's entity types (uppercase).
type Entity struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Triplet is a directed, typed edge proposal produced by extraction.
type Triplet struct {
	Subject  Entity `json:"subject"`
	Relation string `json:"relation"`
	Object   Entity `json:"object"`
}

// String renders the triplet as "Subject (TYPE) -[REL]-> Object (TYPE)".
func (t Triplet) String() string {
	return fmt.Sprintf("%s (%s) -[%s]-> %s (%s)",
		t.Subject.Name, t.Subject.Type, t.Relation, t.Object.Name, t.Object.Type)
}

// Node is a persisted graph vertex. Nodes are merged on (Type, Name), where
// Name is already normalized; ID is derived from that pair by NodeID.
type Node struct {
	ID         string                 `json:"id"`                   // Deterministic identifier (format: ent:TYPE:hash)
	Type       string                 `json:"type"`                 // Entity type
	Name       string                 `json:"name"`                 // Normalized name
	Properties map[string]interface{} `json:"properties,omitempty"` // Arbitrary node properties

	// Analytics write-back; nil until an analytics run has touched the node.
	PageRank    *float64 `json:"page_rank_score,omitempty"`
	CommunityID *int64   `json:"community_id,omitempty"`
}

// Edge is a persisted, typed, directed relationship between two nodes.
// Edges are unique on (FromID, ToID, Type).
type Edge struct {
	FromID string `json:"from_id"`
	ToID   string `json:"to_id"`
	Type   string `json:"type"`
}

// DocumentRecord marks a document's content as ingested.
type DocumentRecord struct {
	ContentHash string    `json:"content_hash"` // 64-char lowercase hex SHA-256 of the raw content
	Filename    string    `json:"filename"`
	IngestedAt  time.Time `json:"ingested_at"`
}

var typeNamePattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// IsTypeName reports whether s is an uppercase identifier: a letter followed
// by letters, digits or underscores. Entity and relation types must have this
// shape so every backend can use them as labels without quoting.
func IsTypeName(s string) bool { return typeNamePattern.MatchString(s) }

// NodeID returns the deterministic node identifier for the merge key
// (entityType, name). entityType is uppercased; name must already be normalized.
func NodeID(entityType, name string) string {
	entityType = strings.ToUpper(entityType)
	sum := sha256.Sum256([]byte(entityType + "\x00" + name))
	return "ent:" + entityType + ":" + hex.EncodeToString(sum[:])[:16]
}
