package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/scrypster/ontograph/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnavailable indicates the backend cannot be reached. It is always
	// wrapped together with the underlying cause.
	ErrUnavailable = errors.New("storage unavailable")

	// ErrNotSupported indicates an optional capability the backend lacks.
	ErrNotSupported = errors.New("not supported by this store")
)

// Unavailable wraps cause so that errors.Is matches both ErrUnavailable and
// the cause.
func Unavailable(backend string, cause error) error {
	return fmt.Errorf("%s: %w: %w", backend, ErrUnavailable, cause)
}

// IsLabel reports whether s is an uppercase identifier usable as a graph
// label or relationship type without quoting.
func IsLabel(s string) bool { return types.IsTypeName(s) }

// ValidateNode checks the merge key of a node upsert.
func ValidateNode(entityType, name string) error {
	if strings.TrimSpace(entityType) == "" {
		return fmt.Errorf("%w: entity type is required", ErrInvalidInput)
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: node name is required", ErrInvalidInput)
	}
	return nil
}

// ValidateEdge checks an edge upsert. Relation types must be uppercase
// identifiers so that every backend can use them as labels.
func ValidateEdge(fromID, toID, relType string) error {
	if fromID == "" || toID == "" {
		return fmt.Errorf("%w: edge endpoints are required", ErrInvalidInput)
	}
	if !IsLabel(relType) {
		return fmt.Errorf("%w: relation type %q is not an uppercase identifier", ErrInvalidInput, relType)
	}
	return nil
}

// ValidateHash checks a document content hash (64 lowercase hex characters).
func ValidateHash(hash string) error {
	if len(hash) != 64 {
		return fmt.Errorf("%w: content hash must be 64 hex characters", ErrInvalidInput)
	}
	for _, r := range hash {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return fmt.Errorf("%w: content hash must be lowercase hex", ErrInvalidInput)
		}
	}
	return nil
}

// LikePattern escapes term for a LIKE ... ESCAPE '\' substring match.
func LikePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(term)) + "%"
}
