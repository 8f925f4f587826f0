package ontology

import (
	"errors"
	"fmt"
)

// Kind classifies a ConfigError.
type Kind int

const (
	// NotFound means the ontology source path does not resolve.
	NotFound Kind = iota + 1
	// Malformed means the source could not be parsed.
	Malformed
	// Empty means the source parsed to no content.
	Empty
	// SchemaViolation means the content is internally inconsistent.
	SchemaViolation
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not found"
	case Malformed:
		return "malformed"
	case Empty:
		return "empty"
	case SchemaViolation:
		return "schema violation"
	default:
		return "unknown"
	}
}

// Sentinels matching each Kind, usable with errors.Is.
var (
	ErrNotFound        = errors.New("ontology: source not found")
	ErrMalformed       = errors.New("ontology: malformed source")
	ErrEmpty           = errors.New("ontology: empty source")
	ErrSchemaViolation = errors.New("ontology: schema violation")
)

// Triplet validation failures. These are never fatal; callers count them.
var (
	ErrUnknownSubjectType = errors.New("subject type has no allowed relations")
	ErrRelationNotAllowed = errors.New("relation not allowed for subject type")
	ErrUnknownObjectType  = errors.New("object type is not a declared entity type")
)

// ConfigError is returned by every loading path when an ontology cannot be
// constructed. No partially valid Ontology is ever returned alongside it.
type ConfigError struct {
	Kind   Kind
	Path   string
	Detail string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := "ontology " + e.Kind.String()
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for this error's Kind.
func (e *ConfigError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == NotFound
	case ErrMalformed:
		return e.Kind == Malformed
	case ErrEmpty:
		return e.Kind == Empty
	case ErrSchemaViolation:
		return e.Kind == SchemaViolation
	}
	return false
}

func schemaViolation(format string, args ...any) *ConfigError {
	return &ConfigError{Kind: SchemaViolation, Detail: fmt.Sprintf(format, args...)}
}
