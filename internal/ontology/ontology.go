// Package ontology loads and validates the declarative ontology that drives
// schema-constrained extraction: the allowed entity types, the allowed
// relation types, and which relations each entity type may originate.
//
// An Ontology is immutable once constructed. Construct it once at startup
// with Load (or a Cache) and pass it to every consumer explicitly.
package ontology

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/scrypster/ontograph/pkg/types"
)

// DefaultPath is the ontology source used when no path is configured.
const DefaultPath = "config/ontology.yaml"

// Source is the declarative form of an ontology, as it appears on disk.
type Source struct {
	Domain           string              `yaml:"domain"`
	Version          string              `yaml:"version"`
	EntityTypes      []string            `yaml:"entity_types"`
	RelationTypes    []string            `yaml:"relation_types"`
	ValidationSchema map[string][]string `yaml:"validation_schema"`
}

// Ontology is a validated, immutable ontology.
type Ontology struct {
	domain        string
	version       string
	entityTypes   []string
	relationTypes []string
	entitySet     map[string]struct{}
	relationSet   map[string]struct{}
	schema        map[string][]string
	allowed       map[string]map[string]struct{}
}

// Load reads, parses and validates the ontology at path.
// Every failure is a *ConfigError.
func Load(path string) (*Ontology, error) {
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &ConfigError{Kind: NotFound, Path: path, Detail: "file does not exist", Err: err}
		}
		return nil, &ConfigError{Kind: NotFound, Path: path, Detail: "file cannot be read", Err: err}
	}

	o, err := Parse(data)
	if err != nil {
		var cerr *ConfigError
		if errors.As(err, &cerr) {
			cerr.Path = path
		}
		return nil, err
	}

	slog.Info("ontology: loaded", "domain", o.domain, "version", o.version, "path", path,
		"entity_types", len(o.entityTypes), "relation_types", len(o.relationTypes))
	return o, nil
}

// Parse decodes YAML ontology content and validates it.
func Parse(data []byte) (*Ontology, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ConfigError{Kind: Empty, Detail: "source has no content"}
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigError{Kind: Malformed, Detail: "invalid YAML", Err: err}
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, &ConfigError{Kind: Empty, Detail: "source has no content"}
	}
	root := doc.Content[0]
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return nil, &ConfigError{Kind: Empty, Detail: "source has no content"}
	}
	if root.Kind != yaml.MappingNode {
		return nil, &ConfigError{Kind: Malformed, Detail: "top level must be a mapping"}
	}
	if len(root.Content) == 0 {
		return nil, &ConfigError{Kind: Empty, Detail: "source has no content"}
	}

	var src Source
	if err := root.Decode(&src); err != nil {
		return nil, &ConfigError{Kind: Malformed, Detail: "unexpected field shape", Err: err}
	}
	return New(src)
}

// New validates src and builds an Ontology from it. Type names are compared
// case-insensitively and stored uppercase.
func New(src Source) (*Ontology, error) {
	entityTypes := upperUnique(src.EntityTypes)
	if len(entityTypes) == 0 {
		return nil, schemaViolation("entity_types cannot be empty")
	}
	relationTypes := upperUnique(src.RelationTypes)
	if len(relationTypes) == 0 {
		return nil, schemaViolation("relation_types cannot be empty")
	}
	if src.ValidationSchema == nil {
		return nil, schemaViolation("validation_schema is required")
	}
	if err := checkTypeNames("entity_types", entityTypes); err != nil {
		return nil, err
	}
	if err := checkTypeNames("relation_types", relationTypes); err != nil {
		return nil, err
	}

	o := &Ontology{
		domain:        src.Domain,
		version:       src.Version,
		entityTypes:   entityTypes,
		relationTypes: relationTypes,
		entitySet:     toSet(entityTypes),
		relationSet:   toSet(relationTypes),
		schema:        make(map[string][]string, len(src.ValidationSchema)),
		allowed:       make(map[string]map[string]struct{}, len(src.ValidationSchema)),
	}

	// Sorted keys so the first reported violation is stable.
	keys := make([]string, 0, len(src.ValidationSchema))
	for k := range src.ValidationSchema {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		entityType := strings.ToUpper(strings.TrimSpace(key))
		if _, ok := o.entitySet[entityType]; !ok {
			return nil, schemaViolation("validation_schema references undefined entity type %q; defined types: %v",
				key, entityTypes)
		}
		set := o.allowed[entityType]
		if set == nil {
			set = make(map[string]struct{})
			o.allowed[entityType] = set
		}
		for _, rel := range src.ValidationSchema[key] {
			relation := strings.ToUpper(strings.TrimSpace(rel))
			if _, ok := o.relationSet[relation]; !ok {
				return nil, schemaViolation("validation_schema[%q] references undefined relation type %q; defined types: %v",
					key, rel, relationTypes)
			}
			if _, dup := set[relation]; dup {
				continue
			}
			set[relation] = struct{}{}
			o.schema[entityType] = append(o.schema[entityType], relation)
		}
	}

	if len(o.schema) == 0 {
		slog.Warn("ontology: validation_schema allows no relations; every triplet will be rejected",
			"domain", o.domain)
	}
	return o, nil
}

// Domain returns the informational domain name.
func (o *Ontology) Domain() string { return o.domain }

// Version returns the schema version string.
func (o *Ontology) Version() string { return o.version }

// EntityTypes returns the declared entity types in declaration order.
func (o *Ontology) EntityTypes() []string { return append([]string(nil), o.entityTypes...) }

// RelationTypes returns the declared relation types in declaration order.
func (o *Ontology) RelationTypes() []string { return append([]string(nil), o.relationTypes...) }

// ValidationSchema returns a copy of the entity type to allowed relations mapping.
func (o *Ontology) ValidationSchema() map[string][]string {
	out := make(map[string][]string, len(o.schema))
	for k, v := range o.schema {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// HasEntityType reports whether t is a declared entity type.
func (o *Ontology) HasEntityType(t string) bool {
	_, ok := o.entitySet[strings.ToUpper(t)]
	return ok
}

// HasRelationType reports whether r is a declared relation type.
func (o *Ontology) HasRelationType(r string) bool {
	_, ok := o.relationSet[strings.ToUpper(r)]
	return ok
}

// Allows is the strict validation predicate: relation must be listed in the
// validation schema under subjectType.
func (o *Ontology) Allows(subjectType, relation string) bool {
	set, ok := o.allowed[strings.ToUpper(subjectType)]
	if !ok {
		return false
	}
	_, ok = set[strings.ToUpper(relation)]
	return ok
}

// Validate checks a candidate triplet against the ontology. The object's
// type must also be declared, since it becomes a typed node.
func (o *Ontology) Validate(t types.Triplet) error {
	subjectType := strings.ToUpper(t.Subject.Type)
	if _, ok := o.allowed[subjectType]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSubjectType, t.Subject.Type)
	}
	if !o.Allows(subjectType, t.Relation) {
		return fmt.Errorf("%w: %s -[%s]->", ErrRelationNotAllowed, subjectType, t.Relation)
	}
	if !o.HasEntityType(t.Object.Type) {
		return fmt.Errorf("%w: %q", ErrUnknownObjectType, t.Object.Type)
	}
	return nil
}

// checkTypeNames rejects names that graph stores cannot use as labels.
func checkTypeNames(field string, names []string) error {
	for _, n := range names {
		if !types.IsTypeName(n) {
			return schemaViolation("%s: %q is not a valid type name; use letters, digits and underscores, starting with a letter (e.g. %q)",
				field, n, suggestTypeName(n))
		}
	}
	return nil
}

func suggestTypeName(n string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, n)
}

func upperUnique(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func toSet(in []string) map[string]struct{} {
	m := make(map[string]struct{}, len(in))
	for _, s := range in {
		m[s] = struct{}{}
	}
	return m
}
