package model

import (
	"strconv"

	appErr "gitcats/pkg/errors"

	"gopkg.in/yaml.v3"
)

// IDKind tells how a submission variant is identified.
type IDKind int

const (
	IDAbsent IDKind = iota
	IDNamed
	IDIndexed
)

// SubmissionID identifies one variant of a participant's submission.
type SubmissionID struct {
	Kind  IDKind
	Name  string
	Index int
}

// NamedID builds a named id; the empty name is the absent id.
func NamedID(name string) SubmissionID {
	if name == "" {
		return SubmissionID{}
	}
	return SubmissionID{Kind: IDNamed, Name: name}
}

// IndexedID builds the id of a list position; position 0 is the absent id.
func IndexedID(index int) SubmissionID {
	if index == 0 {
		return SubmissionID{}
	}
	return SubmissionID{Kind: IDIndexed, Index: index}
}

// String renders the id, empty for the absent id.
func (id SubmissionID) String() string {
	switch id.Kind {
	case IDNamed:
		return id.Name
	case IDIndexed:
		return strconv.Itoa(id.Index)
	default:
		return ""
	}
}

// Variant is one canonical (id, record) pair. Err is set when the entry
// itself cannot be graded; such a variant is reported INVALID.
type Variant struct {
	ID     SubmissionID
	Record *Record
	Err    error
}

// Variants returns the canonical variants of the entry, normalizing on first use.
func (e *Entry) Variants() []Variant {
	if !e.normalized {
		e.variants = Normalize(e.raw)
		e.raw = nil
		e.normalized = true
	}
	return e.variants
}

func resolve(node *yaml.Node) *yaml.Node {
	for node != nil && node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	return node
}

// isNamedVariants reports a non-empty mapping whose values are all mappings.
func isNamedVariants(node *yaml.Node) bool {
	if node.Kind != yaml.MappingNode || len(node.Content) == 0 {
		return false
	}
	for i := 1; i < len(node.Content); i += 2 {
		if resolve(node.Content[i]).Kind != yaml.MappingNode {
			return false
		}
	}
	return true
}

// Normalize converts the three accepted entry shapes into ordered variants:
// a flat record, a mapping of submission id to record, or a list of records.
func Normalize(node *yaml.Node) []Variant {
	node = resolve(node)
	if node == nil {
		return []Variant{brokenVariant(SubmissionID{}, 0, 0)}
	}

	switch {
	case isNamedVariants(node):
		variants := make([]Variant, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i]
			id := NamedID(key.Value)
			if id.Kind == IDNamed && !ValidID(id.Name) {
				variants = append(variants, Variant{
					ID: id,
					Err: appErr.Newf(appErr.SubmissionIDInvalid, "submission id %q is not filesystem safe", id.Name).
						WithDetail("line", key.Line),
				})
				continue
			}
			variants = append(variants, recordVariant(id, node.Content[i+1]))
		}
		return variants
	case node.Kind == yaml.SequenceNode:
		variants := make([]Variant, 0, len(node.Content))
		for i, item := range node.Content {
			variants = append(variants, recordVariant(IndexedID(i), item))
		}
		return variants
	default:
		return []Variant{recordVariant(SubmissionID{}, node)}
	}
}

func recordVariant(id SubmissionID, node *yaml.Node) Variant {
	node = resolve(node)
	if node == nil || node.Kind != yaml.MappingNode {
		line, column := 0, 0
		if node != nil {
			line, column = node.Line, node.Column
		}
		return brokenVariant(id, line, column)
	}
	values := make(map[string]any)
	if err := node.Decode(&values); err != nil {
		return Variant{ID: id, Err: appErr.Wrapf(err, appErr.SubmissionShapeBroken, "decode submission record: %v", err)}
	}
	return Variant{ID: id, Record: NewRecord(values)}
}

func brokenVariant(id SubmissionID, line, column int) Variant {
	err := appErr.New(appErr.SubmissionShapeBroken)
	if line > 0 {
		err.WithDetail("line", line).WithDetail("column", column)
	}
	return Variant{ID: id, Err: err}
}
