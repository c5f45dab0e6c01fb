// Package visibility decides which fields of a document appear in a given
// operation context.
package visibility

import (
	"github.com/samber/lo"

	"github.com/UkralStul/community-content-service/internal/domain"
)

// Context is the operation a document is projected for.
type Context int

const (
	// Output is the representation returned to clients.
	Output Context = iota
	// CreateInput is the shape a client may submit on create.
	CreateInput
)

func (c Context) String() string {
	switch c {
	case Output:
		return "output"
	case CreateInput:
		return "create-input"
	default:
		return "unknown"
	}
}

// Kind selects the rule set.
type Kind int

const (
	KindPost Kind = iota
	KindComment
)

// hiddenOn lists, per kind, the fields dropped in each context.
var hiddenOn = map[Kind]map[Context][]string{
	KindPost: {
		CreateInput: {
			domain.FieldID,
			domain.FieldCreatedAt,
			domain.FieldUpdatedAt,
			domain.FieldComments,
			domain.FieldCommentsCount,
		},
	},
	KindComment: {
		CreateInput: {
			domain.FieldID,
			domain.FieldCreatedAt,
			domain.FieldUpdatedAt,
			domain.FieldPost,
		},
	},
}

// Hidden returns the fields dropped for kind in ctx.
func Hidden(kind Kind, ctx Context) []string {
	return append([]string(nil), hiddenOn[kind][ctx]...)
}

// Project returns a new document holding the fields of doc visible in
// ctx. doc is not modified. Nested comments of a post are projected with
// the comment rules.
func Project(doc domain.Document, kind Kind, ctx Context) domain.Document {
	if doc == nil {
		return nil
	}

	out := lo.OmitByKeys(doc, hiddenOn[kind][ctx])
	if kind != KindPost {
		return out
	}

	switch comments := out[domain.FieldComments].(type) {
	case []domain.Document:
		out[domain.FieldComments] = lo.Map(comments, func(c domain.Document, _ int) domain.Document {
			return Project(c, KindComment, ctx)
		})
	case []any:
		out[domain.FieldComments] = lo.Map(comments, func(c any, _ int) any {
			if m, ok := c.(domain.Document); ok {
				return Project(m, KindComment, ctx)
			}
			return c
		})
	}
	return out
}
