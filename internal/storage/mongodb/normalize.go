package mongodb

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/UkralStul/community-content-service/internal/domain"
)

// toDocument turns a decoded BSON document into plain Go values and
// exposes _id as id.
func toDocument(raw bson.M) domain.Document {
	doc := make(domain.Document, len(raw))
	for k, v := range raw {
		if k == "_id" {
			doc[domain.FieldID] = normalize(v)
			continue
		}
		doc[k] = normalize(v)
	}
	return doc
}

func normalize(v any) any {
	switch v := v.(type) {
	case primitive.M:
		return toNested(v)
	case map[string]any:
		return toNested(v)
	case primitive.D:
		out := make(map[string]any, len(v))
		for _, e := range v {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case primitive.A:
		return normalizeSlice(v)
	case []any:
		return normalizeSlice(v)
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	case primitive.ObjectID:
		return v.Hex()
	case primitive.DateTime:
		return v.Time().UTC()
	case int32:
		return int64(v)
	default:
		return v
	}
}

func toNested(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return out
}

func normalizeSlice(items []any) []any {
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = normalize(item)
	}
	return out
}
