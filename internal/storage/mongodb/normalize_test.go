package mongodb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/UkralStul/community-content-service/internal/domain"
)

func TestToDocument(t *testing.T) {
	oid := primitive.NewObjectID()
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	doc := toDocument(bson.M{
		"_id":             oid,
		"createdAt":       primitive.NewDateTimeFromTime(created),
		"postType":        "post-poll",
		"content":         bson.D{{Key: "rawContent", Value: "hi"}, {Key: "contentFormat", Value: "plain"}},
		"responseOptions": primitive.A{"yes", "no"},
		"maxParticipants": int32(12),
	})

	assert.Equal(t, oid.Hex(), doc[domain.FieldID])
	assert.NotContains(t, doc, "_id")
	assert.Equal(t, created, doc["createdAt"])
	assert.Equal(t, map[string]any{"rawContent": "hi", "contentFormat": "plain"}, doc["content"])
	assert.Equal(t, []any{"yes", "no"}, doc["responseOptions"])
	assert.Equal(t, int64(12), doc["maxParticipants"])
}

func TestToDocumentDecodesIntoPost(t *testing.T) {
	doc := toDocument(bson.M{
		"_id":         primitive.NewObjectID(),
		"createdAt":   primitive.NewDateTimeFromTime(time.Now()),
		"updatedAt":   primitive.NewDateTimeFromTime(time.Now()),
		"postType":    "post-text",
		"commentable": true,
		"content":     bson.M{"rawContent": "hi", "contentFormat": "plain"},
	})

	post, err := domain.DecodePost(doc)
	assert.NoError(t, err)
	assert.Equal(t, domain.PostTypeText, post.Type())
	assert.Equal(t, doc[domain.FieldID], post.ID)
}

func TestFieldFilter(t *testing.T) {
	filter, ok := fieldFilter("post", "abc")
	assert.True(t, ok)
	assert.Equal(t, bson.M{"post": "abc"}, filter)

	_, ok = fieldFilter(domain.FieldID, "not-an-object-id")
	assert.False(t, ok)

	oid := primitive.NewObjectID()
	filter, ok = fieldFilter(domain.FieldID, oid.Hex())
	assert.True(t, ok)
	assert.Equal(t, bson.M{"_id": oid}, filter)
}
