package storage

import (
	"context"

	"github.com/UkralStul/community-content-service/internal/domain"
)

// Collection names a set of documents of one kind.
type Collection string

const (
	Posts    Collection = "comm_posts"
	Comments Collection = "comm_comments"
)

// IndexedFields are the foreign keys looked up by field. Backends keep a
// secondary index on each of them.
var IndexedFields = map[Collection][]string{
	Posts:    {domain.FieldPostType},
	Comments: {domain.FieldPost, domain.FieldReplyTo},
}

// Storage is the document store contract. Every backend assigns id,
// createdAt and updatedAt on insert and keeps updatedAt current.
// Failures of the underlying driver wrap domain.ErrStoreUnavailable;
// missing documents wrap domain.ErrNotFound.
type Storage interface {
	Insert(ctx context.Context, coll Collection, doc domain.Document) (domain.Document, error)
	FindByID(ctx context.Context, coll Collection, id string) (domain.Document, error)
	Update(ctx context.Context, coll Collection, id string, partial domain.Document) (domain.Document, error)
	Delete(ctx context.Context, coll Collection, id string) error
	List(ctx context.Context, coll Collection, limit, offset int) ([]domain.Document, error)

	// FindByField returns the documents whose field equals value, oldest first.
	FindByField(ctx context.Context, coll Collection, field, value string) ([]domain.Document, error)
	// ListByField pages through the same documents newest first, like List.
	ListByField(ctx context.Context, coll Collection, field, value string, limit, offset int) ([]domain.Document, error)
	CountByField(ctx context.Context, coll Collection, field, value string) (int64, error)
	DeleteByField(ctx context.Context, coll Collection, field, value string) (int64, error)
	DistinctValues(ctx context.Context, coll Collection, field string) ([]string, error)

	// FindByFieldIn groups the documents matching any of values by that
	// value, oldest first within a group. Used by the dataloaders.
	FindByFieldIn(ctx context.Context, coll Collection, field string, values []string) (map[string][]domain.Document, error)

	Close(ctx context.Context) error
}
