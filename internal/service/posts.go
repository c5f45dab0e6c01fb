package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/UkralStul/community-content-service/internal/domain"
	"github.com/UkralStul/community-content-service/internal/storage"
	"github.com/UkralStul/community-content-service/internal/visibility"
)

// immutablePostFields may appear in an update only with their current value.
var immutablePostFields = []string{domain.FieldID, domain.FieldCreatedAt, domain.FieldPostType}

// ignoredOnUpdate are never written by a client update.
var ignoredOnUpdate = []string{
	domain.FieldID,
	domain.FieldCreatedAt,
	domain.FieldUpdatedAt,
	domain.FieldPostType,
	domain.FieldComments,
	domain.FieldCommentsCount,
}

// PostService creates, reads, edits and deletes posts.
type PostService struct {
	store     storage.Storage
	relations *Resolver
}

func NewPostService(store storage.Storage, relations *Resolver) *PostService {
	return &PostService{store: store, relations: relations}
}

// Create validates payload as a post of postType and stores it. The store
// assigns id and createdAt; client values for them are dropped.
func (s *PostService) Create(ctx context.Context, postType domain.PostType, payload domain.Document) (domain.Document, error) {
	if !postType.Valid() {
		return nil, domain.Invalid(domain.FieldPostType, fmt.Sprintf("unknown post type %q", postType))
	}

	input := inputOf(payload, visibility.KindPost)
	if declared, ok := input[domain.FieldPostType]; ok && declared != string(postType) {
		return nil, domain.Invalid(domain.FieldPostType, fmt.Sprintf("does not match the requested type %q", postType))
	}
	input[domain.FieldPostType] = string(postType)

	post, err := domain.DecodePost(input)
	if err != nil {
		return nil, err
	}
	if err := s.checkSharedFrom(ctx, post); err != nil {
		return nil, err
	}

	doc, err := domain.EncodePost(post)
	if err != nil {
		return nil, err
	}
	stored, err := s.store.Insert(ctx, storage.Posts, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}

	created, err := decodeStoredPost(stored)
	if err != nil {
		return nil, err
	}
	// a new post has no comments yet
	created.Comments = []*domain.Comment{}
	return renderPost(created)
}

// Get returns a post with its comments resolved.
func (s *PostService) Get(ctx context.Context, id string) (domain.Document, error) {
	post, err := findPost(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	if err := s.relations.Resolve(ctx, post); err != nil {
		return nil, err
	}
	return renderPost(post)
}

// List returns posts newest first, optionally only those of postType.
// Comments of the whole page are loaded in one batch.
func (s *PostService) List(ctx context.Context, postType domain.PostType, limit, offset int) ([]domain.Document, error) {
	if limit <= 0 {
		return nil, domain.Invalid("limit", "must be positive")
	}
	if offset < 0 {
		return nil, domain.Invalid("offset", "must not be negative")
	}

	var (
		docs []domain.Document
		err  error
	)
	if postType == "" {
		docs, err = s.store.List(ctx, storage.Posts, limit, offset)
	} else {
		if !postType.Valid() {
			return nil, domain.Invalid(domain.FieldPostType, fmt.Sprintf("unknown post type %q", postType))
		}
		docs, err = s.store.ListByField(ctx, storage.Posts, domain.FieldPostType, string(postType), limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}

	posts := make([]*domain.Post, 0, len(docs))
	for _, doc := range docs {
		post, err := decodeStoredPost(doc)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := s.relations.ResolveMany(ctx, posts); err != nil {
		return nil, err
	}

	out := make([]domain.Document, 0, len(posts))
	for _, post := range posts {
		doc, err := renderPost(post)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

// Update merges partial into the stored post. Nested objects are replaced
// whole and a nil value removes an optional field. The merged post must
// still be a valid post of the same type.
func (s *PostService) Update(ctx context.Context, id string, partial domain.Document) (domain.Document, error) {
	current, err := s.store.FindByID(ctx, storage.Posts, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find post %s: %w", id, err)
	}

	var fields []domain.FieldError
	for _, f := range immutablePostFields {
		if v, ok := partial[f]; ok && !sameValue(v, current[f]) {
			fields = append(fields, domain.FieldError{Field: f, Reason: "cannot be changed"})
		}
	}
	if len(fields) > 0 {
		return nil, &domain.ValidationError{Fields: fields}
	}

	changes := lo.OmitByKeys(partial, ignoredOnUpdate)
	merged := lo.OmitBy(lo.Assign(current, changes), func(_ string, v any) bool { return v == nil })

	post, err := domain.DecodePost(merged)
	if err != nil {
		return nil, err
	}
	if _, ok := changes[domain.FieldSharedFrom]; ok {
		if err := s.checkSharedFrom(ctx, post); err != nil {
			return nil, err
		}
	}

	if len(changes) > 0 {
		encoded, err := domain.EncodePost(post)
		if err != nil {
			return nil, err
		}
		// only the changed fields are written, in their encoded form
		write := lo.MapValues(changes, func(v any, k string) any {
			if v == nil {
				return nil
			}
			return encoded[k]
		})
		if _, err := s.store.Update(ctx, storage.Posts, id, write); err != nil {
			return nil, fmt.Errorf("failed to update post %s: %w", id, err)
		}
	}
	return s.Get(ctx, id)
}

// Delete removes a post and then its comments. The two steps are not
// atomic; comments left behind by a failed second step are removed by
// the orphan sweeper.
func (s *PostService) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, storage.Posts, id); err != nil {
		return fmt.Errorf("failed to delete post %s: %w", id, err)
	}
	if _, err := s.store.DeleteByField(ctx, storage.Comments, domain.FieldPost, id); err != nil {
		return fmt.Errorf("post %s deleted, failed to delete its comments: %w", id, err)
	}
	s.relations.Forget(ctx, id)
	return nil
}

// checkSharedFrom makes sure a shared post references an existing post.
func (s *PostService) checkSharedFrom(ctx context.Context, post *domain.Post) error {
	shared, ok := post.Variant.(domain.SharedPost)
	if !ok {
		return nil
	}
	_, err := s.store.FindByID(ctx, storage.Posts, shared.SharedFrom)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrNotFound):
		return domain.Invalid(domain.FieldSharedFrom, "does not reference an existing post")
	default:
		return fmt.Errorf("failed to find shared post %s: %w", shared.SharedFrom, err)
	}
}

// sameValue compares a client-sent value with a stored one. Timestamps
// are compared as instants since they may arrive as strings.
func sameValue(sent, stored any) bool {
	if a, ok := asTime(sent); ok {
		if b, ok := asTime(stored); ok {
			return a.Equal(b)
		}
	}
	return fmt.Sprint(sent) == fmt.Sprint(stored)
}

func asTime(v any) (time.Time, bool) {
	switch v := v.(type) {
	case time.Time:
		return v, true
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		return t, err == nil
	default:
		return time.Time{}, false
	}
}
