package service

import (
	"context"
	"fmt"

	"github.com/UkralStul/community-content-service/internal/cache"
	"github.com/UkralStul/community-content-service/internal/dataloader"
	"github.com/UkralStul/community-content-service/internal/domain"
	"github.com/UkralStul/community-content-service/internal/storage"
)

// Resolver fills the computed comments and commentsCount fields of posts.
// It only reads.
type Resolver struct {
	store  storage.Storage
	counts *cache.Counts
}

// NewResolver returns a resolver over store. counts may be nil, in which
// case every count goes to the store.
func NewResolver(store storage.Storage, counts *cache.Counts) *Resolver {
	return &Resolver{store: store, counts: counts}
}

// ResolveComments returns the comments of a post, oldest first.
func (r *Resolver) ResolveComments(ctx context.Context, postID string) ([]*domain.Comment, error) {
	docs, err := r.store.FindByField(ctx, storage.Comments, domain.FieldPost, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve comments of post %s: %w", postID, err)
	}
	return decodeStoredComments(docs)
}

// ResolveCommentsCount counts the comments of a post. The value may come
// from the count cache, which is invalidated on every comment write.
func (r *Resolver) ResolveCommentsCount(ctx context.Context, postID string) (int64, error) {
	count := func(ctx context.Context) (int64, error) {
		return r.store.CountByField(ctx, storage.Comments, domain.FieldPost, postID)
	}

	var (
		n   int64
		err error
	)
	if r.counts != nil {
		n, err = r.counts.GetOrLoad(ctx, postID, count)
	} else {
		n, err = count(ctx)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count comments of post %s: %w", postID, err)
	}
	return n, nil
}

// Resolve fills both computed fields of post.
func (r *Resolver) Resolve(ctx context.Context, post *domain.Post) error {
	comments, err := r.ResolveComments(ctx, post.ID)
	if err != nil {
		return err
	}
	count, err := r.ResolveCommentsCount(ctx, post.ID)
	if err != nil {
		return err
	}
	post.Comments = comments
	post.CommentsCount = count
	return nil
}

// ResolveMany fills the computed fields of several posts with one batched
// query. The request's loaders are used when the context carries them.
func (r *Resolver) ResolveMany(ctx context.Context, posts []*domain.Post) error {
	loaders := dataloader.For(ctx)
	if loaders == nil {
		loaders = dataloader.NewLoaders(r.store)
	}

	// queue every key before waiting so they land in one batch
	thunks := make([]func() ([]domain.Document, error), len(posts))
	for i, post := range posts {
		thunks[i] = loaders.LoadComments(ctx, post.ID)
	}

	for i, post := range posts {
		docs, err := thunks[i]()
		if err != nil {
			return fmt.Errorf("failed to resolve comments of post %s: %w", post.ID, err)
		}
		comments, err := decodeStoredComments(docs)
		if err != nil {
			return err
		}
		post.Comments = comments
		post.CommentsCount = int64(len(comments))
	}
	return nil
}

// Invalidate drops every cached relation of a post. Called after each
// comment write.
func (r *Resolver) Invalidate(ctx context.Context, postID string) {
	if r.counts != nil {
		r.counts.Invalidate(ctx, postID)
	}
	if loaders := dataloader.For(ctx); loaders != nil {
		loaders.ForgetComments(ctx, postID)
	}
}

// Forget drops every cached relation of a post that no longer exists,
// including its count cache generation.
func (r *Resolver) Forget(ctx context.Context, postID string) {
	if r.counts != nil {
		r.counts.Forget(ctx, postID)
	}
	if loaders := dataloader.For(ctx); loaders != nil {
		loaders.ForgetComments(ctx, postID)
	}
}
