package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/UkralStul/community-content-service/internal/domain"
	"github.com/UkralStul/community-content-service/internal/storage"
)

// Sweeper removes comments whose post no longer exists. Such comments
// remain when the second step of a post delete fails, or when a comment
// is created while its post is being deleted.
type Sweeper struct {
	store     storage.Storage
	relations *Resolver
}

func NewSweeper(store storage.Storage, relations *Resolver) *Sweeper {
	return &Sweeper{store: store, relations: relations}
}

// SweepOrphanComments deletes orphaned comments and returns how many were
// removed.
func (s *Sweeper) SweepOrphanComments(ctx context.Context) (int64, error) {
	postIDs, err := s.store.DistinctValues(ctx, storage.Comments, domain.FieldPost)
	if err != nil {
		return 0, fmt.Errorf("failed to collect commented posts: %w", err)
	}

	var removed int64
	for _, postID := range postIDs {
		_, err := s.store.FindByID(ctx, storage.Posts, postID)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return removed, fmt.Errorf("failed to find post %s: %w", postID, err)
		}

		n, err := s.store.DeleteByField(ctx, storage.Comments, domain.FieldPost, postID)
		if err != nil {
			return removed, fmt.Errorf("failed to delete comments of post %s: %w", postID, err)
		}
		removed += n
		s.relations.Forget(ctx, postID)
	}
	return removed, nil
}
