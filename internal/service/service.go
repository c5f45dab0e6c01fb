// Package service implements the post and comment operations on top of a
// document store. Input is projected and validated on the way in, output
// gets its computed relations and is projected on the way out.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/UkralStul/community-content-service/internal/domain"
	"github.com/UkralStul/community-content-service/internal/storage"
	"github.com/UkralStul/community-content-service/internal/visibility"
)

// errCorrupt marks stored documents that no longer decode. They are
// reported as internal failures, not as client validation errors.
var errCorrupt = errors.New("stored document is malformed")

func decodeStoredPost(doc domain.Document) (*domain.Post, error) {
	post, err := domain.DecodePost(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: post %v: %v", errCorrupt, doc[domain.FieldID], err)
	}
	return post, nil
}

func decodeStoredComment(doc domain.Document) (*domain.Comment, error) {
	comment, err := domain.DecodeComment(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: comment %v: %v", errCorrupt, doc[domain.FieldID], err)
	}
	return comment, nil
}

func decodeStoredComments(docs []domain.Document) ([]*domain.Comment, error) {
	comments := make([]*domain.Comment, 0, len(docs))
	for _, doc := range docs {
		c, err := decodeStoredComment(doc)
		if err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, nil
}

func renderPost(post *domain.Post) (domain.Document, error) {
	doc, err := domain.EncodePostWithRelations(post)
	if err != nil {
		return nil, err
	}
	return visibility.Project(doc, visibility.KindPost, visibility.Output), nil
}

// RenderComment returns the output representation of a comment.
func RenderComment(c *domain.Comment) domain.Document {
	return visibility.Project(domain.EncodeComment(c), visibility.KindComment, visibility.Output)
}

func renderComments(comments []*domain.Comment) []domain.Document {
	out := make([]domain.Document, 0, len(comments))
	for _, c := range comments {
		out = append(out, RenderComment(c))
	}
	return out
}

func findPost(ctx context.Context, store storage.Storage, id string) (*domain.Post, error) {
	doc, err := store.FindByID(ctx, storage.Posts, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find post %s: %w", id, err)
	}
	return decodeStoredPost(doc)
}

func findComment(ctx context.Context, store storage.Storage, id string) (*domain.Comment, error) {
	doc, err := store.FindByID(ctx, storage.Comments, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find comment %s: %w", id, err)
	}
	return decodeStoredComment(doc)
}

// inputOf projects a client payload for creation. The result is always a
// fresh document the caller may modify.
func inputOf(payload domain.Document, kind visibility.Kind) domain.Document {
	input := visibility.Project(payload, kind, visibility.CreateInput)
	if input == nil {
		input = domain.Document{}
	}
	return input
}
