package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/UkralStul/community-content-service/internal/domain"
	"github.com/UkralStul/community-content-service/internal/storage"
	"github.com/UkralStul/community-content-service/internal/visibility"
)

// Publisher is told about every comment once it is stored.
type Publisher interface {
	Publish(comment *domain.Comment)
}

// ThreadNode is a comment with the replies made to it, oldest first.
type ThreadNode struct {
	Comment domain.Document `json:"comment"`
	Replies []*ThreadNode   `json:"replies"`
}

// CommentService creates, reads and edits comments.
type CommentService struct {
	store     storage.Storage
	relations *Resolver
	publisher Publisher
}

// NewCommentService returns a comment service. publisher may be nil.
func NewCommentService(store storage.Storage, relations *Resolver, publisher Publisher) *CommentService {
	return &CommentService{store: store, relations: relations, publisher: publisher}
}

// Create adds a comment to a post. The post must exist and accept
// comments before the payload itself is looked at.
func (s *CommentService) Create(ctx context.Context, postID string, payload domain.Document) (domain.Document, error) {
	post, err := findPost(ctx, s.store, postID)
	if err != nil {
		return nil, err
	}
	if !post.Commentable {
		return nil, fmt.Errorf("post %s: %w", postID, domain.ErrCommentingDisabled)
	}

	input := inputOf(payload, visibility.KindComment)
	input[domain.FieldPost] = postID
	comment, err := domain.DecodeComment(input)
	if err != nil {
		return nil, err
	}
	if comment.ReplyTo != nil {
		if err := s.checkReply(ctx, postID, *comment.ReplyTo); err != nil {
			return nil, err
		}
	}

	stored, err := s.store.Insert(ctx, storage.Comments, domain.EncodeComment(comment))
	if err != nil {
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}
	created, err := decodeStoredComment(stored)
	if err != nil {
		return nil, err
	}

	s.relations.Invalidate(ctx, postID)
	if s.publisher != nil {
		s.publisher.Publish(created)
	}
	return RenderComment(created), nil
}

func (s *CommentService) checkReply(ctx context.Context, postID, replyTo string) error {
	parent, err := findComment(ctx, s.store, replyTo)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("comment %s does not exist: %w", replyTo, domain.ErrInvalidReply)
	case err != nil:
		return err
	case parent.PostID != postID:
		return fmt.Errorf("comment %s belongs to another post: %w", replyTo, domain.ErrInvalidReply)
	}
	return nil
}

// Get returns a single comment.
func (s *CommentService) Get(ctx context.Context, id string) (domain.Document, error) {
	comment, err := findComment(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	return RenderComment(comment), nil
}

// Update replaces the content of a comment. No other field is editable.
func (s *CommentService) Update(ctx context.Context, id string, payload domain.Document) (domain.Document, error) {
	var fields []domain.FieldError
	for key := range payload {
		if key != domain.FieldContent {
			fields = append(fields, domain.FieldError{Field: key, Reason: "cannot be edited"})
		}
	}
	raw, ok := payload[domain.FieldContent]
	if !ok {
		fields = append(fields, domain.FieldError{Field: domain.FieldContent, Reason: "is required"})
	}
	if len(fields) > 0 {
		return nil, &domain.ValidationError{Fields: fields}
	}
	body, ok := raw.(domain.Document)
	if !ok {
		return nil, domain.Invalid(domain.FieldContent, "must be an object")
	}
	content, err := domain.DecodeContent(body)
	if err != nil {
		return nil, err
	}

	comment, err := findComment(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	comment.Content = *content

	stored, err := s.store.Update(ctx, storage.Comments, id, domain.Document{
		domain.FieldContent: domain.EncodeComment(comment)[domain.FieldContent],
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update comment %s: %w", id, err)
	}
	updated, err := decodeStoredComment(stored)
	if err != nil {
		return nil, err
	}
	return RenderComment(updated), nil
}

// ListForPost returns the comments of a post, oldest first.
func (s *CommentService) ListForPost(ctx context.Context, postID string) ([]domain.Document, error) {
	if _, err := findPost(ctx, s.store, postID); err != nil {
		return nil, err
	}
	comments, err := s.relations.ResolveComments(ctx, postID)
	if err != nil {
		return nil, err
	}
	return renderComments(comments), nil
}

// Replies returns the direct replies to a comment, oldest first.
func (s *CommentService) Replies(ctx context.Context, commentID string) ([]domain.Document, error) {
	if _, err := findComment(ctx, s.store, commentID); err != nil {
		return nil, err
	}
	docs, err := s.store.FindByField(ctx, storage.Comments, domain.FieldReplyTo, commentID)
	if err != nil {
		return nil, fmt.Errorf("failed to find replies to %s: %w", commentID, err)
	}
	replies, err := decodeStoredComments(docs)
	if err != nil {
		return nil, err
	}
	return renderComments(replies), nil
}

// Thread returns the comments of a post as a reply forest.
func (s *CommentService) Thread(ctx context.Context, postID string) ([]*ThreadNode, error) {
	if _, err := findPost(ctx, s.store, postID); err != nil {
		return nil, err
	}
	comments, err := s.relations.ResolveComments(ctx, postID)
	if err != nil {
		return nil, err
	}
	return buildThread(comments), nil
}

// buildThread arranges comments, given oldest first, into trees. A reply
// whose parent is missing starts its own tree.
func buildThread(comments []*domain.Comment) []*ThreadNode {
	roots := []*ThreadNode{}
	nodes := make(map[string]*ThreadNode, len(comments))
	for _, c := range comments {
		node := &ThreadNode{Comment: RenderComment(c), Replies: []*ThreadNode{}}
		nodes[c.ID] = node

		if c.IsRoot() {
			roots = append(roots, node)
			continue
		}
		parent, ok := nodes[*c.ReplyTo]
		if !ok {
			roots = append(roots, node)
			continue
		}
		parent.Replies = append(parent.Replies, node)
	}
	return roots
}
