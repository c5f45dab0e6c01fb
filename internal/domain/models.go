package domain

import "time"

// Document is the key-value shape entities take in the store and on the wire.
type Document = map[string]any

// ContentFormat tells consumers how RawContent must be interpreted.
type ContentFormat string

const (
	ContentFormatPlain   ContentFormat = "plain"
	ContentFormatRichDoc ContentFormat = "draftjs"
)

// ContentBody is the body embedded by value in posts and comments.
type ContentBody struct {
	RawContent    string        `json:"rawContent" validate:"required"`
	ContentFormat ContentFormat `json:"contentFormat" validate:"required,oneof=plain draftjs"`
}

// Post represents a unit of shareable content. Variant carries the
// payload selected by the post type.
type Post struct {
	ID          string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Commentable bool
	Content     *ContentBody
	Variant     Variant

	// Computed on read, never stored.
	Comments      []*Comment
	CommentsCount int64
}

// Type returns the discriminator of the post's variant.
func (p *Post) Type() PostType {
	if p.Variant == nil {
		return ""
	}
	return p.Variant.PostType()
}

// Comment is attached to exactly one post and optionally replies to
// another comment on the same post.
type Comment struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
	PostID    string
	ReplyTo   *string
	Content   ContentBody
}

// IsRoot reports whether the comment starts a thread.
func (c *Comment) IsRoot() bool {
	return c.ReplyTo == nil
}
