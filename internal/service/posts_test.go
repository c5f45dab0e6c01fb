package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/UkralStul/community-content-service/internal/domain"
	"github.com/UkralStul/community-content-service/internal/storage"
)

func TestPostService_CreateEveryType(t *testing.T) {
	s := newTestServices(t)
	original := createPost(t, s, domain.PostTypeText, textPost(true))

	cases := map[domain.PostType]domain.Document{
		domain.PostTypeText:       textPost(true),
		domain.PostTypeQuestion:   textPost(true),
		domain.PostTypePoll:       pollPost("yes", "no"),
		domain.PostTypeScheduling: schedulingPost(),
		domain.PostTypeEvent:      eventPost(),
		domain.PostTypeShared:     sharedPost(idOf(original)),
	}

	for postType, payload := range cases {
		t.Run(string(postType), func(t *testing.T) {
			post, err := s.posts.Create(context.Background(), postType, payload)
			require.NoError(t, err)

			assert.NotEmpty(t, post[domain.FieldID])
			assert.IsType(t, time.Time{}, post[domain.FieldCreatedAt])
			assert.Equal(t, string(postType), post[domain.FieldPostType])
			assert.Equal(t, []domain.Document{}, post[domain.FieldComments])
			assert.EqualValues(t, 0, post[domain.FieldCommentsCount])
		})
	}
}

func TestPostService_CreateIgnoresClientManagedFields(t *testing.T) {
	s := newTestServices(t)
	payload := textPost(true)
	payload["id"] = "client-id"
	payload["createdAt"] = "2000-01-01T00:00:00Z"
	payload["comments"] = []any{domain.Document{"id": "fake"}}
	payload["commentsCount"] = 42

	post := createPost(t, s, domain.PostTypeText, payload)

	assert.NotEqual(t, "client-id", post[domain.FieldID])
	assert.NotEqual(t, 2000, post[domain.FieldCreatedAt].(time.Time).Year())
	assert.Equal(t, []domain.Document{}, post[domain.FieldComments])
	assert.EqualValues(t, 0, post[domain.FieldCommentsCount])
	// входной документ не изменяется
	assert.Equal(t, "client-id", payload["id"])
}

func TestPostService_CreatePollNeedsTwoOptions(t *testing.T) {
	s := newTestServices(t)

	for _, options := range [][]any{nil, {}, {"only"}} {
		_, err := s.posts.Create(context.Background(), domain.PostTypePoll, pollPost(options...))
		require.ErrorIs(t, err, domain.ErrValidation)
		assert.Equal(t, "responseOptions", domain.FieldsOf(err)[0].Field)
	}
}

func TestPostService_CreateUnknownType(t *testing.T) {
	s := newTestServices(t)

	_, err := s.posts.Create(context.Background(), "post-video", textPost(true))
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, domain.FieldPostType, domain.FieldsOf(err)[0].Field)
}

func TestPostService_CreateTypeMismatch(t *testing.T) {
	s := newTestServices(t)
	payload := textPost(true)
	payload["postType"] = "post-question"

	_, err := s.posts.Create(context.Background(), domain.PostTypeText, payload)
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestPostService_CreateRejectsForeignFields(t *testing.T) {
	s := newTestServices(t)
	payload := textPost(true)
	payload["responseOptions"] = []any{"a", "b"}

	_, err := s.posts.Create(context.Background(), domain.PostTypeText, payload)
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, []domain.FieldError{{Field: "responseOptions", Reason: "is not allowed for post-text"}}, domain.FieldsOf(err))
}

func TestPostService_CreateSharedNeedsExistingPost(t *testing.T) {
	s := newTestServices(t)

	_, err := s.posts.Create(context.Background(), domain.PostTypeShared, sharedPost("missing"))
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, domain.FieldSharedFrom, domain.FieldsOf(err)[0].Field)
}

func TestPostService_GetResolvesComments(t *testing.T) {
	s := newTestServices(t)
	post := createPost(t, s, domain.PostTypeText, textPost(true))
	c1 := createComment(t, s, idOf(post), domain.Document{"content": content("first")})
	c2 := createComment(t, s, idOf(post), domain.Document{"content": content("second")})

	got, err := s.posts.Get(context.Background(), idOf(post))
	require.NoError(t, err)

	comments := got[domain.FieldComments].([]domain.Document)
	require.Len(t, comments, 2)
	assert.Equal(t, idOf(c1), idOf(comments[0]))
	assert.Equal(t, idOf(c2), idOf(comments[1]))
	assert.EqualValues(t, 2, got[domain.FieldCommentsCount])

	_, err = s.posts.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPostService_List(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	first := createPost(t, s, domain.PostTypeText, textPost(true))
	createPost(t, s, domain.PostTypePoll, pollPost("yes", "no"))
	third := createPost(t, s, domain.PostTypeText, textPost(true))
	createComment(t, s, idOf(first), domain.Document{"content": content("a")})
	createComment(t, s, idOf(first), domain.Document{"content": content("b")})

	all, err := s.posts.List(ctx, "", 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, idOf(third), idOf(all[0]))
	assert.Equal(t, idOf(first), idOf(all[2]))
	assert.EqualValues(t, 2, all[2][domain.FieldCommentsCount])
	assert.Len(t, all[2][domain.FieldComments], 2)

	texts, err := s.posts.List(ctx, domain.PostTypeText, 1, 1)
	require.NoError(t, err)
	require.Len(t, texts, 1)
	assert.Equal(t, idOf(first), idOf(texts[0]))

	_, err = s.posts.List(ctx, "post-video", 10, 0)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = s.posts.List(ctx, "", 0, 0)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestPostService_Update(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	post := createPost(t, s, domain.PostTypeEvent, eventPost())
	id := idOf(post)

	updated, err := s.posts.Update(ctx, id, domain.Document{
		"title":         "Autumn fair",
		"category":      nil,
		"commentsCount": 99,
		"postType":      "post-event",
		"createdAt":     post[domain.FieldCreatedAt].(time.Time).Format(time.RFC3339Nano),
	})
	require.NoError(t, err)
	assert.Equal(t, "Autumn fair", updated["title"])
	assert.NotContains(t, updated, "category")
	assert.EqualValues(t, 0, updated[domain.FieldCommentsCount])
	assert.Equal(t, post[domain.FieldCreatedAt], updated[domain.FieldCreatedAt])
}

func TestPostService_UpdateRejectsImmutableAndInvalid(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	id := idOf(createPost(t, s, domain.PostTypePoll, pollPost("yes", "no")))

	_, err := s.posts.Update(ctx, id, domain.Document{"postType": "post-text"})
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, domain.FieldPostType, domain.FieldsOf(err)[0].Field)

	_, err = s.posts.Update(ctx, id, domain.Document{"id": "other"})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = s.posts.Update(ctx, id, domain.Document{"responseOptions": []any{"only"}})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = s.posts.Update(ctx, id, domain.Document{"title": "polls have no title"})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = s.posts.Update(ctx, "missing", domain.Document{"commentable": true})
	require.ErrorIs(t, err, domain.ErrNotFound)

	got, err := s.posts.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"yes", "no"}, got["responseOptions"])
}

func TestPostService_DeleteCascades(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	post := createPost(t, s, domain.PostTypeText, textPost(true))
	other := createPost(t, s, domain.PostTypeText, textPost(true))
	createComment(t, s, idOf(post), domain.Document{"content": content("a")})
	kept := createComment(t, s, idOf(other), domain.Document{"content": content("b")})

	count, err := s.relations.ResolveCommentsCount(ctx, idOf(post))
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	require.Equal(t, 2, s.counts.Tracked())

	require.NoError(t, s.posts.Delete(ctx, idOf(post)))
	// поколение удаленного поста больше не хранится
	assert.Equal(t, 1, s.counts.Tracked())

	_, err = s.posts.Get(ctx, idOf(post))
	assert.ErrorIs(t, err, domain.ErrNotFound)
	count, err = s.relations.ResolveCommentsCount(ctx, idOf(post))
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)

	_, err = s.comments.Get(ctx, idOf(kept))
	assert.NoError(t, err)

	assert.ErrorIs(t, s.posts.Delete(ctx, idOf(post)), domain.ErrNotFound)
}

func TestPostService_StoreUnavailable(t *testing.T) {
	store := new(MockStore)
	down := fmt.Errorf("%w: connection refused", domain.ErrStoreUnavailable)
	store.On("Insert", storage.Posts, mock.Anything).Return(nil, down)
	store.On("FindByID", storage.Posts, "p1").Return(nil, down)
	store.On("List", storage.Posts, 10, 0).Return(nil, down)

	posts := NewPostService(store, NewResolver(store, nil))
	ctx := context.Background()

	_, err := posts.Create(ctx, domain.PostTypeText, textPost(true))
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	_, err = posts.Get(ctx, "p1")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	_, err = posts.List(ctx, "", 10, 0)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	store.AssertExpectations(t)
}

func TestPostService_ListByTypePagesInStore(t *testing.T) {
	store := new(MockStore)
	stored := domain.Document{
		"id": "p2", "postType": "post-text", "commentable": true, "content": content("hi"),
		"createdAt": time.Now().UTC(), "updatedAt": time.Now().UTC(),
	}
	store.On("ListByField", storage.Posts, domain.FieldPostType, "post-text", 1, 1).Return([]domain.Document{stored}, nil)
	store.On("FindByFieldIn", storage.Comments, domain.FieldPost, []string{"p2"}).Return(map[string][]domain.Document{}, nil)

	posts := NewPostService(store, NewResolver(store, nil))

	page, err := posts.List(context.Background(), domain.PostTypeText, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "p2", idOf(page[0]))
	store.AssertNotCalled(t, "FindByField", storage.Posts, domain.FieldPostType, "post-text")
	store.AssertExpectations(t)
}

func TestPostService_DeleteReportsFailedCascade(t *testing.T) {
	store := new(MockStore)
	store.On("Delete", storage.Posts, "p1").Return(nil)
	store.On("DeleteByField", storage.Comments, domain.FieldPost, "p1").
		Return(int64(0), errors.Join(domain.ErrStoreUnavailable, errors.New("timeout")))

	posts := NewPostService(store, NewResolver(store, nil))

	err := posts.Delete(context.Background(), "p1")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	store.AssertExpectations(t)
}
