package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/UkralStul/community-content-service/internal/cache"
	"github.com/UkralStul/community-content-service/internal/domain"
	"github.com/UkralStul/community-content-service/internal/storage"
	"github.com/UkralStul/community-content-service/internal/storage/inmemory"
)

type testServices struct {
	store     storage.Storage
	counts    *cache.Counts
	relations *Resolver
	posts     *PostService
	comments  *CommentService

	mu        sync.Mutex
	published []*domain.Comment
}

func (s *testServices) Publish(c *domain.Comment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, c)
}

// newTestServices собирает сервисы поверх in-memory хранилища
func newTestServices(t *testing.T) *testServices {
	t.Helper()
	counts, err := cache.NewCounts(1000, time.Minute)
	require.NoError(t, err)

	s := &testServices{store: inmemory.New(), counts: counts}
	s.relations = NewResolver(s.store, counts)
	s.posts = NewPostService(s.store, s.relations)
	s.comments = NewCommentService(s.store, s.relations, s)
	return s
}

func content(text string) domain.Document {
	return domain.Document{"rawContent": text, "contentFormat": "plain"}
}

func textPost(commentable bool) domain.Document {
	return domain.Document{"commentable": commentable, "content": content("hi")}
}

func pollPost(options ...any) domain.Document {
	return domain.Document{
		"commentable":                    false,
		"content":                        content("which one?"),
		"responseOptions":                options,
		"allowAdditionalResponseOptions": false,
		"allowMultipleSelection":         false,
		"anonymous":                      true,
	}
}

func schedulingPost() domain.Document {
	return domain.Document{
		"commentable":                    true,
		"content":                        content("when?"),
		"allowAdditionalResponseOptions": true,
		"allowMultipleSelection":         true,
		"allowNoAnswerFit":               false,
	}
}

func eventPost() domain.Document {
	return domain.Document{
		"commentable":      true,
		"content":          content("come along"),
		"title":            "Summer fair",
		"startDate":        "2024-06-01T10:00:00Z",
		"endDate":          "2024-06-01T18:00:00Z",
		"fullday":          false,
		"onSite":           true,
		"remote":           false,
		"category":         "fair",
		"registrationMode": "internal",
		"maxParticipants":  50,
		"location":         domain.Document{"name": "Town hall", "city": "Berlin"},
	}
}

func sharedPost(from string) domain.Document {
	return domain.Document{"commentable": true, "sharedFrom": from}
}

func createPost(t *testing.T, s *testServices, postType domain.PostType, payload domain.Document) domain.Document {
	t.Helper()
	post, err := s.posts.Create(context.Background(), postType, payload)
	require.NoError(t, err)
	return post
}

func createComment(t *testing.T, s *testServices, postID string, payload domain.Document) domain.Document {
	t.Helper()
	comment, err := s.comments.Create(context.Background(), postID, payload)
	require.NoError(t, err)
	return comment
}

func idOf(doc domain.Document) string {
	id, _ := doc[domain.FieldID].(string)
	return id
}

// MockStore - мок хранилища на testify/mock
type MockStore struct {
	mock.Mock
}

var _ storage.Storage = (*MockStore)(nil)

func (m *MockStore) docArgs(args mock.Arguments) (domain.Document, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(domain.Document), args.Error(1)
}

func (m *MockStore) Insert(ctx context.Context, coll storage.Collection, doc domain.Document) (domain.Document, error) {
	return m.docArgs(m.Called(coll, doc))
}

func (m *MockStore) FindByID(ctx context.Context, coll storage.Collection, id string) (domain.Document, error) {
	return m.docArgs(m.Called(coll, id))
}

func (m *MockStore) Update(ctx context.Context, coll storage.Collection, id string, partial domain.Document) (domain.Document, error) {
	return m.docArgs(m.Called(coll, id, partial))
}

func (m *MockStore) Delete(ctx context.Context, coll storage.Collection, id string) error {
	return m.Called(coll, id).Error(0)
}

func (m *MockStore) List(ctx context.Context, coll storage.Collection, limit, offset int) ([]domain.Document, error) {
	args := m.Called(coll, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Document), args.Error(1)
}

func (m *MockStore) FindByField(ctx context.Context, coll storage.Collection, field, value string) ([]domain.Document, error) {
	args := m.Called(coll, field, value)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Document), args.Error(1)
}

func (m *MockStore) ListByField(ctx context.Context, coll storage.Collection, field, value string, limit, offset int) ([]domain.Document, error) {
	args := m.Called(coll, field, value, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Document), args.Error(1)
}

func (m *MockStore) CountByField(ctx context.Context, coll storage.Collection, field, value string) (int64, error) {
	args := m.Called(coll, field, value)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) DeleteByField(ctx context.Context, coll storage.Collection, field, value string) (int64, error) {
	args := m.Called(coll, field, value)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) DistinctValues(ctx context.Context, coll storage.Collection, field string) ([]string, error) {
	args := m.Called(coll, field)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockStore) FindByFieldIn(ctx context.Context, coll storage.Collection, field string, values []string) (map[string][]domain.Document, error) {
	args := m.Called(coll, field, values)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string][]domain.Document), args.Error(1)
}

func (m *MockStore) Close(ctx context.Context) error {
	return m.Called().Error(0)
}
