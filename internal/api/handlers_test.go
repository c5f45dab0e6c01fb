package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UkralStul/community-content-service/internal/domain"
	"github.com/UkralStul/community-content-service/internal/service"
	"github.com/UkralStul/community-content-service/internal/storage/inmemory"
)

type testServer struct {
	*httptest.Server
	handler  *Handler
	observer *CommentObserver
}

// newTestServer поднимает API поверх in-memory хранилища
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := inmemory.New()
	relations := service.NewResolver(store, nil)
	observer := NewCommentObserver()
	h := NewHandler(
		service.NewPostService(store, relations),
		service.NewCommentService(store, relations, observer),
		observer,
		zerolog.Nop(),
	)

	srv := httptest.NewServer(h.Routes(store))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, handler: h, observer: observer}
}

// call выполняет запрос и декодирует JSON-ответ в out, если он задан
func (s *testServer) call(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func plainContent(text string) map[string]any {
	return map[string]any{"rawContent": text, "contentFormat": "plain"}
}

func (s *testServer) createTextPost(t *testing.T, commentable bool) string {
	t.Helper()
	var post map[string]any
	status := s.call(t, http.MethodPost, "/posts", map[string]any{
		"postType":    "post-text",
		"commentable": commentable,
		"content":     plainContent("hi"),
	}, &post)
	require.Equal(t, http.StatusCreated, status)
	return post["id"].(string)
}

func TestAPI_PostLifecycle(t *testing.T) {
	s := newTestServer(t)
	id := s.createTextPost(t, true)

	var post map[string]any
	require.Equal(t, http.StatusOK, s.call(t, http.MethodGet, "/posts/"+id, nil, &post))
	assert.Equal(t, "post-text", post["postType"])
	assert.Equal(t, []any{}, post["comments"])
	assert.EqualValues(t, 0, post["commentsCount"])

	var updated map[string]any
	require.Equal(t, http.StatusOK, s.call(t, http.MethodPatch, "/posts/"+id, map[string]any{"commentable": false}, &updated))
	assert.Equal(t, false, updated["commentable"])

	var list []map[string]any
	require.Equal(t, http.StatusOK, s.call(t, http.MethodGet, "/posts?type=post-text&limit=5", nil, &list))
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0]["id"])

	assert.Equal(t, http.StatusNoContent, s.call(t, http.MethodDelete, "/posts/"+id, nil, nil))
	assert.Equal(t, http.StatusNotFound, s.call(t, http.MethodGet, "/posts/"+id, nil, nil))
}

func TestAPI_ValidationErrors(t *testing.T) {
	s := newTestServer(t)

	var resp errorResponse
	status := s.call(t, http.MethodPost, "/posts", map[string]any{
		"postType":                       "post-poll",
		"commentable":                    true,
		"content":                        plainContent("pick one"),
		"responseOptions":                []string{"only"},
		"allowAdditionalResponseOptions": false,
		"allowMultipleSelection":         false,
		"anonymous":                      false,
	}, &resp)
	assert.Equal(t, http.StatusBadRequest, status)
	require.NotEmpty(t, resp.Fields)
	assert.Equal(t, "responseOptions", resp.Fields[0].Field)

	resp = errorResponse{}
	status = s.call(t, http.MethodPost, "/posts", map[string]any{"commentable": true}, &resp)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "postType", resp.Fields[0].Field)

	assert.Equal(t, http.StatusBadRequest, s.call(t, http.MethodPost, "/posts", "{not json", nil))
	assert.Equal(t, http.StatusBadRequest, s.call(t, http.MethodPost, "/posts", "[]", nil))
	assert.Equal(t, http.StatusBadRequest, s.call(t, http.MethodGet, "/posts?limit=many", nil, nil))
}

func TestAPI_Comments(t *testing.T) {
	s := newTestServer(t)
	postID := s.createTextPost(t, true)
	otherID := s.createTextPost(t, true)
	closedID := s.createTextPost(t, false)

	var c1 map[string]any
	require.Equal(t, http.StatusCreated, s.call(t, http.MethodPost, "/posts/"+postID+"/comments",
		map[string]any{"content": plainContent("first")}, &c1))
	c1ID := c1["id"].(string)

	var c2 map[string]any
	require.Equal(t, http.StatusCreated, s.call(t, http.MethodPost, "/posts/"+postID+"/comments",
		map[string]any{"content": plainContent("reply"), "replyTo": c1ID}, &c2))
	assert.Equal(t, c1ID, c2["replyTo"])

	assert.Equal(t, http.StatusForbidden, s.call(t, http.MethodPost, "/posts/"+closedID+"/comments",
		map[string]any{"content": plainContent("x")}, nil))
	assert.Equal(t, http.StatusUnprocessableEntity, s.call(t, http.MethodPost, "/posts/"+otherID+"/comments",
		map[string]any{"content": plainContent("x"), "replyTo": c1ID}, nil))
	assert.Equal(t, http.StatusNotFound, s.call(t, http.MethodPost, "/posts/missing/comments",
		map[string]any{"content": plainContent("x")}, nil))

	var flat []map[string]any
	require.Equal(t, http.StatusOK, s.call(t, http.MethodGet, "/posts/"+postID+"/comments", nil, &flat))
	require.Len(t, flat, 2)
	assert.Equal(t, c1ID, flat[0]["id"])

	var tree []map[string]any
	require.Equal(t, http.StatusOK, s.call(t, http.MethodGet, "/posts/"+postID+"/comments?view=tree", nil, &tree))
	require.Len(t, tree, 1)
	assert.Len(t, tree[0]["replies"], 1)

	var replies []map[string]any
	require.Equal(t, http.StatusOK, s.call(t, http.MethodGet, "/comments/"+c1ID+"/replies", nil, &replies))
	require.Len(t, replies, 1)
	assert.Equal(t, c2["id"], replies[0]["id"])

	var edited map[string]any
	require.Equal(t, http.StatusOK, s.call(t, http.MethodPatch, "/comments/"+c1ID,
		map[string]any{"content": plainContent("edited")}, &edited))
	assert.Equal(t, "edited", edited["content"].(map[string]any)["rawContent"])

	var got map[string]any
	require.Equal(t, http.StatusOK, s.call(t, http.MethodGet, "/comments/"+c1ID, nil, &got))
	assert.Equal(t, edited["updatedAt"], got["updatedAt"])

	var post map[string]any
	require.Equal(t, http.StatusOK, s.call(t, http.MethodGet, "/posts/"+postID, nil, &post))
	assert.EqualValues(t, 2, post["commentsCount"])
}

func TestAPI_CommentFeed(t *testing.T) {
	s := newTestServer(t)
	postID := s.createTextPost(t, true)

	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/posts/" + postID + "/comments/feed"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.observer.Subscribers(postID) == 1 }, time.Second, 10*time.Millisecond)

	var created map[string]any
	require.Equal(t, http.StatusCreated, s.call(t, http.MethodPost, "/posts/"+postID+"/comments",
		map[string]any{"content": plainContent("live")}, &created))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var pushed map[string]any
	require.NoError(t, json.Unmarshal(msg, &pushed))
	assert.Equal(t, created["id"], pushed["id"])

	_, _, err = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(s.URL, "http")+"/posts/missing/comments/feed", nil)
	assert.ErrorIs(t, err, websocket.ErrBadHandshake)
}

func TestAPI_CommentFeedClosesOnShutdown(t *testing.T) {
	s := newTestServer(t)
	postID := s.createTextPost(t, true)

	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/posts/" + postID + "/comments/feed"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return s.observer.Subscribers(postID) == 1 }, time.Second, 10*time.Millisecond)

	s.handler.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	require.Eventually(t, func() bool { return s.observer.Subscribers(postID) == 0 }, time.Second, 10*time.Millisecond)
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{err: domain.Invalid("title", "is required"), want: http.StatusBadRequest},
		{err: fmt.Errorf("x: %w", domain.ErrNotFound), want: http.StatusNotFound},
		{err: domain.ErrCommentingDisabled, want: http.StatusForbidden},
		{err: domain.ErrInvalidReply, want: http.StatusUnprocessableEntity},
		{err: domain.ErrDuplicateKey, want: http.StatusConflict},
		{err: fmt.Errorf("%w: timeout", domain.ErrStoreUnavailable), want: http.StatusServiceUnavailable},
		{err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusOf(tc.err), tc.err.Error())
	}
}

func TestCommentObserver_UnsubscribesOnCancel(t *testing.T) {
	o := NewCommentObserver()
	ctx, cancel := context.WithCancel(context.Background())
	ch := o.Subscribe(ctx, "p1")

	o.Publish(&domain.Comment{ID: "c1", PostID: "p1"})
	o.Publish(&domain.Comment{ID: "c2", PostID: "p2"})
	assert.Equal(t, "c1", (<-ch).ID)
	assert.Empty(t, ch)

	cancel()
	require.Eventually(t, func() bool { return o.Subscribers("p1") == 0 }, time.Second, 10*time.Millisecond)
}
