// Package api exposes the post and comment services over HTTP, with a
// websocket feed of new comments.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"github.com/UkralStul/community-content-service/internal/dataloader"
	"github.com/UkralStul/community-content-service/internal/service"
	"github.com/UkralStul/community-content-service/internal/storage"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Handler serves the REST API.
type Handler struct {
	posts    *service.PostService
	comments *service.CommentService
	observer *CommentObserver
	logger   zerolog.Logger

	// ctx lives until shutdown begins; comment feeds derive from it.
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHandler(posts *service.PostService, comments *service.CommentService, observer *CommentObserver, logger zerolog.Logger) *Handler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Handler{
		posts:    posts,
		comments: comments,
		observer: observer,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Close ends every open comment feed. http.Server.Shutdown does not close
// hijacked connections, so register it with RegisterOnShutdown.
func (h *Handler) Close() {
	h.cancel()
}

// Routes builds the router. store backs the per-request dataloaders.
func (h *Handler) Routes(store storage.Storage) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(h.accessLog)
	router.Use(middleware.Recoverer)
	router.Use(func(next http.Handler) http.Handler {
		return dataloader.Middleware(store, next)
	})

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	router.Route("/posts", func(r chi.Router) {
		r.Post("/", h.createPost)
		r.Get("/", h.listPosts)

		r.Route("/{postID}", func(r chi.Router) {
			r.Get("/", h.getPost)
			r.Patch("/", h.updatePost)
			r.Delete("/", h.deletePost)

			r.Post("/comments", h.createComment)
			r.Get("/comments", h.listComments)
			r.Get("/comments/feed", h.commentFeed)
		})
	})

	router.Route("/comments/{commentID}", func(r chi.Router) {
		r.Get("/", h.getComment)
		r.Patch("/", h.updateComment)
		r.Get("/replies", h.listReplies)
	})

	return router
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		h.logger.Info().
			Str("request_id", requestID(r)).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	})
}

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn().Err(err).Msg("failed to write response")
	}
}
