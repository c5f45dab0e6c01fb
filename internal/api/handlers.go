package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/UkralStul/community-content-service/internal/domain"
)

const (
	defaultLimit = 10
	maxLimit     = 100
)

// readDocument decodes a JSON object request body.
func readDocument(r *http.Request) (domain.Document, error) {
	var doc domain.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		return nil, domain.Invalid("", "request body must be a JSON object")
	}
	if doc == nil {
		return nil, domain.Invalid("", "request body must be a JSON object")
	}
	return doc, nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.Invalid(name, "must be an integer")
	}
	return n, nil
}

// === Posts ===

func (h *Handler) createPost(w http.ResponseWriter, r *http.Request) {
	doc, err := readDocument(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	postType, _ := doc[domain.FieldPostType].(string)
	if postType == "" {
		h.writeError(w, r, domain.Invalid(domain.FieldPostType, "is required"))
		return
	}

	post, err := h.posts.Create(r.Context(), domain.PostType(postType), doc)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, post)
}

func (h *Handler) listPosts(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultLimit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	posts, err := h.posts.List(r.Context(), domain.PostType(r.URL.Query().Get("type")), limit, offset)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, posts)
}

func (h *Handler) getPost(w http.ResponseWriter, r *http.Request) {
	post, err := h.posts.Get(r.Context(), chi.URLParam(r, "postID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, post)
}

func (h *Handler) updatePost(w http.ResponseWriter, r *http.Request) {
	doc, err := readDocument(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	post, err := h.posts.Update(r.Context(), chi.URLParam(r, "postID"), doc)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, post)
}

func (h *Handler) deletePost(w http.ResponseWriter, r *http.Request) {
	if err := h.posts.Delete(r.Context(), chi.URLParam(r, "postID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// === Comments ===

func (h *Handler) createComment(w http.ResponseWriter, r *http.Request) {
	doc, err := readDocument(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	comment, err := h.comments.Create(r.Context(), chi.URLParam(r, "postID"), doc)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, comment)
}

func (h *Handler) listComments(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "postID")

	if r.URL.Query().Get("view") == "tree" {
		thread, err := h.comments.Thread(r.Context(), postID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusOK, thread)
		return
	}

	comments, err := h.comments.ListForPost(r.Context(), postID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, comments)
}

func (h *Handler) getComment(w http.ResponseWriter, r *http.Request) {
	comment, err := h.comments.Get(r.Context(), chi.URLParam(r, "commentID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, comment)
}

func (h *Handler) updateComment(w http.ResponseWriter, r *http.Request) {
	doc, err := readDocument(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	comment, err := h.comments.Update(r.Context(), chi.URLParam(r, "commentID"), doc)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, comment)
}

func (h *Handler) listReplies(w http.ResponseWriter, r *http.Request) {
	replies, err := h.comments.Replies(r.Context(), chi.URLParam(r, "commentID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, replies)
}
