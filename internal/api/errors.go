package api

import (
	"errors"
	"net/http"

	"github.com/UkralStul/community-content-service/internal/domain"
)

type errorResponse struct {
	Error  string              `json:"error"`
	Fields []domain.FieldError `json:"fields,omitempty"`
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrCommentingDisabled):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidReply):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrDuplicateKey):
		return http.StatusConflict
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	resp := errorResponse{Error: err.Error(), Fields: domain.FieldsOf(err)}

	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).
			Str("request_id", requestID(r)).
			Str("path", r.URL.Path).
			Msg("request failed")
		if status == http.StatusInternalServerError {
			resp.Error = "internal error"
		}
	}
	h.writeJSON(w, status, resp)
}
