package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/UkralStul/community-content-service/internal/service"
)

const (
	pingInterval = 10 * time.Second
	writeTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// commentFeed отправляет новые комментарии поста по websocket, пока клиент
// не отключится или сервер не начнет останавливаться.
func (h *Handler) commentFeed(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "postID")
	// Проверяем, существует ли пост, прежде чем подписываться
	if _, err := h.posts.Get(r.Context(), postID); err != nil {
		h.writeError(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade уже ответил клиенту
		h.logger.Debug().Err(err).Str("post", postID).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(h.ctx)
	defer cancel()
	comments := h.observer.Subscribe(ctx, postID)

	// Читаем только ради управляющих кадров и обнаружения закрытия
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if h.ctx.Err() != nil {
				// Сервер останавливается: прощаемся с клиентом
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
			}
			return
		case c := <-comments:
			payload, err := json.Marshal(service.RenderComment(c))
			if err != nil {
				h.logger.Error().Err(err).Msg("failed to encode comment")
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
