package ws

import (
	"context"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/skillmatrix/internal/conversation"
	"github.com/gosuda/skillmatrix/internal/domain"
	"github.com/gosuda/skillmatrix/internal/server/middleware"
)

// Subscriber abstracts the Redis pub/sub subscribe operation.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error)
}

// Hub manages WebSocket connections backed by Redis pub/sub.
type Hub struct {
	sub   Subscriber
	chats domain.ChatRepository
}

// NewHub creates a new WebSocket hub.
func NewHub(sub Subscriber, chats domain.ChatRepository) *Hub {
	return &Hub{sub: sub, chats: chats}
}

// ServeChat streams conversation.ChatEvent payloads of one chat. Employees
// may only watch their own chats.
func (h *Hub) ServeChat(w http.ResponseWriter, r *http.Request) {
	chatID, err := uuid.Parse(chi.URLParam(r, "chatID"))
	if err != nil {
		http.Error(w, "invalid chat id", http.StatusBadRequest)
		return
	}

	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	role, _ := middleware.RoleFromContext(r.Context())

	chat, err := h.chats.GetByID(r.Context(), chatID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "chat not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("chat_id", chatID.String()).Msg("ws.ServeChat: get chat")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if role != middleware.RoleAdmin && chat.UserID != userID {
		http.Error(w, "chat not found", http.StatusNotFound)
		return
	}

	h.stream(w, r, conversation.ChatChannel(chatID))
}

// ServeNotifications streams new administrator notifications.
func (h *Hub) ServeNotifications(w http.ResponseWriter, r *http.Request) {
	role, _ := middleware.RoleFromContext(r.Context())
	if role != middleware.RoleAdmin {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	h.stream(w, r, conversation.NotificationChannel(domain.UserGroupAdmin))
}

// stream upgrades the connection and forwards every message published on
// channel until either side goes away. Clients never send data; reads only
// exist to notice a close frame.
func (h *Hub) stream(w http.ResponseWriter, r *http.Request, channel string) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket accept")
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())

	messages, cleanup, err := h.sub.Subscribe(ctx, channel)
	if err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("websocket subscribe")
		_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}
	defer cleanup()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "connection closed")
			return
		case msg, msgOK := <-messages:
			if !msgOK {
				_ = conn.Close(websocket.StatusNormalClosure, "channel closed")
				return
			}
			if writeErr := conn.Write(ctx, websocket.MessageText, msg); writeErr != nil {
				log.Debug().Err(writeErr).Msg("websocket write")
				return
			}
		}
	}
}
