package ws_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/skillmatrix/internal/api/ws"
	"github.com/gosuda/skillmatrix/internal/conversation"
	"github.com/gosuda/skillmatrix/internal/domain"
	"github.com/gosuda/skillmatrix/internal/server/middleware"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeSubscriber struct {
	mu       sync.Mutex
	channels map[string]chan []byte
	err      error
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{channels: make(map[string]chan []byte)}
}

func (f *fakeSubscriber) ch(channel string) chan []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.channels[channel]
	if !ok {
		c = make(chan []byte, 8)
		f.channels[channel] = c
	}
	return c
}

func (f *fakeSubscriber) Subscribe(_ context.Context, channel string) (<-chan []byte, func(), error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.ch(channel), func() {}, nil
}

type fakeChatRepo struct {
	domain.ChatRepository
	chat *domain.Chat
}

func (f *fakeChatRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Chat, error) {
	if f.chat == nil || f.chat.ID != id {
		return nil, domain.ErrNotFound
	}
	return f.chat, nil
}

// identity reads the caller from test headers the way middleware.Auth would
// have stored it.
func identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(r.Header.Get("X-Test-User"), 10, 64)
		ctx := middleware.WithIdentity(r.Context(), id, r.Header.Get("X-Test-Role"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func newServer(t *testing.T, hub *ws.Hub) *httptest.Server {
	t.Helper()

	r := chi.NewRouter()
	r.Use(identity)
	r.Get("/ws/chats/{chatID}", hub.ServeChat)
	r.Get("/ws/notifications", hub.ServeNotifications)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, path string, userID int64, role string) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	t.Cleanup(cancel)

	header := http.Header{}
	header.Set("X-Test-User", strconv.FormatInt(userID, 10))
	header.Set("X-Test-Role", role)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	return websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
}

// ---------------------------------------------------------------------------
// ServeChat
// ---------------------------------------------------------------------------

func TestServeChat_ForwardsPublishedEvents(t *testing.T) {
	t.Parallel()

	chat := &domain.Chat{ID: uuid.New(), UserID: 7, Status: domain.ChatStatusInProgress}
	sub := newFakeSubscriber()
	srv := newServer(t, ws.NewHub(sub, &fakeChatRepo{chat: chat}))

	conn, _, err := dial(t, srv, "/ws/chats/"+chat.ID.String(), 7, middleware.RoleEmployee)
	require.NoError(t, err)
	defer conn.CloseNow()

	sub.ch(conversation.ChatChannel(chat.ID)) <- []byte(`{"event":{"type":"Reply"}}`)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	typ, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageText, typ)
	assert.JSONEq(t, `{"event":{"type":"Reply"}}`, string(data))
}

func TestServeChat_Rejections(t *testing.T) {
	t.Parallel()

	chat := &domain.Chat{ID: uuid.New(), UserID: 7}

	tests := []struct {
		name   string
		path   string
		userID int64
		role   string
		want   int
	}{
		{name: "other employee", path: "/ws/chats/" + chat.ID.String(), userID: 8, role: middleware.RoleEmployee, want: http.StatusNotFound},
		{name: "unknown chat", path: "/ws/chats/" + uuid.New().String(), userID: 7, role: middleware.RoleEmployee, want: http.StatusNotFound},
		{name: "malformed id", path: "/ws/chats/not-a-uuid", userID: 7, role: middleware.RoleEmployee, want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := newServer(t, ws.NewHub(newFakeSubscriber(), &fakeChatRepo{chat: chat}))

			_, resp, err := dial(t, srv, tt.path, tt.userID, tt.role)
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestServeChat_AdminWatchesAnyChat(t *testing.T) {
	t.Parallel()

	chat := &domain.Chat{ID: uuid.New(), UserID: 7}
	srv := newServer(t, ws.NewHub(newFakeSubscriber(), &fakeChatRepo{chat: chat}))

	conn, _, err := dial(t, srv, "/ws/chats/"+chat.ID.String(), 1, middleware.RoleAdmin)
	require.NoError(t, err)
	conn.CloseNow()
}

func TestServeChat_SubscribeFailureClosesConnection(t *testing.T) {
	t.Parallel()

	chat := &domain.Chat{ID: uuid.New(), UserID: 7}
	sub := newFakeSubscriber()
	sub.err = errors.New("redis down")
	srv := newServer(t, ws.NewHub(sub, &fakeChatRepo{chat: chat}))

	conn, _, err := dial(t, srv, "/ws/chats/"+chat.ID.String(), 7, middleware.RoleEmployee)
	require.NoError(t, err)
	defer conn.CloseNow()

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	_, _, err = conn.Read(ctx)
	assert.Equal(t, websocket.StatusInternalError, websocket.CloseStatus(err))
}

// ---------------------------------------------------------------------------
// ServeNotifications
// ---------------------------------------------------------------------------

func TestServeNotifications(t *testing.T) {
	t.Parallel()

	t.Run("admin receives notifications", func(t *testing.T) {
		t.Parallel()

		sub := newFakeSubscriber()
		srv := newServer(t, ws.NewHub(sub, &fakeChatRepo{}))

		conn, _, err := dial(t, srv, "/ws/notifications", 1, middleware.RoleAdmin)
		require.NoError(t, err)
		defer conn.CloseNow()

		sub.ch(conversation.NotificationChannel(domain.UserGroupAdmin)) <- []byte(`{"notification_type":"INTERRUPT"}`)

		ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
		defer cancel()
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		assert.Contains(t, string(data), "INTERRUPT")
	})

	t.Run("employee forbidden", func(t *testing.T) {
		t.Parallel()

		srv := newServer(t, ws.NewHub(newFakeSubscriber(), &fakeChatRepo{}))

		_, resp, err := dial(t, srv, "/ws/notifications", 7, middleware.RoleEmployee)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}
