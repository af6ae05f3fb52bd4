package v1_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/gosuda/skillmatrix/internal/api/v1"
	"github.com/gosuda/skillmatrix/internal/domain"
)

// ---------------------------------------------------------------------------
// GET /notifications
// ---------------------------------------------------------------------------

func TestListNotifications(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		query      string
		wantStatus domain.NotificationStatus
	}{
		{name: "defaults_to_unread", query: "", wantStatus: domain.NotificationStatusUnread},
		{name: "explicit_resolved", query: "?status=RESOLVED", wantStatus: domain.NotificationStatusResolved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, api := humatest.New(t)
			store := &mockDataStore{
				notifications: &mockNotificationRepo{
					listByStatusFunc: func(_ context.Context, group string, status domain.NotificationStatus, limit int) ([]*domain.Notification, error) {
						assert.Equal(t, domain.UserGroupAdmin, group)
						assert.Equal(t, tt.wantStatus, status)
						assert.Equal(t, 50, limit)
						return []*domain.Notification{{ID: uuid.New(), Status: status}}, nil
					},
				},
			}
			v1.RegisterNotificationRoutes(api, store)

			resp := api.GetCtx(adminCtx(1), "/notifications"+tt.query)
			require.Equal(t, http.StatusOK, resp.Code)

			var got []domain.Notification
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
			require.Len(t, got, 1)
		})
	}

	t.Run("employee_forbidden", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		v1.RegisterNotificationRoutes(api, &mockDataStore{notifications: &mockNotificationRepo{}})

		resp := api.GetCtx(employeeCtx(7), "/notifications")
		assert.Equal(t, http.StatusForbidden, resp.Code)
	})
}

// ---------------------------------------------------------------------------
// POST /notifications/{id}/read
// ---------------------------------------------------------------------------

func TestReadNotification(t *testing.T) {
	t.Parallel()

	t.Run("unread_becomes_read", func(t *testing.T) {
		t.Parallel()

		id := uuid.New()
		var updated domain.NotificationStatus

		_, api := humatest.New(t)
		store := &mockDataStore{
			notifications: &mockNotificationRepo{
				getByIDFunc: func(_ context.Context, got uuid.UUID) (*domain.Notification, error) {
					assert.Equal(t, id, got)
					return &domain.Notification{ID: id, Status: domain.NotificationStatusUnread}, nil
				},
				updateStatusFunc: func(_ context.Context, _ uuid.UUID, status domain.NotificationStatus) error {
					updated = status
					return nil
				},
			},
		}
		v1.RegisterNotificationRoutes(api, store)

		resp := api.PostCtx(adminCtx(1), "/notifications/"+id.String()+"/read")
		require.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, domain.NotificationStatusRead, updated)
	})

	t.Run("resolved_is_left_alone", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		store := &mockDataStore{
			notifications: &mockNotificationRepo{
				getByIDFunc: func(_ context.Context, id uuid.UUID) (*domain.Notification, error) {
					return &domain.Notification{ID: id, Status: domain.NotificationStatusResolved}, nil
				},
			},
		}
		v1.RegisterNotificationRoutes(api, store)

		resp := api.PostCtx(adminCtx(1), "/notifications/"+uuid.New().String()+"/read")
		require.Equal(t, http.StatusOK, resp.Code)

		var got domain.Notification
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, domain.NotificationStatusResolved, got.Status)
	})

	t.Run("not_found", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		store := &mockDataStore{
			notifications: &mockNotificationRepo{
				getByIDFunc: func(context.Context, uuid.UUID) (*domain.Notification, error) {
					return nil, domain.ErrNotFound
				},
			},
		}
		v1.RegisterNotificationRoutes(api, store)

		resp := api.PostCtx(adminCtx(1), "/notifications/"+uuid.New().String()+"/read")
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})
}
