package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/skillmatrix/internal/domain"
)

type ListNotificationsInput struct {
	Status string `query:"status" enum:"UNREAD,READ,RESOLVED" default:"UNREAD" doc:"Notification status"`
	Limit  int    `query:"limit" minimum:"1" maximum:"200" default:"50" doc:"Max results"`
}

type ListNotificationsOutput struct {
	Body []*domain.Notification
}

type NotificationIDInput struct {
	ID uuid.UUID `path:"id" doc:"Notification ID"`
}

type NotificationOutput struct {
	Body *domain.Notification
}

// RegisterNotificationRoutes exposes the administrator inbox.
func RegisterNotificationRoutes(api huma.API, store DataStore) {
	huma.Register(api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/notifications",
		Summary:     "List administrator notifications by status",
		Tags:        []string{"Notifications"},
	}, func(ctx context.Context, input *ListNotificationsInput) (*ListNotificationsOutput, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}

		list, err := store.Notifications().ListByStatus(ctx, domain.UserGroupAdmin, domain.NotificationStatus(input.Status), input.Limit)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list notifications", err)
		}
		if list == nil {
			list = []*domain.Notification{}
		}
		return &ListNotificationsOutput{Body: list}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "read-notification",
		Method:      http.MethodPost,
		Path:        "/notifications/{id}/read",
		Summary:     "Mark a notification as read",
		Tags:        []string{"Notifications"},
	}, func(ctx context.Context, input *NotificationIDInput) (*NotificationOutput, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}

		n, err := store.Notifications().GetByID(ctx, input.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("notification not found")
			}
			return nil, huma.Error500InternalServerError("failed to get notification", err)
		}

		// Resolved is terminal; reading it again is a no-op.
		if n.Status == domain.NotificationStatusUnread {
			if err := store.Notifications().UpdateStatus(ctx, n.ID, domain.NotificationStatusRead); err != nil {
				return nil, huma.Error500InternalServerError("failed to update notification", err)
			}
			n.Status = domain.NotificationStatusRead
		}
		return &NotificationOutput{Body: n}, nil
	})
}
