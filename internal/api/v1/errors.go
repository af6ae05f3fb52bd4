package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/skillmatrix/internal/conversation"
	"github.com/gosuda/skillmatrix/internal/domain"
	"github.com/gosuda/skillmatrix/internal/server/middleware"
)

// chatStatus maps conversation errors to an HTTP status and a public message.
func chatStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "chat, user skill or grade not found"
	case errors.Is(err, conversation.ErrThreadCompleted):
		return http.StatusForbidden, "Forbidden to modify completed discussion"
	case errors.Is(err, conversation.ErrThreadBlocked):
		return http.StatusConflict, "chat is waiting for an administrator"
	case errors.Is(err, conversation.ErrThreadBusy):
		return http.StatusConflict, "chat is being processed, retry shortly"
	case errors.Is(err, conversation.ErrNoPendingInterrupt):
		return http.StatusConflict, "chat has no pending interrupt"
	case errors.Is(err, conversation.ErrUnknownGrade), errors.Is(err, domain.ErrInvalidGrade):
		return http.StatusBadRequest, "unknown grade"
	default:
		return http.StatusInternalServerError, "failed to process chat"
	}
}

func chatError(err error) error {
	status, msg := chatStatus(err)
	if status == http.StatusInternalServerError {
		return huma.Error500InternalServerError(msg, err)
	}
	return huma.NewError(status, msg)
}

func requireAdmin(ctx context.Context) error {
	role, ok := middleware.RoleFromContext(ctx)
	if !ok || role != middleware.RoleAdmin {
		return huma.Error403Forbidden("admin role required")
	}
	return nil
}

// callerID returns the authenticated user id, or 401 when absent.
func callerID(ctx context.Context) (int64, error) {
	id, ok := middleware.UserIDFromContext(ctx)
	if !ok {
		return 0, huma.Error401Unauthorized("authentication required")
	}
	return id, nil
}

func isAdmin(ctx context.Context) bool {
	role, _ := middleware.RoleFromContext(ctx)
	return role == middleware.RoleAdmin
}
