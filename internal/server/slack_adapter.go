package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/gosuda/skillmatrix/internal/domain"
	smslack "github.com/gosuda/skillmatrix/internal/messenger/slack"
)

var errNotAdmin = errors.New("slack user is not an administrator")

// EscalationResponder resumes the chat behind an escalation thread.
// *messenger.Router satisfies this interface.
type EscalationResponder interface {
	HandleResponse(ctx context.Context, platform, threadID string, value domain.ResumeValue) error
}

type slackUserResolver interface {
	GetBySlackID(ctx context.Context, slackID string) (*domain.User, error)
}

// slackResponseAdapter bridges the Slack handler's ResponseHandler interface to
// the escalation router. Slack users linked to an account must be
// administrators and are recorded as the deciding admin; unlinked members of
// the escalation channel answer anonymously.
type slackResponseAdapter struct {
	router EscalationResponder
	users  slackUserResolver
}

// HandleSlackResponse implements slack.ResponseHandler.
func (a *slackResponseAdapter) HandleSlackResponse(ctx context.Context, threadTS string, reply smslack.Reply, slackUserID string) error {
	gradeID := reply.GradeID
	value := domain.ResumeValue{
		GradeID: &gradeID,
		Message: reply.Note,
	}

	user, err := a.users.GetBySlackID(ctx, slackUserID)
	switch {
	case err == nil:
		if user.Role != domain.UserRoleAdmin {
			return fmt.Errorf("slackResponseAdapter.HandleSlackResponse: %s: %w", slackUserID, errNotAdmin)
		}
		adminID := user.ID
		value.AdminID = &adminID
	case errors.Is(err, domain.ErrNotFound):
		// Unlinked channel member.
	default:
		return fmt.Errorf("slackResponseAdapter.HandleSlackResponse: resolve user: %w", err)
	}

	if routerErr := a.router.HandleResponse(ctx, smslack.Platform, threadTS, value); routerErr != nil {
		return fmt.Errorf("slackResponseAdapter.HandleSlackResponse: %w", routerErr)
	}

	return nil
}
