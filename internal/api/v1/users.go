package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/skillmatrix/internal/auth"
	"github.com/gosuda/skillmatrix/internal/domain"
)

type CreateUserInput struct {
	Body struct {
		Email    string `json:"email" minLength:"3" maxLength:"255" doc:"User email"`
		Password string `json:"password" minLength:"8" maxLength:"128" doc:"Initial password"` //nolint:gosec // G117: credential DTO
		Name     string `json:"name" minLength:"1" maxLength:"255" doc:"Display name"`
		Role     string `json:"role,omitempty" enum:"admin,employee" doc:"Role, employee when omitted"`
		SlackID  string `json:"slack_id,omitempty" maxLength:"64" doc:"Slack member ID for notifications"`
	}
}

type UserOutput struct {
	Body *domain.User
}

type ListUsersInput struct {
	Limit  int `query:"limit" minimum:"1" maximum:"200" default:"50" doc:"Max results"`
	Offset int `query:"offset" minimum:"0" default:"0" doc:"Offset for pagination"`
}

type ListUsersOutput struct {
	Body []*domain.User
}

type CreateAPIKeyInput struct {
	Body struct {
		Name      string `json:"name" minLength:"1" maxLength:"100" doc:"Label for the key"`
		ExpiresIn int    `json:"expires_in_days,omitempty" minimum:"0" maximum:"3650" doc:"Lifetime in days, 0 for no expiry"`
	}
}

type CreateAPIKeyOutput struct {
	Body struct {
		Key    string         `json:"key" doc:"Raw key, shown only once"` //nolint:gosec // G117: auth response DTO
		APIKey *domain.APIKey `json:"api_key"`
	}
}

type ListAPIKeysOutput struct {
	Body []*domain.APIKey
}

type DeleteAPIKeyInput struct {
	ID int64 `path:"id" minimum:"1" doc:"API key ID"`
}

func RegisterUserRoutes(api huma.API, store DataStore, authSvc AuthService) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Create a user account",
		Tags:          []string{"Users"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *CreateUserInput) (*UserOutput, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}

		user, err := authSvc.Register(ctx, auth.NewUser{
			Email:    input.Body.Email,
			Password: input.Body.Password,
			Name:     input.Body.Name,
			Role:     input.Body.Role,
			SlackID:  input.Body.SlackID,
		})
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrUserAlreadyExists):
				return nil, huma.Error409Conflict("user already exists")
			case errors.Is(err, auth.ErrInvalidRole):
				return nil, huma.Error400BadRequest("invalid role")
			}
			return nil, huma.Error500InternalServerError("failed to create user", err)
		}
		return &UserOutput{Body: user}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
		Tags:        []string{"Users"},
	}, func(ctx context.Context, input *ListUsersInput) (*ListUsersOutput, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}

		users, err := authSvc.ListUsers(ctx, input.Limit, input.Offset)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list users", err)
		}
		if users == nil {
			users = []*domain.User{}
		}
		return &ListUsersOutput{Body: users}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Get the authenticated user",
		Tags:        []string{"Users"},
	}, func(ctx context.Context, _ *struct{}) (*UserOutput, error) {
		id, err := callerID(ctx)
		if err != nil {
			return nil, err
		}
		if id == auth.BootstrapAdmin.ID {
			admin := auth.BootstrapAdmin
			return &UserOutput{Body: &admin}, nil
		}

		user, err := store.Users().GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("user not found")
			}
			return nil, huma.Error500InternalServerError("failed to get user", err)
		}
		return &UserOutput{Body: user}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/api-keys",
		Summary:       "Create an API key for the authenticated user",
		Tags:          []string{"Users"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *CreateAPIKeyInput) (*CreateAPIKeyOutput, error) {
		id, err := personalCaller(ctx)
		if err != nil {
			return nil, err
		}

		ttl := time.Duration(input.Body.ExpiresIn) * 24 * time.Hour
		raw, key, err := authSvc.GenerateAPIKey(ctx, id, input.Body.Name, ttl)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to create api key", err)
		}

		out := &CreateAPIKeyOutput{}
		out.Body.Key = raw
		out.Body.APIKey = key
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/api-keys",
		Summary:     "List API keys of the authenticated user",
		Tags:        []string{"Users"},
	}, func(ctx context.Context, _ *struct{}) (*ListAPIKeysOutput, error) {
		id, err := personalCaller(ctx)
		if err != nil {
			return nil, err
		}

		keys, err := authSvc.ListAPIKeys(ctx, id)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list api keys", err)
		}
		if keys == nil {
			keys = []*domain.APIKey{}
		}
		return &ListAPIKeysOutput{Body: keys}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-api-key",
		Method:        http.MethodDelete,
		Path:          "/api-keys/{id}",
		Summary:       "Revoke an API key",
		Tags:          []string{"Users"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *DeleteAPIKeyInput) (*struct{}, error) {
		id, err := personalCaller(ctx)
		if err != nil {
			return nil, err
		}

		if err := authSvc.RevokeAPIKey(ctx, id, input.ID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("api key not found")
			}
			return nil, huma.Error500InternalServerError("failed to revoke api key", err)
		}
		return nil, nil
	})
}

// personalCaller is callerID for endpoints that need a real account; the
// bootstrap admin key has none.
func personalCaller(ctx context.Context) (int64, error) {
	id, err := callerID(ctx)
	if err != nil {
		return 0, err
	}
	if id == auth.BootstrapAdmin.ID {
		return 0, huma.Error403Forbidden("bootstrap admin key cannot own api keys")
	}
	return id, nil
}
