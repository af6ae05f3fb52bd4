package server

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	v1 "github.com/gosuda/skillmatrix/internal/api/v1"
	"github.com/gosuda/skillmatrix/internal/api/ws"
	smslack "github.com/gosuda/skillmatrix/internal/messenger/slack"
	"github.com/gosuda/skillmatrix/internal/server/middleware"
)

func registerAuthRoutes(api huma.API, authSvc v1.AuthService) {
	v1.RegisterAuthRoutes(api, authSvc)
}

func registerAPIRoutes(api huma.API, deps Deps) {
	v1.RegisterChatRoutes(api, deps.Store, deps.Chats)
	v1.RegisterUserRoutes(api, deps.Store, deps.Auth)
	v1.RegisterCatalogRoutes(api, deps.Store)
	v1.RegisterNotificationRoutes(api, deps.Store)
}

func registerWSRoutes(r chi.Router, hub *ws.Hub) {
	r.Get("/chats/{chatID}", hub.ServeChat)
	r.With(middleware.RequireAdmin()).Get("/notifications", hub.ServeNotifications)
}

func registerSlackRoutes(r chi.Router, handler *smslack.Handler) {
	r.Post("/events", handler.HandleEvents)
	r.Post("/interactions", handler.HandleInteractions)
}
