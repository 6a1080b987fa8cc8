package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/docuchat-io/docuchat/internal/middleware"
)

type RouterDeps struct {
	Auth           *AuthHandler
	Chatbots       *ChatbotHandler
	Documents      *DocumentHandler
	Chat           *ChatHandler
	JWTSecret      []byte
	ChatRateWindow time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.POST("/auth/register", deps.Auth.Register)
	api.POST("/auth/login", deps.Auth.Login)

	authGroup := api.Group("")
	authGroup.Use(middleware.JWTAuth(deps.JWTSecret))

	authGroup.POST("/chatbots", deps.Chatbots.Create)
	authGroup.GET("/chatbots", deps.Chatbots.List)
	authGroup.GET("/chatbots/:id", deps.Chatbots.Get)
	authGroup.PUT("/chatbots/:id", deps.Chatbots.Update)
	authGroup.DELETE("/chatbots/:id", deps.Chatbots.Delete)
	authGroup.PUT("/chatbots/:id/documents", deps.Chatbots.SetDocuments)
	authGroup.GET("/chatbots/:id/stats", deps.Chat.Stats)

	authGroup.POST("/documents", deps.Documents.Upload)
	authGroup.GET("/documents", deps.Documents.List)
	authGroup.GET("/documents/:id", deps.Documents.Get)
	authGroup.DELETE("/documents/:id", deps.Documents.Delete)
	authGroup.POST("/documents/:id/reingest", deps.Documents.Reingest)

	// public widget surface, rate limited per ip+route
	chatGroup := api.Group("")
	chatGroup.Use(middleware.RateLimit(deps.ChatRateWindow))
	chatGroup.POST("/chat/:id", deps.Chat.Turn)
	chatGroup.POST("/chat/:id/stream", deps.Chat.TurnStream)
	chatGroup.GET("/chat/:id/welcome", deps.Chat.Welcome)
}
