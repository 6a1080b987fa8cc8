package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/docuchat-io/docuchat/internal/model"
	"github.com/docuchat-io/docuchat/internal/pkg/errcode"
	"github.com/docuchat-io/docuchat/internal/pkg/response"
	"github.com/docuchat-io/docuchat/internal/service"
)

type ChatbotHandler struct {
	bots *service.ChatbotService
}

func NewChatbotHandler(bots *service.ChatbotService) *ChatbotHandler {
	return &ChatbotHandler{bots: bots}
}

type chatbotRequest struct {
	Name           string   `json:"name"`
	Provider       string   `json:"provider"`
	Model          string   `json:"model"`
	FallbackModel  string   `json:"fallback_model"`
	SystemPrompt   string   `json:"system_prompt"`
	WelcomeMessage string   `json:"welcome_message"`
	Languages      []string `json:"languages"`
	TopK           int      `json:"top_k"`
	MinScore       float32  `json:"min_score"`
}

func (r *chatbotRequest) toModel() *model.Chatbot {
	return &model.Chatbot{
		Name:           r.Name,
		Provider:       r.Provider,
		Model:          r.Model,
		FallbackModel:  r.FallbackModel,
		SystemPrompt:   r.SystemPrompt,
		WelcomeMessage: r.WelcomeMessage,
		Languages:      r.Languages,
		TopK:           r.TopK,
		MinScore:       r.MinScore,
	}
}

func (h *ChatbotHandler) Create(c *gin.Context) {
	var req chatbotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	bot, err := h.bots.Create(c.Request.Context(), getCompanyID(c), req.toModel())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, bot)
}

func (h *ChatbotHandler) Update(c *gin.Context) {
	var req chatbotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	bot := req.toModel()
	bot.ID = c.Param("id")
	updated, err := h.bots.Update(c.Request.Context(), getCompanyID(c), bot)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, updated)
}

func (h *ChatbotHandler) Get(c *gin.Context) {
	bot, err := h.bots.Get(c.Request.Context(), getCompanyID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, bot)
}

func (h *ChatbotHandler) List(c *gin.Context) {
	bots, err := h.bots.List(c.Request.Context(), getCompanyID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, bots)
}

func (h *ChatbotHandler) Delete(c *gin.Context) {
	if err := h.bots.Delete(c.Request.Context(), getCompanyID(c), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, nil)
}

type setDocumentsRequest struct {
	DocumentIDs []string `json:"document_ids"`
}

// SetDocuments replaces the chatbot's authorized document set.
func (h *ChatbotHandler) SetDocuments(c *gin.Context) {
	var req setDocumentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if err := h.bots.SetDocuments(c.Request.Context(), getCompanyID(c), c.Param("id"), req.DocumentIDs); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, nil)
}
