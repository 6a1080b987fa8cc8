package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/docuchat-io/docuchat/internal/model"
	"github.com/docuchat-io/docuchat/internal/pkg/errcode"
	"github.com/docuchat-io/docuchat/internal/pkg/response"
	"github.com/docuchat-io/docuchat/internal/service"
)

type AuthHandler struct {
	auth *service.AuthService
}

func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type registerRequest struct {
	CompanyName string `json:"company_name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	user, token, err := h.auth.Register(c.Request.Context(), req.CompanyName, req.Email, req.Password)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, authResponse{Token: token, User: user})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	user, token, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, authResponse{Token: token, User: user})
}
