package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/docuchat-io/docuchat/internal/pkg/errcode"
	"github.com/docuchat-io/docuchat/internal/pkg/errs"
	"github.com/docuchat-io/docuchat/internal/pkg/response"
	"github.com/docuchat-io/docuchat/internal/service"
)

type ChatHandler struct {
	chat *service.ChatService
}

func NewChatHandler(chat *service.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

type turnRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Language  string `json:"language"`
}

func (h *ChatHandler) Turn(c *gin.Context) {
	var req turnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	res, err := h.chat.HandleTurn(c.Request.Context(), &service.TurnRequest{
		ChatbotID: c.Param("id"),
		SessionID: req.SessionID,
		Message:   req.Message,
		Language:  req.Language,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

type sseChunk struct {
	Text string `json:"text"`
}

type sseDone struct {
	Response    string `json:"response"`
	UsedContext bool   `json:"used_context"`
	ModelUsed   string `json:"model_used"`
	LatencyMs   int64  `json:"latency_ms"`
}

type sseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TurnStream is the SSE variant of Turn. Events: `chunk` carries partial
// text, `done` the final result, `error` a failure. A turn that fails after
// chunks were already sent still ends in an error event; the client must
// discard the partial text.
func (h *ChatHandler) TurnStream(c *gin.Context) {
	var req turnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	flusher, ok := w.(http.Flusher)
	if !ok {
		response.Error(c, errcode.ErrInternal, "streaming not supported")
		return
	}

	ctx := c.Request.Context()
	res, err := h.chat.HandleTurnStream(ctx, &service.TurnRequest{
		ChatbotID: c.Param("id"),
		SessionID: req.SessionID,
		Message:   req.Message,
		Language:  req.Language,
	}, func(delta string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		writeSSE(w, flusher, "chunk", sseChunk{Text: delta})
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			logutil.GetLogger(ctx).Info("chat stream client disconnected",
				zap.String("chatbot_id", c.Param("id")))
			return
		}
		writeSSE(w, flusher, "error", sseError{Code: streamErrorCode(err), Message: streamErrorMessage(err)})
		return
	}
	writeSSE(w, flusher, "done", sseDone{
		Response:    res.Text,
		UsedContext: res.UsedContext,
		ModelUsed:   res.ModelUsed,
		LatencyMs:   res.LatencyMs,
	})
}

// Welcome returns the chatbot greeting for widget bootstrap.
func (h *ChatHandler) Welcome(c *gin.Context) {
	message, err := h.chat.Welcome(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"welcome_message": message})
}

// Stats reports conversation aggregates for an owned chatbot.
func (h *ChatHandler) Stats(c *gin.Context) {
	stats, err := h.chat.Stats(c.Request.Context(), getCompanyID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, stats)
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, payload interface{}) {
	data, _ := json.Marshal(payload)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}

func streamErrorCode(err error) string {
	switch {
	case errors.Is(err, errs.ErrInvalid):
		return "invalid_request"
	case errors.Is(err, errs.ErrNotFound):
		return "not_found"
	case errors.Is(err, errs.ErrGenerationUnavailable):
		return "generation_unavailable"
	default:
		return "internal"
	}
}

func streamErrorMessage(err error) string {
	if errors.Is(err, errs.ErrInvalid) {
		return err.Error()
	}
	if errors.Is(err, errs.ErrGenerationUnavailable) {
		return "generation backend unavailable"
	}
	return "internal error"
}
