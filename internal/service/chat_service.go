package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/docuchat-io/docuchat/internal/model"
	"github.com/docuchat-io/docuchat/internal/orchestrate"
	"github.com/docuchat-io/docuchat/internal/pkg/errs"
	"github.com/docuchat-io/docuchat/internal/repo"
	"github.com/docuchat-io/docuchat/internal/retrieve"
)

const historyTurnLimit = 20

type ChatService struct {
	bots         *repo.ChatbotRepo
	convs        *repo.ConversationRepo
	engine       *retrieve.Engine
	orchestrator *orchestrate.Orchestrator
	timeout      time.Duration
}

func NewChatService(bots *repo.ChatbotRepo, convs *repo.ConversationRepo, engine *retrieve.Engine, orchestrator *orchestrate.Orchestrator, timeout time.Duration) *ChatService {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &ChatService{bots: bots, convs: convs, engine: engine, orchestrator: orchestrator, timeout: timeout}
}

type TurnRequest struct {
	ChatbotID string
	SessionID string
	Message   string
	Language  string
}

type TurnResponse struct {
	Text        string   `json:"text"`
	UsedContext bool     `json:"used_context"`
	ModelUsed   string   `json:"model_used"`
	LatencyMs   int64    `json:"latency_ms"`
	Sources     []Source `json:"sources,omitempty"`
}

type Source struct {
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	Ordinal    int     `json:"ordinal"`
	Score      float32 `json:"score"`
}

// HandleTurn runs one chat exchange: load the chatbot and recent session
// history, retrieve scoped context, generate, and return the answer. A
// retrieval failure degrades to a no-context answer; only generation
// failure fails the turn.
func (s *ChatService) HandleTurn(ctx context.Context, req *TurnRequest) (*TurnResponse, error) {
	return s.handle(ctx, req, nil)
}

// HandleTurnStream is HandleTurn with incremental deltas through fn.
func (s *ChatService) HandleTurnStream(ctx context.Context, req *TurnRequest, fn func(delta string) error) (*TurnResponse, error) {
	return s.handle(ctx, req, fn)
}

func (s *ChatService) handle(ctx context.Context, req *TurnRequest, fn func(delta string) error) (*TurnResponse, error) {
	if req == nil || strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("%w: empty message", errs.ErrInvalid)
	}
	if strings.TrimSpace(req.SessionID) == "" {
		return nil, fmt.Errorf("%w: session id is required", errs.ErrInvalid)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	bot, err := s.bots.Get(ctx, req.ChatbotID)
	if err != nil {
		return nil, err
	}
	history, err := s.loadHistory(ctx, bot.ID, req.SessionID)
	if err != nil {
		return nil, err
	}
	passages := s.retrievePassages(ctx, bot, req.Message)

	genReq := &orchestrate.Request{
		Bot:       bot,
		SessionID: req.SessionID,
		Message:   req.Message,
		Language:  req.Language,
		History:   history,
		Passages:  passages,
	}
	var res *orchestrate.Result
	if fn != nil {
		res, err = s.orchestrator.Stream(ctx, genReq, fn)
	} else {
		res, err = s.orchestrator.Generate(ctx, genReq)
	}
	if err != nil {
		return nil, err
	}
	return buildTurnResponse(res), nil
}

// retrievePassages never fails the turn: an unavailable embedding backend or
// vector store degrades to a no-context answer.
func (s *ChatService) retrievePassages(ctx context.Context, bot *model.Chatbot, message string) []retrieve.Passage {
	passages, err := s.engine.Retrieve(ctx, bot, message, retrieve.Options{})
	if err != nil {
		if errors.Is(err, errs.ErrInvalid) || errors.Is(err, errs.ErrScopeViolation) {
			return nil
		}
		logutil.GetLogger(ctx).Warn("retrieval degraded to no-context answer",
			zap.String("chatbot_id", bot.ID),
			zap.Error(err),
		)
		return nil
	}
	return passages
}

func (s *ChatService) loadHistory(ctx context.Context, chatbotID, sessionID string) ([]orchestrate.HistoryTurn, error) {
	turns, err := s.convs.ListSession(ctx, chatbotID, sessionID, historyTurnLimit)
	if err != nil {
		return nil, err
	}
	history := make([]orchestrate.HistoryTurn, 0, len(turns))
	for _, turn := range turns {
		history = append(history, orchestrate.HistoryTurn{
			UserMessage: turn.UserMessage,
			BotResponse: turn.BotResponse,
		})
	}
	return history, nil
}

// buildTurnResponse cites only the passages the orchestrator kept in the
// prompt; retrieval hits dropped for budget are not provenance.
func buildTurnResponse(res *orchestrate.Result) *TurnResponse {
	out := &TurnResponse{
		Text:        res.Text,
		UsedContext: res.UsedContext,
		ModelUsed:   res.ModelUsed,
		LatencyMs:   res.Latency.Milliseconds(),
	}
	for _, p := range res.Passages {
		out.Sources = append(out.Sources, Source{
			DocumentID: p.DocumentID,
			Filename:   p.Filename,
			Ordinal:    p.Ordinal,
			Score:      p.Score,
		})
	}
	return out
}

// Welcome returns the chatbot's configured greeting for a new session.
func (s *ChatService) Welcome(ctx context.Context, chatbotID string) (string, error) {
	bot, err := s.bots.Get(ctx, chatbotID)
	if err != nil {
		return "", err
	}
	return bot.WelcomeMessage, nil
}

// Stats exposes per-chatbot conversation aggregates for the owning company.
func (s *ChatService) Stats(ctx context.Context, companyID, chatbotID string) (*model.ChatbotStats, error) {
	bot, err := s.bots.Get(ctx, chatbotID)
	if err != nil {
		return nil, err
	}
	if bot.CompanyID != companyID {
		return nil, errs.ErrNotFound
	}
	return s.convs.Stats(ctx, companyID, chatbotID)
}
