package orchestrate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/docuchat-io/docuchat/internal/ai"
	"github.com/docuchat-io/docuchat/internal/model"
	"github.com/docuchat-io/docuchat/internal/pkg/errs"
	"github.com/docuchat-io/docuchat/internal/retrieve"
)

// ConversationStore records finished turns. Implemented by repo.ConversationRepo.
type ConversationStore interface {
	Append(ctx context.Context, turn *model.ConversationTurn) error
}

// ProviderSet resolves a provider by name. Implemented by the ai registry
// wiring in main; tests supply a map.
type ProviderSet interface {
	Provider(name string) (ai.IProvider, bool)
}

type ProviderMap map[string]ai.IProvider

func (m ProviderMap) Provider(name string) (ai.IProvider, bool) {
	p, ok := m[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

type Config struct {
	PromptBudget  int
	HistoryBudget int
	Timeout       time.Duration
}

type Request struct {
	Bot       *model.Chatbot
	SessionID string
	Message   string
	Language  string
	History   []HistoryTurn
	Passages  []retrieve.Passage
}

// Result carries the answer plus the passages that survived prompt budgeting;
// provenance shown to the user must come from Passages, not from the full
// retrieval set.
type Result struct {
	Text        string
	UsedContext bool
	Passages    []retrieve.Passage
	ModelUsed   string
	Latency     time.Duration
}

// Orchestrator turns a chat request plus retrieved passages into a model
// response. Provider failures get one retry on the same model, then the
// configured fallback; after that the turn fails with
// errs.ErrGenerationUnavailable rather than a fabricated answer.
type Orchestrator struct {
	providers ProviderSet
	convs     ConversationStore
	cfg       Config
	now       func() time.Time
}

func New(providers ProviderSet, convs ConversationStore, cfg Config) (*Orchestrator, error) {
	if providers == nil {
		return nil, fmt.Errorf("orchestrate: provider set is required")
	}
	if cfg.PromptBudget <= 0 {
		cfg.PromptBudget = 12000
	}
	if cfg.HistoryBudget <= 0 {
		cfg.HistoryBudget = 4000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	return &Orchestrator{
		providers: providers,
		convs:     convs,
		cfg:       cfg,
		now:       time.Now,
	}, nil
}

func (o *Orchestrator) Generate(ctx context.Context, req *Request) (*Result, error) {
	return o.run(ctx, req, nil)
}

// Stream behaves like Generate but forwards partial text through fn as it
// arrives. The final Result carries the same text and metadata Generate
// would have produced for the same inputs.
func (o *Orchestrator) Stream(ctx context.Context, req *Request, fn func(delta string) error) (*Result, error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: stream callback is required", errs.ErrInvalid)
	}
	return o.run(ctx, req, fn)
}

func (o *Orchestrator) run(ctx context.Context, req *Request, fn func(delta string) error) (*Result, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	prompt, kept := buildPrompt(promptInput{
		SystemPrompt: req.Bot.SystemPrompt,
		Language:     req.Language,
		Passages:     req.Passages,
		History:      req.History,
		UserMessage:  req.Message,
	}, o.cfg.PromptBudget, o.cfg.HistoryBudget)

	start := o.now()
	text, modelUsed, err := o.dispatch(ctx, req.Bot, prompt, fn)
	if err != nil {
		return nil, err
	}
	res := &Result{
		Text:        text,
		UsedContext: len(kept) > 0,
		Passages:    kept,
		ModelUsed:   modelUsed,
		Latency:     o.now().Sub(start),
	}
	o.record(ctx, req, res)
	return res, nil
}

// dispatch tries the chatbot's model twice, then the fallback twice. A
// streaming attempt that already emitted partial text is not retried: the
// caller has seen output and a restart would duplicate it.
func (o *Orchestrator) dispatch(ctx context.Context, bot *model.Chatbot, prompt string, fn func(delta string) error) (string, string, error) {
	targets := dispatchTargets(bot)
	var lastErr error
	for _, target := range targets {
		provider, ok := o.providers.Provider(target.provider)
		if !ok {
			lastErr = fmt.Errorf("unknown provider %q", target.provider)
			continue
		}
		for attempt := 0; attempt < 2; attempt++ {
			if err := ctx.Err(); err != nil {
				return "", "", fmt.Errorf("%w: %v", errs.ErrGenerationUnavailable, err)
			}
			emitted := false
			var text string
			var err error
			if fn == nil {
				text, err = provider.Generate(ctx, target.model, prompt)
			} else {
				text, err = provider.Stream(ctx, target.model, prompt, func(delta string) error {
					emitted = true
					return fn(delta)
				})
			}
			if err == nil {
				return text, target.provider + "/" + target.model, nil
			}
			lastErr = err
			logutil.GetLogger(ctx).Warn("generation attempt failed",
				zap.String("provider", target.provider),
				zap.String("model", target.model),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			if emitted {
				return "", "", fmt.Errorf("%w: stream interrupted: %v", errs.ErrGenerationUnavailable, err)
			}
		}
	}
	return "", "", fmt.Errorf("%w: %v", errs.ErrGenerationUnavailable, lastErr)
}

type dispatchTarget struct {
	provider string
	model    string
}

// dispatchTargets resolves the primary and fallback targets. A fallback of
// the form "provider/model" switches provider; a bare model name stays on
// the chatbot's provider.
func dispatchTargets(bot *model.Chatbot) []dispatchTarget {
	targets := []dispatchTarget{{provider: bot.Provider, model: bot.Model}}
	fallback := strings.TrimSpace(bot.FallbackModel)
	if fallback == "" {
		return targets
	}
	if provider, name, found := strings.Cut(fallback, "/"); found {
		return append(targets, dispatchTarget{provider: provider, model: name})
	}
	return append(targets, dispatchTarget{provider: bot.Provider, model: fallback})
}

// record appends the turn to the conversation log. Logging failure here must
// not fail a turn the user already received.
func (o *Orchestrator) record(ctx context.Context, req *Request, res *Result) {
	if o.convs == nil {
		return
	}
	turn := &model.ConversationTurn{
		ID:          uuid.NewString(),
		SessionID:   req.SessionID,
		ChatbotID:   req.Bot.ID,
		CompanyID:   req.Bot.CompanyID,
		UserMessage: req.Message,
		BotResponse: res.Text,
		Language:    req.Language,
		UsedContext: res.UsedContext,
		ModelUsed:   res.ModelUsed,
		LatencyMs:   res.Latency.Milliseconds(),
		Ctime:       o.now().UnixMilli(),
	}
	if err := o.convs.Append(context.WithoutCancel(ctx), turn); err != nil {
		logutil.GetLogger(ctx).Error("failed to record conversation turn",
			zap.String("chatbot_id", req.Bot.ID),
			zap.String("session_id", req.SessionID),
			zap.Error(err),
		)
	}
}

func validateRequest(req *Request) error {
	if req == nil || req.Bot == nil {
		return fmt.Errorf("%w: chatbot is required", errs.ErrInvalid)
	}
	if strings.TrimSpace(req.Message) == "" {
		return fmt.Errorf("%w: empty message", errs.ErrInvalid)
	}
	if req.Bot.Provider == "" || req.Bot.Model == "" {
		return fmt.Errorf("%w: chatbot has no model configured", errs.ErrInvalid)
	}
	if req.Language != "" && !req.Bot.SupportsLanguage(req.Language) {
		return fmt.Errorf("%w: language %s not supported by chatbot", errs.ErrInvalid, req.Language)
	}
	return nil
}
