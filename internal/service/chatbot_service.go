package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docuchat-io/docuchat/internal/model"
	"github.com/docuchat-io/docuchat/internal/pkg/errs"
	"github.com/docuchat-io/docuchat/internal/repo"
)

type ChatbotService struct {
	bots      *repo.ChatbotRepo
	providers []string
}

// NewChatbotService takes the names of the configured ai providers so a
// chatbot can only reference a backend the deployment actually has.
func NewChatbotService(bots *repo.ChatbotRepo, providers []string) *ChatbotService {
	return &ChatbotService{bots: bots, providers: providers}
}

func (s *ChatbotService) Create(ctx context.Context, companyID string, bot *model.Chatbot) (*model.Chatbot, error) {
	if err := s.validate(bot); err != nil {
		return nil, err
	}
	now := time.Now().UnixMilli()
	bot.ID = uuid.NewString()
	bot.CompanyID = companyID
	bot.DocumentIDs = nil
	bot.Ctime = now
	bot.Mtime = now
	if err := s.bots.Create(ctx, bot); err != nil {
		return nil, err
	}
	return bot, nil
}

func (s *ChatbotService) Update(ctx context.Context, companyID string, bot *model.Chatbot) (*model.Chatbot, error) {
	existing, err := s.Get(ctx, companyID, bot.ID)
	if err != nil {
		return nil, err
	}
	if err := s.validate(bot); err != nil {
		return nil, err
	}
	bot.CompanyID = existing.CompanyID
	bot.Ctime = existing.Ctime
	bot.Mtime = time.Now().UnixMilli()
	if err := s.bots.Update(ctx, bot); err != nil {
		return nil, err
	}
	bot.DocumentIDs = existing.DocumentIDs
	return bot, nil
}

// Get returns the chatbot only when it belongs to companyID. A foreign
// chatbot reads as not found so tenants cannot enumerate each other's ids.
func (s *ChatbotService) Get(ctx context.Context, companyID, id string) (*model.Chatbot, error) {
	bot, err := s.bots.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if bot.CompanyID != companyID {
		return nil, errs.ErrNotFound
	}
	return bot, nil
}

func (s *ChatbotService) List(ctx context.Context, companyID string) ([]*model.Chatbot, error) {
	return s.bots.ListByCompany(ctx, companyID)
}

func (s *ChatbotService) Delete(ctx context.Context, companyID, id string) error {
	return s.bots.Delete(ctx, companyID, id)
}

// SetDocuments replaces the chatbot's authorized document set. Documents
// outside the company are rejected by the repo with ErrScopeViolation.
func (s *ChatbotService) SetDocuments(ctx context.Context, companyID, chatbotID string, documentIDs []string) error {
	if _, err := s.Get(ctx, companyID, chatbotID); err != nil {
		return err
	}
	return s.bots.SetDocuments(ctx, companyID, chatbotID, documentIDs)
}

func (s *ChatbotService) validate(bot *model.Chatbot) error {
	if bot == nil || strings.TrimSpace(bot.Name) == "" {
		return fmt.Errorf("%w: chatbot name is required", errs.ErrInvalid)
	}
	if strings.TrimSpace(bot.Model) == "" {
		return fmt.Errorf("%w: model is required", errs.ErrInvalid)
	}
	if !s.knownProvider(bot.Provider) {
		return fmt.Errorf("%w: unknown provider %q", errs.ErrInvalid, bot.Provider)
	}
	if bot.TopK < 0 || bot.TopK > 50 {
		return fmt.Errorf("%w: top_k must be between 0 and 50", errs.ErrInvalid)
	}
	if bot.MinScore < 0 || bot.MinScore > 1 {
		return fmt.Errorf("%w: min_score must be between 0 and 1", errs.ErrInvalid)
	}
	return nil
}

func (s *ChatbotService) knownProvider(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, item := range s.providers {
		if strings.ToLower(item) == name {
			return true
		}
	}
	return false
}
