package ai

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/docuchat-io/docuchat/internal/pkg/errs"
)

type geminiConfig struct {
	APIKey string `json:"api_key"`
}

type geminiProvider struct {
	apiKey string
}

func init() {
	Register("gemini", createGeminiProvider)
}

func createGeminiProvider(args interface{}) (IProvider, error) {
	cfg := &geminiConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("gemini api_key is required")
	}
	return &geminiProvider{apiKey: strings.TrimSpace(cfg.APIKey)}, nil
}

func (p *geminiProvider) Name() string {
	return "gemini"
}

func (p *geminiProvider) client(ctx context.Context) (*genai.Client, error) {
	return genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
}

func (p *geminiProvider) Generate(ctx context.Context, model string, prompt string) (string, error) {
	client, err := p.client(ctx)
	if err != nil {
		return "", err
	}
	resp, err := client.Models.GenerateContent(
		ctx,
		model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
		nil,
	)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text()), nil
}

func (p *geminiProvider) Stream(ctx context.Context, model string, prompt string, fn func(delta string) error) (string, error) {
	client, err := p.client(ctx)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for resp, err := range client.Models.GenerateContentStream(
		ctx,
		model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
		nil,
	) {
		if err != nil {
			return sb.String(), err
		}
		delta := resp.Text()
		if delta == "" {
			continue
		}
		sb.WriteString(delta)
		if fn != nil {
			if err := fn(delta); err != nil {
				return sb.String(), err
			}
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

func (p *geminiProvider) Embed(ctx context.Context, model string, texts []string, taskType string) ([][]float32, error) {
	client, err := p.client(ctx)
	if err != nil {
		return nil, err
	}
	contents := make([]*genai.Content, 0, len(texts))
	for _, item := range texts {
		contents = append(contents, &genai.Content{Parts: []*genai.Part{{Text: item}}})
	}
	var config *genai.EmbedContentConfig
	if taskType != "" {
		config = &genai.EmbedContentConfig{TaskType: taskType}
	}
	resp, err := client.Models.EmbedContent(ctx, model, contents, config)
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d",
			errs.ErrEmbeddingUnavailable, len(texts), len(resp.Embeddings))
	}
	vectors := make([][]float32, 0, len(resp.Embeddings))
	for _, emb := range resp.Embeddings {
		vectors = append(vectors, emb.Values)
	}
	return vectors, nil
}
