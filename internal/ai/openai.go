package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

type openAIConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
}

type openAIProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func init() {
	Register("openai", createOpenAIProvider)
}

func createOpenAIProvider(args interface{}) (IProvider, error) {
	cfg := &openAIConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai api_key is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &openAIProvider{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: baseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
	}, nil
}

func (p *openAIProvider) Name() string {
	return "openai"
}

type openAIChatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatRequest struct {
	Model    string          `json:"model"`
	Messages []openAIChatMsg `json:"messages"`
	Stream   bool            `json:"stream"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type openAIChatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (p *openAIProvider) Generate(ctx context.Context, model string, prompt string) (string, error) {
	body, err := p.post(ctx, "/chat/completions", openAIChatRequest{
		Model:    model,
		Messages: []openAIChatMsg{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	defer body.Close()
	var out openAIChatResponse
	if err := json.NewDecoder(body).Decode(&out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("openai response has no choices")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func (p *openAIProvider) Stream(ctx context.Context, model string, prompt string, fn func(delta string) error) (string, error) {
	body, err := p.post(ctx, "/chat/completions", openAIChatRequest{
		Model:    model,
		Messages: []openAIChatMsg{{Role: "user", Content: prompt}},
		Stream:   true,
	})
	if err != nil {
		return "", err
	}
	defer body.Close()

	var sb strings.Builder
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}
		var chunk openAIChatStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
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
	if err := scanner.Err(); err != nil {
		return sb.String(), err
	}
	return strings.TrimSpace(sb.String()), nil
}

func (p *openAIProvider) Embed(ctx context.Context, model string, texts []string, taskType string) ([][]float32, error) {
	_ = taskType // openai embedding models do not distinguish task types
	body, err := p.post(ctx, "/embeddings", openAIEmbedRequest{
		Model: model,
		Input: texts,
	})
	if err != nil {
		return nil, err
	}
	defer body.Close()
	var out openAIEmbedResponse
	if err := json.NewDecoder(body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Data) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d inputs", len(out.Data), len(texts))
	}
	vectors := make([][]float32, len(texts))
	for _, item := range out.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, fmt.Errorf("openai returned embedding with index %d out of range", item.Index)
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}

func (p *openAIProvider) post(ctx context.Context, path string, payload interface{}) (io.ReadCloser, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	endpoint := strings.TrimRight(p.baseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("openai request failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return resp.Body, nil
}
