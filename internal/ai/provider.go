package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// IProvider is the capability interface every model backend implements.
// Prompt assembly and retrieval never branch on the concrete provider; they
// only see this interface, selected by chatbot configuration at call time.
type IProvider interface {
	Name() string
	Generate(ctx context.Context, model string, prompt string) (string, error)
	// Stream yields partial text increments through fn and returns the full
	// accumulated text, identical to what Generate would have returned.
	Stream(ctx context.Context, model string, prompt string, fn func(delta string) error) (string, error)
	// Embed returns one fixed-dimension vector per input, order-preserving.
	Embed(ctx context.Context, model string, texts []string, taskType string) ([][]float32, error)
}

type ProviderFactory func(args interface{}) (IProvider, error)

var registry = map[string]ProviderFactory{}

func Register(name string, factory ProviderFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registry[key] = factory
}

func NewProvider(name string, args interface{}) (IProvider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("ai provider name is required")
	}
	factory := registry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported ai provider: %s", name)
	}
	return factory(args)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("ai provider config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode ai provider config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode ai provider config: %w", err)
	}
	return nil
}
