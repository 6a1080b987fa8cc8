package ai

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/docuchat-io/docuchat/internal/pkg/errs"
)

// Task types forwarded to providers that distinguish document and query
// embeddings. Both sides of retrieval must live in the same vector space, so
// ingestion uses TaskDocument and retrieval uses TaskQuery against the same
// model version.
const (
	TaskDocument = "RETRIEVAL_DOCUMENT"
	TaskQuery    = "RETRIEVAL_QUERY"
)

// IEmbedder converts batches of text into fixed-dimension vectors.
type IEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error)
	ModelVersion() string
}

type EmbedderConfig struct {
	MaxBatchItems int
	MaxBatchBytes int
	Retry         RetryConfig
	RatePerSecond float64
}

type embedder struct {
	provider IProvider
	model    string
	cfg      EmbedderConfig
	limiter  *rate.Limiter
}

// NewEmbedder binds a provider and embedding model into an IEmbedder that
// sub-batches oversized inputs and retries transient failures. Exhausted
// retries surface errs.ErrEmbeddingUnavailable, which callers must treat as
// fatal to their unit of work.
func NewEmbedder(provider IProvider, model string, cfg EmbedderConfig) IEmbedder {
	if cfg.MaxBatchItems <= 0 {
		cfg.MaxBatchItems = 64
	}
	if cfg.MaxBatchBytes <= 0 {
		cfg.MaxBatchBytes = 512 * 1024
	}
	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	return &embedder{provider: provider, model: model, cfg: cfg, limiter: limiter}
}

func (e *embedder) ModelVersion() string {
	return fmt.Sprintf("%s/%s", e.provider.Name(), e.model)
}

func (e *embedder) EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	result := make([][]float32, 0, len(texts))
	dimension := 0
	for start := 0; start < len(texts); {
		end := e.batchEnd(texts, start)
		batch := texts[start:end]
		var vectors [][]float32
		err := doWithRetry(ctx, e.limiter, e.cfg.Retry, func() error {
			var embedErr error
			vectors, embedErr = e.provider.Embed(ctx, e.model, batch, taskType)
			return embedErr
		})
		if err != nil {
			logutil.GetLogger(ctx).Error("embedding batch failed after retries",
				zap.String("model", e.ModelVersion()),
				zap.Int("batch_size", len(batch)),
				zap.Error(err),
			)
			return nil, fmt.Errorf("%w: %v", errs.ErrEmbeddingUnavailable, err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("%w: provider returned %d vectors for %d inputs",
				errs.ErrEmbeddingUnavailable, len(vectors), len(batch))
		}
		for _, vec := range vectors {
			if len(vec) == 0 {
				return nil, fmt.Errorf("%w: provider returned empty vector", errs.ErrEmbeddingUnavailable)
			}
			if dimension == 0 {
				dimension = len(vec)
			} else if len(vec) != dimension {
				return nil, fmt.Errorf("%w: got %d and %d within one call",
					errs.ErrDimensionMismatch, dimension, len(vec))
			}
			result = append(result, vec)
		}
		start = end
	}
	return result, nil
}

// batchEnd finds the end of the sub-batch starting at start, capped by both
// item count and total byte size. A single oversized text still goes through
// alone rather than being dropped.
func (e *embedder) batchEnd(texts []string, start int) int {
	end := start
	bytes := 0
	for end < len(texts) && end-start < e.cfg.MaxBatchItems {
		bytes += len(texts[end])
		if end > start && bytes > e.cfg.MaxBatchBytes {
			break
		}
		end++
	}
	if end == start {
		end = start + 1
	}
	return end
}
