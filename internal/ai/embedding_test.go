package ai

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/docuchat-io/docuchat/internal/pkg/errs"
)

// fakeProvider records embed calls and produces deterministic vectors whose
// first component encodes the input's global index.
type fakeProvider struct {
	batches   [][]string
	dimension int
	failTimes int
	failWith  error
	calls     int
	seen      int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Generate(ctx context.Context, model, prompt string) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeProvider) Stream(ctx context.Context, model, prompt string, fn func(string) error) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeProvider) Embed(ctx context.Context, model string, texts []string, taskType string) ([][]float32, error) {
	f.calls++
	if f.failTimes > 0 {
		f.failTimes--
		return nil, f.failWith
	}
	f.batches = append(f.batches, append([]string(nil), texts...))
	dim := f.dimension
	if dim == 0 {
		dim = 4
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, dim)
		vec[0] = float32(f.seen)
		f.seen++
		out[i] = vec
	}
	return out, nil
}

func inputs(n int) []string {
	texts := make([]string, n)
	for i := range texts {
		texts[i] = fmt.Sprintf("text-%03d", i)
	}
	return texts
}

func TestEmbedBatchPreservesOrderAcrossSubBatches(t *testing.T) {
	provider := &fakeProvider{}
	emb := NewEmbedder(provider, "embed-v1", EmbedderConfig{
		MaxBatchItems: 10,
		Retry:         fastRetry(1),
	})
	vectors, err := emb.EmbedBatch(context.Background(), inputs(25), TaskDocument)
	require.NoError(t, err)
	require.Len(t, vectors, 25)
	require.Len(t, provider.batches, 3)
	for i, vec := range vectors {
		require.Equal(t, float32(i), vec[0], "vector %d out of order", i)
	}
}

func TestEmbedBatchCapsByBytes(t *testing.T) {
	provider := &fakeProvider{}
	emb := NewEmbedder(provider, "embed-v1", EmbedderConfig{
		MaxBatchItems: 100,
		MaxBatchBytes: 20, // each input is 8 bytes
		Retry:         fastRetry(1),
	})
	_, err := emb.EmbedBatch(context.Background(), inputs(6), TaskDocument)
	require.NoError(t, err)
	for _, batch := range provider.batches {
		require.LessOrEqual(t, len(batch), 3)
	}
}

func TestEmbedBatchRetriesThenSucceeds(t *testing.T) {
	provider := &fakeProvider{failTimes: 2, failWith: errors.New("429 rate limited")}
	emb := NewEmbedder(provider, "embed-v1", EmbedderConfig{Retry: fastRetry(3)})
	vectors, err := emb.EmbedBatch(context.Background(), inputs(3), TaskQuery)
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	require.Equal(t, 3, provider.calls)
}

func TestEmbedBatchSurfacesUnavailableAfterExhaustion(t *testing.T) {
	provider := &fakeProvider{failTimes: 99, failWith: errors.New("503 unavailable")}
	emb := NewEmbedder(provider, "embed-v1", EmbedderConfig{Retry: fastRetry(3)})
	_, err := emb.EmbedBatch(context.Background(), inputs(3), TaskDocument)
	require.ErrorIs(t, err, errs.ErrEmbeddingUnavailable)
	require.Equal(t, 3, provider.calls)
}

func TestEmbedBatchEmptyInput(t *testing.T) {
	provider := &fakeProvider{}
	emb := NewEmbedder(provider, "embed-v1", EmbedderConfig{})
	vectors, err := emb.EmbedBatch(context.Background(), nil, TaskDocument)
	require.NoError(t, err)
	require.Nil(t, vectors)
	require.Zero(t, provider.calls)
}

func TestEmbedderModelVersion(t *testing.T) {
	emb := NewEmbedder(&fakeProvider{}, "embed-v1", EmbedderConfig{})
	require.Equal(t, "fake/embed-v1", emb.ModelVersion())
}
