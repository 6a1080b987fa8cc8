package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/docuchat-io/docuchat/internal/ai"
	"github.com/docuchat-io/docuchat/internal/model"
	"github.com/docuchat-io/docuchat/internal/pkg/errs"
	"github.com/docuchat-io/docuchat/internal/vecstore"
)

type fakeDocs struct {
	mu         sync.Mutex
	status     map[string]string
	failReason map[string]string
	chunkCount map[string]int
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{
		status:     make(map[string]string),
		failReason: make(map[string]string),
		chunkCount: make(map[string]int),
	}
}

func (f *fakeDocs) TransitionStatus(ctx context.Context, id, from, to string, mtime int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status[id] != from {
		return errs.ErrConflict
	}
	f.status[id] = to
	return nil
}

func (f *fakeDocs) MarkFailed(ctx context.Context, id, reason string, mtime int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[id] = model.DocumentStatusFailed
	f.failReason[id] = reason
	f.chunkCount[id] = 0
	return nil
}

func (f *fakeDocs) MarkReady(ctx context.Context, id string, charLength, chunkCount int, mtime int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status[id] != model.DocumentStatusStoring {
		return errs.ErrConflict
	}
	f.status[id] = model.DocumentStatusReady
	f.chunkCount[id] = chunkCount
	return nil
}

func (f *fakeDocs) get(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status[id]
}

type fakeFiles struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{blobs: make(map[string][]byte)}
}

func (f *fakeFiles) Save(ctx context.Context, key string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.blobs[key] = data
	f.mu.Unlock()
	return nil
}

func (f *fakeFiles) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	data, ok := f.blobs[key]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("blob %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeFiles) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	delete(f.blobs, key)
	f.mu.Unlock()
	return nil
}

// fakeEmbedder hashes each text into a small deterministic vector. gate, when
// set, blocks EmbedBatch until released so tests can hold a run in flight.
type fakeEmbedder struct {
	err     error
	started chan struct{}
	gate    chan struct{}
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if f.started != nil {
		close(f.started)
		f.started = nil
	}
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		var sum float32
		for _, r := range text {
			sum += float32(r % 13)
		}
		out[i] = []float32{sum + 1, float32(len(text)), 1}
	}
	return out, nil
}

func (f *fakeEmbedder) ModelVersion() string { return "fake/embed-v1" }

func newTestPipeline(t *testing.T, docs *fakeDocs, files *fakeFiles, store vecstore.Store, embedder ai.IEmbedder) *Pipeline {
	t.Helper()
	p, err := New(docs, files, store, embedder, Config{
		Workers:    2,
		TargetSize: 200,
		Overlap:    20,
		Timeout:    10 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func seedDocument(t *testing.T, docs *fakeDocs, files *fakeFiles, id, content string) *model.Document {
	t.Helper()
	require.NoError(t, files.Save(context.Background(), id+".txt", strings.NewReader(content), int64(len(content))))
	docs.mu.Lock()
	docs.status[id] = model.DocumentStatusPending
	docs.mu.Unlock()
	return &model.Document{
		ID:        id,
		CompanyID: "company-a",
		Filename:  id + ".txt",
		FileType:  "txt",
		FileKey:   id + ".txt",
		Status:    model.DocumentStatusPending,
	}
}

func TestIngestHappyPath(t *testing.T) {
	docs := newFakeDocs()
	files := newFakeFiles()
	store := vecstore.NewMemoryStore()
	p := newTestPipeline(t, docs, files, store, &fakeEmbedder{})

	content := strings.Repeat("All work and no play makes a dull day. ", 40)
	doc := seedDocument(t, docs, files, "doc-1", content)
	require.NoError(t, p.Ingest(context.Background(), doc))

	require.Equal(t, model.DocumentStatusReady, docs.get("doc-1"))
	stored, err := store.CountByDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Equal(t, docs.chunkCount["doc-1"], stored)
	require.Greater(t, stored, 1)
}

func TestIngestEmbeddingFailureLeavesNoChunks(t *testing.T) {
	docs := newFakeDocs()
	files := newFakeFiles()
	store := vecstore.NewMemoryStore()
	embedErr := fmt.Errorf("%w: provider down", errs.ErrEmbeddingUnavailable)
	p := newTestPipeline(t, docs, files, store, &fakeEmbedder{err: embedErr})

	doc := seedDocument(t, docs, files, "doc-1", strings.Repeat("text to embed. ", 50))
	err := p.Ingest(context.Background(), doc)
	require.ErrorIs(t, err, errs.ErrEmbeddingUnavailable)

	require.Equal(t, model.DocumentStatusFailed, docs.get("doc-1"))
	count, err := store.CountByDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Zero(t, count, "failed ingestion must leave zero chunks")
}

func TestIngestUnsupportedFormatFailsFast(t *testing.T) {
	docs := newFakeDocs()
	files := newFakeFiles()
	store := vecstore.NewMemoryStore()
	p := newTestPipeline(t, docs, files, store, &fakeEmbedder{})

	doc := seedDocument(t, docs, files, "doc-1", "binary stuff")
	doc.FileType = "exe"
	err := p.Ingest(context.Background(), doc)
	require.ErrorIs(t, err, errs.ErrUnsupportedFormat)
	require.Equal(t, model.DocumentStatusFailed, docs.get("doc-1"))
}

func TestIngestSecondRunRejectedWhileInFlight(t *testing.T) {
	docs := newFakeDocs()
	files := newFakeFiles()
	store := vecstore.NewMemoryStore()
	embedder := &fakeEmbedder{
		started: make(chan struct{}),
		gate:    make(chan struct{}),
	}
	started := embedder.started
	p := newTestPipeline(t, docs, files, store, embedder)

	doc := seedDocument(t, docs, files, "doc-1", strings.Repeat("slow embed content. ", 30))
	done := make(chan error, 1)
	go func() {
		done <- p.Ingest(context.Background(), doc)
	}()
	<-started

	second := *doc
	require.ErrorIs(t, p.Ingest(context.Background(), &second), errs.ErrIngestionInFlight)

	close(embedder.gate)
	require.NoError(t, <-done)
}

func TestReingestReplacesChunkSet(t *testing.T) {
	ctx := context.Background()
	docs := newFakeDocs()
	files := newFakeFiles()
	store := vecstore.NewMemoryStore()
	p := newTestPipeline(t, docs, files, store, &fakeEmbedder{})

	doc := seedDocument(t, docs, files, "doc-1", strings.Repeat("version one text. ", 40))
	require.NoError(t, p.Ingest(ctx, doc))
	firstCount, err := store.CountByDocument(ctx, "doc-1")
	require.NoError(t, err)

	newContent := strings.Repeat("completely different second version. ", 60)
	require.NoError(t, files.Save(ctx, "doc-1.txt", strings.NewReader(newContent), int64(len(newContent))))
	doc.Status = model.DocumentStatusReady
	require.NoError(t, p.Ingest(ctx, doc))

	secondCount, err := store.CountByDocument(ctx, "doc-1")
	require.NoError(t, err)
	require.Equal(t, docs.chunkCount["doc-1"], secondCount)
	require.NotEqual(t, firstCount, secondCount)

	scope := vecstore.Scope{CompanyID: "company-a", DocumentIDs: []string{"doc-1"}, ModelVersion: "fake/embed-v1"}
	results, err := store.Search(ctx, scope, []float32{1, 1, 1}, 100, -1)
	require.NoError(t, err)
	for _, item := range results {
		require.Contains(t, item.Text, "second version")
	}
}

func TestEnqueueRunsAsynchronously(t *testing.T) {
	docs := newFakeDocs()
	files := newFakeFiles()
	store := vecstore.NewMemoryStore()
	p := newTestPipeline(t, docs, files, store, &fakeEmbedder{})

	doc := seedDocument(t, docs, files, "doc-1", strings.Repeat("async ingestion text. ", 40))
	require.NoError(t, p.Enqueue(doc))

	require.Eventually(t, func() bool {
		return docs.get("doc-1") == model.DocumentStatusReady
	}, 5*time.Second, 10*time.Millisecond)
}

func TestIngestStatusRaceLosesCleanly(t *testing.T) {
	docs := newFakeDocs()
	files := newFakeFiles()
	store := vecstore.NewMemoryStore()
	p := newTestPipeline(t, docs, files, store, &fakeEmbedder{})

	doc := seedDocument(t, docs, files, "doc-1", "some text")
	// another instance already moved the document out of pending
	docs.mu.Lock()
	docs.status["doc-1"] = model.DocumentStatusEmbedding
	docs.mu.Unlock()

	err := p.Ingest(context.Background(), doc)
	require.True(t, errors.Is(err, errs.ErrIngestionInFlight))
	// the losing run must not clobber the winner's status
	require.Equal(t, model.DocumentStatusEmbedding, docs.get("doc-1"))
}
