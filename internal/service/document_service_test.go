package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/docuchat-io/docuchat/internal/config"
	"github.com/docuchat-io/docuchat/internal/filestore"
	"github.com/docuchat-io/docuchat/internal/ingest"
	"github.com/docuchat-io/docuchat/internal/model"
	"github.com/docuchat-io/docuchat/internal/pkg/errs"
	"github.com/docuchat-io/docuchat/internal/vecstore"
)

// memDocStore backs both the service metadata interface and the pipeline's
// status transitions, standing in for DocumentRepo on one Postgres table.
type memDocStore struct {
	mu   sync.Mutex
	docs map[string]*model.Document
}

func newMemDocStore() *memDocStore {
	return &memDocStore{docs: make(map[string]*model.Document)}
}

func (m *memDocStore) Create(ctx context.Context, doc *model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *doc
	m.docs[doc.ID] = &clone
	return nil
}

func (m *memDocStore) Get(ctx context.Context, companyID, id string) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok || doc.CompanyID != companyID {
		return nil, errs.ErrNotFound
	}
	clone := *doc
	return &clone, nil
}

func (m *memDocStore) ListByCompany(ctx context.Context, companyID string) ([]*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Document
	for _, doc := range m.docs {
		if doc.CompanyID == companyID {
			clone := *doc
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (m *memDocStore) Delete(ctx context.Context, companyID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok || doc.CompanyID != companyID {
		return errs.ErrNotFound
	}
	delete(m.docs, id)
	return nil
}

func (m *memDocStore) TransitionStatus(ctx context.Context, id, from, to string, mtime int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok || doc.Status != from {
		return errs.ErrConflict
	}
	doc.Status = to
	doc.Mtime = mtime
	return nil
}

func (m *memDocStore) MarkFailed(ctx context.Context, id, reason string, mtime int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return errs.ErrNotFound
	}
	doc.Status = model.DocumentStatusFailed
	doc.FailReason = reason
	doc.ChunkCount = 0
	doc.Mtime = mtime
	return nil
}

func (m *memDocStore) MarkReady(ctx context.Context, id string, charLength, chunkCount int, mtime int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok || doc.Status != model.DocumentStatusStoring {
		return errs.ErrConflict
	}
	doc.Status = model.DocumentStatusReady
	doc.CharLength = charLength
	doc.ChunkCount = chunkCount
	doc.Mtime = mtime
	return nil
}

type staticEmbedder struct{}

func (staticEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), 1, 1}
	}
	return out, nil
}

func (staticEmbedder) ModelVersion() string { return "fake/embed-v1" }

func newDocumentServiceForTest(t *testing.T) (*DocumentService, *memDocStore, filestore.Store, vecstore.Store) {
	t.Helper()
	docs := newMemDocStore()
	files, err := filestore.New(config.FileStoreConfig{
		Type: "local",
		Data: map[string]interface{}{"dir": t.TempDir()},
	})
	require.NoError(t, err)
	vectors := vecstore.NewMemoryStore()
	pipeline, err := ingest.New(docs, files, vectors, staticEmbedder{}, ingest.Config{
		Workers:    2,
		TargetSize: 200,
		Overlap:    20,
		Timeout:    10 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(pipeline.Close)
	return NewDocumentService(docs, files, vectors, pipeline), docs, files, vectors
}

func waitReady(t *testing.T, svc *DocumentService, companyID, id string) *model.Document {
	t.Helper()
	var doc *model.Document
	require.Eventually(t, func() bool {
		got, err := svc.Get(context.Background(), companyID, id)
		if err != nil {
			return false
		}
		doc = got
		return doc.Status == model.DocumentStatusReady
	}, 5*time.Second, 10*time.Millisecond)
	return doc
}

func TestUploadIngestsEndToEnd(t *testing.T) {
	ctx := context.Background()
	svc, _, files, vectors := newDocumentServiceForTest(t)

	content := strings.Repeat("Widgets spin clockwise unless oiled. ", 40)
	doc, err := svc.Upload(ctx, "company-1", "manual.txt", int64(len(content)), strings.NewReader(content))
	require.NoError(t, err)
	require.Equal(t, model.DocumentStatusPending, doc.Status)
	require.Equal(t, "company-1/"+doc.ID+".txt", doc.FileKey)

	// the stored blob must be readable back through the same key
	blob, err := files.Open(ctx, doc.FileKey)
	require.NoError(t, err)
	require.NoError(t, blob.Close())

	ready := waitReady(t, svc, "company-1", doc.ID)
	require.Greater(t, ready.ChunkCount, 1)
	stored, err := vectors.CountByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, ready.ChunkCount, stored)
}

func TestUploadRejectsUnsupportedExtension(t *testing.T) {
	svc, _, _, _ := newDocumentServiceForTest(t)
	_, err := svc.Upload(context.Background(), "company-1", "binary.exe", 10, strings.NewReader("0123456789"))
	require.ErrorIs(t, err, errs.ErrUnsupportedFormat)
}

func TestReingestReplacesStoredChunks(t *testing.T) {
	ctx := context.Background()
	svc, _, files, vectors := newDocumentServiceForTest(t)

	content := strings.Repeat("first version of the manual. ", 30)
	doc, err := svc.Upload(ctx, "company-1", "manual.txt", int64(len(content)), strings.NewReader(content))
	require.NoError(t, err)
	ready := waitReady(t, svc, "company-1", doc.ID)
	firstCount := ready.ChunkCount

	updated := strings.Repeat("a completely rewritten second edition of the manual. ", 50)
	require.NoError(t, files.Save(ctx, doc.FileKey, strings.NewReader(updated), int64(len(updated))))
	_, err = svc.Reingest(ctx, "company-1", doc.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := svc.Get(ctx, "company-1", doc.ID)
		return err == nil && got.Status == model.DocumentStatusReady && got.ChunkCount != firstCount
	}, 5*time.Second, 10*time.Millisecond)

	got, err := svc.Get(ctx, "company-1", doc.ID)
	require.NoError(t, err)
	stored, err := vectors.CountByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, got.ChunkCount, stored)
}

func TestDeleteRemovesChunksAndBlob(t *testing.T) {
	ctx := context.Background()
	svc, _, files, vectors := newDocumentServiceForTest(t)

	content := strings.Repeat("text to be deleted later. ", 30)
	doc, err := svc.Upload(ctx, "company-1", "old.txt", int64(len(content)), strings.NewReader(content))
	require.NoError(t, err)
	waitReady(t, svc, "company-1", doc.ID)

	require.NoError(t, svc.Delete(ctx, "company-1", doc.ID))

	_, err = svc.Get(ctx, "company-1", doc.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)
	count, err := vectors.CountByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Zero(t, count)
	_, err = files.Open(ctx, doc.FileKey)
	require.Error(t, err)
}

func TestUploadScopesAcrossTenants(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newDocumentServiceForTest(t)

	content := strings.Repeat("tenant one data. ", 30)
	doc, err := svc.Upload(ctx, "company-1", "data.txt", int64(len(content)), strings.NewReader(content))
	require.NoError(t, err)
	waitReady(t, svc, "company-1", doc.ID)

	_, err = svc.Get(ctx, "company-2", doc.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.ErrorIs(t, svc.Delete(ctx, "company-2", doc.ID), errs.ErrNotFound)
}
