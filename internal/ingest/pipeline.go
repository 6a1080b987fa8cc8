package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/docuchat-io/docuchat/internal/ai"
	"github.com/docuchat-io/docuchat/internal/chunker"
	"github.com/docuchat-io/docuchat/internal/extract"
	"github.com/docuchat-io/docuchat/internal/filestore"
	"github.com/docuchat-io/docuchat/internal/model"
	"github.com/docuchat-io/docuchat/internal/pkg/errs"
	"github.com/docuchat-io/docuchat/internal/vecstore"
)

// DocumentStore is the slice of the metadata store the pipeline needs.
// Implemented by repo.DocumentRepo.
type DocumentStore interface {
	TransitionStatus(ctx context.Context, id, from, to string, mtime int64) error
	MarkFailed(ctx context.Context, id, reason string, mtime int64) error
	MarkReady(ctx context.Context, id string, charLength, chunkCount int, mtime int64) error
}

type Config struct {
	Workers    int
	TargetSize int
	Overlap    int
	Timeout    time.Duration
}

// Pipeline turns uploaded documents into retrievable vector chunks:
// extract -> chunk -> embed -> store. It is the only writer of chunks.
//
// Per-document runs are serialized: a second request for a document already
// in flight fails with errs.ErrIngestionInFlight. Documents for different
// owners ingest in parallel on the worker pool.
type Pipeline struct {
	docs     DocumentStore
	files    filestore.Store
	vectors  vecstore.Store
	embedder ai.IEmbedder
	cfg      Config

	pool *ants.Pool

	mu       sync.Mutex
	inflight map[string]struct{}

	now func() time.Time
}

func New(docs DocumentStore, files filestore.Store, vectors vecstore.Store, embedder ai.IEmbedder, cfg Config) (*Pipeline, error) {
	if docs == nil || files == nil || vectors == nil || embedder == nil {
		return nil, fmt.Errorf("ingest: all dependencies are required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.TargetSize <= 0 {
		cfg.TargetSize = 1000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		docs:     docs,
		files:    files,
		vectors:  vectors,
		embedder: embedder,
		cfg:      cfg,
		pool:     pool,
		inflight: make(map[string]struct{}),
		now:      time.Now,
	}, nil
}

func (p *Pipeline) Close() {
	p.pool.Release()
}

// Enqueue schedules an asynchronous ingestion run for doc. The in-flight slot
// is reserved here so a rejection happens before the caller returns.
func (p *Pipeline) Enqueue(doc *model.Document) error {
	if !p.acquire(doc.ID) {
		return errs.ErrIngestionInFlight
	}
	snapshot := *doc
	err := p.pool.Submit(func() {
		defer p.release(snapshot.ID)
		ctx := context.Background()
		if err := p.run(ctx, &snapshot); err != nil {
			logutil.GetLogger(ctx).Error("ingestion failed",
				zap.String("document_id", snapshot.ID),
				zap.Error(err),
			)
		}
	})
	if err != nil {
		p.release(doc.ID)
		return err
	}
	return nil
}

// Ingest runs synchronously, still honoring the per-document serialization.
func (p *Pipeline) Ingest(ctx context.Context, doc *model.Document) error {
	if !p.acquire(doc.ID) {
		return errs.ErrIngestionInFlight
	}
	defer p.release(doc.ID)
	return p.run(ctx, doc)
}

func (p *Pipeline) acquire(docID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inflight[docID]; busy {
		return false
	}
	p.inflight[docID] = struct{}{}
	return true
}

func (p *Pipeline) release(docID string) {
	p.mu.Lock()
	delete(p.inflight, docID)
	p.mu.Unlock()
}

func (p *Pipeline) run(ctx context.Context, doc *model.Document) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	logger := logutil.GetLogger(ctx).With(
		zap.String("document_id", doc.ID),
		zap.String("company_id", doc.CompanyID),
	)
	start := p.now()

	// The first transition also loses the race against a concurrent run that
	// slipped past the in-process guard (another instance, stale status).
	if err := p.transition(ctx, doc.ID, doc.Status, model.DocumentStatusExtracting); err != nil {
		if errors.Is(err, errs.ErrConflict) {
			return errs.ErrIngestionInFlight
		}
		return err
	}

	text, err := p.extractText(ctx, doc)
	if err != nil {
		return p.fail(ctx, doc, err)
	}

	if err := p.transition(ctx, doc.ID, model.DocumentStatusExtracting, model.DocumentStatusChunking); err != nil {
		return p.fail(ctx, doc, err)
	}
	pieces := chunker.Split(text, p.cfg.TargetSize, p.cfg.Overlap)
	if len(pieces) == 0 {
		return p.fail(ctx, doc, fmt.Errorf("%w: document has no extractable text", errs.ErrCorruptFile))
	}

	if err := p.transition(ctx, doc.ID, model.DocumentStatusChunking, model.DocumentStatusEmbedding); err != nil {
		return p.fail(ctx, doc, err)
	}
	texts := make([]string, len(pieces))
	for i, piece := range pieces {
		texts[i] = piece.Text
	}
	vectors, err := p.embedder.EmbedBatch(ctx, texts, ai.TaskDocument)
	if err != nil {
		return p.fail(ctx, doc, err)
	}

	if err := p.transition(ctx, doc.ID, model.DocumentStatusEmbedding, model.DocumentStatusStoring); err != nil {
		return p.fail(ctx, doc, err)
	}
	chunks := make([]*model.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = &model.Chunk{
			ID:           uuid.NewString(),
			DocumentID:   doc.ID,
			CompanyID:    doc.CompanyID,
			Ordinal:      piece.Ordinal,
			Text:         piece.Text,
			StartOffset:  piece.Start,
			EndOffset:    piece.End,
			Embedding:    vectors[i],
			ModelVersion: p.embedder.ModelVersion(),
			Metadata: map[string]string{
				"filename": doc.Filename,
				"ordinal":  strconv.Itoa(piece.Ordinal),
			},
		}
	}
	// Re-ingestion replaces the chunk set wholesale: old chunks go first so a
	// ready document never exposes a mix of versions.
	if err := p.vectors.DeleteByDocument(ctx, doc.ID); err != nil {
		return p.fail(ctx, doc, err)
	}
	if err := p.vectors.Upsert(ctx, chunks); err != nil {
		return p.fail(ctx, doc, err)
	}

	if err := p.docs.MarkReady(ctx, doc.ID, len([]rune(text)), len(chunks), p.now().UnixMilli()); err != nil {
		return p.fail(ctx, doc, err)
	}
	logger.Info("document ingested",
		zap.Int("chunks", len(chunks)),
		zap.String("model_version", p.embedder.ModelVersion()),
		zap.Duration("duration", p.now().Sub(start)),
	)
	return nil
}

func (p *Pipeline) extractText(ctx context.Context, doc *model.Document) (string, error) {
	blob, err := p.files.Open(ctx, doc.FileKey)
	if err != nil {
		return "", fmt.Errorf("open blob: %w", err)
	}
	defer blob.Close()
	data, err := io.ReadAll(blob)
	if err != nil {
		return "", fmt.Errorf("read blob: %w", err)
	}
	return extract.Extract(data, doc.FileType)
}

func (p *Pipeline) transition(ctx context.Context, id, from, to string) error {
	return p.docs.TransitionStatus(ctx, id, from, to, p.now().UnixMilli())
}

// fail marks the document failed and removes any chunks written in this run,
// so retrieval never sees a partial set. Cleanup runs on a fresh context:
// the run context may already be cancelled or past its deadline.
func (p *Pipeline) fail(ctx context.Context, doc *model.Document, cause error) error {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := p.vectors.DeleteByDocument(cleanupCtx, doc.ID); err != nil {
		logutil.GetLogger(cleanupCtx).Error("failed to roll back chunks",
			zap.String("document_id", doc.ID),
			zap.Error(err),
		)
	}
	if err := p.docs.MarkFailed(cleanupCtx, doc.ID, cause.Error(), p.now().UnixMilli()); err != nil {
		logutil.GetLogger(cleanupCtx).Error("failed to mark document failed",
			zap.String("document_id", doc.ID),
			zap.Error(err),
		)
	}
	return cause
}
