package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/docuchat-io/docuchat/internal/repo"
	"github.com/docuchat-io/docuchat/internal/vecstore"
)

const stuckBatchSize = 50

// StuckIngestionJob reaps documents abandoned mid-ingestion, e.g. after a
// process crash between status transitions. They are marked failed and any
// partial chunks removed, so re-ingest stays available to the owner.
type StuckIngestionJob struct {
	docs       *repo.DocumentRepo
	vectors    vecstore.Store
	stuckAfter time.Duration
}

func NewStuckIngestionJob(docs *repo.DocumentRepo, vectors vecstore.Store, stuckAfter time.Duration) *StuckIngestionJob {
	return &StuckIngestionJob{docs: docs, vectors: vectors, stuckAfter: stuckAfter}
}

func (j *StuckIngestionJob) Name() string {
	return "stuck_ingestion_reaper"
}

func (j *StuckIngestionJob) Run(ctx context.Context) error {
	if j.docs == nil || j.stuckAfter <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-j.stuckAfter).UnixMilli()
	docs, err := j.docs.ListStuck(ctx, cutoff, stuckBatchSize)
	if err != nil {
		return err
	}
	logger := logutil.GetLogger(ctx)
	for _, doc := range docs {
		if j.vectors != nil {
			if err := j.vectors.DeleteByDocument(ctx, doc.ID); err != nil {
				logger.Error("failed to drop partial chunks for stuck document",
					zap.String("document_id", doc.ID), zap.Error(err))
				continue
			}
		}
		if err := j.docs.MarkFailed(ctx, doc.ID, "ingestion timed out", time.Now().UnixMilli()); err != nil {
			logger.Error("failed to mark stuck document failed",
				zap.String("document_id", doc.ID), zap.Error(err))
			continue
		}
		logger.Warn("stuck document reaped",
			zap.String("document_id", doc.ID),
			zap.String("status", doc.Status),
		)
	}
	return nil
}
