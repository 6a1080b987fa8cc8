package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/docuchat-io/docuchat/internal/repo"
)

// ConversationRetentionJob trims the append-only conversation log past the
// configured retention window.
type ConversationRetentionJob struct {
	convs         *repo.ConversationRepo
	retentionDays int
}

func NewConversationRetentionJob(convs *repo.ConversationRepo, retentionDays int) *ConversationRetentionJob {
	return &ConversationRetentionJob{convs: convs, retentionDays: retentionDays}
}

func (j *ConversationRetentionJob) Name() string {
	return "conversation_retention"
}

func (j *ConversationRetentionJob) Run(ctx context.Context) error {
	if j.convs == nil || j.retentionDays <= 0 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -j.retentionDays).UnixMilli()
	deleted, err := j.convs.DeleteBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if deleted > 0 {
		logutil.GetLogger(ctx).Info("expired conversation turns deleted",
			zap.Int64("deleted", deleted),
			zap.Int("retention_days", j.retentionDays),
		)
	}
	return nil
}
