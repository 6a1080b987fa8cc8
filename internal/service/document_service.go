package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/docuchat-io/docuchat/internal/extract"
	"github.com/docuchat-io/docuchat/internal/filestore"
	"github.com/docuchat-io/docuchat/internal/ingest"
	"github.com/docuchat-io/docuchat/internal/model"
	"github.com/docuchat-io/docuchat/internal/pkg/errs"
	"github.com/docuchat-io/docuchat/internal/vecstore"
)

const maxUploadBytes = 32 << 20

// DocumentMetaStore is the slice of the metadata store the service needs.
// Implemented by repo.DocumentRepo.
type DocumentMetaStore interface {
	Create(ctx context.Context, doc *model.Document) error
	Get(ctx context.Context, companyID, id string) (*model.Document, error)
	ListByCompany(ctx context.Context, companyID string) ([]*model.Document, error)
	Delete(ctx context.Context, companyID, id string) error
}

type DocumentService struct {
	docs     DocumentMetaStore
	files    filestore.Store
	vectors  vecstore.Store
	pipeline *ingest.Pipeline
}

func NewDocumentService(docs DocumentMetaStore, files filestore.Store, vectors vecstore.Store, pipeline *ingest.Pipeline) *DocumentService {
	return &DocumentService{docs: docs, files: files, vectors: vectors, pipeline: pipeline}
}

// Upload stores the raw file, creates the metadata row in `pending` and
// schedules asynchronous ingestion. The caller gets the document back
// immediately; status is polled through List/Get.
func (s *DocumentService) Upload(ctx context.Context, companyID, filename string, size int64, r io.Reader) (*model.Document, error) {
	filename = filepath.Base(strings.TrimSpace(filename))
	if filename == "" || filename == "." {
		return nil, fmt.Errorf("%w: filename is required", errs.ErrInvalid)
	}
	if size <= 0 || size > maxUploadBytes {
		return nil, fmt.Errorf("%w: file size must be between 1 byte and %d bytes", errs.ErrInvalid, maxUploadBytes)
	}
	fileType := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if !extract.Supported(fileType) {
		return nil, fmt.Errorf("%w: file type %q", errs.ErrUnsupportedFormat, fileType)
	}

	now := time.Now().UnixMilli()
	doc := &model.Document{
		ID:        uuid.NewString(),
		CompanyID: companyID,
		Filename:  filename,
		FileType:  fileType,
		ByteSize:  size,
		Status:    model.DocumentStatusPending,
		Ctime:     now,
		Mtime:     now,
	}
	doc.FileKey = companyID + "/" + doc.ID + "." + fileType
	if err := s.files.Save(ctx, doc.FileKey, io.LimitReader(r, maxUploadBytes), size); err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		if delErr := s.files.Delete(ctx, doc.FileKey); delErr != nil {
			logutil.GetLogger(ctx).Error("failed to clean up orphaned upload",
				zap.String("file_key", doc.FileKey), zap.Error(delErr))
		}
		return nil, err
	}
	if err := s.pipeline.Enqueue(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Reingest re-runs the pipeline for a document that already has a stored
// file, replacing its chunk set. Only settled documents can be re-ingested.
func (s *DocumentService) Reingest(ctx context.Context, companyID, id string) (*model.Document, error) {
	doc, err := s.docs.Get(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if !model.TerminalStatus(doc.Status) {
		return nil, errs.ErrIngestionInFlight
	}
	if err := s.pipeline.Enqueue(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *DocumentService) Get(ctx context.Context, companyID, id string) (*model.Document, error) {
	return s.docs.Get(ctx, companyID, id)
}

func (s *DocumentService) List(ctx context.Context, companyID string) ([]*model.Document, error) {
	return s.docs.ListByCompany(ctx, companyID)
}

// Delete removes chunks first so retrieval goes dark before the metadata row
// disappears, then the blob. A document mid-ingestion cannot be deleted.
func (s *DocumentService) Delete(ctx context.Context, companyID, id string) error {
	doc, err := s.docs.Get(ctx, companyID, id)
	if err != nil {
		return err
	}
	if !model.TerminalStatus(doc.Status) {
		return errs.ErrIngestionInFlight
	}
	if err := s.vectors.DeleteByDocument(ctx, doc.ID); err != nil {
		return err
	}
	if err := s.docs.Delete(ctx, companyID, doc.ID); err != nil {
		return err
	}
	if err := s.files.Delete(ctx, doc.FileKey); err != nil {
		logutil.GetLogger(ctx).Error("failed to delete blob",
			zap.String("file_key", doc.FileKey), zap.Error(err))
	}
	return nil
}
