package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/docuchat-io/docuchat/internal/model"
	"github.com/docuchat-io/docuchat/internal/pkg/dbutil"
	"github.com/docuchat-io/docuchat/internal/pkg/errs"
)

var documentColumns = []string{
	"id", "company_id", "filename", "file_type", "file_key",
	"byte_size", "char_length", "chunk_count", "status", "fail_reason",
	"ctime", "mtime",
}

type DocumentRepo struct {
	db *sql.DB
}

func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

func (r *DocumentRepo) Create(ctx context.Context, doc *model.Document) error {
	data := map[string]interface{}{
		"id":          doc.ID,
		"company_id":  doc.CompanyID,
		"filename":    doc.Filename,
		"file_type":   doc.FileType,
		"file_key":    doc.FileKey,
		"byte_size":   doc.ByteSize,
		"char_length": doc.CharLength,
		"chunk_count": doc.ChunkCount,
		"status":      doc.Status,
		"fail_reason": doc.FailReason,
		"ctime":       doc.Ctime,
		"mtime":       doc.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("documents", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *DocumentRepo) Get(ctx context.Context, companyID, id string) (*model.Document, error) {
	where := map[string]interface{}{"id": id, "company_id": companyID}
	return r.getOne(ctx, where)
}

func (r *DocumentRepo) getOne(ctx context.Context, where map[string]interface{}) (*model.Document, error) {
	sqlStr, args, err := builder.BuildSelect("documents", where, documentColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	doc, err := scanDocument(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return doc, nil
}

func (r *DocumentRepo) ListByCompany(ctx context.Context, companyID string) ([]*model.Document, error) {
	where := map[string]interface{}{
		"company_id": companyID,
		"_orderby":   "ctime desc",
	}
	sqlStr, args, err := builder.BuildSelect("documents", where, documentColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []*model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// TransitionStatus moves a document from one status to another atomically.
// Returns errs.ErrConflict when the document is no longer in the expected
// status, which is how concurrent ingestion runs lose the race.
func (r *DocumentRepo) TransitionStatus(ctx context.Context, id, from, to string, mtime int64) error {
	const query = `UPDATE documents SET status = $1, mtime = $2 WHERE id = $3 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, to, mtime, id, from)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errs.ErrConflict
	}
	return nil
}

func (r *DocumentRepo) MarkFailed(ctx context.Context, id, reason string, mtime int64) error {
	const query = `UPDATE documents SET status = $1, fail_reason = $2, chunk_count = 0, mtime = $3 WHERE id = $4`
	_, err := r.db.ExecContext(ctx, query, model.DocumentStatusFailed, reason, mtime, id)
	return err
}

func (r *DocumentRepo) MarkReady(ctx context.Context, id string, charLength, chunkCount int, mtime int64) error {
	const query = `
		UPDATE documents
		SET status = $1, fail_reason = '', char_length = $2, chunk_count = $3, mtime = $4
		WHERE id = $5 AND status = $6
	`
	res, err := r.db.ExecContext(ctx, query,
		model.DocumentStatusReady, charLength, chunkCount, mtime, id, model.DocumentStatusStoring)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errs.ErrConflict
	}
	return nil
}

func (r *DocumentRepo) Delete(ctx context.Context, companyID, id string) error {
	const query = `DELETE FROM documents WHERE id = $1 AND company_id = $2`
	res, err := r.db.ExecContext(ctx, query, id, companyID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// ListStuck returns documents that entered a non-terminal status before the
// cutoff, so the reaper job can fail them and release their ingestion slot.
func (r *DocumentRepo) ListStuck(ctx context.Context, cutoff int64, limit int) ([]*model.Document, error) {
	const query = `
		SELECT id, company_id, filename, file_type, file_key,
		       byte_size, char_length, chunk_count, status, fail_reason,
		       ctime, mtime
		FROM documents
		WHERE status NOT IN ($1, $2, $3) AND mtime < $4
		LIMIT $5
	`
	rows, err := r.db.QueryContext(ctx, query,
		model.DocumentStatusReady, model.DocumentStatusFailed, model.DocumentStatusPending, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []*model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*model.Document, error) {
	var doc model.Document
	if err := row.Scan(
		&doc.ID, &doc.CompanyID, &doc.Filename, &doc.FileType, &doc.FileKey,
		&doc.ByteSize, &doc.CharLength, &doc.ChunkCount, &doc.Status, &doc.FailReason,
		&doc.Ctime, &doc.Mtime,
	); err != nil {
		return nil, err
	}
	return &doc, nil
}
