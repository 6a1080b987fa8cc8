package vecstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/docuchat-io/docuchat/internal/model"
	"github.com/docuchat-io/docuchat/internal/pkg/errs"
)

// PgStore is the Postgres/pgvector implementation of Store. Similarity is
// cosine; the metric is fixed per deployment and must match what the
// embedding model was normalized for.
type PgStore struct {
	db *sql.DB
}

func NewPgStore(db *sql.DB) *PgStore {
	return &PgStore{db: db}
}

func (s *PgStore) Upsert(ctx context.Context, chunks []*model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	dimension := len(chunks[0].Embedding)
	for _, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			return fmt.Errorf("%w: chunk %s has no embedding", errs.ErrInvalid, chunk.ID)
		}
		if len(chunk.Embedding) != dimension {
			return fmt.Errorf("%w: chunk %s has dimension %d, expected %d",
				errs.ErrDimensionMismatch, chunk.ID, len(chunk.Embedding), dimension)
		}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	const query = `
		INSERT INTO chunks (id, document_id, company_id, ordinal, content,
		                    start_offset, end_offset, embedding, model_version, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			model_version = EXCLUDED.model_version,
			metadata = EXCLUDED.metadata
	`
	for _, chunk := range chunks {
		metadata, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query,
			chunk.ID, chunk.DocumentID, chunk.CompanyID, chunk.Ordinal, chunk.Text,
			chunk.StartOffset, chunk.EndOffset, pgvector.NewVector(chunk.Embedding),
			chunk.ModelVersion, metadata,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// DeleteByDocument removes a document's chunks in one transaction, so an
// in-flight search sees the old set or nothing, never a partial set.
func (s *PgStore) DeleteByDocument(ctx context.Context, documentID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PgStore) Search(ctx context.Context, scope Scope, queryVec []float32, topK int, minScore float32) ([]Result, error) {
	if scope.CompanyID == "" {
		return nil, errs.ErrScopeViolation
	}
	if len(scope.DocumentIDs) == 0 {
		return nil, nil
	}
	if topK <= 0 {
		topK = 5
	}
	vec := pgvector.NewVector(queryVec)
	const query = `
		SELECT c.id, c.document_id, c.ordinal, c.content, c.metadata,
		       1 - (c.embedding <=> $1) AS score
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE c.company_id = $2
		  AND d.status = $3
		  AND c.document_id = ANY($4)
		  AND c.model_version = $5
		  AND 1 - (c.embedding <=> $1) >= $6
		ORDER BY c.embedding <=> $1
		LIMIT $7
	`
	rows, err := s.db.QueryContext(ctx, query,
		vec, scope.CompanyID, model.DocumentStatusReady, pq.Array(scope.DocumentIDs),
		scope.ModelVersion, minScore, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []Result
	for rows.Next() {
		var item Result
		var metadata []byte
		if err := rows.Scan(&item.ChunkID, &item.DocumentID, &item.Ordinal, &item.Text, &metadata, &item.Score); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &item.Metadata); err != nil {
				return nil, err
			}
		}
		results = append(results, item)
	}
	return results, rows.Err()
}

func (s *PgStore) CountByDocument(ctx context.Context, documentID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chunks WHERE document_id = $1`, documentID).Scan(&count)
	return count, err
}
