package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jinford/cv-extract/internal/core/extraction"
	"github.com/jinford/cv-extract/internal/core/extraction/record"
	"github.com/jinford/cv-extract/internal/infra/postgres/sqlc"
)

// ErrRecordNotFound はレコードが存在しない場合に返されます
var ErrRecordNotFound = errors.New("record not found")

// StoredRecord は保存済みのレコードとその処理情報
type StoredRecord struct {
	DocumentID uuid.UUID
	Record     *record.Record
	Metadata   extraction.Metadata
	UpdatedAt  time.Time
}

// RecordRepository は構造化レコードを扱います
type RecordRepository struct {
	q sqlc.Querier
}

// NewRecordRepository は新しい RecordRepository を作成します
func NewRecordRepository(q sqlc.Querier) *RecordRepository {
	return &RecordRepository{q: q}
}

// Upsert は文書のレコードを保存します。既存のレコードは上書きされます。
func (r *RecordRepository) Upsert(ctx context.Context, documentID uuid.UUID, rec *record.Record, meta extraction.Metadata) error {
	recJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	err = r.q.UpsertRecord(ctx, sqlc.UpsertRecordParams{
		DocumentID: UUIDToPgtype(documentID),
		JobID:      UUIDToPgtype(meta.JobID),
		Record:     recJSON,
		Metadata:   metaJSON,
	})
	if err != nil {
		if IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
		}
		return fmt.Errorf("failed to upsert record: %w", err)
	}
	return nil
}

// Get は文書のレコードを取得します
func (r *RecordRepository) Get(ctx context.Context, documentID uuid.UUID) (*StoredRecord, error) {
	row, err := r.q.GetRecord(ctx, UUIDToPgtype(documentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, documentID)
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	stored := &StoredRecord{
		DocumentID: PgtypeToUUID(row.DocumentID),
		Record:     &record.Record{},
		UpdatedAt:  PgtypeToTime(row.UpdatedAt),
	}
	if err := json.Unmarshal(row.Record, stored.Record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	if err := json.Unmarshal(row.Metadata, &stored.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return stored, nil
}
