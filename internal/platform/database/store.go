package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jinford/cv-extract/internal/core/extraction"
	"github.com/jinford/cv-extract/internal/core/extraction/lines"
	"github.com/jinford/cv-extract/internal/core/extraction/record"
	"github.com/jinford/cv-extract/internal/infra/postgres"
	"github.com/jinford/cv-extract/internal/infra/postgres/sqlc"
)

// Store は PostgreSQL 上で抽出処理の入出力を提供します。
// 単一の文で済む操作はプールを直接使い、複数の文を伴う操作はトランザクションで実行します。
type Store struct {
	tx        *TransactionProvider
	Documents *postgres.DocumentRepository
	Records   *postgres.RecordRepository
	Jobs      *postgres.JobRepository
}

// NewStore は新しい Store を作成します
func NewStore(db *Database) *Store {
	q := sqlc.New(db.Pool)
	return &Store{
		tx:        NewTransactionProvider(db.Pool),
		Documents: postgres.NewDocumentRepository(q),
		Records:   postgres.NewRecordRepository(q),
		Jobs:      postgres.NewJobRepository(q),
	}
}

var (
	_ extraction.TextSource  = (*Store)(nil)
	_ extraction.RecordSink  = (*Store)(nil)
	_ extraction.LineIndexer = (*Store)(nil)
)

func (s *Store) GetText(ctx context.Context, documentID uuid.UUID) (string, error) {
	return s.Documents.GetText(ctx, documentID)
}

// SaveRecord は文書単位のロックを取ってからレコードを上書きします
func (s *Store) SaveRecord(ctx context.Context, documentID uuid.UUID, rec *record.Record, meta extraction.Metadata) error {
	_, err := Transact(ctx, s.tx, func(a *Adapter) (struct{}, error) {
		if err := a.Locks.Acquire(ctx, GenerateLockID("cv_record", documentID.String())); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, a.Records.Upsert(ctx, documentID, rec, meta)
	})
	return err
}

func (s *Store) IndexLines(ctx context.Context, documentID uuid.UUID, ls []lines.Line) error {
	_, err := Transact(ctx, s.tx, func(a *Adapter) (struct{}, error) {
		return struct{}{}, a.Documents.ReplaceLines(ctx, documentID, ls)
	})
	return err
}
