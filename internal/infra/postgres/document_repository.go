package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jinford/cv-extract/internal/core/extraction/lines"
	"github.com/jinford/cv-extract/internal/infra/postgres/sqlc"
)

var (
	// ErrDocumentNotFound は文書が存在しない場合に返されます
	ErrDocumentNotFound = errors.New("document not found")

	// ErrDocumentExists は同じIDの文書が既に登録されている場合に返されます
	ErrDocumentExists = errors.New("document already exists")
)

// Document は登録済みの文書
type Document struct {
	ID       uuid.UUID
	FileName string
	Text     string
}

// DocumentRepository は文書と行インデックスを扱います
type DocumentRepository struct {
	q sqlc.Querier
}

// NewDocumentRepository は新しい DocumentRepository を作成します
func NewDocumentRepository(q sqlc.Querier) *DocumentRepository {
	return &DocumentRepository{q: q}
}

// Create は抽出済みテキストを持つ文書を登録します
func (r *DocumentRepository) Create(ctx context.Context, doc Document) error {
	_, err := r.q.CreateDocument(ctx, sqlc.CreateDocumentParams{
		ID:            UUIDToPgtype(doc.ID),
		FileName:      doc.FileName,
		ExtractedText: doc.Text,
	})
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDocumentExists, doc.ID)
		}
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// Get は文書を取得します
func (r *DocumentRepository) Get(ctx context.Context, id uuid.UUID) (*Document, error) {
	doc, err := r.q.GetDocument(ctx, UUIDToPgtype(id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &Document{
		ID:       PgtypeToUUID(doc.ID),
		FileName: doc.FileName,
		Text:     doc.ExtractedText,
	}, nil
}

// GetText は文書の抽出済みテキストを返します
func (r *DocumentRepository) GetText(ctx context.Context, id uuid.UUID) (string, error) {
	text, err := r.q.GetDocumentText(ctx, UUIDToPgtype(id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
		}
		return "", fmt.Errorf("failed to get document text: %w", err)
	}
	return text, nil
}

// ReplaceLines は文書の行インデックスを置き換えます。
// 削除と挿入を同じトランザクションで行うため、トランザクション内の Querier で呼び出してください。
func (r *DocumentRepository) ReplaceLines(ctx context.Context, documentID uuid.UUID, ls []lines.Line) error {
	docID := UUIDToPgtype(documentID)
	if err := r.q.DeleteDocumentLines(ctx, docID); err != nil {
		return fmt.Errorf("failed to delete document lines: %w", err)
	}
	for _, l := range ls {
		err := r.q.InsertDocumentLine(ctx, sqlc.InsertDocumentLineParams{
			DocumentID: docID,
			LineNumber: int32(l.Number),
			Content:    l.Text,
			LineType:   string(l.Type),
		})
		if err != nil {
			if IsForeignKeyViolation(err) {
				return fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
			}
			return fmt.Errorf("failed to insert document line %d: %w", l.Number, err)
		}
	}
	return nil
}

// ListLines は文書の行インデックスを行番号順に返します
func (r *DocumentRepository) ListLines(ctx context.Context, documentID uuid.UUID) ([]lines.Line, error) {
	rows, err := r.q.ListDocumentLines(ctx, UUIDToPgtype(documentID))
	if err != nil {
		return nil, fmt.Errorf("failed to list document lines: %w", err)
	}
	result := make([]lines.Line, 0, len(rows))
	for _, row := range rows {
		result = append(result, lines.Line{
			Number: int(row.LineNumber),
			Text:   row.Content,
			Type:   lines.Type(row.LineType),
		})
	}
	return result, nil
}
