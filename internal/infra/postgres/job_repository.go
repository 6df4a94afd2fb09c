package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jinford/cv-extract/internal/core/extraction"
	"github.com/jinford/cv-extract/internal/infra/postgres/sqlc"
)

// JobRepository はジョブのスナップショットを扱います
type JobRepository struct {
	q sqlc.Querier
}

// NewJobRepository は新しい JobRepository を作成します
func NewJobRepository(q sqlc.Querier) *JobRepository {
	return &JobRepository{q: q}
}

// コンパイル時の型チェック
var _ extraction.JobStore = (*JobRepository)(nil)

func (r *JobRepository) Save(ctx context.Context, job *extraction.Job) error {
	err := r.q.UpsertJob(ctx, sqlc.UpsertJobParams{
		ID:            UUIDToPgtype(job.ID),
		DocumentID:    UUIDToPgtype(job.DocumentID),
		FileName:      job.FileName,
		ExtractedText: job.Text,
		Models:        StringSliceToArray(job.Models),
		Step:          string(job.Step),
		Progress:      int32(job.Progress),
		Status:        string(job.Status),
		ErrorMessage:  job.Error,
		CanRetry:      job.CanRetry,
		ModelsUsed:    StringSliceToArray(job.ModelsUsed),
		Run:           int32(job.Run),
		CreatedAt:     TimeToPgtype(job.CreatedAt),
		UpdatedAt:     TimeToPgtype(job.UpdatedAt),
		StartedAt:     TimePtrToPgtype(job.StartedAt),
		FinishedAt:    TimePtrToPgtype(job.FinishedAt),
	})
	if err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (r *JobRepository) Get(ctx context.Context, id uuid.UUID) (*extraction.Job, error) {
	row, err := r.q.GetJob(ctx, UUIDToPgtype(id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", extraction.ErrJobNotFound, id)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return toJob(row), nil
}

func (r *JobRepository) List(ctx context.Context, limit int) ([]*extraction.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.q.ListJobs(ctx, int32(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	jobs := make([]*extraction.Job, 0, len(rows))
	for _, row := range rows {
		jobs = append(jobs, toJob(row))
	}
	return jobs, nil
}

func (r *JobRepository) DeleteByDocument(ctx context.Context, documentID uuid.UUID) (int, error) {
	n, err := r.q.DeleteJobsByDocument(ctx, UUIDToPgtype(documentID))
	if err != nil {
		return 0, fmt.Errorf("failed to delete jobs: %w", err)
	}
	return int(n), nil
}

func toJob(row sqlc.ExtractionJob) *extraction.Job {
	return &extraction.Job{
		ID:         PgtypeToUUID(row.ID),
		DocumentID: PgtypeToUUID(row.DocumentID),
		FileName:   row.FileName,
		Text:       row.ExtractedText,
		Models:     ArrayToStringSlice(row.Models),
		Step:       extraction.Step(row.Step),
		Progress:   int(row.Progress),
		Status:     extraction.Status(row.Status),
		Error:      row.ErrorMessage,
		CanRetry:   row.CanRetry,
		ModelsUsed: ArrayToStringSlice(row.ModelsUsed),
		Run:        int(row.Run),
		CreatedAt:  PgtypeToTime(row.CreatedAt),
		UpdatedAt:  PgtypeToTime(row.UpdatedAt),
		StartedAt:  PgtypeToTimePtr(row.StartedAt),
		FinishedAt: PgtypeToTimePtr(row.FinishedAt),
	}
}
