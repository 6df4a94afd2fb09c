package database_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jinford/cv-extract/internal/core/extraction"
	"github.com/jinford/cv-extract/internal/core/extraction/lines"
	"github.com/jinford/cv-extract/internal/core/extraction/record"
	"github.com/jinford/cv-extract/internal/infra/postgres"
	"github.com/jinford/cv-extract/internal/platform/database"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startPostgres は PostgreSQL コンテナを起動し、スキーマを適用した Database を返します
func startPostgres(t *testing.T) *database.Database {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker is not available: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("docker is not available: %v", err)
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16",
		Env: []string{
			"POSTGRES_USER=cvextract",
			"POSTGRES_PASSWORD=secret",
			"POSTGRES_DB=cvextract",
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pool.Purge(resource)
	})
	_ = resource.Expire(120)

	var port int
	_, err = fmt.Sscanf(resource.GetPort("5432/tcp"), "%d", &port)
	require.NoError(t, err)

	params := database.ConnectionParams{
		Host:     "localhost",
		Port:     port,
		User:     "cvextract",
		Password: "secret",
		DBName:   "cvextract",
		SSLMode:  "disable",
	}

	var db *database.Database
	pool.MaxWait = 60 * time.Second
	err = pool.Retry(func() error {
		var connErr error
		db, connErr = database.New(context.Background(), params)
		return connErr
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, db.Migrate(context.Background()))
	// 2回目も成功する
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func TestStore(t *testing.T) {
	db := startPostgres(t)
	store := database.NewStore(db)
	ctx := context.Background()

	docID := uuid.New()
	require.NoError(t, store.Documents.Create(ctx, postgres.Document{
		ID:       docID,
		FileName: "jane.pdf",
		Text:     "JANE DOE\nSoftware Engineer",
	}))

	t.Run("文書の重複登録", func(t *testing.T) {
		err := store.Documents.Create(ctx, postgres.Document{ID: docID, FileName: "dup.pdf"})

		assert.ErrorIs(t, err, postgres.ErrDocumentExists)
	})

	t.Run("テキストの取得", func(t *testing.T) {
		text, err := store.GetText(ctx, docID)
		require.NoError(t, err)
		assert.Equal(t, "JANE DOE\nSoftware Engineer", text)

		_, err = store.GetText(ctx, uuid.New())
		assert.ErrorIs(t, err, postgres.ErrDocumentNotFound)
	})

	t.Run("行インデックスの置き換え", func(t *testing.T) {
		// Setup
		first := lines.Split("JANE DOE\nSoftware Engineer\nEXPERIENCE")
		second := lines.Split("JOHN ROE\nData Analyst")

		// Execute
		require.NoError(t, store.IndexLines(ctx, docID, first))
		require.NoError(t, store.IndexLines(ctx, docID, second))

		// Assert
		got, err := store.Documents.ListLines(ctx, docID)
		require.NoError(t, err)
		assert.Equal(t, second, got)
	})

	t.Run("存在しない文書への行インデックス", func(t *testing.T) {
		err := store.IndexLines(ctx, uuid.New(), lines.Split("JANE DOE"))

		assert.ErrorIs(t, err, postgres.ErrDocumentNotFound)
	})

	t.Run("レコードの上書き保存", func(t *testing.T) {
		// Setup
		rec := &record.Record{}
		rec.PersonalInformation.FirstName = "Jane"
		rec.WorkExperience = []record.WorkExperience{{JobTitle: "Engineer", CompanyName: "Acme"}}
		meta := extraction.Metadata{JobID: uuid.New(), Run: 1, ModelsUsed: []string{"openai/gpt-4o"}, ChunkCount: 1}

		rerun := &record.Record{}
		rerun.PersonalInformation.FirstName = "Janet"
		rerunMeta := extraction.Metadata{JobID: uuid.New(), Run: 2, ChunkCount: 2}

		// Execute
		require.NoError(t, store.SaveRecord(ctx, docID, rec, meta))
		require.NoError(t, store.SaveRecord(ctx, docID, rerun, rerunMeta))

		// Assert
		stored, err := store.Records.Get(ctx, docID)
		require.NoError(t, err)
		assert.Equal(t, record.Text("Janet"), stored.Record.PersonalInformation.FirstName)
		assert.Empty(t, stored.Record.WorkExperience)
		assert.Equal(t, rerunMeta.JobID, stored.Metadata.JobID)
		assert.Equal(t, 2, stored.Metadata.ChunkCount)
	})

	t.Run("存在しない文書へのレコード保存", func(t *testing.T) {
		err := store.SaveRecord(ctx, uuid.New(), &record.Record{}, extraction.Metadata{JobID: uuid.New()})

		assert.ErrorIs(t, err, postgres.ErrDocumentNotFound)
	})
}

func TestJobRepository(t *testing.T) {
	db := startPostgres(t)
	jobs := database.NewStore(db).Jobs
	ctx := context.Background()

	docID := uuid.New()
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	started := created.Add(time.Second)
	job := &extraction.Job{
		ID:         uuid.New(),
		DocumentID: docID,
		FileName:   "jane.pdf",
		Text:       "JANE DOE",
		Models:     []string{"openai/gpt-4o", "anthropic/claude-3-haiku"},
		Step:       extraction.StepExtractingStructure,
		Progress:   30,
		Status:     extraction.StatusRunning,
		Run:        1,
		CreatedAt:  created,
		UpdatedAt:  started,
		StartedAt:  &started,
	}

	t.Run("保存と取得", func(t *testing.T) {
		require.NoError(t, jobs.Save(ctx, job))

		got, err := jobs.Get(ctx, job.ID)

		require.NoError(t, err)
		assert.Equal(t, job.Models, got.Models)
		assert.Nil(t, got.ModelsUsed)
		assert.Equal(t, extraction.StatusRunning, got.Status)
		assert.True(t, started.Equal(*got.StartedAt))
		assert.Nil(t, got.FinishedAt)
	})

	t.Run("状態の更新", func(t *testing.T) {
		// Setup
		updated := job.Clone()
		finished := started.Add(5 * time.Second)
		updated.Status = extraction.StatusFailed
		updated.Step = extraction.StepFailed
		updated.Error = "chunk 1 of 1: structural repair failed"
		updated.CanRetry = true
		updated.ModelsUsed = []string{"openai/gpt-4o"}
		updated.FinishedAt = &finished

		// Execute
		require.NoError(t, jobs.Save(ctx, updated))

		// Assert
		got, err := jobs.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, extraction.StatusFailed, got.Status)
		assert.True(t, got.CanRetry)
		assert.Equal(t, []string{"openai/gpt-4o"}, got.ModelsUsed)
		assert.Equal(t, 5*time.Second, got.Duration(time.Now()))
	})

	t.Run("存在しないジョブ", func(t *testing.T) {
		_, err := jobs.Get(ctx, uuid.New())

		assert.ErrorIs(t, err, extraction.ErrJobNotFound)
	})

	t.Run("新しい順に一覧", func(t *testing.T) {
		newer := job.Clone()
		newer.ID = uuid.New()
		newer.CreatedAt = created.Add(time.Hour)
		require.NoError(t, jobs.Save(ctx, newer))

		list, err := jobs.List(ctx, 10)

		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, newer.ID, list[0].ID)
	})

	t.Run("文書単位の削除", func(t *testing.T) {
		n, err := jobs.DeleteByDocument(ctx, docID)

		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
}
