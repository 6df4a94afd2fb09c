package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jinford/cv-extract/internal/core/extraction"
	"github.com/jinford/cv-extract/internal/infra/filesource"
	"github.com/jinford/cv-extract/internal/infra/postgres"
	"github.com/jinford/cv-extract/internal/infra/queue"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"
)

// DocumentAddAction はテキストファイルを文書として登録するコマンドのアクション
func DocumentAddAction(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("file")

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("ファイルの読み込みに失敗: %w", err)
	}
	text, err := filesource.DecodeText(path, content)
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	doc := postgres.Document{ID: uuid.New(), FileName: filepath.Base(path), Text: text}
	if err := appCtx.Container.Store.Documents.Create(ctx, doc); err != nil {
		return fmt.Errorf("文書の登録に失敗: %w", err)
	}
	fmt.Printf("文書ID: %s\n", doc.ID)

	if cmd.Bool("submit") {
		return enqueue(ctx, appCtx, queue.Task{Action: queue.ActionExtract, JobID: uuid.New(), DocumentID: doc.ID, FileName: doc.FileName})
	}
	return nil
}

// JobSubmitAction は抽出タスクをキューに投入するコマンドのアクション
func JobSubmitAction(ctx context.Context, cmd *cli.Command) error {
	docID, err := uuid.Parse(cmd.String("document"))
	if err != nil {
		return fmt.Errorf("文書IDが不正です: %w", err)
	}

	appCtx, err := NewAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	doc, err := appCtx.Container.Store.Documents.Get(ctx, docID)
	if err != nil {
		return err
	}
	return enqueue(ctx, appCtx, queue.Task{Action: queue.ActionExtract, JobID: uuid.New(), DocumentID: doc.ID, FileName: doc.FileName})
}

// JobRetryAction は再実行タスクをキューに投入するコマンドのアクション
func JobRetryAction(ctx context.Context, cmd *cli.Command) error {
	jobID, err := uuid.Parse(cmd.String("id"))
	if err != nil {
		return fmt.Errorf("ジョブIDが不正です: %w", err)
	}

	appCtx, err := NewAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	job, err := appCtx.Container.Service.Get(ctx, jobID)
	if err != nil {
		return err
	}
	switch {
	case job.Status == extraction.StatusCompleted:
		return fmt.Errorf("ジョブは完了済みです: %s", extraction.ControlAlreadyCompleted)
	case !job.Status.IsTerminal():
		return fmt.Errorf("ジョブは実行中です: %s", extraction.ControlAlreadyRunning)
	case !job.CanRetry:
		return fmt.Errorf("ジョブは再実行できません: %s", extraction.ControlNotRetryable)
	}
	return enqueue(ctx, appCtx, queue.Task{Action: queue.ActionRetry, JobID: job.ID, DocumentID: job.DocumentID})
}

func enqueue(ctx context.Context, appCtx *AppContext, task queue.Task) error {
	q, err := appCtx.Container.Queue(ctx, "cli")
	if err != nil {
		return err
	}
	if err := q.Enqueue(ctx, task); err != nil {
		return err
	}
	fmt.Printf("ジョブID: %s (%s)\n", task.JobID, task.Action)
	return nil
}

// JobStatusAction はジョブの進捗を表示するコマンドのアクション
func JobStatusAction(ctx context.Context, cmd *cli.Command) error {
	jobID, err := uuid.Parse(cmd.String("id"))
	if err != nil {
		return fmt.Errorf("ジョブIDが不正です: %w", err)
	}

	appCtx, err := NewAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	p, err := appCtx.Container.Service.Progress(ctx, jobID)
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, p)
}

// JobListAction はジョブ一覧を表示するコマンドのアクション
func JobListAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	jobs, err := appCtx.Container.Service.List(ctx, cmd.Int("limit"))
	if err != nil {
		return err
	}
	displayJobsTable(os.Stdout, jobs, time.Now())
	return nil
}

// displayJobsTable はジョブをテーブル形式で表示します
func displayJobsTable(w io.Writer, jobs []*extraction.Job, now time.Time) {
	if len(jobs) == 0 {
		fmt.Fprintln(w, "ジョブがありません")
		return
	}

	table := tablewriter.NewWriter(w)
	table.Header("ジョブID", "ファイル", "状態", "段階", "進捗", "実行回数", "モデル", "作成日時")
	for _, j := range jobs {
		p := j.ProgressAt(now)
		table.Append(
			j.ID.String(),
			j.FileName,
			string(p.Status),
			p.CurrentStep,
			fmt.Sprintf("%d%%", p.ProgressPercent),
			fmt.Sprintf("%d", p.Run),
			p.AIModel,
			j.CreatedAt.Format("2006-01-02 15:04:05"),
		)
	}
	table.Render()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// MigrateAction はテーブルを作成するコマンドのアクション
func MigrateAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.Container.Database.Migrate(ctx); err != nil {
		return err
	}
	fmt.Println("✓ スキーマを適用しました")
	return nil
}
