package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jinford/cv-extract/cmd/cv-extract/commands"
	"github.com/urfave/cli/v3"
)

// withCommonFlags は全コマンド共通のフラグを先頭に付けて返す
func withCommonFlags(flags ...cli.Flag) []cli.Flag {
	common := []cli.Flag{
		&cli.StringFlag{
			Name:  "env",
			Usage: "環境変数ファイルパス",
			Value: ".env",
		},
		&cli.StringFlag{
			Name:  "policy",
			Usage: "抽出ポリシーファイル（YAML）",
		},
		&cli.StringSliceFlag{
			Name:  "model",
			Usage: "使用するモデル（優先順に複数指定可）",
		},
	}
	return append(common, flags...)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "cv-extract",
		Usage: "LLM を用いた職務経歴書の構造化抽出ツール",
		Commands: []*cli.Command{
			{
				Name:  "extract",
				Usage: "テキストファイルから構造化レコードを抽出",
				Flags: withCommonFlags(
					&cli.StringFlag{
						Name:     "file",
						Usage:    "入力テキストファイル",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "output",
						Usage: "出力ディレクトリ（未指定時は標準出力）",
					},
					&cli.BoolFlag{
						Name:  "metrics",
						Usage: "終了時に LLM 呼び出しの集計を表示",
					},
				),
				Action: commands.ExtractAction,
			},
			{
				Name:  "batch",
				Usage: "ディレクトリ内のテキストファイルを一括抽出",
				Flags: withCommonFlags(
					&cli.StringFlag{
						Name:     "dir",
						Usage:    "入力ディレクトリ",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "output",
						Usage:    "出力ディレクトリ",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "concurrency",
						Usage: "同時に処理するファイル数",
						Value: 2,
					},
					&cli.BoolFlag{
						Name:  "metrics",
						Usage: "終了時に LLM 呼び出しの集計を表示",
					},
				),
				Action: commands.BatchAction,
			},
			{
				Name:  "serve",
				Usage: "HTTP API サーバーを起動",
				Flags: withCommonFlags(
					&cli.StringFlag{
						Name:  "addr",
						Usage: "待ち受けアドレス（未指定時は HTTP_ADDR）",
					},
				),
				Action: commands.ServeAction,
			},
			{
				Name:  "worker",
				Usage: "ジョブキューのワーカーを起動",
				Flags: withCommonFlags(
					&cli.StringFlag{
						Name:  "worker-id",
						Usage: "ワーカーID（未指定時はホスト名とPID）",
					},
					&cli.IntFlag{
						Name:  "concurrency",
						Usage: "同時に処理するジョブ数（未指定時は LLM_MAX_CONCURRENT）",
					},
					&cli.StringFlag{
						Name:  "metrics-addr",
						Usage: "メトリクスを公開するアドレス",
					},
				),
				Action: commands.WorkerAction,
			},
			{
				Name:  "document",
				Usage: "文書管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "add",
						Usage: "テキストファイルを文書として登録",
						Flags: withCommonFlags(
							&cli.StringFlag{
								Name:     "file",
								Usage:    "入力テキストファイル",
								Required: true,
							},
							&cli.BoolFlag{
								Name:  "submit",
								Usage: "登録後に抽出ジョブを投入",
							},
						),
						Action: commands.DocumentAddAction,
					},
				},
			},
			{
				Name:  "job",
				Usage: "ジョブ管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "submit",
						Usage: "抽出ジョブをキューに投入",
						Flags: withCommonFlags(
							&cli.StringFlag{
								Name:     "document",
								Usage:    "文書ID",
								Required: true,
							},
						),
						Action: commands.JobSubmitAction,
					},
					{
						Name:  "status",
						Usage: "ジョブの進捗を表示",
						Flags: withCommonFlags(
							&cli.StringFlag{
								Name:     "id",
								Usage:    "ジョブID",
								Required: true,
							},
						),
						Action: commands.JobStatusAction,
					},
					{
						Name:  "list",
						Usage: "ジョブ一覧を表示",
						Flags: withCommonFlags(
							&cli.IntFlag{
								Name:  "limit",
								Usage: "表示件数",
								Value: 20,
							},
						),
						Action: commands.JobListAction,
					},
					{
						Name:  "retry",
						Usage: "停止・失敗したジョブを再実行",
						Flags: withCommonFlags(
							&cli.StringFlag{
								Name:     "id",
								Usage:    "ジョブID",
								Required: true,
							},
						),
						Action: commands.JobRetryAction,
					},
				},
			},
			{
				Name:   "migrate",
				Usage:  "データベースのスキーマを適用",
				Flags:  withCommonFlags(),
				Action: commands.MigrateAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
