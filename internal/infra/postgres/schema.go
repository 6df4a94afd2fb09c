package postgres

import _ "embed"

// Schema はテーブル定義。何度実行しても同じ結果になる。
//
//go:embed schema/schema.sql
var Schema string
