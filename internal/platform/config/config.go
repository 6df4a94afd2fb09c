package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// Database設定
	Database DatabaseConfig

	// モデル呼び出し設定
	LLM LLMConfig

	// 抽出処理の設定（ポリシーファイルで上書き可能）
	Extraction ExtractionConfig

	// ジョブキュー設定
	Redis RedisConfig

	// HTTP API設定
	HTTP HTTPConfig

	// ログ設定
	Log LogConfig
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// LLMConfig は OpenAI 互換 API の設定
type LLMConfig struct {
	APIKey  string
	BaseURL string
	// Models は優先順のモデル一覧（空の場合はポリシーのデフォルト）
	Models      []string
	Temperature float64
	// RequestsPerMinute と MaxConcurrent はプロセス全体で共有する呼び出し制限
	RequestsPerMinute int
	MaxConcurrent     int
	CallTimeout       time.Duration
	// ErrorLogDir は失敗した応答の JSONL 出力先（空の場合は出力しない）
	ErrorLogDir string
	AppTitle    string
	AppReferer  string
}

// ExtractionConfig は抽出ポリシーの環境変数による上書き。0 の項目はデフォルトのまま。
type ExtractionConfig struct {
	PolicyFile            string
	MaxChunkChars         int
	OverlapChars          int
	MaxChunks             int
	ContinuationTailChars int
	ContinuationMaxTokens int
	MaxContinuations      int
	TruncationThreshold   int
}

// RedisConfig はジョブキューの設定
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	Queue       string
	ResultQueue string
	// BlockTimeout は BLPOP の待機時間
	BlockTimeout time.Duration
	// LockTTL は同じジョブを複数のワーカーが処理しないためのロックの有効期間
	LockTTL time.Duration
}

// HTTPConfig は HTTP サーバーの設定
type HTTPConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// LogConfig はログ出力の設定
type LogConfig struct {
	Level  slog.Level
	Format string
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "cvextract"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "cvextract"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		LLM: LLMConfig{
			APIKey:            getEnv("LLM_API_KEY", getEnv("OPENROUTER_API_KEY", "")),
			BaseURL:           getEnv("LLM_BASE_URL", "https://openrouter.ai/api/v1"),
			Models:            getEnvAsList("LLM_MODELS", nil),
			Temperature:       getEnvAsFloat("LLM_TEMPERATURE", 0.1),
			RequestsPerMinute: getEnvAsInt("LLM_REQUESTS_PER_MINUTE", 60),
			MaxConcurrent:     getEnvAsInt("LLM_MAX_CONCURRENT", 4),
			CallTimeout:       getEnvAsDuration("LLM_CALL_TIMEOUT", 180*time.Second),
			ErrorLogDir:       getEnv("LLM_ERROR_LOG_DIR", ""),
			AppTitle:          getEnv("LLM_APP_TITLE", "cv-extract"),
			AppReferer:        getEnv("LLM_APP_REFERER", ""),
		},
		Extraction: ExtractionConfig{
			PolicyFile:            getEnv("EXTRACTION_POLICY_FILE", ""),
			MaxChunkChars:         getEnvAsInt("EXTRACTION_MAX_CHUNK_CHARS", 0),
			OverlapChars:          getEnvAsInt("EXTRACTION_OVERLAP_CHARS", 0),
			MaxChunks:             getEnvAsInt("EXTRACTION_MAX_CHUNKS", 0),
			ContinuationTailChars: getEnvAsInt("EXTRACTION_CONTINUATION_TAIL_CHARS", 0),
			ContinuationMaxTokens: getEnvAsInt("EXTRACTION_CONTINUATION_MAX_TOKENS", 0),
			MaxContinuations:      getEnvAsInt("EXTRACTION_MAX_CONTINUATIONS", 0),
			TruncationThreshold:   getEnvAsInt("EXTRACTION_TRUNCATION_THRESHOLD", 0),
		},
		Redis: RedisConfig{
			Addr:         getEnv("REDIS_ADDR", "localhost:6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			Queue:        getEnv("REDIS_QUEUE", "cv-extract:jobs"),
			ResultQueue:  getEnv("REDIS_RESULT_QUEUE", "cv-extract:results"),
			BlockTimeout: getEnvAsDuration("REDIS_BLOCK_TIMEOUT", 5*time.Second),
			LockTTL:      getEnvAsDuration("REDIS_LOCK_TTL", 30*time.Minute),
		},
		HTTP: HTTPConfig{
			Addr:            getEnv("HTTP_ADDR", ":8080"),
			ShutdownTimeout: getEnvAsDuration("HTTP_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Log: LogConfig{
			Level:  getEnvAsLogLevel("LOG_LEVEL", slog.LevelInfo),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration は環境変数を time.Duration として取得します（例: "90s"）
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList はカンマ区切りの環境変数をリストとして取得します
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}

// getEnvAsLogLevel はログレベル名（debug, info, warn, error）を slog.Level として取得します
func getEnvAsLogLevel(key string, defaultValue slog.Level) slog.Level {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(valueStr)); err != nil {
		return defaultValue
	}
	return level
}
