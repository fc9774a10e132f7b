package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port          int               `json:"port"`
	LogConfig     logger.LogConfig  `json:"log_config"`
	CORSAllowlist []string          `json:"cors_allowlist"`
	Database      DatabaseConfig    `json:"database"`
	AI            AIConfig          `json:"ai"`
	Ingest        IngestConfig      `json:"ingest"`
	Retrieval     RetrievalConfig   `json:"retrieval"`
	Queue         QueueConfig       `json:"queue"`
	Worker        WorkerConfig      `json:"worker"`
	VectorIndex   VectorIndexConfig `json:"vector_index"`
	FileStore     FileStoreConfig   `json:"file_store"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

type AIConfig struct {
	Provider           string      `json:"provider"`
	Data               interface{} `json:"data"`
	GenerationModel    string      `json:"generation_model"`
	EmbeddingModel     string      `json:"embedding_model"`
	EmbeddingDimension int         `json:"embedding_dimension"`
	EmbeddingBatchSize int         `json:"embedding_batch_size"`
	TimeoutSeconds     int         `json:"timeout_seconds"`
}

// OverlapTokens and MinTokens are pointers so an explicit zero in the
// config file survives defaulting.
type IngestConfig struct {
	ChunkTokens   int  `json:"chunk_tokens"`
	OverlapTokens *int `json:"overlap_tokens"`
	MinTokens     *int `json:"min_tokens"`
}

type RetrievalConfig struct {
	DefaultTopK      int     `json:"default_top_k"`
	MaxTopK          int     `json:"max_top_k"`
	MaxContextTokens int     `json:"max_context_tokens"`
	MinScore         float32 `json:"min_score"`
}

type QueueConfig struct {
	VisibilityTimeoutSeconds int `json:"visibility_timeout_seconds"`
	MaxAttempts              int `json:"max_attempts"`
	RetryBaseSeconds         int `json:"retry_base_seconds"`
	RetryMaxSeconds          int `json:"retry_max_seconds"`
	PollIntervalMillis       int `json:"poll_interval_millis"`
}

type WorkerConfig struct {
	Concurrency     int    `json:"concurrency"`
	TraceKeepDays   int    `json:"trace_keep_days"`
	ReaperCronSpec  string `json:"reaper_cron_spec"`
	CleanupCronSpec string `json:"cleanup_cron_spec"`
}

type VectorIndexConfig struct {
	Type string `json:"type"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if c.Database.DSN == "" && (c.Database.Host == "" || c.Database.DBName == "") {
		return fmt.Errorf("database.dsn or database.host/dbname is required")
	}
	if c.AI.Provider == "" {
		return fmt.Errorf("ai.provider is required")
	}
	if c.AI.GenerationModel == "" {
		return fmt.Errorf("ai.generation_model is required")
	}
	if c.AI.EmbeddingModel == "" {
		return fmt.Errorf("ai.embedding_model is required")
	}
	if c.AI.EmbeddingDimension <= 0 {
		return fmt.Errorf("ai.embedding_dimension is required")
	}
	if c.AI.EmbeddingBatchSize == 0 {
		c.AI.EmbeddingBatchSize = 32
	}
	if c.AI.TimeoutSeconds == 0 {
		c.AI.TimeoutSeconds = 30
	}
	if c.LogConfig.Level == "" {
		c.LogConfig.Level = "info"
	}
	if c.Ingest.ChunkTokens == 0 {
		c.Ingest.ChunkTokens = 400
	}
	if c.Ingest.OverlapTokens == nil {
		overlap := 50
		c.Ingest.OverlapTokens = &overlap
	}
	if c.Ingest.MinTokens == nil {
		minTokens := 20
		c.Ingest.MinTokens = &minTokens
	}
	if *c.Ingest.OverlapTokens < 0 {
		return fmt.Errorf("ingest.overlap_tokens must not be negative")
	}
	if *c.Ingest.MinTokens < 0 {
		return fmt.Errorf("ingest.min_tokens must not be negative")
	}
	if *c.Ingest.OverlapTokens >= c.Ingest.ChunkTokens {
		return fmt.Errorf("ingest.overlap_tokens must be less than ingest.chunk_tokens")
	}
	if c.Retrieval.DefaultTopK == 0 {
		c.Retrieval.DefaultTopK = 5
	}
	if c.Retrieval.MaxTopK == 0 {
		c.Retrieval.MaxTopK = 20
	}
	if c.Retrieval.MaxContextTokens == 0 {
		c.Retrieval.MaxContextTokens = 2000
	}
	if c.Queue.VisibilityTimeoutSeconds == 0 {
		c.Queue.VisibilityTimeoutSeconds = 600
	}
	if c.Queue.MaxAttempts == 0 {
		c.Queue.MaxAttempts = 3
	}
	if c.Queue.RetryBaseSeconds == 0 {
		c.Queue.RetryBaseSeconds = 60
	}
	if c.Queue.RetryMaxSeconds == 0 {
		c.Queue.RetryMaxSeconds = 3600
	}
	if c.Queue.PollIntervalMillis == 0 {
		c.Queue.PollIntervalMillis = 500
	}
	if c.Worker.Concurrency == 0 {
		c.Worker.Concurrency = 5
	}
	if c.Worker.TraceKeepDays == 0 {
		c.Worker.TraceKeepDays = 30
	}
	if c.Worker.ReaperCronSpec == "" {
		c.Worker.ReaperCronSpec = "* * * * *"
	}
	if c.Worker.CleanupCronSpec == "" {
		c.Worker.CleanupCronSpec = "0 4 * * *"
	}
	if c.VectorIndex.Type == "" {
		c.VectorIndex.Type = "pgvector"
	}
	switch c.VectorIndex.Type {
	case "pgvector", "memory":
	default:
		return fmt.Errorf("vector_index.type must be pgvector or memory")
	}
	return nil
}
