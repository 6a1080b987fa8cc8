package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port        int              `json:"port"`
	JWTSecret   string           `json:"jwt_secret"`
	JWTTTLHours int              `json:"jwt_ttl_hours"`
	CORSOrigins []string         `json:"cors_origins"`
	LogConfig   logger.LogConfig `json:"log_config"`
	Database    DatabaseConfig   `json:"database"`
	FileStore   FileStoreConfig  `json:"file_store"`
	AI          AIConfig         `json:"ai"`
	Ingest      IngestConfig     `json:"ingest"`
	Chat        ChatConfig       `json:"chat"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// ProviderConfig carries one AI provider's registry name plus its
// provider-specific arguments, decoded by the provider factory itself.
type ProviderConfig struct {
	Provider      string      `json:"provider"`
	Model         string      `json:"model"`
	EmbedModel    string      `json:"embed_model"`
	Data          interface{} `json:"data"`
	TimeoutSecond int         `json:"timeout_second"`
}

type AIConfig struct {
	Providers       []ProviderConfig `json:"providers"`
	EmbedProvider   string           `json:"embed_provider"`
	EmbedBatchSize  int              `json:"embed_batch_size"`
	EmbedBatchBytes int              `json:"embed_batch_bytes"`
	MaxAttempts     int              `json:"max_attempts"`
	RatePerSecond   float64          `json:"rate_per_second"`
	CacheSize       int              `json:"cache_size"`
	CacheTTLMinutes int              `json:"cache_ttl_minutes"`
}

type IngestConfig struct {
	Workers    int `json:"workers"`
	TargetSize int `json:"target_size"`
	// Overlap is a pointer so an explicit 0 (no overlap) is
	// distinguishable from the field being omitted.
	Overlap           *int `json:"overlap"`
	TimeoutSecond     int  `json:"timeout_second"`
	StuckAfterMinutes int  `json:"stuck_after_minutes"`
}

type ChatConfig struct {
	TopK             int     `json:"top_k"`
	MinScore         float32 `json:"min_score"`
	PromptBudget     int     `json:"prompt_budget"`
	HistoryBudget    int     `json:"history_budget"`
	RateLimitSeconds int     `json:"rate_limit_seconds"`
	RetentionDays    int     `json:"retention_days"`
	TimeoutSecond    int     `json:"timeout_second"`
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
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt_secret is required")
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return nil, fmt.Errorf("database.dsn or database.host is required")
	}
	if len(cfg.AI.Providers) == 0 {
		return nil, fmt.Errorf("ai.providers is required")
	}
	if cfg.JWTTTLHours == 0 {
		cfg.JWTTTLHours = 72
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	if cfg.AI.EmbedBatchSize <= 0 {
		cfg.AI.EmbedBatchSize = 64
	}
	if cfg.AI.EmbedBatchBytes <= 0 {
		cfg.AI.EmbedBatchBytes = 512 * 1024
	}
	if cfg.AI.MaxAttempts <= 0 {
		cfg.AI.MaxAttempts = 3
	}
	if cfg.AI.CacheSize <= 0 {
		cfg.AI.CacheSize = 4096
	}
	if cfg.AI.CacheTTLMinutes <= 0 {
		cfg.AI.CacheTTLMinutes = 120
	}
	if cfg.Ingest.Workers <= 0 {
		cfg.Ingest.Workers = 4
	}
	if cfg.Ingest.TargetSize <= 0 {
		cfg.Ingest.TargetSize = 1000
	}
	if cfg.Ingest.Overlap == nil {
		overlap := 100
		cfg.Ingest.Overlap = &overlap
	}
	if *cfg.Ingest.Overlap < 0 || *cfg.Ingest.Overlap >= cfg.Ingest.TargetSize {
		return nil, fmt.Errorf("ingest.overlap must be in [0, target_size)")
	}
	if cfg.Ingest.TimeoutSecond <= 0 {
		cfg.Ingest.TimeoutSecond = 300
	}
	if cfg.Ingest.StuckAfterMinutes <= 0 {
		cfg.Ingest.StuckAfterMinutes = 30
	}
	if cfg.Chat.TopK <= 0 {
		cfg.Chat.TopK = 5
	}
	if cfg.Chat.MinScore <= 0 {
		cfg.Chat.MinScore = 0.7
	}
	if cfg.Chat.PromptBudget <= 0 {
		cfg.Chat.PromptBudget = 12000
	}
	if cfg.Chat.HistoryBudget <= 0 {
		cfg.Chat.HistoryBudget = 4000
	}
	if cfg.Chat.TimeoutSecond <= 0 {
		cfg.Chat.TimeoutSecond = 60
	}
	return &cfg, nil
}
