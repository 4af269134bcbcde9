package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

type BlobStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type AIConfig struct {
	Provider       string      `json:"provider"`
	Data           interface{} `json:"data"`
	EmbedModel     string      `json:"embed_model"`
	ExtractModel   string      `json:"extract_model"`
	ReasoningModel string      `json:"reasoning_model"`
}

// PipelineConfig carries the knobs of the four phases. Zero values are
// replaced with the defaults below at load time.
type PipelineConfig struct {
	MaxDocumentBytes   int64   `json:"max_document_bytes"`
	MaxScannedPages    int     `json:"max_scanned_pages"`
	IngestBatchPages   int     `json:"ingest_batch_pages"`
	EmbedBatchSize     int     `json:"embed_batch_size"`
	ChunkInsertBatch   int     `json:"chunk_insert_batch"`
	AudioChunkSec      float64 `json:"audio_chunk_sec"`
	ExtractWorkers     int     `json:"extract_workers"`
	FailOnPartial      bool    `json:"fail_on_partial"`
	SearchWorkers      int     `json:"search_workers"`
	SearchChannelTopK  int     `json:"search_channel_top_k"`
	SearchFinalTopK    int     `json:"search_final_top_k"`
	SearchRRFConstant  int     `json:"search_rrf_constant"`
	EvidenceBatchSize  int     `json:"evidence_batch_size"`
	SignedURLTTLMinute int     `json:"signed_url_ttl_minute"`
}

type Config struct {
	Database  DatabaseConfig   `json:"database"`
	LogConfig logger.LogConfig `json:"log_config"`
	BlobStore BlobStoreConfig  `json:"blob_store"`
	AI        AIConfig         `json:"ai"`
	Pipeline  PipelineConfig   `json:"pipeline"`
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
	if cfg.Database.DSN == "" && (cfg.Database.Host == "" || cfg.Database.DBName == "") {
		return nil, fmt.Errorf("database.dsn or database.host/dbname is required")
	}
	if cfg.BlobStore.Type == "" {
		return nil, fmt.Errorf("blob_store.type is required")
	}
	if cfg.AI.Provider == "" {
		return nil, fmt.Errorf("ai.provider is required")
	}
	if cfg.AI.EmbedModel == "" {
		cfg.AI.EmbedModel = "text-embedding-004"
	}
	if cfg.AI.ExtractModel == "" {
		cfg.AI.ExtractModel = "gemini-2.5-flash-lite"
	}
	if cfg.AI.ReasoningModel == "" {
		cfg.AI.ReasoningModel = "gemini-3-flash-preview"
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	applyPipelineDefaults(&cfg.Pipeline)
	return &cfg, nil
}

func applyPipelineDefaults(p *PipelineConfig) {
	if p.MaxDocumentBytes <= 0 {
		p.MaxDocumentBytes = 700 << 20
	}
	if p.MaxScannedPages <= 0 {
		p.MaxScannedPages = 2000
	}
	if p.IngestBatchPages <= 0 {
		p.IngestBatchPages = 20
	}
	if p.EmbedBatchSize <= 0 {
		p.EmbedBatchSize = 8
	}
	if p.ChunkInsertBatch <= 0 {
		p.ChunkInsertBatch = 100
	}
	if p.AudioChunkSec <= 0 {
		p.AudioChunkSec = 1800
	}
	if p.ExtractWorkers <= 0 {
		p.ExtractWorkers = 50
	}
	if p.SearchWorkers <= 0 {
		p.SearchWorkers = 20
	}
	if p.SearchChannelTopK <= 0 {
		p.SearchChannelTopK = 30
	}
	if p.SearchFinalTopK <= 0 {
		p.SearchFinalTopK = 50
	}
	if p.SearchRRFConstant <= 0 {
		p.SearchRRFConstant = 60
	}
	if p.EvidenceBatchSize <= 0 {
		p.EvidenceBatchSize = 500
	}
	if p.SignedURLTTLMinute <= 0 {
		p.SignedURLTTLMinute = 5
	}
}
