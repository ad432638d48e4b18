// Package config loads the single tunable-parameter struct shared by every
// component of the core, following the teacher's Configurable/Metadata
// shape (graph/context.go) but as a static, file-loaded struct rather than
// a per-invocation context bag.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Thresholds holds the similarity thresholds from spec.md §6.
type Thresholds struct {
	MinParent    float64 `yaml:"min_parent"`
	PreferParent float64 `yaml:"prefer_parent"`
	StrongConn   float64 `yaml:"strong_conn"`
	Duplicate    float64 `yaml:"duplicate"`
	Conflict     float64 `yaml:"conflict"`
	WeakEdge     float64 `yaml:"weak_edge"`
}

// SelfCorrectionCaps bounds one self-correction pass (spec.md §4.6).
type SelfCorrectionCaps struct {
	OrphanFixes      int `yaml:"orphan_fixes"`
	WeakEdgeRemovals int `yaml:"weak_edge_removals"`
	CategoryFills    int `yaml:"category_fills"`
	DuplicateFlags   int `yaml:"duplicate_flags"`
}

// Config is the single source of truth for every tunable named in spec.md §6.
type Config struct {
	EmbeddingDimension int        `yaml:"embedding_dimension"`
	Thresholds         Thresholds `yaml:"thresholds"`

	ClassifierAlpha float64 `yaml:"classifier_alpha"`
	BM25K1          float64 `yaml:"bm25_k1"`
	BM25B           float64 `yaml:"bm25_b"`

	ExtractionCacheTTL   time.Duration `yaml:"extraction_cache_ttl"`
	PerHostRatePerSecond float64       `yaml:"per_host_rate_per_second"`

	CheckpointIntervalSeconds int `yaml:"checkpoint_interval_seconds"`
	CheckpointEveryNCards     int `yaml:"checkpoint_every_n_cards"`
	CheckpointRetentionDays   int `yaml:"checkpoint_retention_days"`

	ChunkSizeWords    int `yaml:"chunk_size_words"`
	ChunkOverlapWords int `yaml:"chunk_overlap_words"`

	SessionTTL time.Duration `yaml:"session_ttl"`

	SelfCorrection SelfCorrectionCaps `yaml:"self_correction"`

	MaxToolIterations int `yaml:"max_tool_iterations"`

	HTTPFetchTimeout     time.Duration `yaml:"http_fetch_timeout"`
	RateGateMaxWait      time.Duration `yaml:"rate_gate_max_wait"`
	CanvasCallTimeout    time.Duration `yaml:"canvas_call_timeout"`
	ImageMaxBytes        int64         `yaml:"image_max_bytes"`
	PDFMaxBytes          int64         `yaml:"pdf_max_bytes"`
}

// Default returns the configuration with every default from spec.md §6.
func Default() Config {
	return Config{
		EmbeddingDimension: 768,
		Thresholds: Thresholds{
			MinParent:    0.3,
			PreferParent: 0.5,
			StrongConn:   0.7,
			Duplicate:    0.9,
			Conflict:     0.6,
			WeakEdge:     0.2,
		},
		ClassifierAlpha:           0.6,
		BM25K1:                    1.5,
		BM25B:                     0.75,
		ExtractionCacheTTL:        24 * time.Hour,
		PerHostRatePerSecond:      1.0,
		CheckpointIntervalSeconds: 30,
		CheckpointEveryNCards:     10,
		CheckpointRetentionDays:   7,
		ChunkSizeWords:            500,
		ChunkOverlapWords:         50,
		SessionTTL:                24 * time.Hour,
		SelfCorrection: SelfCorrectionCaps{
			OrphanFixes:      10,
			WeakEdgeRemovals: 20,
			CategoryFills:    20,
			DuplicateFlags:   10,
		},
		MaxToolIterations: 10,
		HTTPFetchTimeout:  30 * time.Second,
		RateGateMaxWait:   30 * time.Second,
		CanvasCallTimeout: 10 * time.Second,
		ImageMaxBytes:     5 * 1024 * 1024,
		PDFMaxBytes:       10 * 1024 * 1024,
	}
}

// Load reads a YAML file and overlays it onto Default(), so a partial
// config file only needs to specify the overrides it cares about.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
