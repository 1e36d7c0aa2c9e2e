package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const SchemaVersion = 1

// JobState is the canonical persisted record of one cleaning job.
type JobState struct {
	SchemaVersion     int             `json:"schema_version"`
	JobID             string          `json:"job_id"`
	SourceName        string          `json:"source_name"`
	Title             string          `json:"title"`
	Status            string          `json:"status"`
	StartedAt         time.Time       `json:"started_at"`
	LastUpdatedAt     time.Time       `json:"last_updated_at"`
	Config            map[string]any  `json:"config"`
	TotalUnits        int             `json:"total_units"`
	CompletedIndices  []int           `json:"completed_indices"`
	FailedIndices     map[int]string  `json:"failed_indices"`
	CachedResults     []UnitResult    `json:"cached_results"`
	EstimatedCost     decimal.Decimal `json:"estimated_cost"`
	ActualCost        decimal.Decimal `json:"actual_cost"`
	TotalInputTokens  int             `json:"total_input_tokens"`
	TotalOutputTokens int             `json:"total_output_tokens"`
}

// UnitResult is the provider output for one completed work unit.
type UnitResult struct {
	UnitIndex    int             `json:"unit_index"`
	SourceText   string          `json:"source_text"`
	OutputText   string          `json:"output_text"`
	InputTokens  int             `json:"input_tokens"`
	OutputTokens int             `json:"output_tokens"`
	Cost         decimal.Decimal `json:"cost"`
	Model        string          `json:"model"`
	Provider     string          `json:"provider"`
}

// Summary is the downstream record handed to the document writer.
type Summary struct {
	UnitsProcessed    int             `json:"units_processed"`
	TotalInputTokens  int             `json:"total_input_tokens"`
	TotalOutputTokens int             `json:"total_output_tokens"`
	TotalCost         decimal.Decimal `json:"total_cost"`
	Model             string          `json:"model"`
	FailedUnitCount   int             `json:"failed_unit_count"`
}

// Config snapshot keys captured at job creation.
const (
	ConfigModel          = "model"
	ConfigProvider       = "provider"
	ConfigOutputLanguage = "output_language"
	ConfigTemperature    = "temperature"
	ConfigMaxTokens      = "max_tokens"
	ConfigChunkSize      = "chunk_size"
	ConfigOverlap        = "overlap"
	ConfigSourcePath     = "source_path"
	ConfigPromptPath     = "prompt_path"
)
