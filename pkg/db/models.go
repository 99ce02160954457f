package db

import "time"

// Sentence is one persisted sentence pair with its analysis metadata.
type Sentence struct {
	ID               int64
	UUID             string
	SourceText       string
	TargetText       string
	Reading          *string
	Romanization     *string
	ProficiencyLevel *int
	DifficultyScore  *int
	Category         *string
	Source           string
	SourceRef        *string
	IsActive         bool
	StudyCount       int
	Fingerprint      string
	CreatedAt        time.Time
}

// RecordFailure reports one sentence of a batch that could not be stored.
type RecordFailure struct {
	Index int // position inside the batch passed to InsertBatch
	Err   error
}

// BatchResult is the per-record outcome of InsertBatch.
type BatchResult struct {
	Inserted int
	Failed   []RecordFailure
}

// ContentSummary aggregates what is currently stored.
type ContentSummary struct {
	Total             int            `json:"total" yaml:"total"`
	Active            int            `json:"active" yaml:"active"`
	Sources           int            `json:"sources" yaml:"sources"`
	LevelDistribution map[int]int    `json:"levelDistribution" yaml:"level_distribution"`
	CategoryCounts    map[string]int `json:"categories" yaml:"categories"`
}

// SourceCount is the number of stored sentences for one provenance value.
type SourceCount struct {
	Source string `json:"source" yaml:"source"`
	Total  int    `json:"total" yaml:"total"`
	Active int    `json:"active" yaml:"active"`
}
