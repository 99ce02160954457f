package config

import (
	"fmt"
	"strings"
)

// Validate performs business-rule validation on the loaded configuration.
// It must be called after loading; Load calls it automatically.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if err := c.Import.validate(); err != nil {
		return fmt.Errorf("import: %w", err)
	}
	if err := c.Corpus.validate(); err != nil {
		return fmt.Errorf("corpus: %w", err)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be > 0 (got %d)", c.Server.MaxBodyBytes)
	}
	if err := c.Log.validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}

func (c *ImportConfig) validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be > 0 (got %d)", c.BatchSize)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1 (got %d)", c.Workers)
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("queue_size must be >= 0 (got %d)", c.QueueSize)
	}
	if c.FlushInterval < 0 || c.CommitTimeout < 0 {
		return fmt.Errorf("flush_interval and commit_timeout must not be negative")
	}
	if c.MaxErrorDetails < 1 {
		return fmt.Errorf("max_error_details must be >= 1 (got %d)", c.MaxErrorDetails)
	}
	if c.MaxFileBytes <= 0 {
		return fmt.Errorf("max_file_bytes must be > 0 (got %d)", c.MaxFileBytes)
	}
	return nil
}

func (c *CorpusConfig) validate() error {
	if c.SourceLang == "" || c.TargetLang == "" {
		return fmt.Errorf("source_lang and target_lang are required")
	}
	if c.SourceLang == c.TargetLang {
		return fmt.Errorf("source_lang and target_lang must differ (both %q)", c.SourceLang)
	}
	if c.MaxSentences < 0 {
		return fmt.Errorf("max_sentences must be >= 0 (got %d)", c.MaxSentences)
	}
	return nil
}

func (c *LogConfig) validate() error {
	switch strings.ToLower(c.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("format must be json or text (got %q)", c.Format)
	}
	switch strings.ToLower(c.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("level must be one of debug, info, warn, error (got %q)", c.Level)
	}
	return nil
}
