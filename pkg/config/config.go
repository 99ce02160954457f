// Package config loads yomikomi settings from a YAML file and the environment.
package config

import "time"

// Config is the root application configuration.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Import     ImportConfig     `yaml:"import"`
	Corpus     CorpusConfig     `yaml:"corpus"`
	Dictionary DictionaryConfig `yaml:"dictionary"`
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path        string        `yaml:"path"         env:"DATABASE_PATH"         env-default:"yomikomi.db"`
	BusyTimeout time.Duration `yaml:"busy_timeout" env:"DATABASE_BUSY_TIMEOUT" env-default:"5s"`
}

// ImportConfig tunes the import pipeline.
type ImportConfig struct {
	BatchSize       int           `yaml:"batch_size"        env:"IMPORT_BATCH_SIZE"        env-default:"50"`
	Workers         int           `yaml:"workers"           env:"IMPORT_WORKERS"           env-default:"4"`
	QueueSize       int           `yaml:"queue_size"        env:"IMPORT_QUEUE_SIZE"        env-default:"0"`
	FlushInterval   time.Duration `yaml:"flush_interval"    env:"IMPORT_FLUSH_INTERVAL"    env-default:"1s"`
	CommitTimeout   time.Duration `yaml:"commit_timeout"    env:"IMPORT_COMMIT_TIMEOUT"    env-default:"30s"`
	MaxErrorDetails int           `yaml:"max_error_details" env:"IMPORT_MAX_ERROR_DETAILS" env-default:"10"`
	MaxFileBytes    int64         `yaml:"max_file_bytes"    env:"IMPORT_MAX_FILE_BYTES"    env-default:"104857600"`
	UploadDir       string        `yaml:"upload_dir"        env:"IMPORT_UPLOAD_DIR"        env-default:"uploads"`
}

// CorpusConfig holds Tatoeba download settings.
type CorpusConfig struct {
	CacheDir     string        `yaml:"cache_dir"     env:"CORPUS_CACHE_DIR"     env-default:"cache/tatoeba"`
	BaseURL      string        `yaml:"base_url"      env:"CORPUS_BASE_URL"      env-default:"https://downloads.tatoeba.org/exports/per_language"`
	SourceLang   string        `yaml:"source_lang"   env:"CORPUS_SOURCE_LANG"   env-default:"jpn"`
	TargetLang   string        `yaml:"target_lang"   env:"CORPUS_TARGET_LANG"   env-default:"eng"`
	MaxSentences int           `yaml:"max_sentences" env:"CORPUS_MAX_SENTENCES" env-default:"0"`
	PreferCache  bool          `yaml:"prefer_cache"  env:"CORPUS_PREFER_CACHE"  env-default:"false"`
	FetchTimeout time.Duration `yaml:"fetch_timeout" env:"CORPUS_FETCH_TIMEOUT" env-default:"10m"`
}

// DictionaryConfig locates the JMdict file used as a reading fallback.
type DictionaryConfig struct {
	Path         string `yaml:"path"          env:"DICTIONARY_PATH"          env-default:"jmdict-eng.json"`
	AutoDownload bool   `yaml:"auto_download" env:"DICTIONARY_AUTO_DOWNLOAD" env-default:"false"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"             env:"SERVER_ADDR"             env-default:":8080"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"   env:"SERVER_MAX_BODY_BYTES"   env-default:"105906176"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text"`
}
