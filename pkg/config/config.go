// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Catalog, Kafka, Redis, Embedding, Index, Search, Worker,
// Ingestion, etc.).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Search    SearchConfig    `yaml:"search"`
	Worker    WorkerConfig    `yaml:"worker"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Converter ConverterConfig `yaml:"converter"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// CatalogConfig selects the relational store that owns the works table.
type CatalogConfig struct {
	Driver   string         `yaml:"driver"`
	Postgres PostgresConfig `yaml:"postgres"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// SQLiteConfig points at a local database file.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// DSN returns a modernc.org/sqlite data source name with WAL and a busy timeout.
func (s SQLiteConfig) DSN() string {
	return s.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	WorkIngested    string `yaml:"workIngested"`
	IndexUpdated    string `yaml:"indexUpdated"`
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// EmbeddingConfig selects and tunes the sentence embedding provider.
type EmbeddingConfig struct {
	Provider    string        `yaml:"provider"`
	BaseURL     string        `yaml:"baseUrl"`
	Model       string        `yaml:"model"`
	Token       string        `yaml:"token"`
	Dimension   int           `yaml:"dimension"`
	BatchSize   int           `yaml:"batchSize"`
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
	CacheDir    string        `yaml:"cacheDir"`
}

// ChunkingConfig is one index flavor's window and filter policy.
type ChunkingConfig struct {
	Size      int `yaml:"size"`
	Stride    int `yaml:"stride"`
	MinLength int `yaml:"minLength"`
	MaxLength int `yaml:"maxLength"`
}

// IndexConfig controls where the segment logs live and how each flavor is cut.
type IndexConfig struct {
	DataDir                string         `yaml:"dataDir"`
	Granular               ChunkingConfig `yaml:"granular"`
	Context                ChunkingConfig `yaml:"context"`
	Denylist               []string       `yaml:"denylist"`
	MaxSegmentsBeforeMerge int            `yaml:"maxSegmentsBeforeMerge"`
}

// FusionConfig picks how dense and lexical scores are combined.
type FusionConfig struct {
	Policy        string  `yaml:"policy"`
	DenseWeight   float64 `yaml:"denseWeight"`
	LexicalWeight float64 `yaml:"lexicalWeight"`
}

// AggregationConfig picks how chunk scores roll up into works.
type AggregationConfig struct {
	Policy     string  `yaml:"policy"`
	PerWorkCap int     `yaml:"perWorkCap"`
	TopWorks   int     `yaml:"topWorks"`
	PoolSize   int     `yaml:"poolSize"`
	Cutoff     float64 `yaml:"cutoff"`
}

// SearchConfig controls query validation, retrieval limits, and timeouts.
type SearchConfig struct {
	MinQueryLength       int               `yaml:"minQueryLength"`
	CitationTopK         int               `yaml:"citationTopK"`
	CitationWorks        int               `yaml:"citationWorks"`
	Fusion               FusionConfig      `yaml:"fusion"`
	Aggregation          AggregationConfig `yaml:"aggregation"`
	InferenceTimeout     time.Duration     `yaml:"inferenceTimeout"`
	CatalogTimeout       time.Duration     `yaml:"catalogTimeout"`
	MaxConcurrentQueries int               `yaml:"maxConcurrentQueries"`
	RateLimit            float64           `yaml:"rateLimit"`
	RateBurst            int               `yaml:"rateBurst"`
	WatchIndex           bool              `yaml:"watchIndex"`
}

// WorkerConfig controls the incremental indexer's polling cadence.
type WorkerConfig struct {
	PollInterval time.Duration `yaml:"pollInterval"`
	ErrorBackoff time.Duration `yaml:"errorBackoff"`
	Concurrency  int           `yaml:"concurrency"`
	IndexContext bool          `yaml:"indexContext"`
}

// IngestionConfig controls where uploads land and which status they get.
type IngestionConfig struct {
	Mode          string `yaml:"mode"`
	PDFDir        string `yaml:"pdfDir"`
	CorpusDir     string `yaml:"corpusDir"`
	MaxUploadSize int64  `yaml:"maxUploadSize"`
}

// ConverterConfig configures the external PDF text extractor.
type ConverterConfig struct {
	Command string        `yaml:"command"`
	Args    []string      `yaml:"args"`
	Timeout time.Duration `yaml:"timeout"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided), loads a .env file when one is
// present, and applies environment-variable overrides. Missing values keep
// their defaults.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	for name, ch := range map[string]ChunkingConfig{"granular": c.Index.Granular, "context": c.Index.Context} {
		if ch.Size < 1 {
			return fmt.Errorf("index.%s.size must be >= 1, got %d", name, ch.Size)
		}
		if ch.Stride < 1 || ch.Stride > ch.Size {
			return fmt.Errorf("index.%s.stride must be in [1, %d], got %d", name, ch.Size, ch.Stride)
		}
		if ch.MaxLength > 0 && ch.MinLength > ch.MaxLength {
			return fmt.Errorf("index.%s.minLength %d exceeds maxLength %d", name, ch.MinLength, ch.MaxLength)
		}
	}
	switch c.Catalog.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("catalog.driver must be postgres or sqlite, got %q", c.Catalog.Driver)
	}
	switch c.Ingestion.Mode {
	case "review", "direct":
	default:
		return fmt.Errorf("ingestion.mode must be review or direct, got %q", c.Ingestion.Mode)
	}
	switch c.Search.Fusion.Policy {
	case "multiplicative", "linear":
	default:
		return fmt.Errorf("search.fusion.policy must be multiplicative or linear, got %q", c.Search.Fusion.Policy)
	}
	switch c.Search.Aggregation.Policy {
	case "best", "sum":
	default:
		return fmt.Errorf("search.aggregation.policy must be best or sum, got %q", c.Search.Aggregation.Policy)
	}
	if c.Embedding.BatchSize < 1 {
		return fmt.Errorf("embedding.batchSize must be >= 1, got %d", c.Embedding.BatchSize)
	}
	return nil
}

// Default returns the built-in configuration without reading files or the
// environment.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with defaults suited to local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Catalog: CatalogConfig{
			Driver: "sqlite",
			Postgres: PostgresConfig{
				Host:            "localhost",
				Port:            5432,
				Database:        "scriptura",
				User:            "scriptura",
				Password:        "localdev",
				SSLMode:         "disable",
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
			SQLite: SQLiteConfig{Path: "data/literatura.db"},
		},
		Kafka: KafkaConfig{
			Enabled:       false,
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "scriptura-group",
			Topics: KafkaTopics{
				WorkIngested:    "work-ingested",
				IndexUpdated:    "index-updated",
				AnalyticsEvents: "analytics-events",
			},
		},
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 5 * time.Minute,
		},
		Embedding: EmbeddingConfig{
			Provider:    "ollama",
			BaseURL:     "http://localhost:11434",
			Model:       "paraphrase-multilingual",
			Dimension:   384,
			BatchSize:   512,
			Concurrency: 2,
			Timeout:     60 * time.Second,
		},
		Index: IndexConfig{
			DataDir:                "data/index",
			Granular:               ChunkingConfig{Size: 1, Stride: 1, MinLength: 10, MaxLength: 10000},
			Context:                ChunkingConfig{Size: 5, Stride: 3, MinLength: 100, MaxLength: 10000},
			MaxSegmentsBeforeMerge: 16,
		},
		Search: SearchConfig{
			MinQueryLength: 5,
			CitationTopK:   20,
			CitationWorks:  3,
			Fusion: FusionConfig{
				Policy:        "multiplicative",
				DenseWeight:   0.5,
				LexicalWeight: 2.0,
			},
			Aggregation: AggregationConfig{
				Policy:     "best",
				PerWorkCap: 3,
				TopWorks:   5,
				PoolSize:   100,
				Cutoff:     0.05,
			},
			InferenceTimeout:     20 * time.Second,
			CatalogTimeout:       3 * time.Second,
			MaxConcurrentQueries: 8,
			RateLimit:            20,
			RateBurst:            40,
			WatchIndex:           true,
		},
		Worker: WorkerConfig{
			PollInterval: 10 * time.Second,
			ErrorBackoff: 30 * time.Second,
			Concurrency:  2,
			IndexContext: true,
		},
		Ingestion: IngestionConfig{
			Mode:          "review",
			PDFDir:        "static/pdfs",
			CorpusDir:     "corpus",
			MaxUploadSize: 64 << 20,
		},
		Converter: ConverterConfig{
			Command: "pdftotext",
			Args:    []string{"-layout", "-enc", "UTF-8"},
			Timeout: 2 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads SCRIPTURA_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SCRIPTURA_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SCRIPTURA_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
	if v := os.Getenv("SCRIPTURA_CATALOG_DRIVER"); v != "" {
		cfg.Catalog.Driver = v
	}
	if v := os.Getenv("SCRIPTURA_SQLITE_PATH"); v != "" {
		cfg.Catalog.SQLite.Path = v
	}
	if v := os.Getenv("SCRIPTURA_POSTGRES_HOST"); v != "" {
		cfg.Catalog.Postgres.Host = v
	}
	if v := os.Getenv("SCRIPTURA_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Catalog.Postgres.Port = port
		}
	}
	if v := os.Getenv("SCRIPTURA_POSTGRES_DATABASE"); v != "" {
		cfg.Catalog.Postgres.Database = v
	}
	if v := os.Getenv("SCRIPTURA_POSTGRES_USER"); v != "" {
		cfg.Catalog.Postgres.User = v
	}
	if v := os.Getenv("SCRIPTURA_POSTGRES_PASSWORD"); v != "" {
		cfg.Catalog.Postgres.Password = v
	}
	if v := os.Getenv("SCRIPTURA_POSTGRES_SSLMODE"); v != "" {
		cfg.Catalog.Postgres.SSLMode = v
	}
	if v := os.Getenv("SCRIPTURA_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
		cfg.Kafka.Enabled = true
	}
	if v := os.Getenv("SCRIPTURA_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("SCRIPTURA_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SCRIPTURA_EMBEDDING_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}
	if v := os.Getenv("SCRIPTURA_EMBEDDING_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("SCRIPTURA_EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("SCRIPTURA_EMBEDDING_TOKEN"); v != "" {
		cfg.Embedding.Token = v
	}
	if v := os.Getenv("SCRIPTURA_INDEX_DATA_DIR"); v != "" {
		cfg.Index.DataDir = v
	}
	if v := os.Getenv("SCRIPTURA_INGESTION_MODE"); v != "" {
		cfg.Ingestion.Mode = v
	}
	if v := os.Getenv("SCRIPTURA_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SCRIPTURA_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
