// Package config handles configuration loading for the vector store service
// and its command line client.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the complete service configuration.
type Config struct {
	Server         ServerConfig     `mapstructure:"server" yaml:"server"`
	Upstage        UpstageConfig    `mapstructure:"upstage" yaml:"upstage"`
	Embeddings     EmbeddingsConfig `mapstructure:"embeddings" yaml:"embeddings"`
	VectorDB       VectorDBConfig   `mapstructure:"vectordb" yaml:"vectordb"`
	Ingest         IngestConfig     `mapstructure:"ingest" yaml:"ingest"`
	Client         ClientConfig     `mapstructure:"client" yaml:"client"`
	Upload         UploadConfig     `mapstructure:"upload" yaml:"upload"`
	RequestTimeout float64          `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host"`
	Port            int    `mapstructure:"port" yaml:"port"`
	Mode            string `mapstructure:"mode" yaml:"mode"`
	LogFormat       string `mapstructure:"log_format" yaml:"log_format"`
	MaxUploadBytes  int64  `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// UpstageConfig holds the Upstage credentials and endpoints.
type UpstageConfig struct {
	APIKey   string `mapstructure:"api_key" yaml:"api_key"`
	ParseURL string `mapstructure:"parse_url" yaml:"parse_url"`
	EmbedURL string `mapstructure:"embed_url" yaml:"embed_url"`
}

// EmbeddingsConfig configures the embedding service.
type EmbeddingsConfig struct {
	Provider string             `mapstructure:"provider" yaml:"provider"`
	Upstage  UpstageEmbedConfig `mapstructure:"upstage" yaml:"upstage"`
	Ollama   OllamaEmbedConfig  `mapstructure:"ollama" yaml:"ollama"`
}

// UpstageEmbedConfig names the passage and query models.
type UpstageEmbedConfig struct {
	PassageModel string `mapstructure:"passage_model" yaml:"passage_model"`
	QueryModel   string `mapstructure:"query_model" yaml:"query_model"`
}

// OllamaEmbedConfig configures Ollama embeddings.
type OllamaEmbedConfig struct {
	URL          string `mapstructure:"url" yaml:"url"`
	PassageModel string `mapstructure:"passage_model" yaml:"passage_model"`
	QueryModel   string `mapstructure:"query_model" yaml:"query_model"`
}

// VectorDBConfig selects and configures the vector database backend.
type VectorDBConfig struct {
	Backend  string         `mapstructure:"backend" yaml:"backend"`
	Qdrant   QdrantConfig   `mapstructure:"qdrant" yaml:"qdrant"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite" yaml:"sqlite"`
	PGVector PGVectorConfig `mapstructure:"pgvector" yaml:"pgvector"`
}

// QdrantConfig configures the Qdrant REST client.
type QdrantConfig struct {
	URL    string `mapstructure:"url" yaml:"url"`
	APIKey string `mapstructure:"api_key" yaml:"api_key"`
}

// SQLiteConfig configures the embedded sqlite-vec backend.
type SQLiteConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// PGVectorConfig configures the PostgreSQL backend.
type PGVectorConfig struct {
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// IngestConfig configures the ingestion pipeline.
type IngestConfig struct {
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
}

// ClientConfig configures the command line client.
type ClientConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// UploadConfig configures directory uploads from the command line.
type UploadConfig struct {
	MaxFileSize  int64    `mapstructure:"max_file_size" yaml:"max_file_size"`
	MaxFileCount int      `mapstructure:"max_file_count" yaml:"max_file_count"`
	Extensions   []string `mapstructure:"extensions" yaml:"extensions"`
	Ignore       []string `mapstructure:"ignore" yaml:"ignore"`
}

// Timeout returns the per-call timeout for outbound requests.
func (c *Config) Timeout() time.Duration {
	if c.RequestTimeout <= 0 {
		return time.Duration(DefaultRequestTimeout) * time.Second
	}
	return time.Duration(c.RequestTimeout * float64(time.Second))
}

// Addr returns the listen address of the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Global configuration instance
var cfg *Config

// Get returns the current configuration.
func Get() *Config {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return cfg
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			Mode:            DefaultServerMode,
			LogFormat:       DefaultLogFormat,
			MaxUploadBytes:  DefaultMaxUploadBytes,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Upstage: UpstageConfig{
			ParseURL: DefaultUpstageParseURL,
			EmbedURL: DefaultUpstageEmbedURL,
		},
		Embeddings: EmbeddingsConfig{
			Provider: DefaultEmbeddingProvider,
			Upstage: UpstageEmbedConfig{
				PassageModel: DefaultPassageModel,
				QueryModel:   DefaultQueryModel,
			},
			Ollama: OllamaEmbedConfig{
				URL:          DefaultOllamaURL,
				PassageModel: DefaultOllamaEmbedModel,
				QueryModel:   DefaultOllamaEmbedModel,
			},
		},
		VectorDB: VectorDBConfig{
			Backend: DefaultVectorBackend,
			Qdrant:  QdrantConfig{URL: DefaultQdrantURL},
			SQLite:  SQLiteConfig{Path: DefaultDatabasePath()},
		},
		Ingest: IngestConfig{Concurrency: DefaultIngestConcurrency},
		Client: ClientConfig{URL: DefaultClientURL},
		Upload: UploadConfig{
			MaxFileSize:  DefaultMaxUploadBytes,
			MaxFileCount: DefaultMaxFileCount,
			Extensions:   DefaultUploadExtensions(),
			Ignore:       DefaultIgnorePatterns(),
		},
		RequestTimeout: DefaultRequestTimeout,
	}
}

// envAliases maps config keys onto the unprefixed variable names the service
// has always read, in addition to the SVS_ prefixed form.
var envAliases = map[string]string{
	"upstage.api_key":                  "UPSTAGE_API_KEY",
	"upstage.parse_url":                "UPSTAGE_DP_URL",
	"upstage.embed_url":                "UPSTAGE_EMBED_URL",
	"embeddings.upstage.passage_model": "UPSTAGE_EMBED_MODEL_PASSAGE",
	"embeddings.upstage.query_model":   "UPSTAGE_EMBED_MODEL_QUERY",
	"vectordb.qdrant.url":              "QDRANT_URL",
	"vectordb.qdrant.api_key":          "QDRANT_API_KEY",
	"vectordb.pgvector.dsn":            "DATABASE_URL",
	"request_timeout":                  "REQUEST_TIMEOUT",
}

// Load reads configuration from the .env file, the config file and
// environment variables, in increasing order of precedence.
func Load(configFile string) error {
	loadDotEnv()

	setDefaults()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(DefaultConfigDir())
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	for key, alias := range envAliases {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := viper.BindEnv(key, prefixed, alias); err != nil {
			return fmt.Errorf("failed to bind %s: %w", alias, err)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug("No config file found, using defaults")
	} else {
		log.Debug("Loaded config from", "file", viper.ConfigFileUsed())
	}

	cfg = &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("error parsing config: %w", err)
	}

	return nil
}

// loadDotEnv exports variables from ./.env without overriding the
// environment.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn("Failed to read .env file", "error", err)
		}
		return
	}
	log.Debug("Loaded environment from .env")
}

// setDefaults sets default values in viper.
func setDefaults() {
	d := DefaultConfig()

	viper.SetDefault("server.host", d.Server.Host)
	viper.SetDefault("server.port", d.Server.Port)
	viper.SetDefault("server.mode", d.Server.Mode)
	viper.SetDefault("server.log_format", d.Server.LogFormat)
	viper.SetDefault("server.max_upload_bytes", d.Server.MaxUploadBytes)
	viper.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	viper.SetDefault("upstage.api_key", "")
	viper.SetDefault("upstage.parse_url", d.Upstage.ParseURL)
	viper.SetDefault("upstage.embed_url", d.Upstage.EmbedURL)

	viper.SetDefault("embeddings.provider", d.Embeddings.Provider)
	viper.SetDefault("embeddings.upstage.passage_model", d.Embeddings.Upstage.PassageModel)
	viper.SetDefault("embeddings.upstage.query_model", d.Embeddings.Upstage.QueryModel)
	viper.SetDefault("embeddings.ollama.url", d.Embeddings.Ollama.URL)
	viper.SetDefault("embeddings.ollama.passage_model", d.Embeddings.Ollama.PassageModel)
	viper.SetDefault("embeddings.ollama.query_model", d.Embeddings.Ollama.QueryModel)

	viper.SetDefault("vectordb.backend", d.VectorDB.Backend)
	viper.SetDefault("vectordb.qdrant.url", d.VectorDB.Qdrant.URL)
	viper.SetDefault("vectordb.qdrant.api_key", "")
	viper.SetDefault("vectordb.sqlite.path", d.VectorDB.SQLite.Path)
	viper.SetDefault("vectordb.pgvector.dsn", "")

	viper.SetDefault("ingest.concurrency", d.Ingest.Concurrency)
	viper.SetDefault("client.url", d.Client.URL)

	viper.SetDefault("upload.max_file_size", d.Upload.MaxFileSize)
	viper.SetDefault("upload.max_file_count", d.Upload.MaxFileCount)
	viper.SetDefault("upload.extensions", d.Upload.Extensions)
	viper.SetDefault("upload.ignore", d.Upload.Ignore)

	viper.SetDefault("request_timeout", d.RequestTimeout)
}

// ConfigFilePath returns the path of the loaded config file, or empty string if none.
func ConfigFilePath() string {
	return viper.ConfigFileUsed()
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Redacted returns a copy with secrets masked for display.
func (c *Config) Redacted() *Config {
	out := *c
	out.Upstage.APIKey = mask(c.Upstage.APIKey)
	out.VectorDB.Qdrant.APIKey = mask(c.VectorDB.Qdrant.APIKey)
	out.VectorDB.PGVector.DSN = mask(c.VectorDB.PGVector.DSN)
	return &out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****"
}
