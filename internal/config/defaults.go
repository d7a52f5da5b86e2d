package config

import (
	"os"
	"path/filepath"
)

// EnvPrefix prefixes every environment variable viper reads automatically.
const EnvPrefix = "SVS"

// Default configuration values
const (
	// Server defaults
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 8000
	DefaultServerMode      = "release"
	DefaultLogFormat       = "text"
	DefaultMaxUploadBytes  = 50 << 20 // 50MB
	DefaultShutdownTimeout = 10       // seconds

	// Upstage defaults
	DefaultUpstageParseURL = "https://api.upstage.ai/v1/document-digitization"
	DefaultUpstageEmbedURL = "https://api.upstage.ai/v1/solar/embeddings"
	DefaultPassageModel    = "solar-embedding-1-large-passage"
	DefaultQueryModel      = "solar-embedding-1-large-query"

	// Embedding defaults
	DefaultEmbeddingProvider = "upstage"
	DefaultOllamaURL         = "http://localhost:11434"
	DefaultOllamaEmbedModel  = "nomic-embed-text"

	// Vector database defaults
	DefaultVectorBackend = "qdrant"
	DefaultQdrantURL     = "http://localhost:6333"
	DefaultDBFileName    = "vectors.db"

	// Pipeline defaults
	DefaultIngestConcurrency = 4
	DefaultRequestTimeout    = 300 // seconds

	// Client defaults
	DefaultClientURL    = "http://localhost:8000"
	DefaultMaxFileCount = 1000
)

// DefaultUploadExtensions returns the document types the parser accepts.
func DefaultUploadExtensions() []string {
	return []string{
		".pdf", ".docx", ".pptx", ".xlsx", ".hwp", ".hwpx",
		".jpg", ".jpeg", ".png", ".bmp", ".tiff", ".heic",
	}
}

// DefaultIgnorePatterns returns the default list of file patterns to skip
// when uploading a directory.
func DefaultIgnorePatterns() []string {
	return []string{
		// Version control
		".git/",
		".svn/",
		".hg/",

		// Dependencies and build outputs
		"node_modules/",
		"vendor/",
		".venv/",
		"dist/",
		"build/",

		// Editor and OS droppings
		".idea/",
		".vscode/",
		"*.swp",
		"*~",
		"~$*",
		".DS_Store",
		"Thumbs.db",

		// Secrets
		".env",
		".env.*",
	}
}

// DefaultConfigDir returns the default configuration directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/solar-vector-store"
	}
	return filepath.Join(home, ".config", "solar-vector-store")
}

// DefaultDataDir returns the default data directory path.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".local/share/solar-vector-store"
	}
	return filepath.Join(home, ".local", "share", "solar-vector-store")
}

// DefaultDatabasePath returns the default sqlite-vec database file path.
func DefaultDatabasePath() string {
	return filepath.Join(DefaultDataDir(), DefaultDBFileName)
}
