package cfg

import "time"

type Cfg struct {
	// Storage
	DBPath string

	// HTTP server
	Port         string
	APIAccessKey string

	// Pipeline
	PollInterval time.Duration
	StaleAfter   time.Duration
	RunTimeout   time.Duration
	FetchTimeout time.Duration
	MaxRetries   int
	UserAgent    string
	SeedFile     string

	// Embedding provider
	EmbeddingBaseURL    string
	EmbeddingAPIKey     string
	EmbeddingModel      string
	EmbeddingDimensions int
	EmbeddingMaxInput   int
	EmbeddingBatchSize  int
	EmbeddingTimeout    time.Duration

	// Search
	SnippetRange int

	// Application metadata
	Timezone string
	Debug    bool
	Version  string
}
