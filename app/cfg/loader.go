package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage
	DBPath string `long:"db" env:"DB_FILENAME" default:"linksift.db" description:"SQLite database file (a file: prefix is accepted)"`

	// HTTP server
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Pipeline
	PollInterval time.Duration `long:"poll-interval" env:"POLL_INTERVAL" default:"5s" description:"Interval between worker polls"`
	StaleAfter   time.Duration `long:"stale-after" env:"STALE_AFTER" default:"10m" description:"Age after which an in-progress claim is returned to the queue"`
	RunTimeout   time.Duration `long:"run-timeout" env:"RUN_TIMEOUT" default:"5m" description:"Upper bound of a single worker run, scheduled or on demand"`
	FetchTimeout time.Duration `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"15s" description:"Timeout for loading a page"`
	MaxRetries   int           `long:"max-retries" env:"MAX_RETRIES" default:"3" description:"Attempts per pipeline step before a link is failed"`
	UserAgent    string        `long:"user-agent" env:"USER_AGENT" default:"linksift/1.0" description:"User agent string for HTTP requests"`
	SeedFile     string        `long:"seed-file" env:"SEED_FILE" description:"YAML file of links to queue at startup (optional)"`

	// Embedding provider
	EmbeddingBaseURL    string        `long:"embedding-url" env:"EMBEDDING_BASE_URL" default:"https://api.mistral.ai/v1" description:"Base URL of the OpenAI-compatible embeddings API"`
	EmbeddingAPIKey     string        `long:"embedding-api-key" env:"MISTRAL_API_KEY" description:"API key of the embeddings provider"`
	EmbeddingModel      string        `long:"embedding-model" env:"EMBEDDING_MODEL" default:"mistral-embed" description:"Embedding model name"`
	EmbeddingDimensions int           `long:"embedding-dimensions" env:"EMBEDDING_DIMENSIONS" default:"1024" description:"Dimension of the embedding vectors"`
	EmbeddingMaxInput   int           `long:"embedding-max-input" env:"EMBEDDING_MAX_INPUT" default:"8000" description:"Longest text, in characters, sent to the model"`
	EmbeddingBatchSize  int           `long:"embedding-batch-size" env:"EMBEDDING_BATCH_SIZE" default:"64" description:"Texts per embeddings request"`
	EmbeddingTimeout    time.Duration `long:"embedding-timeout" env:"EMBEDDING_TIMEOUT" default:"60s" description:"Timeout of an embeddings request"`

	// Search
	SnippetRange int `long:"snippet-range" env:"SNIPPET_RANGE" default:"30" description:"Characters kept on each side of a snippet match"`

	// Application metadata
	Timezone string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug    bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// Load reads the .env files, then flags and environment. It returns nil
// without an error when help was requested.
func Load() (*Cfg, error) {
	return load(os.Args[1:])
}

func load(args []string) (*Cfg, error) {
	if err := loadEnvFiles(os.Getenv("APP_ENV")); err != nil {
		return nil, err
	}

	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:              raw.DBPath,
		Port:                raw.Port,
		APIAccessKey:        raw.APIAccessKey,
		PollInterval:        raw.PollInterval,
		StaleAfter:          raw.StaleAfter,
		RunTimeout:          raw.RunTimeout,
		FetchTimeout:        raw.FetchTimeout,
		MaxRetries:          raw.MaxRetries,
		UserAgent:           raw.UserAgent,
		SeedFile:            raw.SeedFile,
		EmbeddingBaseURL:    raw.EmbeddingBaseURL,
		EmbeddingAPIKey:     raw.EmbeddingAPIKey,
		EmbeddingModel:      raw.EmbeddingModel,
		EmbeddingDimensions: raw.EmbeddingDimensions,
		EmbeddingMaxInput:   raw.EmbeddingMaxInput,
		EmbeddingBatchSize:  raw.EmbeddingBatchSize,
		EmbeddingTimeout:    raw.EmbeddingTimeout,
		SnippetRange:        raw.SnippetRange,
		Timezone:            raw.Timezone,
		Debug:               raw.Debug,
		Version:             GetVersion(),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	return cfg, nil
}

// loadEnvFiles loads .env.<env>.local, .env.local, .env.<env> and .env in
// that order. Variables already set are never overridden, so earlier files
// and the real environment win.
func loadEnvFiles(env string) error {
	var files []string
	if env != "" {
		files = append(files, ".env."+env+".local")
	}
	files = append(files, ".env.local")
	if env != "" {
		files = append(files, ".env."+env)
	}
	files = append(files, ".env")

	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

func validate(cfg *Cfg) error {
	var problems []string

	if strings.TrimSpace(cfg.DBPath) == "" {
		problems = append(problems, "database path is empty")
	}
	if cfg.PollInterval <= 0 {
		problems = append(problems, "poll interval must be positive")
	}
	if cfg.RunTimeout <= 0 {
		problems = append(problems, "run timeout must be positive")
	} else if cfg.StaleAfter <= cfg.RunTimeout {
		// Claims must outlive the longest run.
		problems = append(problems, "stale-after must be longer than the run timeout")
	}
	if cfg.MaxRetries <= 0 {
		problems = append(problems, "max retries must be positive")
	}
	if cfg.EmbeddingDimensions <= 0 || cfg.EmbeddingMaxInput <= 0 || cfg.EmbeddingBatchSize <= 0 {
		problems = append(problems, "embedding dimensions, max input and batch size must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
