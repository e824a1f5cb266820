package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration settings
type Config struct {
	// Storage configuration
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`

	// Hosting platform (GitHub) configuration
	Hosting HostingConfig `yaml:"hosting" mapstructure:"hosting"`

	// Embedding service configuration
	Embedding EmbeddingConfig `yaml:"embedding" mapstructure:"embedding"`

	// Parsing service configuration
	Parsing ParsingConfig `yaml:"parsing" mapstructure:"parsing"`

	// Analysis tunables
	Analysis AnalysisConfig `yaml:"analysis" mapstructure:"analysis"`

	// Pipeline execution settings
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`

	// Webhook queue settings
	Queue QueueConfig `yaml:"queue" mapstructure:"queue"`
}

type StorageConfig struct {
	Type        string `yaml:"type" mapstructure:"type"` // "postgres", "sqlite"
	PostgresDSN string `yaml:"postgres_dsn" mapstructure:"postgres_dsn"`
	LocalPath   string `yaml:"local_path" mapstructure:"local_path"`
}

type HostingConfig struct {
	Token      string `yaml:"token" mapstructure:"token"`
	RateLimit  int    `yaml:"rate_limit" mapstructure:"rate_limit"` // requests per second
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
	// WebhookSecret validates X-Hub-Signature-256 on deliveries. Empty
	// disables signature checks.
	WebhookSecret string `yaml:"webhook_secret" mapstructure:"webhook_secret"`
}

type EmbeddingConfig struct {
	APIKey    string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL   string        `yaml:"base_url" mapstructure:"base_url"`
	Model     string        `yaml:"model" mapstructure:"model"`
	Dimension int           `yaml:"dimension" mapstructure:"dimension"`
	RateLimit int           `yaml:"rate_limit" mapstructure:"rate_limit"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

type ParsingConfig struct {
	// Mode "local" parses with the built-in tree-sitter extractor;
	// "remote" calls the parsing service at URL.
	Mode    string        `yaml:"mode" mapstructure:"mode"`
	URL     string        `yaml:"url" mapstructure:"url"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// AnalysisConfig carries the thresholds the detectors depend on. The
// replacement thresholds and the overlap convention are deliberately tunable:
// the right values vary per codebase and should be validated empirically.
type AnalysisConfig struct {
	// ReplacementSimilarityMax flags a revision pair as a semantic rewrite
	// when cosine similarity falls below this value.
	ReplacementSimilarityMax float64 `yaml:"replacement_similarity_max" mapstructure:"replacement_similarity_max"`
	// ReplacementWindow is how soon after the original commit a rewrite must
	// land to count as a replacement.
	ReplacementWindow time.Duration `yaml:"replacement_window" mapstructure:"replacement_window"`
	// FixMessageBoost multiplies an event's weight when the replacing commit
	// message carries fix/bug vocabulary.
	FixMessageBoost float64 `yaml:"fix_message_boost" mapstructure:"fix_message_boost"`
	// OverlapConvention selects the structural overlap denominator:
	// "changed" = intersection / |changedFiles|, "jaccard" = intersection / union.
	OverlapConvention string `yaml:"overlap_convention" mapstructure:"overlap_convention"`
	// StructuralWeight and SemanticWeight combine into the final risk score.
	StructuralWeight float64 `yaml:"structural_weight" mapstructure:"structural_weight"`
	SemanticWeight   float64 `yaml:"semantic_weight" mapstructure:"semantic_weight"`
}

type PipelineConfig struct {
	DataDir        string        `yaml:"data_dir" mapstructure:"data_dir"`
	Workers        int           `yaml:"workers" mapstructure:"workers"`
	MaxRetries     int           `yaml:"max_retries" mapstructure:"max_retries"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay" mapstructure:"retry_base_delay"`
	CallTimeout    time.Duration `yaml:"call_timeout" mapstructure:"call_timeout"`
}

type QueueConfig struct {
	// ListenAddr is the bind address of the webhook intake server.
	ListenAddr   string        `yaml:"listen_addr" mapstructure:"listen_addr"`
	Workers      int           `yaml:"workers" mapstructure:"workers"`
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
	MaxRetries   int           `yaml:"max_retries" mapstructure:"max_retries"`
	// RecomputeSchedule is a cron expression for the periodic negative score
	// recompute. Empty disables the job.
	RecomputeSchedule string `yaml:"recompute_schedule" mapstructure:"recompute_schedule"`
}

// Default returns default configuration
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Storage: StorageConfig{
			Type:      "sqlite",
			LocalPath: filepath.Join(homeDir, ".codeprov", "local.db"),
		},
		Hosting: HostingConfig{
			RateLimit: 10,
		},
		Embedding: EmbeddingConfig{
			Model:     "text-embedding-3-small",
			Dimension: 768,
			RateLimit: 20,
			Timeout:   30 * time.Second,
		},
		Parsing: ParsingConfig{
			Mode:    "local",
			Timeout: 15 * time.Second,
		},
		Analysis: AnalysisConfig{
			ReplacementSimilarityMax: 0.35,
			ReplacementWindow:        72 * time.Hour,
			FixMessageBoost:          1.5,
			OverlapConvention:        "changed",
			StructuralWeight:         0.4,
			SemanticWeight:           0.6,
		},
		Pipeline: PipelineConfig{
			DataDir:        filepath.Join(homeDir, ".codeprov", "repos"),
			Workers:        8,
			MaxRetries:     3,
			RetryBaseDelay: 500 * time.Millisecond,
			CallTimeout:    30 * time.Second,
		},
		Queue: QueueConfig{
			ListenAddr:        ":8472",
			Workers:           2,
			PollInterval:      2 * time.Second,
			MaxRetries:        5,
			RecomputeSchedule: "0 3 * * *",
		},
	}
}

// Load reads configuration from file and environment.
// Priority: env vars > config file > defaults.
func Load(cfgFile string) (*Config, error) {
	// Load .env if present; ignore absence
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("CODEPROV")
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".codeprov")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".codeprov"))
		}
	}

	cfg := Default()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// No config file: defaults plus env below
	} else if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides maps well-known environment variables onto the config.
// Credentials are only ever read from the environment, never logged.
func applyEnvOverrides(cfg *Config) {
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		cfg.Hosting.Token = token
	}
	if secret := os.Getenv("GITHUB_WEBHOOK_SECRET"); secret != "" {
		cfg.Hosting.WebhookSecret = secret
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.Embedding.APIKey = key
	}
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		cfg.Storage.Type = "postgres"
		cfg.Storage.PostgresDSN = dsn
	}
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage type postgres requires postgres_dsn")
		}
	case "sqlite":
		if c.Storage.LocalPath == "" {
			return fmt.Errorf("storage type sqlite requires local_path")
		}
	default:
		return fmt.Errorf("unknown storage type: %s", c.Storage.Type)
	}

	if c.Analysis.ReplacementSimilarityMax < 0 || c.Analysis.ReplacementSimilarityMax > 1 {
		return fmt.Errorf("replacement_similarity_max must be in [0,1], got %f", c.Analysis.ReplacementSimilarityMax)
	}
	if c.Analysis.ReplacementWindow <= 0 {
		return fmt.Errorf("replacement_window must be positive")
	}
	if c.Analysis.FixMessageBoost < 1 {
		return fmt.Errorf("fix_message_boost must be >= 1, got %f", c.Analysis.FixMessageBoost)
	}
	switch c.Analysis.OverlapConvention {
	case "changed", "jaccard":
	default:
		return fmt.Errorf("overlap_convention must be \"changed\" or \"jaccard\", got %q", c.Analysis.OverlapConvention)
	}
	if w := c.Analysis.StructuralWeight + c.Analysis.SemanticWeight; w < 0.999 || w > 1.001 {
		return fmt.Errorf("structural_weight + semantic_weight must sum to 1, got %f", w)
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline workers must be positive")
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}
	return nil
}
