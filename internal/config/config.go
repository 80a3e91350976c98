package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// defaultUserAgent mimics a desktop Chrome so university sites serve the
// same markup they serve to real visitors.
const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"local"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	HealthPort  int    `env:"HEALTH_PORT" envDefault:"8080"`

	// Orchestrator
	WorkerCount      int           `env:"WORKER_COUNT" envDefault:"5"`
	DispatchInterval time.Duration `env:"DISPATCH_INTERVAL" envDefault:"1s"`
	EnqueuePacing    time.Duration `env:"ENQUEUE_PACING" envDefault:"100ms"`
	DrainTimeout     time.Duration `env:"DRAIN_TIMEOUT" envDefault:"30s"`

	// Harvester
	HarvestRequestDelay time.Duration `env:"HARVEST_REQUEST_DELAY" envDefault:"500ms"`
	HarvestTimeout      time.Duration `env:"HARVEST_TIMEOUT" envDefault:"15s"`
	HarvestUserAgent    string        `env:"HARVEST_USER_AGENT"`
	HarvestMaxProfiles  int           `env:"HARVEST_MAX_PROFILES" envDefault:"250"`
	HarvestDeepEmail    bool          `env:"HARVEST_DEEP_EMAIL" envDefault:"false"`

	// Browser renderer
	RenderEnabled    bool          `env:"RENDER_ENABLED" envDefault:"true"`
	RenderNavTimeout time.Duration `env:"RENDER_NAV_TIMEOUT" envDefault:"30s"`

	// Bibliographic API
	ScholarBaseURL string `env:"SCHOLAR_BASE_URL" envDefault:"https://api.semanticscholar.org/graph/v1"`
	ScholarAPIKey  string `env:"SCHOLAR_API_KEY"`

	// Embeddings
	EmbeddingsProvider  string  `env:"EMBEDDINGS_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey        string  `env:"OPENAI_API_KEY"`
	EmbeddingsModel     string  `env:"EMBEDDINGS_MODEL" envDefault:"text-embedding-3-small"`
	EmbeddingsDimension int     `env:"EMBEDDINGS_DIMENSION" envDefault:"768"`
	EmbeddingsRPS       float64 `env:"EMBEDDINGS_RPS" envDefault:"5"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if cfg.HarvestUserAgent == "" {
		cfg.HarvestUserAgent = defaultUserAgent
	}

	return cfg, nil
}
