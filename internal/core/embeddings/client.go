// Package embeddings generates text embeddings for paper similarity search.
//
// One provider is active per process, selected by configuration: the OpenAI
// API for real deployments, or a deterministic mock for development and
// tests. Provider output is normalized to the target dimension, because the
// vector column width is fixed by the schema.
package embeddings

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Provider names accepted in configuration.
const (
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// DefaultDimension matches the vector column in the papers schema.
const DefaultDimension = 768

// Client generates embeddings. Dimensions reports the vector length every
// GetEmbedding result has.
type Client interface {
	GetEmbedding(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Config selects and tunes the active provider.
type Config struct {
	Provider  string
	APIKey    string
	Model     string
	Dimension int
	RPS       float64
}

// New creates the configured embedding client. An OpenAI selection without
// an API key degrades to the mock so local development works unconfigured.
func New(cfg Config, logger *zerolog.Logger) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderMock:
		return NewMock(cfg.Dimension), nil
	case ProviderOpenAI, "":
		if cfg.APIKey == "" {
			logger.Warn().Msg("No embeddings API key configured, using mock provider")
			return NewMock(cfg.Dimension), nil
		}

		return NewOpenAI(cfg), nil
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", cfg.Provider)
	}
}
