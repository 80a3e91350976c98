package embeddings

import "testing"

func TestNewOpenAIDefaults(t *testing.T) {
	t.Run("fills missing settings", func(t *testing.T) {
		client := NewOpenAI(Config{APIKey: "sk-test"})

		if client.model != ModelTextEmbedding3Small {
			t.Errorf("model: got %q, want %q", client.model, ModelTextEmbedding3Small)
		}

		if got := client.Dimensions(); got != DefaultDimension {
			t.Errorf("dimensions: got %d, want %d", got, DefaultDimension)
		}
	})

	t.Run("keeps explicit settings", func(t *testing.T) {
		client := NewOpenAI(Config{
			APIKey:    "sk-test",
			Model:     ModelTextEmbedding3Large,
			Dimension: 1536,
			RPS:       10,
		})

		if client.model != ModelTextEmbedding3Large {
			t.Errorf("model: got %q, want %q", client.model, ModelTextEmbedding3Large)
		}

		if got := client.Dimensions(); got != 1536 {
			t.Errorf("dimensions: got %d, want 1536", got)
		}
	})
}
