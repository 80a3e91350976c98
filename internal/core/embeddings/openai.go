package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const (
	ModelTextEmbedding3Small = "text-embedding-3-small"
	ModelTextEmbedding3Large = "text-embedding-3-large"

	openaiRateBurst = 5
)

// ErrEmptyEmbedding indicates the API answered without any embedding data.
var ErrEmptyEmbedding = errors.New("empty embedding response")

// OpenAI generates embeddings through the OpenAI API, paced by a client-side
// rate limiter so a burst of embed tasks stays inside the account quota.
type OpenAI struct {
	client    *openai.Client
	model     string
	dimension int
	limiter   *rate.Limiter
}

var _ Client = (*OpenAI)(nil)

func NewOpenAI(cfg Config) *OpenAI {
	model := cfg.Model
	if model == "" {
		model = ModelTextEmbedding3Small
	}

	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = DefaultDimension
	}

	rps := cfg.RPS
	if rps <= 0 {
		rps = 1
	}

	return &OpenAI{
		client:    openai.NewClient(cfg.APIKey),
		model:     model,
		dimension: dimension,
		limiter:   rate.NewLimiter(rate.Limit(rps), openaiRateBurst),
	}
}

func (o *OpenAI) Dimensions() int {
	return o.dimension
}

// GetEmbedding embeds one text. The third-generation models accept the
// output dimension as a request parameter; anything the model still returns
// off-size is padded or truncated to the schema width.
func (o *OpenAI) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req := openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(o.model),
	}

	if strings.HasPrefix(o.model, "text-embedding-3") {
		req.Dimensions = o.dimension
	}

	resp, err := o.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, ErrEmptyEmbedding
	}

	return normalizeDimension(resp.Data[0].Embedding, o.dimension), nil
}
