package retrieval

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"

	"github.com/danielpatrickdp/citeloop/internal/codec"
)

// Encoder turns texts into fixed-dimension vectors.
type Encoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// #region codec-encoder

// Embedder is the slice of codec.Client the codec encoder needs.
type Embedder interface {
	Embed(ctx context.Context, req codec.EmbedRequest) ([][]float32, error)
}

// CodecEncoder embeds through the model-serving process.
type CodecEncoder struct {
	client Embedder
	model  string
	dim    int
}

// NewCodecEncoder creates an encoder for a sentence-embedding model of width dim.
func NewCodecEncoder(client Embedder, model string, dim int) *CodecEncoder {
	return &CodecEncoder{client: client, model: model, dim: dim}
}

func (e *CodecEncoder) Dimensions() int { return e.dim }

func (e *CodecEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := e.client.Embed(ctx, codec.EmbedRequest{Model: e.model, Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("codec encode: %w", err)
	}
	return vecs, nil
}

// #endregion codec-encoder

// #region genai-encoder

// GenAIEncoder embeds with the Gemini embedding API.
type GenAIEncoder struct {
	client   *genai.Client
	model    string
	taskType string
	dim      int
}

// NewGenAIEncoder creates a Gemini embedding client. model defaults to
// gemini-embedding-001 and taskType to RETRIEVAL_QUERY.
func NewGenAIEncoder(ctx context.Context, apiKey, model, taskType string, dim int) (*GenAIEncoder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("genai encoder: API key is required")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}
	if taskType == "" {
		taskType = "RETRIEVAL_QUERY"
	}
	if dim <= 0 {
		dim = 768
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GenAIEncoder{client: client, model: model, taskType: taskType, dim: dim}, nil
}

func (e *GenAIEncoder) Dimensions() int { return e.dim }

func (e *GenAIEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}
	dim := int32(e.dim)
	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		TaskType:             e.taskType,
		OutputDimensionality: &dim,
	})
	if err != nil {
		return nil, fmt.Errorf("genai embed: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("genai embed: got %d embeddings for %d texts", len(result.Embeddings), len(texts))
	}
	out := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		out[i] = emb.Values
	}
	return out, nil
}

// #endregion genai-encoder

// #region batch-encoder

// BatchEncoder splits large inputs into fixed-size batches and encodes them
// concurrently. Output order matches input order.
type BatchEncoder struct {
	inner       Encoder
	batchSize   int
	concurrency int
}

// NewBatchEncoder wraps inner using the batch limits from config.
func NewBatchEncoder(inner Encoder, config RetrievalConfig) *BatchEncoder {
	bs := config.BatchSize
	if bs <= 0 {
		bs = DefaultConfig().BatchSize
	}
	c := config.Concurrency
	if c <= 0 {
		c = 1
	}
	return &BatchEncoder{inner: inner, batchSize: bs, concurrency: c}
}

func (b *BatchEncoder) Dimensions() int { return b.inner.Dimensions() }

func (b *BatchEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) <= b.batchSize {
		return b.inner.Encode(ctx, texts)
	}

	out := make([][]float32, len(texts))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(b.concurrency)
	for start := 0; start < len(texts); start += b.batchSize {
		end := min(start+b.batchSize, len(texts))
		eg.Go(func() error {
			vecs, err := b.inner.Encode(egCtx, texts[start:end])
			if err != nil {
				return fmt.Errorf("batch %d-%d: %w", start, end, err)
			}
			if len(vecs) != end-start {
				return fmt.Errorf("batch %d-%d: got %d vectors", start, end, len(vecs))
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// #endregion batch-encoder
