package codec

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region types
// GenerateRequest is one forward pass request to the model-serving process.
type GenerateRequest struct {
	Model        string
	Prompt       string
	Temperature  float64
	MaxNewTokens int
}

// GenerateResult holds the response from a Generate RPC call: the generated
// text plus one score vector per generation step.
type GenerateResult struct {
	Text   string
	Scores [][]float32
}

// EmbedRequest asks the serving process to embed a batch of texts.
type EmbedRequest struct {
	Model string
	Texts []string
}

// #endregion types

// #region client-struct
// Client wraps the gRPC connection to the model-serving process.
type Client struct {
	conn   *grpc.ClientConn
	invoke grpc.ClientConnInterface
}

// #endregion client-struct

// #region constructor
// NewClient connects to the model-serving gRPC server.
func NewClient(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, invoke: conn}, nil
}

// NewClientWithConn creates a Client over an existing connection.
// Used for testing against an in-process server.
func NewClientWithConn(cc grpc.ClientConnInterface) *Client {
	return &Client{invoke: cc}
}

// #endregion constructor

// #region close
// Close shuts down the gRPC connection. No-op for injected connections.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion close

// #region generate
// Generate sends a prompt to the serving process and returns text and scores.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	in, err := structpb.NewStruct(map[string]any{
		"model":          req.Model,
		"prompt":         req.Prompt,
		"temperature":    req.Temperature,
		"max_new_tokens": req.MaxNewTokens,
	})
	if err != nil {
		return GenerateResult{}, fmt.Errorf("encode generate request: %w", err)
	}

	out := new(structpb.Struct)
	if err := c.invoke.Invoke(ctx, GenerateMethod, in, out); err != nil {
		return GenerateResult{}, fmt.Errorf("generate rpc: %w", err)
	}

	return GenerateResult{
		Text:   out.GetFields()["text"].GetStringValue(),
		Scores: decodeMatrix(out.GetFields()["scores"]),
	}, nil
}

// #endregion generate

// #region embed
// Embed sends texts to the serving process for embedding.
func (c *Client) Embed(ctx context.Context, req EmbedRequest) ([][]float32, error) {
	texts := make([]any, len(req.Texts))
	for i, t := range req.Texts {
		texts[i] = t
	}
	in, err := structpb.NewStruct(map[string]any{
		"model": req.Model,
		"texts": texts,
	})
	if err != nil {
		return nil, fmt.Errorf("encode embed request: %w", err)
	}

	out := new(structpb.Struct)
	if err := c.invoke.Invoke(ctx, EmbedMethod, in, out); err != nil {
		return nil, fmt.Errorf("embed rpc: %w", err)
	}

	vecs := decodeMatrix(out.GetFields()["embeddings"])
	if len(vecs) != len(req.Texts) {
		return nil, fmt.Errorf("embed rpc: got %d embeddings for %d texts", len(vecs), len(req.Texts))
	}
	return vecs, nil
}

// #endregion embed

// #region wire-helpers
func encodeMatrix(m [][]float32) *structpb.Value {
	rows := make([]*structpb.Value, len(m))
	for i, row := range m {
		cols := make([]*structpb.Value, len(row))
		for j, f := range row {
			cols[j] = structpb.NewNumberValue(float64(f))
		}
		rows[i] = structpb.NewListValue(&structpb.ListValue{Values: cols})
	}
	return structpb.NewListValue(&structpb.ListValue{Values: rows})
}

func decodeMatrix(v *structpb.Value) [][]float32 {
	rows := v.GetListValue().GetValues()
	if len(rows) == 0 {
		return nil
	}
	out := make([][]float32, len(rows))
	for i, r := range rows {
		cols := r.GetListValue().GetValues()
		vec := make([]float32, len(cols))
		for j, c := range cols {
			vec[j] = float32(c.GetNumberValue())
		}
		out[i] = vec
	}
	return out
}

// #endregion wire-helpers
