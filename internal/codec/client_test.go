package codec

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

// #region fake-handler
type fakeHandler struct {
	lastGenerate GenerateRequest
	lastEmbed    EmbedRequest

	generateResp GenerateResult
	generateErr  error

	embedResp [][]float32
	embedErr  error
}

func (f *fakeHandler) Generate(_ context.Context, req GenerateRequest) (GenerateResult, error) {
	f.lastGenerate = req
	return f.generateResp, f.generateErr
}

func (f *fakeHandler) Embed(_ context.Context, req EmbedRequest) ([][]float32, error) {
	f.lastEmbed = req
	return f.embedResp, f.embedErr
}

// #endregion fake-handler

// #region helpers
func startServer(t *testing.T, h Handler) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterHandler(srv, h)
	go func() { _ = srv.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		srv.Stop()
	})
	return NewClientWithConn(conn)
}

// #endregion helpers

// #region constructor-tests
func TestNewClient_LazyDial(t *testing.T) {
	client, err := NewClient("localhost:0")
	require.NoError(t, err)
	require.NoError(t, client.Close())
}

func TestNewClientWithConn_CloseIsNoop(t *testing.T) {
	c := NewClientWithConn(nil)
	assert.NoError(t, c.Close())
}

// #endregion constructor-tests

// #region generate-tests
func TestGenerate_Success(t *testing.T) {
	h := &fakeHandler{generateResp: GenerateResult{
		Text:   "primary",
		Scores: [][]float32{{0.1, 0.2}, {1.5, -2, 0.25}},
	}}
	c := startServer(t, h)

	res, err := c.Generate(context.Background(), GenerateRequest{
		Model:        "llama3",
		Prompt:       "Label:",
		Temperature:  0,
		MaxNewTokens: 32,
	})
	require.NoError(t, err)
	assert.Equal(t, "primary", res.Text)
	assert.Equal(t, [][]float32{{0.1, 0.2}, {1.5, -2, 0.25}}, res.Scores)

	assert.Equal(t, "llama3", h.lastGenerate.Model)
	assert.Equal(t, "Label:", h.lastGenerate.Prompt)
	assert.Equal(t, 32, h.lastGenerate.MaxNewTokens)
}

func TestGenerate_Error(t *testing.T) {
	h := &fakeHandler{generateErr: status.Error(codes.Unavailable, "model not loaded")}
	c := startServer(t, h)

	_, err := c.Generate(context.Background(), GenerateRequest{Prompt: "x"})
	require.Error(t, err)
	assert.Equal(t, codes.Unavailable, status.Code(errors.Unwrap(err)))
}

func TestGenerate_EmptyScores(t *testing.T) {
	c := startServer(t, &fakeHandler{generateResp: GenerateResult{Text: "none"}})

	res, err := c.Generate(context.Background(), GenerateRequest{Prompt: "x"})
	require.NoError(t, err)
	assert.Empty(t, res.Scores)
}

// #endregion generate-tests

// #region embed-tests
func TestEmbed_Success(t *testing.T) {
	h := &fakeHandler{embedResp: [][]float32{{1, 0}, {0, 1}}}
	c := startServer(t, h)

	vecs, err := c.Embed(context.Background(), EmbedRequest{Model: "mpnet", Texts: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)
	assert.Equal(t, []string{"a", "b"}, h.lastEmbed.Texts)
	assert.Equal(t, "mpnet", h.lastEmbed.Model)
}

func TestEmbed_CountMismatch(t *testing.T) {
	c := startServer(t, &fakeHandler{embedResp: [][]float32{{1, 0}}})

	_, err := c.Embed(context.Background(), EmbedRequest{Texts: []string{"a", "b"}})
	require.Error(t, err)
}

func TestEmbed_Error(t *testing.T) {
	c := startServer(t, &fakeHandler{embedErr: errors.New("boom")})

	_, err := c.Embed(context.Background(), EmbedRequest{Texts: []string{"a"}})
	require.Error(t, err)
}

// #endregion embed-tests
