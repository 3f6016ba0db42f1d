package codec

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region service-desc
const serviceName = "citeloop.codec.v1.Codec"

// Full method names served by the model-serving process.
const (
	GenerateMethod = "/" + serviceName + "/Generate"
	EmbedMethod    = "/" + serviceName + "/Embed"
)

// Handler is the Go-side contract of the serving process. A Python server
// implements the same two methods over google.protobuf.Struct messages.
type Handler interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error)
	Embed(ctx context.Context, req EmbedRequest) ([][]float32, error)
}

// structServer is the wire-level interface registered with grpc.
type structServer interface {
	generate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	embed(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*structServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Generate", Handler: generateHandler},
		{MethodName: "Embed", Handler: embedHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "codec.proto",
}

// RegisterHandler registers h on a grpc server.
func RegisterHandler(s grpc.ServiceRegistrar, h Handler) {
	s.RegisterService(&serviceDesc, &handlerAdapter{h: h})
}

// #endregion service-desc

// #region handlers
func generateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(structServer).generate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GenerateMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(structServer).generate(ctx, req.(*structpb.Struct))
	})
}

func embedHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(structServer).embed(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: EmbedMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(structServer).embed(ctx, req.(*structpb.Struct))
	})
}

// #endregion handlers

// #region adapter
type handlerAdapter struct {
	h Handler
}

func (a *handlerAdapter) generate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	f := in.GetFields()
	res, err := a.h.Generate(ctx, GenerateRequest{
		Model:        f["model"].GetStringValue(),
		Prompt:       f["prompt"].GetStringValue(),
		Temperature:  f["temperature"].GetNumberValue(),
		MaxNewTokens: int(f["max_new_tokens"].GetNumberValue()),
	})
	if err != nil {
		return nil, err
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"text":   structpb.NewStringValue(res.Text),
		"scores": encodeMatrix(res.Scores),
	}}, nil
}

func (a *handlerAdapter) embed(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	f := in.GetFields()
	raw := f["texts"].GetListValue().GetValues()
	texts := make([]string, len(raw))
	for i, v := range raw {
		texts[i] = v.GetStringValue()
	}
	vecs, err := a.h.Embed(ctx, EmbedRequest{Model: f["model"].GetStringValue(), Texts: texts})
	if err != nil {
		return nil, err
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"embeddings": encodeMatrix(vecs),
	}}, nil
}

// #endregion adapter
