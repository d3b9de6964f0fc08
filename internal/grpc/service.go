package grpc

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "esadad.GatewayService"

type GatewayServiceServer interface {
	Authenticate(context.Context, *AuthenticateRequest) (*GatewayReply, error)
	InitiatePayment(context.Context, *InitiatePaymentRequest) (*GatewayReply, error)
	RequestPayment(context.Context, *RequestPaymentRequest) (*GatewayReply, error)
	ConfirmPayment(context.Context, *ConfirmPaymentRequest) (*GatewayReply, error)
	GetTransaction(context.Context, *GetTransactionRequest) (*TransactionReply, error)
}

func RegisterGatewayServiceServer(s grpc.ServiceRegistrar, srv GatewayServiceServer) {
	s.RegisterService(&GatewayServiceDesc, srv)
}

// unary builds a method handler decoding into a fresh T.
func unary[T any, R any](method string, call func(GatewayServiceServer, context.Context, *T) (R, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(T)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(GatewayServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + serviceName + "/" + method,
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(GatewayServiceServer), ctx, req.(*T))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var GatewayServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*GatewayServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Authenticate", GatewayServiceServer.Authenticate),
		unary("InitiatePayment", GatewayServiceServer.InitiatePayment),
		unary("RequestPayment", GatewayServiceServer.RequestPayment),
		unary("ConfirmPayment", GatewayServiceServer.ConfirmPayment),
		unary("GetTransaction", GatewayServiceServer.GetTransaction),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "esadad/gateway.proto",
}
