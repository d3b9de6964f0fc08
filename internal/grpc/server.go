package grpc

import (
	"context"
	"errors"
	"net"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"esadad-service/internal/encryption"
	"esadad-service/internal/gateway"
	"esadad-service/internal/ledger"
	"esadad-service/internal/services"
)

type Payments interface {
	Token(ctx context.Context, forceNew bool) (*gateway.Response, error)
	InitiatePayment(ctx context.Context, req services.InitiatePaymentRequest) (*gateway.Response, error)
	RequestPayment(ctx context.Context, req services.PaymentRequest) (*gateway.Response, error)
	ConfirmPayment(ctx context.Context, req services.ConfirmPaymentRequest) (*gateway.Response, error)
}

type TransactionFinder interface {
	Find(ctx context.Context, id uint) (*services.TransactionView, error)
}

type Server struct {
	Payments     Payments
	Transactions TransactionFinder
	Log          logrus.FieldLogger
}

func (s *Server) Authenticate(ctx context.Context, req *AuthenticateRequest) (*GatewayReply, error) {
	resp, err := s.Payments.Token(ctx, req.ForceNew)
	return s.reply(resp, err)
}

func (s *Server) InitiatePayment(ctx context.Context, req *InitiatePaymentRequest) (*GatewayReply, error) {
	resp, err := s.Payments.InitiatePayment(ctx, services.InitiatePaymentRequest{
		CustomerID:       req.CustomerID,
		CustomerPassword: req.CustomerPassword,
		Token:            services.ExplicitToken(req.TokenKey),
	})
	return s.reply(resp, err)
}

func (s *Server) RequestPayment(ctx context.Context, req *RequestPaymentRequest) (*GatewayReply, error) {
	resp, err := s.Payments.RequestPayment(ctx, services.PaymentRequest{
		CustomerID: req.CustomerID,
		OTP:        req.OTP,
		InvoiceID:  req.InvoiceID,
		Amount:     req.Amount,
		Currency:   req.Currency,
		Token:      services.ExplicitToken(req.TokenKey),
	})
	return s.reply(resp, err)
}

func (s *Server) ConfirmPayment(ctx context.Context, req *ConfirmPaymentRequest) (*GatewayReply, error) {
	resp, err := s.Payments.ConfirmPayment(ctx, services.ConfirmPaymentRequest{
		CustomerID:    req.CustomerID,
		Details:       req.Details,
		Amount:        req.Amount,
		Currency:      req.Currency,
		PaymentStatus: req.PaymentStatus,
		Token:         services.ExplicitToken(req.TokenKey),
	})
	return s.reply(resp, err)
}

func (s *Server) GetTransaction(ctx context.Context, req *GetTransactionRequest) (*TransactionReply, error) {
	view, err := s.Transactions.Find(ctx, req.ID)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return &TransactionReply{Transaction: view}, nil
}

func (s *Server) reply(resp *gateway.Response, err error) (*GatewayReply, error) {
	if err != nil {
		return nil, s.toStatus(err)
	}
	return &GatewayReply{Success: resp.Successful(), Response: resp.Map()}, nil
}

func (s *Server) toStatus(err error) error {
	var (
		validation *services.ValidationError
		encErr     *encryption.EncryptionError
	)
	switch {
	case errors.As(err, &validation):
		return status.Error(codes.InvalidArgument, validation.Error())
	case errors.Is(err, ledger.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case gateway.IsTransportError(err):
		s.logger().WithError(err).Error("eSADAD gateway call failed")
		return status.Error(codes.Unavailable, "payment gateway unavailable")
	case errors.As(err, &encErr):
		s.logger().WithError(err).Error("eSADAD encryption failed")
		return status.Error(codes.Internal, "encryption failed")
	default:
		s.logger().WithError(err).Error("eSADAD rpc failed")
		return status.Error(codes.Internal, err.Error())
	}
}

func (s *Server) logger() logrus.FieldLogger {
	if s.Log == nil {
		return logrus.StandardLogger()
	}
	return s.Log
}

// StartGRPCServer initializes and starts the gRPC server
func StartGRPCServer(port string, payments Payments, transactions TransactionFinder, log logrus.FieldLogger) {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}
	s := grpc.NewServer()
	RegisterGatewayServiceServer(s, &Server{
		Payments:     payments,
		Transactions: transactions,
		Log:          log,
	})

	log.Infof("gRPC server listening at %v", lis.Addr())
	if err := s.Serve(lis); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
