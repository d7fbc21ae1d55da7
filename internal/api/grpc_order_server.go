package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"bistro/server/internal/models"
	"bistro/server/internal/services"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Имена метода для клиентов без сгенерированного кода
const (
	GRPCServiceName         = "bistro.v1.OrderService"
	GRPCPlaceOrder          = "/" + GRPCServiceName + "/PlaceOrder"
	GRPCGetServiceGate      = "/" + GRPCServiceName + "/GetServiceGate"
	GRPCWatchServiceGate    = "/" + GRPCServiceName + "/WatchServiceGate"
	grpcIdentityMetadataKey = "authorization"
)

// OrderServiceServer контракт gRPC сервиса оформления заказов.
// Сообщения - google.protobuf.Struct с теми же полями, что и HTTP JSON
type OrderServiceServer interface {
	PlaceOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetServiceGate(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	WatchServiceGate(*emptypb.Empty, grpc.ServerStream) error
}

// OrderServiceDesc описание сервиса для grpc.Server и клиентских стримов
var OrderServiceDesc = grpc.ServiceDesc{
	ServiceName: GRPCServiceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "PlaceOrder", Handler: placeOrderHandler},
		{MethodName: "GetServiceGate", Handler: getServiceGateHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "WatchServiceGate", Handler: watchServiceGateHandler, ServerStreams: true},
	},
	Metadata: "bistro/v1/order_service.proto",
}

func placeOrderHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderServiceServer).PlaceOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GRPCPlaceOrder}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(OrderServiceServer).PlaceOrder(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func getServiceGateHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderServiceServer).GetServiceGate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GRPCGetServiceGate}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(OrderServiceServer).GetServiceGate(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func watchServiceGateHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(OrderServiceServer).WatchServiceGate(in, stream)
}

// OrderGRPCServer gRPC вход для кассовых терминалов
type OrderGRPCServer struct {
	orders    *services.OrderService
	gate      *services.ServiceGate
	jwtSecret string
	log       *zap.Logger

	stopping chan struct{} // закрывается в Shutdown, стримы подписки завершаются
	stopOnce sync.Once
}

// NewOrderGRPCServer создает gRPC сервер заказов
func NewOrderGRPCServer(orders *services.OrderService, gate *services.ServiceGate, jwtSecret string, log *zap.Logger) *OrderGRPCServer {
	return &OrderGRPCServer{
		orders:    orders,
		gate:      gate,
		jwtSecret: jwtSecret,
		log:       log,
		stopping:  make(chan struct{}),
	}
}

// Shutdown закрывает стримы WatchServiceGate и ждет текущие вызовы.
// Если ctx истек раньше, соединения рвутся через Stop
func (s *OrderGRPCServer) Shutdown(ctx context.Context, server *grpc.Server) {
	s.stopOnce.Do(func() { close(s.stopping) })

	done := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("⚠️ gRPC GracefulStop не успел, закрываем соединения")
		server.Stop()
		<-done
	}
}

// NewGRPCServer создает grpc.Server с проверкой личности и зарегистрированным сервисом
func (s *OrderGRPCServer) NewGRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts,
		grpc.UnaryInterceptor(s.unaryIdentity),
		grpc.StreamInterceptor(s.streamIdentity),
	)
	server := grpc.NewServer(opts...)
	server.RegisterService(&OrderServiceDesc, s)
	return server
}

type identityCtxKey struct{}

func (s *OrderGRPCServer) identify(ctx context.Context) (context.Context, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	values := md.Get(grpcIdentityMetadataKey)
	if len(values) == 0 {
		return nil, status.Error(codes.Unauthenticated, "missing authorization metadata")
	}
	token, err := bearerToken(values[0])
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}
	who, err := ParseIdentity(s.jwtSecret, token)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}
	return context.WithValue(ctx, identityCtxKey{}, who), nil
}

func (s *OrderGRPCServer) unaryIdentity(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	ctx, err := s.identify(ctx)
	if err != nil {
		return nil, err
	}
	return handler(ctx, req)
}

type identifiedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s identifiedStream) Context() context.Context { return s.ctx }

func (s *OrderGRPCServer) streamIdentity(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	ctx, err := s.identify(ss.Context())
	if err != nil {
		return err
	}
	return handler(srv, identifiedStream{ServerStream: ss, ctx: ctx})
}

func grpcIdentity(ctx context.Context) models.Identity {
	who, _ := ctx.Value(identityCtxKey{}).(models.Identity)
	return who
}

// PlaceOrder оформляет заказ. Поля запроса как у POST /api/v1/orders
func (s *OrderGRPCServer) PlaceOrder(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req CreateOrderRequest
	raw, err := json.Marshal(in.AsMap())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if key := metadata.ValueFromIncomingContext(ctx, "idempotency-key"); len(key) > 0 && key[0] != "" {
		req.IdempotencyKey = key[0]
	}

	result, err := s.orders.PlaceOrder(ctx, services.PlaceOrderRequest{
		Identity:       grpcIdentity(ctx),
		Lines:          req.Lines,
		Method:         req.PaymentMethod,
		Tendered:       req.AmountTendered,
		Card:           req.Card,
		IdempotencyKey: req.IdempotencyKey,
	})
	var rej *services.RejectionError
	if err != nil && !(errors.As(err, &rej) && result != nil) {
		return nil, grpcError(s.log, err)
	}
	// Отказ - штатный результат, код причины в поле reason
	return toStruct(result)
}

// GetServiceGate текущее состояние флага
func (s *OrderGRPCServer) GetServiceGate(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(gateMessage(s.gate.Current()))
}

// WatchServiceGate стрим: текущее состояние сразу, затем каждое изменение
func (s *OrderGRPCServer) WatchServiceGate(_ *emptypb.Empty, stream grpc.ServerStream) error {
	updates, unsubscribe := s.gate.Subscribe()
	defer unsubscribe()

	send := func(state models.ServiceGateState) error {
		msg, err := toStruct(gateMessage(state))
		if err != nil {
			return err
		}
		return stream.SendMsg(msg)
	}
	if err := send(s.gate.Current()); err != nil {
		return err
	}
	s.log.Info("📡 gRPC подписка на флаг", zap.String("by", grpcIdentity(stream.Context()).Actor()))

	for {
		select {
		case <-stream.Context().Done():
			return nil
		case <-s.stopping:
			return status.Error(codes.Unavailable, "server is shutting down")
		case state := <-updates:
			if err := send(state); err != nil {
				return err
			}
		}
	}
}

func toStruct(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// grpcError переводит ошибку ядра в gRPC статус по той же таблице, что и HTTP
func grpcError(log *zap.Logger, err error) error {
	var code codes.Code
	switch statusFor(err) {
	case http.StatusBadRequest:
		code = codes.InvalidArgument
	case http.StatusNotFound:
		code = codes.NotFound
	case http.StatusForbidden:
		code = codes.PermissionDenied
	case http.StatusConflict:
		code = codes.FailedPrecondition
	case http.StatusServiceUnavailable:
		code = codes.Unavailable
	case http.StatusPaymentRequired:
		code = codes.Aborted
	default:
		log.Error("❌ Ошибка gRPC запроса", zap.Error(err))
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, strings.TrimSpace(err.Error()))
}
