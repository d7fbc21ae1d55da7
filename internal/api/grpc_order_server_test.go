package api

import (
	"context"
	"net"
	"testing"
	"time"

	"bistro/server/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

func newGRPCClient(t *testing.T, s *testServer) *grpc.ClientConn {
	t.Helper()
	_, _, conn := startGRPC(t, s)
	return conn
}

func startGRPC(t *testing.T, s *testServer) (*OrderGRPCServer, *grpc.Server, *grpc.ClientConn) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	orderGRPC := NewOrderGRPCServer(s.deps.Orders, s.deps.Gate, testSecret, zaptest.NewLogger(t))
	server := orderGRPC.NewGRPCServer()
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return orderGRPC, server, conn
}

func withIdentity(t *testing.T, ctx context.Context, who models.Identity) context.Context {
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+tokenFor(t, who))
}

func TestGRPCPlaceOrder(t *testing.T) {
	s := newTestServer(t)
	itemID := s.seedPizza(t, "5", "5")
	conn := newGRPCClient(t, s)

	req, err := structpb.NewStruct(map[string]interface{}{
		"lines":           []interface{}{map[string]interface{}{"menu_item_id": itemID, "quantity": 2}},
		"payment_method":  "Cash",
		"amount_tendered": "30",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	t.Run("unauthenticated", func(t *testing.T) {
		err := conn.Invoke(ctx, GRPCPlaceOrder, req, &structpb.Struct{})
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("paid", func(t *testing.T) {
		out := &structpb.Struct{}
		require.NoError(t, conn.Invoke(withIdentity(t, ctx, customer), GRPCPlaceOrder, req, out))
		assert.Equal(t, "Paid", out.Fields["status"].GetStringValue())

		order := out.Fields["order"].GetStructValue()
		require.NotNil(t, order)
		change := decimal.RequireFromString(order.Fields["change"].GetStringValue())
		assert.True(t, decimal.NewFromInt(5).Equal(change), change.String())
		assert.Equal(t, float64(customer.ID), order.Fields["placed_by"].GetNumberValue())
	})

	t.Run("rejection is a result", func(t *testing.T) {
		short, err := structpb.NewStruct(map[string]interface{}{
			"lines":           []interface{}{map[string]interface{}{"menu_item_id": itemID, "quantity": 1}},
			"payment_method":  "Cash",
			"amount_tendered": "1",
		})
		require.NoError(t, err)

		out := &structpb.Struct{}
		require.NoError(t, conn.Invoke(withIdentity(t, ctx, customer), GRPCPlaceOrder, short, out))
		assert.Equal(t, "Rejected", out.Fields["status"].GetStringValue())
		assert.Equal(t, "InsufficientCash", out.Fields["reason"].GetStringValue())
	})
}

func TestGRPCWatchServiceGate(t *testing.T) {
	s := newTestServer(t)
	conn := newGRPCClient(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ctx = withIdentity(t, ctx, customer)

	current := &structpb.Struct{}
	require.NoError(t, conn.Invoke(ctx, GRPCGetServiceGate, &emptypb.Empty{}, current))
	assert.Equal(t, "Accepting", current.Fields["state"].GetStringValue())

	stream, err := conn.NewStream(ctx, &OrderServiceDesc.Streams[0], GRPCWatchServiceGate)
	require.NoError(t, err)
	require.NoError(t, stream.SendMsg(&emptypb.Empty{}))
	require.NoError(t, stream.CloseSend())

	first := &structpb.Struct{}
	require.NoError(t, stream.RecvMsg(first))
	assert.Equal(t, "Accepting", first.Fields["state"].GetStringValue())

	_, err = s.deps.Gate.Set(context.Background(), models.GateBusy, models.Identity{ID: 1, Role: models.RoleAdmin})
	require.NoError(t, err)

	next := &structpb.Struct{}
	require.NoError(t, stream.RecvMsg(next))
	assert.Equal(t, "Busy", next.Fields["state"].GetStringValue())
	assert.Equal(t, "Admin:1", next.Fields["updated_by"].GetStringValue())
}

func TestGRPCShutdownClosesGateWatchers(t *testing.T) {
	s := newTestServer(t)
	orderGRPC, server, conn := startGRPC(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream, err := conn.NewStream(withIdentity(t, ctx, customer), &OrderServiceDesc.Streams[0], GRPCWatchServiceGate)
	require.NoError(t, err)
	require.NoError(t, stream.SendMsg(&emptypb.Empty{}))
	require.NoError(t, stream.CloseSend())
	require.NoError(t, stream.RecvMsg(&structpb.Struct{}))

	stopped := make(chan struct{})
	go func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		orderGRPC.Shutdown(shutdownCtx, server)
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown is blocked by an open gate watcher")
	}
	err = stream.RecvMsg(&structpb.Struct{})
	assert.Equal(t, codes.Unavailable, status.Code(err), "%v", err)
}
