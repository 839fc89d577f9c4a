package health_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dmehra2102/marketplace-orders/internal/platform/health"
)

type flakyPinger struct{ err error }

func (p *flakyPinger) Ping(context.Context) error { return p.err }

func newChecker(p health.Pinger) *health.Checker {
	return health.NewChecker(slog.New(slog.NewTextHandler(io.Discard, nil)), p, "order-service", time.Second)
}

func TestChecker_TracksPing(t *testing.T) {
	p := &flakyPinger{}
	c := newChecker(p)
	assert.False(t, c.Healthy())

	require.NoError(t, c.Check(context.Background()))
	assert.True(t, c.Healthy())

	p.err = errors.New("connection refused")
	assert.Error(t, c.Check(context.Background()))
	assert.False(t, c.Healthy())
}

func TestRegister_ReportsStatusOverGRPC(t *testing.T) {
	p := &flakyPinger{}
	c := newChecker(p)
	require.NoError(t, c.Check(context.Background()))

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	gs := grpc.NewServer()
	c.Register(gs)
	go func() { _ = gs.Serve(lis) }()
	defer gs.Stop()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	client := healthpb.NewHealthClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: "order-service"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	p.err = errors.New("down")
	_ = c.Check(context.Background())
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)
}

func TestProbe(t *testing.T) {
	c := newChecker(&flakyPinger{})
	require.NoError(t, c.Check(context.Background()))

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	gs := grpc.NewServer()
	c.Register(gs)
	go func() { _ = gs.Serve(lis) }()
	defer gs.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	status, err := health.Probe(ctx, lis.Addr().String(), "order-service")
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status)

	_, err = health.Probe(ctx, lis.Addr().String(), "unknown-service")
	assert.Error(t, err)
}
