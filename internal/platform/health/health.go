package health

import (
	"context"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Pinger is satisfied by *pgxpool.Pool and the memory store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker pings the store on an interval and publishes the result as the
// serving status of service (and of the overall "" service).
type Checker struct {
	log      *slog.Logger
	pinger   Pinger
	service  string
	interval time.Duration
	srv      *health.Server
	healthy  atomic.Bool
}

func NewChecker(log *slog.Logger, pinger Pinger, service string, interval time.Duration) *Checker {
	c := &Checker{
		log:      log,
		pinger:   pinger,
		service:  service,
		interval: interval,
		srv:      health.NewServer(),
	}
	c.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return c
}

// Healthy reports the result of the last ping.
func (c *Checker) Healthy() bool { return c.healthy.Load() }

// Check pings once and updates the serving status.
func (c *Checker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.interval)
	defer cancel()

	err := c.pinger.Ping(ctx)
	if err != nil {
		if c.healthy.Load() {
			c.log.Warn("store ping failed", "service", c.service, "err", err)
		}
		c.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return err
	}
	if !c.healthy.Load() {
		c.log.Info("store reachable", "service", c.service)
	}
	c.set(healthpb.HealthCheckResponse_SERVING)
	return nil
}

// Run checks until ctx is done, then marks everything as not serving.
func (c *Checker) Run(ctx context.Context) {
	t := time.NewTicker(c.interval)
	defer t.Stop()

	_ = c.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			c.srv.Shutdown()
			c.healthy.Store(false)
			return
		case <-t.C:
			_ = c.Check(ctx)
		}
	}
}

func (c *Checker) set(status healthpb.HealthCheckResponse_ServingStatus) {
	c.healthy.Store(status == healthpb.HealthCheckResponse_SERVING)
	c.srv.SetServingStatus("", status)
	c.srv.SetServingStatus(c.service, status)
}

// Register adds the grpc.health.v1.Health service to gs.
func (c *Checker) Register(gs *grpc.Server) { healthpb.RegisterHealthServer(gs, c.srv) }

// Serve starts a gRPC server on addr exposing only the health service.
func Serve(addr string, c *Checker) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	gs := grpc.NewServer()
	c.Register(gs)
	go func() {
		if err := gs.Serve(lis); err != nil {
			c.log.Error("grpc server stopped", "err", err)
		}
	}()
	return gs, nil
}

// Probe asks the gRPC health service at addr for the status of service.
func Probe(ctx context.Context, addr, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.Status, nil
}
