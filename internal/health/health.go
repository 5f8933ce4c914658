// Package health serves the standard gRPC health service, with the overall
// status driven by periodic store pings.
package health

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"tutoring-api/internal/logger"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Checker struct {
	db       Pinger
	srv      *grpchealth.Server
	interval time.Duration
	timeout  time.Duration
}

func NewChecker(db Pinger, interval time.Duration) *Checker {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Checker{
		db:       db,
		srv:      grpchealth.NewServer(),
		interval: interval,
		timeout:  2 * time.Second,
	}
}

func (c *Checker) Server() healthpb.HealthServer { return c.srv }

// Check pings the store once and publishes the result.
func (c *Checker) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	status := healthpb.HealthCheckResponse_SERVING
	if err := c.db.Ping(ctx); err != nil {
		logger.FromContext(ctx).Warn("store ping failed", zap.Error(err))
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	c.srv.SetServingStatus("", status)
	return status
}

// Run refreshes the status on every tick until ctx is done, then marks the
// service as shutting down.
func (c *Checker) Run(ctx context.Context) {
	c.Check(ctx)
	t := time.NewTicker(c.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			c.srv.Shutdown()
			return
		case <-t.C:
			c.Check(ctx)
		}
	}
}

// Serve runs a gRPC server exposing only the health service on lis. It
// returns when ctx is done, after a graceful stop.
func Serve(ctx context.Context, lis net.Listener, c *Checker) error {
	s := grpc.NewServer()
	healthpb.RegisterHealthServer(s, c.Server())

	errc := make(chan error, 1)
	go func() { errc <- s.Serve(lis) }()
	select {
	case <-ctx.Done():
		s.GracefulStop()
		return nil
	case err := <-errc:
		return err
	}
}
