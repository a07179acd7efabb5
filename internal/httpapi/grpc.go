package httpapi

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"slotswapper.dev/internal/obs"
)

const grpcServiceName = "slotswapper.api"

// ServeGRPC exposes the standard gRPC health service on lis, backed by the
// same readiness probe as /readyz. It blocks until ctx is cancelled.
func (a *API) ServeGRPC(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer()
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, hs)

	// Keep the reported status in sync with the store.
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			st := grpc_health_v1.HealthCheckResponse_SERVING
			if err := a.readyProbe.Check(ctx); err != nil {
				st = grpc_health_v1.HealthCheckResponse_NOT_SERVING
				obs.SetReady(false)
			} else {
				obs.SetReady(true)
			}
			hs.SetServingStatus(grpcServiceName, st)
			hs.SetServingStatus("", st)

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()

	return srv.Serve(lis)
}
