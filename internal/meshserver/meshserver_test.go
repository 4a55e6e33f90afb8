package meshserver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestServerReportsServingOnlyAfterSetReady(t *testing.T) {
	srv, err := New(Config{ListenAddr: "127.0.0.1:0", ComponentName: "meshcore"}, nil)
	require.NoError(t, err)

	go srv.Serve()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	addr := srv.listener.Addr().String()

	status, err := DialHealth(context.Background(), addr, "meshcore")
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status)

	srv.SetReady(true)
	status, err = DialHealth(context.Background(), addr, "meshcore")
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, status)
}
