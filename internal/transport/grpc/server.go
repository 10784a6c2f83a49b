package grpcx

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Внутренний gRPC-листенер несёт только health-сервис (k8s grpc-пробы).
// Остальная query-поверхность — HTTP; state ядра single-instance и
// наружу по gRPC не отдаётся.

type Server struct {
	health *health.Server
	db     *pgxpool.Pool
}

func NewServer(db *pgxpool.Pool) *Server {
	return &Server{
		health: health.NewServer(),
		db:     db,
	}
}

func Register(grpcServer *grpc.Server, s *Server) {
	healthpb.RegisterHealthServer(grpcServer, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
}

// WatchDB периодически пингует postgres и переключает статус сервинга.
func (s *Server) WatchDB(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			return
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := s.db.Ping(pctx)
			cancel()
			if err != nil {
				s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
			} else {
				s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
			}
		}
	}
}
