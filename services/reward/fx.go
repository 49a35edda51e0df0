package reward

import (
	"smallbiznis-reward/pkg/server"
	"smallbiznis-reward/services/ranking"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"google.golang.org/grpc"
	health "google.golang.org/grpc/health/grpc_health_v1"
)

var Module = fx.Module("reward.service",
	fx.Provide(
		func(s *ranking.Service) Ranker { return s },
		NewService,
	),
)

// Gateway exposes the service over HTTP and the gRPC health protocol.
var Gateway = fx.Module("reward.gateway",
	fx.Provide(
		NewHandler,
		fx.Annotate(
			func(h *Handler) server.Route { return h },
			fx.ResultTags(`group:"routes"`),
		),
	),
	fx.Invoke(registerHealthServer),
)

var TaskModule = fx.Module("task.reward",
	fx.Provide(NewTask, NewScheduler),
	fx.Invoke(registerTaskHandlers, StartScheduler),
)

func registerHealthServer(server *grpc.Server, service *Service) {
	health.RegisterHealthServer(server, service)
}

func registerTaskHandlers(mux *asynq.ServeMux, t *Task) {
	t.Register(mux)
}
