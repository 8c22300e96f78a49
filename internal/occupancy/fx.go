package occupancy

import (
	"context"

	occupancydomain "github.com/comfortstays/pgbilling/internal/occupancy/domain"
	"github.com/comfortstays/pgbilling/internal/occupancy/repository"
	"github.com/comfortstays/pgbilling/internal/occupancy/service"
	"go.uber.org/fx"
)

var Module = fx.Module("occupancy.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(
		func(s *service.Service) occupancydomain.Service { return s },
		func(s *service.Service) occupancydomain.SpanReader { return s },
	),
	fx.Invoke(registerBedSync),
)

func registerBedSync(lc fx.Lifecycle, svc occupancydomain.Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			_, err := svc.SyncBeds(ctx)
			return err
		},
	})
}
