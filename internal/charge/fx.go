package charge

import (
	"github.com/comfortstays/pgbilling/internal/charge/repository"
	"github.com/comfortstays/pgbilling/internal/charge/service"
	"go.uber.org/fx"
)

var Module = fx.Module("charge.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
