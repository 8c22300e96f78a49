package reading

import (
	"github.com/comfortstays/pgbilling/internal/reading/repository"
	"github.com/comfortstays/pgbilling/internal/reading/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reading.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
