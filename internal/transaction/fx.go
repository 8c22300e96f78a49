package transaction

import (
	"github.com/comfortstays/pgbilling/internal/transaction/repository"
	"github.com/comfortstays/pgbilling/internal/transaction/service"
	"go.uber.org/fx"
)

var Module = fx.Module("transaction.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
