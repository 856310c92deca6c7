package commission

import (
	"github.com/smallbiznis/referra/internal/commission/repository"
	"github.com/smallbiznis/referra/internal/commission/service"
	"go.uber.org/fx"
)

var Module = fx.Module("commission.engine",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
