package client

import (
	"github.com/smallbiznis/upkeep/internal/client/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("client.store",
	fx.Provide(repository.Provide),
)
