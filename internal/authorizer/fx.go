package authorizer

import (
	"go.uber.org/fx"
)

var Module = fx.Module("authorizer",
	fx.Provide(NewEngine),
)
