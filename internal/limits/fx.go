package limits

import (
	"go.uber.org/fx"
)

var Module = fx.Module("limits",
	fx.Provide(NewResolver),
)
