package ssh

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/agent462/drove/internal/executor"
)

// Module provides the SSH runner as the executor's Runner.
var Module = fx.Module("ssh",
	fx.Provide(
		func(conf ClientConfig, log *zap.Logger) executor.Runner {
			return NewRunner(conf, log.Named("ssh"))
		},
	),
)
