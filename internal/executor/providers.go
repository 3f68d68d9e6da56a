package executor

import (
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Settings carries the tunables the CLI resolves from flags and config.
type Settings struct {
	Concurrency int
	Timeout     time.Duration
	Retries     int
	Observer    Observer
	RunID       string
}

// Module provides an Executor built from Settings and a Runner.
var Module = fx.Module("executor",
	fx.Provide(
		func(runner Runner, s Settings, log *zap.Logger) *Executor {
			return New(runner,
				WithConcurrency(s.Concurrency),
				WithTimeout(s.Timeout),
				WithRetries(s.Retries),
				WithObserver(s.Observer),
				WithRunID(s.RunID),
				WithLogger(log.Named("executor")),
			)
		},
	),
)
