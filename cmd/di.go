package cmd

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/agent462/drove/internal/executor"
	"github.com/agent462/drove/internal/ssh"
)

func initExecutor(conf ssh.ClientConfig, settings executor.Settings, log *zap.Logger) (*executor.Executor, error) {
	var e *executor.Executor
	app := fx.New(
		fx.NopLogger,
		fx.Supply(conf, settings, log),
		ssh.Module,
		executor.Module,
		fx.Populate(&e),
	)
	if err := app.Err(); err != nil {
		return nil, err
	}
	return e, nil
}
