package ssh

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/agent462/drove/internal/executor"
)

// SSHRunner implements executor.Runner using real SSH connections.
// Every attempt opens and closes its own connection.
type SSHRunner struct {
	conf ClientConfig
	log  *zap.Logger
}

// NewRunner creates an SSHRunner. A nil logger discards output.
func NewRunner(conf ClientConfig, log *zap.Logger) *SSHRunner {
	if log == nil {
		log = zap.NewNop()
	}
	return &SSHRunner{conf: conf, log: log}
}

// Run executes a command on a single host via SSH. A command that exits 0
// carries only its stdout. A command that runs but exits non-zero is a
// KindRemoteCommand failure carrying only the remote stderr.
func (r *SSHRunner) Run(ctx context.Context, host string, command string) *executor.Result {
	result := &executor.Result{Host: host, Command: command, ExitCode: -1}

	client, err := Dial(ctx, host, r.conf)
	if err != nil {
		result.Err = err
		r.logFailure(result)
		return result
	}
	defer client.Close()

	stdout, stderr, exitCode, err := client.RunCommand(ctx, command)
	result.Stdout = stdout
	result.Stderr = stderr
	result.ExitCode = exitCode
	switch {
	case err != nil:
		result.Err = err
	case exitCode != 0:
		result.Stdout = nil
		result.Err = &ProtocolError{
			Host: host,
			Kind: executor.KindRemoteCommand,
			Err:  fmt.Errorf("exit status %d", exitCode),
		}
	default:
		result.Stderr = nil
	}

	if result.Err != nil {
		r.logFailure(result)
	}
	return result
}

func (r *SSHRunner) logFailure(result *executor.Result) {
	fields := []zap.Field{
		zap.String("host", result.Host),
		zap.String("command", result.Command),
		zap.Stringer("kind", result.Kind()),
		zap.Error(result.Err),
	}
	if len(result.Stderr) > 0 {
		fields = append(fields, zap.ByteString("stderr", result.Stderr))
	}
	r.log.Warn("remote execution failed", fields...)
}
