package executor

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/agent462/drove/internal/telemetry"
)

// runHost executes commands on a single host in order. It never returns
// fewer than len(commands) results: a panic inside the worker turns every
// command it did not finish into a KindWorkerFault result.
func (e *Executor) runHost(ctx context.Context, host string, commands []string) (results []*Result) {
	results = make([]*Result, 0, len(commands))

	ctx, span := telemetry.Tracer().Start(ctx, "executor.host",
		trace.WithAttributes(attribute.String("host", host)),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			fault := &WorkerFaultError{Host: host, Cause: r}
			e.log.Error("host worker faulted",
				zap.String("host", host),
				zap.Int("completed", len(results)),
				zap.Any("panic", r),
			)
			span.RecordError(fault)
			span.SetStatus(codes.Error, "worker fault")
			results = append(results, abandoned(host, commands, len(results), fault)...)
		}
	}()

	e.emit(Event{Type: EventHostStarted, Host: host, Total: len(commands)})

	failed := 0
	for i, command := range commands {
		r := e.runCommand(ctx, host, command, i, len(commands))
		results = append(results, r)
		if !r.Succeeded() {
			failed++
		}
		e.emit(Event{
			Type:    EventCommandDone,
			Host:    host,
			Command: command,
			Index:   i,
			Total:   len(commands),
			Attempt: r.Attempts,
			Err:     r.Err,
			Result:  r,
		})
	}

	span.SetAttributes(attribute.Int("failed", failed))
	if failed > 0 {
		span.SetStatus(codes.Error, "commands failed")
	}
	e.emit(Event{Type: EventHostDone, Host: host, Total: len(commands)})
	return results
}

// runCommand attempts command up to e.retries times and returns the first
// success, or the last failure once the budget is spent.
func (e *Executor) runCommand(ctx context.Context, host, command string, index, total int) *Result {
	var last *Result

	for attempt := 1; attempt <= e.retries; attempt++ {
		// Stop starting new attempts once the run itself is cancelled.
		if err := ctx.Err(); err != nil {
			if last == nil {
				last = &Result{Host: host, Command: command, ExitCode: -1}
			}
			last.Err = err
			break
		}

		r := e.attempt(ctx, host, command, attempt)
		r.Attempts = attempt
		if r.Succeeded() {
			return r
		}
		last = r

		if attempt < e.retries {
			e.log.Debug("retrying command",
				zap.String("host", host),
				zap.String("command", command),
				zap.Int("attempt", attempt),
				zap.Stringer("kind", r.Kind()),
				zap.Error(r.Err),
			)
			e.emit(Event{
				Type:    EventAttemptFailed,
				Host:    host,
				Command: command,
				Index:   index,
				Total:   total,
				Attempt: attempt,
				Err:     r.Err,
			})
		}
	}

	e.log.Warn("command failed after all attempts",
		zap.String("host", host),
		zap.String("command", command),
		zap.Int("attempts", last.Attempts),
		zap.Stringer("kind", last.Kind()),
		zap.Error(last.Err),
	)
	return last
}

// attempt runs a single try under the per-attempt timeout.
func (e *Executor) attempt(ctx context.Context, host, command string, n int) *Result {
	attemptCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	attemptCtx, span := telemetry.Tracer().Start(attemptCtx, "executor.attempt",
		trace.WithAttributes(
			attribute.String("host", host),
			attribute.String("command", command),
			attribute.Int("attempt", n),
		),
	)
	defer span.End()

	start := time.Now()
	result := e.runner.Run(attemptCtx, host, command)
	result.Duration = time.Since(start)
	result.Host = host
	result.Command = command

	// If the attempt timed out but the runner didn't set an error, record it.
	if attemptCtx.Err() == context.DeadlineExceeded && result.Err == nil {
		result.Err = context.DeadlineExceeded
	}

	if result.Err != nil {
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, result.Kind().String())
	}
	span.SetAttributes(attribute.Int("exit_code", result.ExitCode))
	return result
}
