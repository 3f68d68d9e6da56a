package executor

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/agent462/drove/internal/telemetry"
)

// Runner is the interface that the SSH layer implements to execute a command on a single host.
// Each call is one attempt; the returned Result has Err set on any failure,
// including a non-zero exit.
type Runner interface {
	Run(ctx context.Context, host string, command string) *Result
}

// HostSource resolves a group name to its hosts. A missing group yields no hosts.
type HostSource interface {
	Hosts(group string) []string
}

// Executor fans out command lists across multiple hosts with bounded concurrency
// and retries each command up to a fixed number of attempts.
type Executor struct {
	runner      Runner
	concurrency int
	timeout     time.Duration
	retries     int
	log         *zap.Logger
	observer    Observer
	runID       string
}

// Option configures an Executor.
type Option func(*Executor)

// WithConcurrency sets the maximum number of hosts worked on at once.
func WithConcurrency(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithTimeout sets the timeout for a single command attempt.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithRetries sets the maximum attempts per command. Values below 1 mean 1.
func WithRetries(n int) Option {
	return func(e *Executor) {
		if n < 1 {
			n = 1
		}
		e.retries = n
	}
}

// WithLogger sets the logger used for retry and fault diagnostics.
func WithLogger(log *zap.Logger) Option {
	return func(e *Executor) {
		if log != nil {
			e.log = log
		}
	}
}

// WithObserver registers a callback for progress events.
func WithObserver(o Observer) Option {
	return func(e *Executor) {
		e.observer = o
	}
}

// WithRunID tags the run span so traces line up with logs and history.
func WithRunID(id string) Option {
	return func(e *Executor) {
		e.runID = id
	}
}

// New creates an Executor with the given Runner and options.
func New(runner Runner, opts ...Option) *Executor {
	e := &Executor{
		runner:      runner,
		concurrency: 20,
		timeout:     5 * time.Minute,
		retries:     3,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DistributedExecute resolves group through src and runs commands on every
// host in it. An empty group is logged and yields an empty slice.
func (e *Executor) DistributedExecute(ctx context.Context, src HostSource, group string, commands []string) []*Result {
	hosts := src.Hosts(group)
	if len(hosts) == 0 {
		e.log.Warn("no hosts found for group", zap.String("group", group))
		return []*Result{}
	}
	return e.Execute(ctx, hosts, commands)
}

// Execute runs commands on all hosts in parallel, bounded by the concurrency limit.
// Each host's results keep command order; hosts are appended in the order
// they finish. The result always holds len(hosts)*len(commands) entries.
func (e *Executor) Execute(ctx context.Context, hosts []string, commands []string) []*Result {
	results := make([]*Result, 0, len(hosts)*len(commands))
	if len(hosts) == 0 || len(commands) == 0 {
		return results
	}

	ctx, span := telemetry.Tracer().Start(ctx, "executor.Execute",
		trace.WithAttributes(
			attribute.Int("hosts", len(hosts)),
			attribute.Int("commands", len(commands)),
			attribute.Int("retries", e.retries),
			attribute.String("run_id", e.runID),
		),
	)
	defer span.End()

	sem := make(chan struct{}, e.concurrency)
	finished := make(chan []*Result, len(hosts))
	var wg sync.WaitGroup

	for _, host := range hosts {
		wg.Add(1)
		go func(h string) {
			defer wg.Done()

			// Acquire semaphore, respecting parent context cancellation.
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				finished <- abandoned(h, commands, 0, ctx.Err())
				return
			}

			finished <- e.runHost(ctx, h, commands)
		}(host)
	}

	wg.Wait()
	close(finished)

	for hostResults := range finished {
		results = append(results, hostResults...)
	}
	return results
}

// abandoned builds failure results for commands[from:] that were never run.
func abandoned(host string, commands []string, from int, err error) []*Result {
	out := make([]*Result, 0, len(commands)-from)
	for _, cmd := range commands[from:] {
		out = append(out, &Result{
			Host:     host,
			Command:  cmd,
			ExitCode: -1,
			Err:      err,
		})
	}
	return out
}
