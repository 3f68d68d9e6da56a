package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/agent462/drove/internal/config"
	"github.com/agent462/drove/internal/executor"
	"github.com/agent462/drove/internal/history"
	"github.com/agent462/drove/internal/output"
	"github.com/agent462/drove/internal/ssh"
	"github.com/agent462/drove/internal/ui/progress"
	"github.com/agent462/drove/internal/ui/report"
)

var errNoCommandFile = errors.New("--command-file is required")

// runOptions holds the flags shared by the root command and "drove run".
type runOptions struct {
	CommandFile  string
	OutputFile   string
	OutputFormat string
	Group        string
	Retries      int
	Concurrency  int
	Timeout      time.Duration
	RunTimeout   time.Duration
	Insecure     bool
	Progress     bool
	History      bool
}

var runOpts = runOptions{
	OutputFile:   "output.txt",
	OutputFormat: string(output.PlainText),
	Group:        "prod",
	Retries:      3,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the command file on every host of a group",
	Long: `Run every command listed in --command-file on every host of --group.

Commands run in order on each host, and hosts run in parallel. A failing
command is retried up to --retries times. Results are printed as a table
and written to --output-file in --output-format.`,
	Example: `  SSH_USERNAME=deploy SSH_PASSWORD=... drove run --group prod --command-file commands.json
  drove run --command-file upgrade.yaml --output-format Json --output-file results.json`,
	RunE: runE,
}

func init() {
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&runOpts.CommandFile, "command-file", "", "JSON or YAML file with the commands to run (required)")
	f.StringVar(&runOpts.OutputFile, "output-file", runOpts.OutputFile, "file the results are written to")
	f.StringVar(&runOpts.OutputFormat, "output-format", runOpts.OutputFormat, "output file format: PlainText, Json, Csv or Html")
	f.StringVar(&runOpts.Group, "group", runOpts.Group, "host group to run against")
	f.IntVar(&runOpts.Retries, "retries", runOpts.Retries, "attempts per command before giving up")
	f.IntVar(&runOpts.Concurrency, "concurrency", 0, "maximum hosts in flight (default from config)")
	f.DurationVar(&runOpts.Timeout, "timeout", 0, "timeout for a single attempt (default from config)")
	f.DurationVar(&runOpts.RunTimeout, "run-timeout", 0, "timeout for the whole run, 0 for none (default from config)")
	f.BoolVar(&runOpts.Insecure, "insecure", false, "skip host key verification")
	f.BoolVar(&runOpts.Progress, "progress", false, "show live progress while the run is in flight")
	f.BoolVar(&runOpts.History, "history", false, "record the run in the history database")
}

func runE(cmd *cobra.Command, args []string) error {
	if runOpts.CommandFile == "" {
		log.Error("missing command file, nothing to run", zap.String("flag", "--command-file"))
		return errNoCommandFile
	}

	commands, err := config.LoadCommands(runOpts.CommandFile)
	if err != nil {
		return err
	}
	creds, err := config.CredentialsFromEnv()
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyFlagOverrides(cmd.Flags(), &cfg.Defaults, runOpts)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return execute(ctx, runParams{
		Config:      cfg,
		Credentials: creds,
		Commands:    commands,
		Options:     runOpts,
		Log:         log,
		Out:         cmd.OutOrStdout(),
	})
}

// applyFlagOverrides copies explicitly set flags over the config defaults.
func applyFlagOverrides(flags *pflag.FlagSet, d *config.Defaults, opts runOptions) {
	if flags.Changed("retries") {
		d.Retries = opts.Retries
	}
	if flags.Changed("concurrency") {
		d.Concurrency = opts.Concurrency
	}
	if flags.Changed("timeout") {
		d.Timeout = opts.Timeout
	}
	if flags.Changed("run-timeout") {
		d.RunTimeout = opts.RunTimeout
	}
	if flags.Changed("insecure") {
		d.Insecure = opts.Insecure
	}
}

type runParams struct {
	Config      *config.Config
	Credentials config.Credentials
	Commands    []string
	Options     runOptions
	Log         *zap.Logger
	Out         io.Writer

	// Progress draws the live view; nil uses the terminal UI when stderr
	// is a terminal.
	Progress func(ctx context.Context, hosts []string, events <-chan executor.Event) (bool, error)
	// Now defaults to time.Now.
	Now func() time.Time
}

// execute runs the commands on the group and delivers the results to the
// terminal, the output file and optionally the history database.
func execute(ctx context.Context, p runParams) error {
	if p.Now == nil {
		p.Now = time.Now
	}
	cfg, opts := p.Config, p.Options
	runID := uuid.NewString()
	logger := p.Log.With(zap.String("run_id", runID))

	if cfg.Defaults.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Defaults.RunTimeout)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	format, ok := output.ParseFormat(opts.OutputFormat)
	if !ok {
		logger.Warn("unknown output format, using PlainText", zap.String("format", opts.OutputFormat))
	}

	conf := ssh.ClientConfig{
		User:               p.Credentials.Username,
		Password:           p.Credentials.Password,
		Port:               cfg.Defaults.Port,
		AcceptUnknownHosts: cfg.Defaults.Insecure,
		KnownHostsPath:     cfg.Defaults.KnownHosts,
	}
	settings := executor.Settings{
		Concurrency: cfg.Defaults.Concurrency,
		Timeout:     cfg.Defaults.Timeout,
		Retries:     cfg.Defaults.Retries,
		RunID:       runID,
	}

	hosts := cfg.Hosts(opts.Group)
	showProgress := opts.Progress && len(hosts) > 0
	if showProgress && p.Progress == nil {
		if !term.IsTerminal(int(os.Stderr.Fd())) {
			logger.Debug("stderr is not a terminal, progress view disabled")
			showProgress = false
		} else {
			p.Progress = func(ctx context.Context, hosts []string, events <-chan executor.Event) (bool, error) {
				return progress.Run(ctx, hosts, events, os.Stderr)
			}
		}
	}

	var feed *progress.Feed
	if showProgress {
		feed = progress.NewFeed(len(hosts) * 4)
		settings.Observer = feed.Observe
	}

	exec, err := initExecutor(conf, settings, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize executor: %w", err)
	}

	logger.Info("starting run",
		zap.String("group", opts.Group),
		zap.Int("hosts", len(hosts)),
		zap.Int("commands", len(p.Commands)),
		zap.Int("retries", settings.Retries),
	)

	started := p.Now()
	var results []*executor.Result
	if feed == nil {
		results = exec.DistributedExecute(ctx, cfg, opts.Group, p.Commands)
	} else {
		results = executeWithProgress(ctx, cancel, exec, feed, p, hosts, logger)
	}
	finished := p.Now()

	fmt.Fprint(p.Out, report.ForWriter(p.Out).Render(results))

	if err := output.Write(opts.OutputFile, format, results); err != nil {
		return err
	}
	logger.Debug("results written", zap.String("path", opts.OutputFile), zap.String("format", string(format)))

	if opts.History {
		run := history.Run{
			ID:         runID,
			Group:      opts.Group,
			Hosts:      len(hosts),
			Commands:   len(p.Commands),
			StartedAt:  started,
			FinishedAt: finished,
		}
		if err := recordHistory(historyPath(cfg), run, results); err != nil {
			logger.Warn("failed to record run history", zap.Error(err))
		}
	}
	return nil
}

func executeWithProgress(ctx context.Context, cancel context.CancelFunc, exec *executor.Executor, feed *progress.Feed, p runParams, hosts []string, logger *zap.Logger) []*executor.Result {
	done := make(chan []*executor.Result, 1)
	go func() {
		results := exec.Execute(ctx, hosts, p.Commands)
		feed.Close()
		done <- results
	}()

	interrupted, err := p.Progress(ctx, hosts, feed.Events())
	if err != nil {
		logger.Warn("progress view failed", zap.Error(err))
	}
	if interrupted {
		logger.Warn("run interrupted, cancelling remaining commands")
		cancel()
	}
	// Nobody reads the feed past this point.
	feed.Stop()
	return <-done
}

func historyPath(cfg *config.Config) string {
	if cfg.History.Path != "" {
		return cfg.History.Path
	}
	return config.DefaultHistoryPath()
}

func recordHistory(path string, run history.Run, results []*executor.Result) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := history.Open(ctx, path)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Record(ctx, run, results)
}
