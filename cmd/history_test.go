package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agent462/drove/internal/executor"
	"github.com/agent462/drove/internal/history"
)

// seedHistory points the history command at a fresh database holding one
// recorded run and returns the command's output buffer.
func seedHistory(t *testing.T) *bytes.Buffer {
	t.Helper()

	prevLog, prevCfg, prevRun, prevLimit, prevShutdown := log, cfgFile, historyRunID, historyLimit, otelShutdown
	t.Cleanup(func() {
		log, cfgFile, historyRunID, historyLimit, otelShutdown = prevLog, prevCfg, prevRun, prevLimit, prevShutdown
	})
	log = zap.NewNop()
	historyRunID = ""
	historyLimit = 20

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "history.db")
	cfgFile = filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("history:\n  path: "+dbPath+"\n"), 0o644))

	ctx := context.Background()
	store, err := history.Open(ctx, dbPath)
	require.NoError(t, err)
	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	err = store.Record(ctx, history.Run{
		ID: "run-7", Group: "web", Hosts: 2, Commands: 1,
		StartedAt: start, FinishedAt: start.Add(2 * time.Second),
	}, []*executor.Result{
		{Host: "web1", Command: "uptime", Stdout: []byte("up 3 days\n"), Attempts: 1},
		{Host: "web2", Command: "uptime", ExitCode: 1, Attempts: 3, Err: errors.New("dial tcp: connection refused")},
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	var buf bytes.Buffer
	historyCmd.SetOut(&buf)
	historyCmd.SetContext(context.Background())
	t.Cleanup(func() { historyCmd.SetOut(nil) })
	return &buf
}

func TestHistoryE_ListsRuns(t *testing.T) {
	buf := seedHistory(t)

	require.NoError(t, historyE(historyCmd, nil))
	out := buf.String()
	for _, want := range []string{"run-7", "web", "2s"} {
		assert.Contains(t, out, want)
	}
}

func TestHistoryE_ShowsOneRun(t *testing.T) {
	buf := seedHistory(t)
	historyRunID = "run-7"

	require.NoError(t, historyE(historyCmd, nil))
	out := buf.String()
	for _, want := range []string{"Host", "web1", "web2", "uptime", "connection refused"} {
		assert.Contains(t, out, want)
	}
}

func TestHistoryE_UnknownRun(t *testing.T) {
	buf := seedHistory(t)
	historyRunID = "no-such-run"

	err := historyE(historyCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no results recorded for run no-such-run")
	assert.Empty(t, buf.String())
}
