package ssh

import (
	"context"
	"net"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/agent462/drove/internal/executor"
	"github.com/agent462/drove/internal/sshtest"
)

func TestRunner_Success(t *testing.T) {
	addr, cleanup := sshtest.Start(t, sshtest.WithPassword(testPassword), sshtest.WithCmdHandler(func(cmd string) (string, string, int) {
		return "ok\n", "", 0
	}))
	defer cleanup()

	host, port := sshtest.ParseAddr(t, addr)
	runner := NewRunner(testConf(port), nil)

	result := runner.Run(context.Background(), host, "uptime")
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if result.Host != host {
		t.Errorf("result.Host = %q, want %q", result.Host, host)
	}
	if result.Command != "uptime" {
		t.Errorf("result.Command = %q, want uptime", result.Command)
	}
	if string(result.Stdout) != "ok\n" {
		t.Errorf("result.Stdout = %q, want ok", result.Stdout)
	}
	if result.ExitCode != 0 {
		t.Errorf("result.ExitCode = %d, want 0", result.ExitCode)
	}
}

func TestRunner_NonZeroExitIsRemoteCommandFailure(t *testing.T) {
	addr, cleanup := sshtest.Start(t, sshtest.WithPassword(testPassword), sshtest.WithCmdHandler(func(cmd string) (string, string, int) {
		return "", "boom", 1
	}))
	defer cleanup()

	host, port := sshtest.ParseAddr(t, addr)
	runner := NewRunner(testConf(port), nil)

	result := runner.Run(context.Background(), host, "false")
	if result.Err == nil {
		t.Fatal("expected failure for non-zero exit")
	}
	if got := result.Kind(); got != executor.KindRemoteCommand {
		t.Errorf("kind = %v, want %v", got, executor.KindRemoteCommand)
	}
	if result.ExitCode != 1 {
		t.Errorf("exit code = %d, want 1", result.ExitCode)
	}
	if got := result.ErrorText(); got != "boom" {
		t.Errorf("ErrorText() = %q, want boom", got)
	}
}

func TestRunner_KeepsOnlyTheClassifiedStream(t *testing.T) {
	addr, cleanup := sshtest.Start(t, sshtest.WithPassword(testPassword), sshtest.WithCmdHandler(func(cmd string) (string, string, int) {
		if cmd == "warn" {
			return "hi\n", "warning: deprecated\n", 0
		}
		return "partial-out\n", "boom", 1
	}))
	defer cleanup()

	host, port := sshtest.ParseAddr(t, addr)
	runner := NewRunner(testConf(port), nil)

	ok := runner.Run(context.Background(), host, "warn")
	if !ok.Succeeded() {
		t.Fatalf("unexpected error: %v", ok.Err)
	}
	if string(ok.Stdout) != "hi\n" {
		t.Errorf("success stdout = %q, want hi", ok.Stdout)
	}
	if len(ok.Stderr) != 0 {
		t.Errorf("success stderr = %q, want empty", ok.Stderr)
	}

	failed := runner.Run(context.Background(), host, "fail")
	if failed.Succeeded() {
		t.Fatal("expected failure for exit 1")
	}
	if len(failed.Stdout) != 0 {
		t.Errorf("failure stdout = %q, want empty", failed.Stdout)
	}
	if string(failed.Stderr) != "boom" {
		t.Errorf("failure stderr = %q, want boom", failed.Stderr)
	}
}

func TestRunner_ExplicitPortInHost(t *testing.T) {
	addr, cleanup := sshtest.Start(t, sshtest.WithPassword(testPassword))
	defer cleanup()

	// Port 1 in the config must be ignored when the host names its own port.
	runner := NewRunner(testConf(1), nil)

	result := runner.Run(context.Background(), addr, "hostname")
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if string(result.Stdout) != "hostname" {
		t.Errorf("stdout = %q, want echoed command", result.Stdout)
	}
}

func TestRunner_ConnectionPerAttempt(t *testing.T) {
	var conns atomic.Int64
	addr, cleanup := sshtest.Start(t, sshtest.WithPassword(testPassword), sshtest.WithConnCounter(&conns))
	defer cleanup()

	host, port := sshtest.ParseAddr(t, addr)
	runner := NewRunner(testConf(port), nil)

	for i := 0; i < 3; i++ {
		if r := runner.Run(context.Background(), host, "id"); r.Err != nil {
			t.Fatalf("run %d: %v", i, r.Err)
		}
	}
	if got := conns.Load(); got != 3 {
		t.Errorf("connections = %d, want 3", got)
	}
}

func TestRunner_DialFailure(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	_, port := sshtest.ParseAddr(t, listener.Addr().String())
	listener.Close()

	runner := NewRunner(testConf(0), nil)
	result := runner.Run(context.Background(), net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), "id")
	if result.Err == nil {
		t.Fatal("expected connection failure")
	}
	if got := result.Kind(); got != executor.KindConnection {
		t.Errorf("kind = %v, want %v", got, executor.KindConnection)
	}
	if result.ExitCode != -1 {
		t.Errorf("exit code = %d, want -1", result.ExitCode)
	}
}
