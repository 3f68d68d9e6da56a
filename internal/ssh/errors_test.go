package ssh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"

	"github.com/agent462/drove/internal/executor"
)

func TestWrapConnectError_ConnectionRefused(t *testing.T) {
	err := &net.OpError{
		Op:  "dial",
		Net: "tcp",
		Err: fmt.Errorf("connection refused"),
	}
	wrapped := WrapConnectError("myhost", err)
	ce, ok := wrapped.(*ConnectError)
	if !ok {
		t.Fatalf("expected *ConnectError, got %T", wrapped)
	}
	if !strings.Contains(ce.Hint, "SSH daemon") {
		t.Errorf("hint = %q, want mention of SSH daemon", ce.Hint)
	}
}

func TestWrapConnectError_DNSFailure(t *testing.T) {
	err := &net.DNSError{
		Err:  "no such host",
		Name: "badhost",
	}
	wrapped := WrapConnectError("badhost", err)
	ce, ok := wrapped.(*ConnectError)
	if !ok {
		t.Fatalf("expected *ConnectError, got %T", wrapped)
	}
	if !strings.Contains(ce.Hint, "hostname") {
		t.Errorf("hint = %q, want mention of hostname", ce.Hint)
	}
}

func TestWrapConnectError_AuthFailure(t *testing.T) {
	err := fmt.Errorf("ssh: unable to authenticate")
	wrapped := WrapConnectError("myhost", err)
	ce, ok := wrapped.(*ConnectError)
	if !ok {
		t.Fatalf("expected *ConnectError, got %T", wrapped)
	}
	if !strings.Contains(ce.Hint, "SSH_PASSWORD") {
		t.Errorf("hint = %q, want mention of SSH_PASSWORD", ce.Hint)
	}
}

func TestWrapConnectError_KnownHostsMissing(t *testing.T) {
	err := fmt.Errorf("no known_hosts file found at /home/user/.ssh/known_hosts")
	wrapped := WrapConnectError("myhost", err)
	ce, ok := wrapped.(*ConnectError)
	if !ok {
		t.Fatalf("expected *ConnectError, got %T", wrapped)
	}
	if !strings.Contains(ce.Hint, "--insecure") {
		t.Errorf("hint = %q, want mention of --insecure", ce.Hint)
	}
}

func TestWrapConnectError_Nil(t *testing.T) {
	if err := WrapConnectError("host", nil); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestWrapConnectError_Unknown(t *testing.T) {
	err := fmt.Errorf("some random error")
	wrapped := WrapConnectError("host", err)
	if _, ok := wrapped.(*ConnectError); ok {
		t.Error("expected unwrapped error for unknown error type")
	}
}

func TestProtocolError_KindVisibleToExecutor(t *testing.T) {
	cause := errors.New("channel refused")
	err := fmt.Errorf("attempt: %w", &ProtocolError{Host: "web1", Kind: executor.KindChannel, Err: cause})

	if got := executor.KindOf(err); got != executor.KindChannel {
		t.Errorf("KindOf = %v, want %v", got, executor.KindChannel)
	}
	if !errors.Is(err, cause) {
		t.Error("expected ProtocolError to unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "channel error on web1") {
		t.Errorf("message = %q", err.Error())
	}
}

func TestStageError_ExpiredContextIsTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := stageError(ctx, "web1", executor.KindConnection, errors.New("dial tcp: operation was canceled"))
	if got := executor.KindOf(err); got != executor.KindTimeout {
		t.Errorf("KindOf = %v, want %v", got, executor.KindTimeout)
	}
}

func TestStageError_KeepsStage(t *testing.T) {
	err := stageError(context.Background(), "web1", executor.KindExec, errors.New("exec refused"))
	if got := executor.KindOf(err); got != executor.KindExec {
		t.Errorf("KindOf = %v, want %v", got, executor.KindExec)
	}
}
