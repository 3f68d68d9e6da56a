package ssh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/agent462/drove/internal/executor"
)

// ProtocolError records which step of a remote execution failed.
type ProtocolError struct {
	Host string
	Kind executor.Kind
	Err  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s error on %s: %v", e.Kind, e.Host, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// ErrorKind implements the executor's classification hook.
func (e *ProtocolError) ErrorKind() executor.Kind {
	return e.Kind
}

// stageError wraps err as a ProtocolError for the given stage. An expired
// or cancelled context always wins over the stage.
func stageError(ctx context.Context, host string, kind executor.Kind, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil || errors.Is(err, context.DeadlineExceeded) {
		if ctxErr == nil {
			ctxErr = err
		}
		return &ProtocolError{Host: host, Kind: executor.KindTimeout, Err: ctxErr}
	}
	return &ProtocolError{Host: host, Kind: kind, Err: WrapConnectError(host, err)}
}

// isAuthFailure reports whether a handshake error came from the server
// rejecting our credentials rather than from key exchange.
func isAuthFailure(err error) bool {
	var authErr *ssh.ServerAuthError
	if errors.As(err, &authErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "unable to authenticate") ||
		strings.Contains(msg, "no supported methods remain")
}

// ConnectError wraps an SSH connection error with a user-friendly hint.
type ConnectError struct {
	Host string
	Err  error
	Hint string
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("%s: %v\n  hint: %s", e.Host, e.Err, e.Hint)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// WrapConnectError wraps an SSH connection error with a friendly hint.
// If the error doesn't match any known patterns, it's returned as-is.
func WrapConnectError(host string, err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()

	// SSH authentication failure.
	if isAuthFailure(err) {
		return &ConnectError{
			Host: host,
			Err:  err,
			Hint: "verify SSH_USERNAME and SSH_PASSWORD and that the server allows password login",
		}
	}

	// Connection refused.
	if strings.Contains(msg, "connection refused") {
		return &ConnectError{
			Host: host,
			Err:  err,
			Hint: "verify SSH daemon is running on the target host",
		}
	}

	// DNS resolution failure.
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) || strings.Contains(msg, "no such host") {
		return &ConnectError{
			Host: host,
			Err:  err,
			Hint: "verify hostname is correct",
		}
	}

	// Known hosts: missing file or entry.
	if strings.Contains(msg, "no known_hosts") || strings.Contains(msg, "knownhosts") {
		return &ConnectError{
			Host: host,
			Err:  err,
			Hint: fmt.Sprintf("use --insecure or connect once with: ssh %s", host),
		}
	}

	// Known hosts: key mismatch.
	var keyErr *knownhosts.KeyError
	if errors.As(err, &keyErr) {
		return &ConnectError{
			Host: host,
			Err:  err,
			Hint: fmt.Sprintf("remove old key with: ssh-keygen -R %s", host),
		}
	}

	return err
}
