package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies why a command attempt failed.
type Kind int

const (
	KindNone Kind = iota
	KindConnection
	KindHandshake
	KindAuth
	KindChannel
	KindExec
	KindRead
	KindClose
	KindExitStatus
	KindRemoteCommand
	KindTimeout
	KindWorkerFault
	KindUnknown
)

var kindNames = map[Kind]string{
	KindNone:          "none",
	KindConnection:    "connection",
	KindHandshake:     "handshake",
	KindAuth:          "auth",
	KindChannel:       "channel",
	KindExec:          "exec",
	KindRead:          "read",
	KindClose:         "close",
	KindExitStatus:    "exit-status",
	KindRemoteCommand: "remote-command",
	KindTimeout:       "timeout",
	KindWorkerFault:   "worker-fault",
	KindUnknown:       "unknown",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// kinded is implemented by errors that know their own Kind.
type kinded interface {
	ErrorKind() Kind
}

// KindOf reports the Kind of err. Context expiry is always KindTimeout.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var k kinded
	if errors.As(err, &k) {
		return k.ErrorKind()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	return KindUnknown
}

// WorkerFaultError replaces results a host worker could not produce because
// the worker itself failed.
type WorkerFaultError struct {
	Host  string
	Cause any
}

func (e *WorkerFaultError) Error() string {
	return fmt.Sprintf("worker for %s faulted: %v", e.Host, e.Cause)
}

func (e *WorkerFaultError) ErrorKind() Kind { return KindWorkerFault }

// Result holds the terminal outcome of one command on one host.
// Err is nil exactly when the remote command exited 0.
type Result struct {
	Host     string
	Command  string
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Attempts int
	Duration time.Duration
	Err      error
}

// Succeeded reports whether the command ran and exited 0.
func (r *Result) Succeeded() bool {
	return r.Err == nil
}

// Kind returns the failure classification, or KindNone on success.
func (r *Result) Kind() Kind {
	return KindOf(r.Err)
}

// ErrorText is the failure text shown to operators: stderr for commands that
// ran and exited non-zero, the error message otherwise.
func (r *Result) ErrorText() string {
	if r.Err == nil {
		return ""
	}
	if r.Kind() == KindRemoteCommand && len(r.Stderr) > 0 {
		return string(r.Stderr)
	}
	return r.Err.Error()
}

// String renders the result as a text block for the plain text sinks.
func (r *Result) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Host: %s\nCommand: %s\n", r.Host, r.Command)
	if r.Succeeded() {
		b.Write(r.Stdout)
		return b.String()
	}
	b.WriteString("Standard Error: ")
	b.WriteString(r.ErrorText())
	return b.String()
}
