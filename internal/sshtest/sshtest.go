// Package sshtest provides an in-process password-authenticated SSH server
// for testing.
package sshtest

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync/atomic"
	"testing"

	"golang.org/x/crypto/ssh"
)

// CmdHandler processes a command and returns stdout, stderr, and exit code.
type CmdHandler func(cmd string) (stdout, stderr string, exitCode int)

// ServerConfig holds options for a test SSH server.
type ServerConfig struct {
	Password   string
	CmdHandler CmdHandler
	NoExit     bool
	Conns      *atomic.Int64
}

// Option configures a test SSH server.
type Option func(*ServerConfig)

// WithPassword sets the password the server accepts. Without it any
// password is accepted.
func WithPassword(pw string) Option {
	return func(c *ServerConfig) { c.Password = pw }
}

// WithCmdHandler sets the command handler. The default echoes the command.
func WithCmdHandler(h CmdHandler) Option {
	return func(c *ServerConfig) { c.CmdHandler = h }
}

// WithoutExitStatus makes the server close sessions without sending an
// exit-status request.
func WithoutExitStatus() Option {
	return func(c *ServerConfig) { c.NoExit = true }
}

// WithConnCounter counts accepted TCP connections into n.
func WithConnCounter(n *atomic.Int64) Option {
	return func(c *ServerConfig) { c.Conns = n }
}

// Start launches an in-process SSH server. It returns the listener address
// and a cleanup function that shuts down the server.
func Start(t *testing.T, opts ...Option) (addr string, cleanup func()) {
	t.Helper()

	cfg := &ServerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	hostSigner, err := ssh.NewSignerFromKey(hostPriv)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	serverConf := &ssh.ServerConfig{
		PasswordCallback: func(conn ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			if cfg.Password == "" || string(password) == cfg.Password {
				return nil, nil
			}
			return nil, fmt.Errorf("wrong password")
		},
	}
	serverConf.AddHostKey(hostSigner)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			if cfg.Conns != nil {
				cfg.Conns.Add(1)
			}
			go handleConnection(conn, serverConf, cfg)
		}
	}()

	return listener.Addr().String(), func() {
		listener.Close()
		<-done
	}
}

func handleConnection(conn net.Conn, config *ssh.ServerConfig, cfg *ServerConfig) {
	defer conn.Close()

	sshConn, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
		return
	}
	defer sshConn.Close()
	go ssh.DiscardRequests(reqs)

	for newChan := range chans {
		if newChan.ChannelType() != "session" {
			newChan.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		ch, requests, err := newChan.Accept()
		if err != nil {
			continue
		}
		go handleSession(ch, requests, cfg)
	}
}

func handleSession(ch ssh.Channel, reqs <-chan *ssh.Request, cfg *ServerConfig) {
	defer ch.Close()

	for req := range reqs {
		if req.Type != "exec" {
			if req.WantReply {
				req.Reply(false, nil)
			}
			continue
		}

		var payload struct{ Command string }
		if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
			req.Reply(false, nil)
			continue
		}
		req.Reply(true, nil)

		exitCode := 0
		stdoutStr := payload.Command
		stderrStr := ""
		if cfg.CmdHandler != nil {
			stdoutStr, stderrStr, exitCode = cfg.CmdHandler(payload.Command)
		}

		if stdoutStr != "" {
			io.WriteString(ch, stdoutStr)
		}
		if stderrStr != "" {
			io.WriteString(ch.Stderr(), stderrStr)
		}

		if !cfg.NoExit {
			ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{uint32(exitCode)}))
		}
		return
	}
}

// ParseAddr splits an address into host and port.
func ParseAddr(t *testing.T, addr string) (host string, port int) {
	t.Helper()
	h, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split %q: %v", addr, err)
	}
	p, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port %q: %v", portStr, err)
	}
	return h, p
}
