package ssh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/sync/errgroup"

	sshconfig "github.com/kevinburke/ssh_config"

	"github.com/agent462/drove/internal/executor"
	"github.com/agent462/drove/internal/pathutil"
)

// DefaultPort is dialed when neither the host, the config nor ssh_config
// name a port.
const DefaultPort = 22

// ClientConfig holds options for creating an SSH client.
type ClientConfig struct {
	// User is the login name. If empty, resolved from ~/.ssh/config or
	// the current OS user.
	User string

	// Password is offered through password and keyboard-interactive auth.
	Password string

	// Port overrides the SSH port. If zero, resolved from
	// ~/.ssh/config or defaults to 22.
	Port int

	// AcceptUnknownHosts disables host key verification.
	AcceptUnknownHosts bool

	// KnownHostsPath points at the known_hosts file. Defaults to
	// ~/.ssh/known_hosts.
	KnownHostsPath string

	// HostKeyCallback overrides the default host key verification.
	HostKeyCallback ssh.HostKeyCallback
}

// Client wraps an SSH connection to a single host.
type Client struct {
	host      string
	sshClient *ssh.Client
}

// Dial connects and authenticates to host. The host may carry an explicit
// port ("db1:2222"); otherwise the port comes from conf, ssh_config, or 22.
// Errors are *ProtocolError values tagged with the failing stage.
func Dial(ctx context.Context, host string, conf ClientConfig) (*Client, error) {
	addr, user := resolveConnection(host, conf)

	hostKeyCallback, err := resolveHostKeyCallback(conf)
	if err != nil {
		return nil, stageError(ctx, host, executor.KindHandshake, fmt.Errorf("host key callback: %w", err))
	}

	sshConf := &ssh.ClientConfig{
		User:            user,
		Auth:            authMethods(conf.Password),
		HostKeyCallback: hostKeyCallback,
	}

	conn, err := dialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, stageError(ctx, host, executor.KindConnection, fmt.Errorf("dial %s: %w", addr, err))
	}

	sshConn, chans, reqs, err := newClientConn(ctx, conn, addr, sshConf)
	if err != nil {
		conn.Close()
		kind := executor.KindHandshake
		if isAuthFailure(err) {
			kind = executor.KindAuth
		}
		return nil, stageError(ctx, host, kind, fmt.Errorf("ssh handshake with %s: %w", addr, err))
	}

	return &Client{
		host:      host,
		sshClient: ssh.NewClient(sshConn, chans, reqs),
	}, nil
}

// RunCommand executes a command on the connected host and returns
// stdout, stderr and exit code. A non-zero exit is not an error here;
// err is set only when the protocol itself failed.
func (c *Client) RunCommand(ctx context.Context, command string) (stdout, stderr []byte, exitCode int, err error) {
	session, err := c.sshClient.NewSession()
	if err != nil {
		return nil, nil, -1, stageError(ctx, c.host, executor.KindChannel, fmt.Errorf("new session: %w", err))
	}
	defer session.Close()

	outPipe, err := session.StdoutPipe()
	if err != nil {
		return nil, nil, -1, stageError(ctx, c.host, executor.KindChannel, fmt.Errorf("stdout pipe: %w", err))
	}
	errPipe, err := session.StderrPipe()
	if err != nil {
		return nil, nil, -1, stageError(ctx, c.host, executor.KindChannel, fmt.Errorf("stderr pipe: %w", err))
	}

	if err := session.Start(command); err != nil {
		return nil, nil, -1, stageError(ctx, c.host, executor.KindExec, fmt.Errorf("start %q: %w", command, err))
	}

	outBuf, errBuf := newCaptureBuffer(maxCapture), newCaptureBuffer(maxCapture)
	done := make(chan error, 1)
	go func() {
		var g errgroup.Group
		g.Go(func() error {
			_, err := io.Copy(outBuf, outPipe)
			return err
		})
		g.Go(func() error {
			_, err := io.Copy(errBuf, errPipe)
			return err
		})
		if err := g.Wait(); err != nil {
			done <- stageError(ctx, c.host, executor.KindRead, fmt.Errorf("read output: %w", err))
			return
		}
		done <- session.Wait()
	}()

	select {
	case <-ctx.Done():
		// Signal the session to close, which will cause Wait to return.
		session.Signal(ssh.SIGKILL)
		session.Close()
		return outBuf.Bytes(), errBuf.Bytes(), -1, &ProtocolError{Host: c.host, Kind: executor.KindTimeout, Err: ctx.Err()}
	case err := <-done:
		if err == nil {
			return outBuf.Bytes(), errBuf.Bytes(), 0, nil
		}
		var protoErr *ProtocolError
		if errors.As(err, &protoErr) {
			return outBuf.Bytes(), errBuf.Bytes(), -1, err
		}
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return outBuf.Bytes(), errBuf.Bytes(), exitErr.ExitStatus(), nil
		}
		var missingErr *ssh.ExitMissingError
		if errors.As(err, &missingErr) {
			return outBuf.Bytes(), errBuf.Bytes(), -1, stageError(ctx, c.host, executor.KindExitStatus, err)
		}
		return outBuf.Bytes(), errBuf.Bytes(), -1, stageError(ctx, c.host, executor.KindClose, err)
	}
}

// Close closes the underlying SSH connection.
func (c *Client) Close() error {
	if c.sshClient == nil {
		return nil
	}
	return c.sshClient.Close()
}

// Host returns the hostname this client is connected to.
func (c *Client) Host() string {
	return c.host
}

// resolveConnection builds the dial address and username for a host.
func resolveConnection(host string, conf ClientConfig) (addr, user string) {
	user = conf.User
	if user == "" {
		user = sshconfig.Get(host, "User")
	}
	if user == "" {
		user = os.Getenv("USER")
	}
	if user == "" {
		user = "root"
	}

	if _, _, err := net.SplitHostPort(host); err == nil {
		return host, user
	}

	hostname := host
	if alias := sshconfig.Get(host, "HostName"); alias != "" {
		hostname = alias
	}

	// Resolve port: prefer explicit config, fall back to ssh_config, then 22.
	port := conf.Port
	if port == 0 {
		if p, err := strconv.Atoi(sshconfig.Get(host, "Port")); err == nil {
			port = p
		}
	}
	if port == 0 {
		port = DefaultPort
	}

	return net.JoinHostPort(hostname, strconv.Itoa(port)), user
}

// authMethods offers the password both directly and through
// keyboard-interactive, which many PAM setups require.
func authMethods(password string) []ssh.AuthMethod {
	return []ssh.AuthMethod{
		ssh.Password(password),
		ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
			answers := make([]string, len(questions))
			for i := range answers {
				answers[i] = password
			}
			return answers, nil
		}),
	}
}

// resolveHostKeyCallback builds the host key callback.
func resolveHostKeyCallback(conf ClientConfig) (ssh.HostKeyCallback, error) {
	if conf.HostKeyCallback != nil {
		return conf.HostKeyCallback, nil
	}

	if conf.AcceptUnknownHosts {
		return ssh.InsecureIgnoreHostKey(), nil
	}

	knownHostsPath := pathutil.Expand(conf.KnownHostsPath)
	if knownHostsPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		knownHostsPath = filepath.Join(home, ".ssh", "known_hosts")
	}

	if _, err := os.Stat(knownHostsPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("no known_hosts file found at %s; use --insecure to skip host key verification", knownHostsPath)
	}

	callback, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("parse known_hosts: %w", err)
	}
	return callback, nil
}

// dialContext dials a network address with context cancellation support.
func dialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	d := net.Dialer{}
	return d.DialContext(ctx, network, addr)
}

// newClientConn performs the SSH handshake with context cancellation.
func newClientConn(ctx context.Context, conn net.Conn, addr string, config *ssh.ClientConfig) (ssh.Conn, <-chan ssh.NewChannel, <-chan *ssh.Request, error) {
	type result struct {
		conn  ssh.Conn
		chans <-chan ssh.NewChannel
		reqs  <-chan *ssh.Request
		err   error
	}

	done := make(chan result, 1)
	go func() {
		c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
		done <- result{c, chans, reqs, err}
	}()

	select {
	case <-ctx.Done():
		conn.Close()
		return nil, nil, nil, ctx.Err()
	case r := <-done:
		return r.conn, r.chans, r.reqs, r.err
	}
}
