package machine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHConfig describes how to reach a machine over SSH.
type SSHConfig struct {
	// Addr is the host name or IP address.
	Addr string

	// Port defaults to 22.
	Port int

	// User defaults to root.
	User string

	// KeyPath is the private key used for authentication.
	KeyPath string

	// KnownHostsPath enables host key verification when set.
	// When empty any host key is accepted; guests are rebuilt often
	// and get a new host key each time.
	KnownHostsPath string

	// Timeout bounds the TCP connect and handshake.
	Timeout time.Duration

	// Jump is an optional host the connection is tunnelled through.
	Jump *SSHHost
}

// SSHHost is a machine reached over SSH.
type SSHHost struct {
	name string
	cfg  SSHConfig
}

// NewSSHHost creates a host. name is used for logging only.
func NewSSHHost(name string, cfg SSHConfig) *SSHHost {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.User == "" {
		cfg.User = "root"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if name == "" {
		name = cfg.Addr
	}
	return &SSHHost{name: name, cfg: cfg}
}

// Name returns the host name used in logs.
func (h *SSHHost) Name() string {
	return h.name
}

// Addr returns host:port.
func (h *SSHHost) Addr() string {
	return net.JoinHostPort(h.cfg.Addr, strconv.Itoa(h.cfg.Port))
}

// Session dials the host and returns a session bound to the connection.
func (h *SSHHost) Session(ctx context.Context) (Session, error) {
	client, jump, err := h.dial(ctx)
	if err != nil {
		return nil, err
	}
	return &SSHSession{client: client, jump: jump}, nil
}

// CopyFrom streams remotePath into localPath.
func (h *SSHHost) CopyFrom(ctx context.Context, remotePath, localPath string) error {
	s, err := h.Session(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return fmt.Errorf("create destination dir: %w", err)
	}
	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	command := Quote("cat", "--", remotePath)
	status, err := s.(*SSHSession).exec(ctx, command, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("copy %s from %s: %w", remotePath, h.name, err)
	}
	if status != 0 {
		return &CommandError{Command: command, Status: status}
	}
	return nil
}

func (h *SSHHost) clientConfig() (*ssh.ClientConfig, error) {
	key, err := os.ReadFile(h.cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("read ssh key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parse ssh key: %w", err)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if h.cfg.KnownHostsPath != "" {
		hostKeyCallback, err = knownhosts.New(h.cfg.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("load known hosts: %w", err)
		}
	}

	return &ssh.ClientConfig{
		User:            h.cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         h.cfg.Timeout,
	}, nil
}

// dial connects to the host, through the jump host when configured.
// The returned jump client is nil for direct connections.
func (h *SSHHost) dial(ctx context.Context) (*ssh.Client, *ssh.Client, error) {
	clientCfg, err := h.clientConfig()
	if err != nil {
		return nil, nil, err
	}
	addr := h.Addr()

	var (
		conn net.Conn
		jump *ssh.Client
	)
	if h.cfg.Jump != nil {
		if h.cfg.Jump.cfg.Jump != nil {
			return nil, nil, fmt.Errorf("dial %s: jump host %s has its own jump host", addr, h.cfg.Jump.Name())
		}
		jump, _, err = h.cfg.Jump.dial(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("dial jump host %s: %w", h.cfg.Jump.Name(), err)
		}
		conn, err = jump.Dial("tcp", addr)
		if err != nil {
			jump.Close()
			return nil, nil, fmt.Errorf("dial %s via %s: %w", addr, h.cfg.Jump.Name(), err)
		}
	} else {
		d := net.Dialer{Timeout: h.cfg.Timeout}
		conn, err = d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, nil, fmt.Errorf("dial %s: %w", addr, err)
		}
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, clientCfg)
	if err != nil {
		conn.Close()
		if jump != nil {
			jump.Close()
		}
		return nil, nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	return ssh.NewClient(c, chans, reqs), jump, nil
}

// SSHSession runs each command in its own SSH channel over one connection.
type SSHSession struct {
	client *ssh.Client
	jump   *ssh.Client
	mu     sync.Mutex
	closed bool
}

// Run executes command and returns its exit status.
func (s *SSHSession) Run(ctx context.Context, command string) (int, error) {
	return s.exec(ctx, command, nil)
}

// RunCapture executes command and returns its exit status and stdout.
func (s *SSHSession) RunCapture(ctx context.Context, command string) (int, string, error) {
	var buf bytes.Buffer
	status, err := s.exec(ctx, command, &buf)
	if err != nil {
		return -1, "", err
	}
	return status, strings.TrimSuffix(buf.String(), "\n"), nil
}

func (s *SSHSession) exec(ctx context.Context, command string, stdout io.Writer) (int, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return -1, ErrSessionClosed
	}

	sess, err := s.client.NewSession()
	if err != nil {
		return -1, fmt.Errorf("open ssh channel: %w", err)
	}
	defer sess.Close()
	sess.Stdout = stdout

	done := make(chan error, 1)
	go func() { done <- sess.Run(command) }()

	select {
	case err := <-done:
		return exitStatus(err)
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGKILL)
		_ = sess.Close()
		return -1, ctx.Err()
	}
}

// exitStatus separates a remote non-zero exit from a transport failure.
func exitStatus(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitStatus(), nil
	}
	return -1, fmt.Errorf("ssh: %w", err)
}

// Close closes the connection and the jump connection, if any.
func (s *SSHSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.client.Close()
	if s.jump != nil {
		if jerr := s.jump.Close(); err == nil {
			err = jerr
		}
	}
	return err
}
