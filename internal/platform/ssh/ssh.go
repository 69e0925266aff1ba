package ssh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/imamik/edgerun/internal/util/retry"
)

const (
	defaultPort        = 22
	defaultDialTimeout = 10 * time.Second
	defaultMaxRetries  = 10
	defaultRetryDelay  = 3 * time.Second
	defaultMaxDelay    = 15 * time.Second
)

// Config holds SSH client configuration.
type Config struct {
	Host       string
	Port       int
	User       string
	PrivateKey []byte

	// DialTimeout is the timeout for establishing the TCP connection.
	// If zero, defaultDialTimeout is used.
	DialTimeout time.Duration

	// MaxRetries is the maximum number of connection retry attempts for Execute.
	// If zero, defaultMaxRetries is used.
	MaxRetries int

	// RetryDelay is the initial delay between retry attempts.
	// If zero, defaultRetryDelay is used.
	RetryDelay time.Duration

	// HostKeyCallback handles host key verification.
	// If nil, ssh.InsecureIgnoreHostKey() is used: the node is created by the
	// same run and has no known host key yet.
	HostKeyCallback ssh.HostKeyCallback
}

// ExitError reports a command that ran on the node and exited non-zero.
type ExitError struct {
	Host    string
	Command string
	Status  int
	Output  string
	Signal  string
}

func (e *ExitError) Error() string {
	if e.Signal != "" {
		return fmt.Sprintf("command on %s killed by signal %s", e.Host, e.Signal)
	}
	return fmt.Sprintf("command on %s exited with status %d", e.Host, e.Status)
}

// AsExitError extracts an *ExitError from err.
func AsExitError(err error) (*ExitError, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr, true
	}
	return nil, false
}

// Client executes commands on a remote server via SSH.
// It parses the private key once during construction and
// creates connections on-demand per call.
type Client struct {
	config *Config
	signer ssh.Signer
}

// NewClient creates a new SSH client and validates the private key.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if cfg.Host == "" {
		return nil, fmt.Errorf("config host cannot be empty")
	}
	if cfg.User == "" {
		return nil, fmt.Errorf("config user cannot be empty")
	}
	if len(cfg.PrivateKey) == 0 {
		return nil, fmt.Errorf("config private key cannot be empty")
	}

	configCopy := *cfg

	if configCopy.Port == 0 {
		configCopy.Port = defaultPort
	}
	if configCopy.DialTimeout == 0 {
		configCopy.DialTimeout = defaultDialTimeout
	}
	if configCopy.MaxRetries == 0 {
		configCopy.MaxRetries = defaultMaxRetries
	}
	if configCopy.RetryDelay == 0 {
		configCopy.RetryDelay = defaultRetryDelay
	}
	if configCopy.HostKeyCallback == nil {
		configCopy.HostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec // host is created by this run
	}

	signer, err := ssh.ParsePrivateKey(configCopy.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return &Client{
		config: &configCopy,
		signer: signer,
	}, nil
}

// Address returns host:port of the remote node.
func (c *Client) Address() string {
	return net.JoinHostPort(c.config.Host, strconv.Itoa(c.config.Port))
}

// Probe checks that the command channel is open: one dial attempt, one no-op command.
func (c *Client) Probe(ctx context.Context) error {
	client, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	_, err = c.runCommand(ctx, client, "true")
	return err
}

// Run executes a command over a single connection attempt.
// Returns command output (stdout+stderr) and any execution error.
func (c *Client) Run(ctx context.Context, command string) (string, error) {
	client, err := c.dial(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = client.Close() }()

	return c.runCommand(ctx, client, command)
}

// Execute runs a command on the remote host, retrying only the connection.
// Returns command output (stdout+stderr) and any execution error.
func (c *Client) Execute(ctx context.Context, command string) (string, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = client.Close() }()

	return c.runCommand(ctx, client, command)
}

// connect establishes SSH connection with retry logic.
func (c *Client) connect(ctx context.Context) (*ssh.Client, error) {
	var client *ssh.Client

	err := retry.WithExponentialBackoff(ctx, func() error {
		var dialErr error
		client, dialErr = c.dial(ctx)
		return dialErr
	},
		retry.WithMaxRetries(c.config.MaxRetries),
		retry.WithInitialDelay(c.config.RetryDelay),
		retry.WithMaxDelay(defaultMaxDelay),
	)

	if err != nil {
		return nil, fmt.Errorf("failed to establish SSH connection to %s after %d retry attempts: %w",
			c.Address(), c.config.MaxRetries, err)
	}

	return client, nil
}

// dial performs one context-aware connection attempt.
func (c *Client) dial(ctx context.Context) (*ssh.Client, error) {
	clientConfig := &ssh.ClientConfig{
		User: c.config.User,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(c.signer),
		},
		HostKeyCallback: c.config.HostKeyCallback,
		Timeout:         c.config.DialTimeout,
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.config.DialTimeout)
	defer cancel()

	addr := c.Address()
	conn, err := (&net.Dialer{}).DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	if deadline, ok := dialCtx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s failed: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Time{})

	return ssh.NewClient(sshConn, chans, reqs), nil
}

// runCommand executes a command on an established SSH session.
// The session is closed when ctx is done, which aborts the remote command.
func (c *Client) runCommand(ctx context.Context, client *ssh.Client, command string) (string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to create SSH session on %s: %w", c.config.Host, err)
	}
	defer func() { _ = session.Close() }()

	stop := context.AfterFunc(ctx, func() { _ = session.Close() })
	defer stop()

	output, err := session.CombinedOutput(command)
	if err == nil {
		return string(output), nil
	}

	var sshExit *ssh.ExitError
	if errors.As(err, &sshExit) {
		return string(output), &ExitError{
			Host:    c.config.Host,
			Command: command,
			Status:  sshExit.ExitStatus(),
			Signal:  sshExit.Signal(),
			Output:  string(output),
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return string(output), fmt.Errorf("command on %s aborted: %w", c.config.Host, ctxErr)
	}
	return string(output), fmt.Errorf("command failed on %s: %w", c.config.Host, err)
}
