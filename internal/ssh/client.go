package ssh

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/batchforge/batchforge/internal/logging"
	"github.com/rs/zerolog"
	xssh "golang.org/x/crypto/ssh"
)

const defaultConnectTimeout = 10 * time.Second

// Client is an Executor backed by an SSH connection to a submission host.
type Client struct {
	conn   *xssh.Client
	jump   *xssh.Client
	logger zerolog.Logger
}

// Dial connects to the host described by opts. Settings from ~/.ssh/config
// are applied first; explicit options win. When prompt is nil, unknown host
// keys are rejected.
func Dial(opts ConnectionOptions, prompt HostKeyPrompt) (*Client, error) {
	opts, err := ApplySSHConfig(opts)
	if err != nil {
		return nil, fmt.Errorf("apply ssh config: %w", err)
	}
	if opts.Host == "" {
		return nil, fmt.Errorf("host is required")
	}
	if opts.Port == 0 {
		opts.Port = 22
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultConnectTimeout
	}

	logger := logging.Component("ssh")

	config, err := clientConfig(opts, prompt, logger)
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))

	var conn *xssh.Client
	var jump *xssh.Client
	if opts.ProxyJump != "" {
		jump, err = dialJump(opts.ProxyJump, config, opts.Timeout)
		if err != nil {
			return nil, err
		}

		tunnel, err := jump.Dial("tcp", addr)
		if err != nil {
			jump.Close()
			return nil, fmt.Errorf("dial %s via %s: %w", addr, opts.ProxyJump, err)
		}
		c, chans, reqs, err := xssh.NewClientConn(tunnel, addr, config)
		if err != nil {
			jump.Close()
			return nil, fmt.Errorf("handshake with %s: %w", addr, err)
		}
		conn = xssh.NewClient(c, chans, reqs)
	} else {
		conn, err = xssh.Dial("tcp", addr, config)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
	}

	logger.Debug().Str("host", opts.Host).Int("port", opts.Port).Msg("connected")

	return &Client{conn: conn, jump: jump, logger: logger}, nil
}

func clientConfig(opts ConnectionOptions, prompt HostKeyPrompt, logger zerolog.Logger) (*xssh.ClientConfig, error) {
	auth, err := authMethods(opts)
	if err != nil {
		return nil, err
	}

	knownHostsPaths := opts.KnownHostsPaths
	if len(knownHostsPaths) == 0 {
		home, _ := os.UserHomeDir()
		knownHostsPaths = []string{filepath.Join(home, ".ssh", "known_hosts")}
	}
	hostKeyCallback, err := buildKnownHostsCallback(knownHostsPaths, knownHostsPaths[0], prompt, logger)
	if err != nil {
		return nil, err
	}

	return &xssh.ClientConfig{
		User:            opts.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         opts.Timeout,
	}, nil
}

func authMethods(opts ConnectionOptions) ([]xssh.AuthMethod, error) {
	keyPaths := make([]string, 0, 3)
	if opts.KeyPath != "" {
		keyPaths = append(keyPaths, opts.KeyPath)
	} else if home, err := os.UserHomeDir(); err == nil {
		keyPaths = append(keyPaths,
			filepath.Join(home, ".ssh", "id_ed25519"),
			filepath.Join(home, ".ssh", "id_rsa"),
		)
	}

	signers := make([]xssh.Signer, 0, len(keyPaths))
	for _, keyPath := range keyPaths {
		data, err := os.ReadFile(keyPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read key %s: %w", keyPath, err)
		}
		signer, err := xssh.ParsePrivateKey(data)
		if err != nil {
			return nil, fmt.Errorf("parse key %s: %w", keyPath, err)
		}
		signers = append(signers, signer)
	}

	if len(signers) == 0 {
		return nil, fmt.Errorf("no usable private key (tried %v)", keyPaths)
	}

	return []xssh.AuthMethod{xssh.PublicKeys(signers...)}, nil
}

func dialJump(jumpSpec string, config *xssh.ClientConfig, timeout time.Duration) (*xssh.Client, error) {
	jumps := parseProxyJumpList(jumpSpec)
	if len(jumps) != 1 {
		return nil, fmt.Errorf("proxy jump chains are not supported: %q", jumpSpec)
	}

	host := jumps[0]
	user := config.User
	if at := strings.IndexByte(host, '@'); at >= 0 {
		user = host[:at]
		host = host[at+1:]
	}
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "22")
	}

	jumpConfig := *config
	jumpConfig.User = user
	jumpConfig.Timeout = timeout

	client, err := xssh.Dial("tcp", host, &jumpConfig)
	if err != nil {
		return nil, fmt.Errorf("dial jump host %s: %w", host, err)
	}
	return client, nil
}

// Exec runs a command on the remote host and returns its output.
func (c *Client) Exec(ctx context.Context, cmd string) ([]byte, []byte, error) {
	session, err := c.conn.NewSession()
	if err != nil {
		return nil, nil, fmt.Errorf("open session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmd)
	}()

	select {
	case <-ctx.Done():
		_ = session.Signal(xssh.SIGKILL)
		<-done
		return stdout.Bytes(), stderr.Bytes(), ctx.Err()
	case err := <-done:
		return stdout.Bytes(), stderr.Bytes(), err
	}
}

// Upload streams a local file to remotePath through a shell session.
func (c *Client) Upload(ctx context.Context, localPath, remotePath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", localPath, err)
	}

	dir := path.Dir(remotePath)
	if _, stderr, err := c.Exec(ctx, fmt.Sprintf("mkdir -p %s", shellQuote(dir))); err != nil {
		return fmt.Errorf("create remote directory %s: %w (%s)", dir, err, bytes.TrimSpace(stderr))
	}

	session, err := c.conn.NewSession()
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer session.Close()

	session.Stdin = bytes.NewReader(data)

	cmd := fmt.Sprintf("cat > %s", shellQuote(remotePath))
	if err := session.Run(cmd); err != nil {
		return fmt.Errorf("write %s: %w", remotePath, err)
	}

	c.logger.Debug().Str("path", remotePath).Int("bytes", len(data)).Msg("uploaded file")
	return nil
}

// Close tears down the connection, including any jump connection.
func (c *Client) Close() error {
	err := c.conn.Close()
	if c.jump != nil {
		if jerr := c.jump.Close(); err == nil {
			err = jerr
		}
	}
	return err
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
