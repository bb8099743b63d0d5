// Package ssh provides abstractions for executing commands on submission hosts.
package ssh

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Executor is a command channel to a submission host. The local host and a
// remote login node satisfy the same interface.
type Executor interface {
	// Exec runs a command and returns its stdout and stderr output.
	Exec(ctx context.Context, cmd string) (stdout, stderr []byte, err error)

	// Upload writes the contents of localPath to remotePath on the host,
	// creating parent directories as needed.
	Upload(ctx context.Context, localPath, remotePath string) error

	// Close releases any resources held by the executor.
	Close() error
}

// ConnectionOptions configures how an SSH connection is established.
type ConnectionOptions struct {
	// Host is the target host name or IP.
	Host string

	// Port is the SSH port (defaults to 22 when unset).
	Port int

	// User is the SSH username.
	User string

	// KeyPath is an optional path to the private key.
	KeyPath string

	// ProxyJump specifies a bastion host to reach the target (user@host:port).
	ProxyJump string

	// KnownHostsPaths are the known_hosts files consulted for host key
	// verification. Empty means ~/.ssh/known_hosts. New keys are appended
	// to the first path.
	KnownHostsPaths []string

	// Timeout controls how long to wait when establishing connections.
	Timeout time.Duration
}

// ApplySSHConfig applies settings from ~/.ssh/config to the connection
// options. It looks up the host alias and updates Host, Port, User, KeyPath,
// and ProxyJump based on matching Host directives. Explicitly set options are
// never overridden.
func ApplySSHConfig(opts ConnectionOptions) (ConnectionOptions, error) {
	alias := strings.TrimSpace(opts.Host)
	if alias == "" {
		return opts, nil
	}

	configPath, err := defaultSSHConfigPath()
	if err != nil {
		return opts, err
	}

	file, err := os.Open(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return opts, nil
		}
		return opts, err
	}
	defer file.Close()

	// Directives before the first Host block apply to every host.
	inMatchingBlock := true

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(strings.TrimSpace(scanner.Text()))
		if len(fields) < 2 || strings.HasPrefix(fields[0], "#") {
			continue
		}

		key := strings.ToLower(fields[0])
		value := strings.Join(fields[1:], " ")

		switch key {
		case "host":
			inMatchingBlock = matchesHostPatterns(alias, fields[1:])
		case "match":
			// Match blocks are not supported.
			inMatchingBlock = false
		default:
			if inMatchingBlock {
				applyConfigOption(&opts, key, value)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return opts, err
	}

	return opts, nil
}

// applyConfigOption folds one ssh_config directive into opts. Options set
// explicitly by the caller win over the config file.
func applyConfigOption(opts *ConnectionOptions, key, value string) {
	value = strings.TrimSpace(value)

	switch key {
	case "hostname":
		if value != "" {
			opts.Host = value
		}
	case "user":
		if opts.User == "" {
			opts.User = value
		}
	case "port":
		if opts.Port == 0 {
			if port, err := strconv.Atoi(value); err == nil {
				opts.Port = port
			}
		}
	case "identityfile":
		if opts.KeyPath == "" {
			opts.KeyPath = expandSSHPath(value)
		}
	case "proxyjump":
		if opts.ProxyJump == "" {
			opts.ProxyJump = normalizeProxyJump(value)
		}
	}
}

func defaultSSHConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".ssh", "config"), nil
}

func matchesHostPatterns(host string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}

	lowerHost := strings.ToLower(host)
	matched := false
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		negated := strings.HasPrefix(pattern, "!")
		if negated {
			pattern = strings.TrimPrefix(pattern, "!")
		}
		if pattern == "" {
			continue
		}

		if matchHostPattern(lowerHost, pattern) {
			if negated {
				return false
			}
			matched = true
		}
	}

	return matched
}

func matchHostPattern(host, pattern string) bool {
	lowerPattern := strings.ToLower(pattern)
	if lowerPattern == host {
		return true
	}
	matched, err := path.Match(lowerPattern, host)
	if err != nil {
		return false
	}
	return matched
}

func expandSSHPath(value string) string {
	trimmed := strings.TrimSpace(value)
	trimmed = strings.Trim(trimmed, "\"'")
	if trimmed == "" {
		return ""
	}

	expanded := os.ExpandEnv(trimmed)
	if strings.HasPrefix(expanded, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			expanded = filepath.Join(home, strings.TrimPrefix(expanded, "~"))
		}
	}
	return expanded
}

func normalizeProxyJump(value string) string {
	jumps := parseProxyJumpList(value)
	if len(jumps) == 0 {
		return ""
	}
	return strings.Join(jumps, ",")
}

func parseProxyJumpList(value string) []string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || strings.EqualFold(trimmed, "none") {
		return nil
	}

	parts := strings.Split(trimmed, ",")
	jumps := make([]string, 0, len(parts))
	for _, part := range parts {
		jump := strings.TrimSpace(part)
		if jump == "" {
			continue
		}
		if strings.EqualFold(jump, "none") {
			return nil
		}
		jumps = append(jumps, jump)
	}
	return jumps
}
