package ssh

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	xssh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// ErrHostKeyRejected is returned when a host key is unknown and the prompt
// declined it, or when a known host presents a different key.
var ErrHostKeyRejected = errors.New("host key rejected")

// HostKeyPrompt asks whether an unknown host key should be trusted and
// recorded. Returning true accepts the key and appends it to known_hosts.
type HostKeyPrompt func(hostname string, remote net.Addr, key xssh.PublicKey) (bool, error)

// buildKnownHostsCallback returns a host key callback backed by the given
// known_hosts files. Unknown keys are offered to prompt; accepted keys are
// appended to writePath. A key mismatch for a known host is always rejected.
func buildKnownHostsCallback(paths []string, writePath string, prompt HostKeyPrompt, logger zerolog.Logger) (xssh.HostKeyCallback, error) {
	existing := make([]string, 0, len(paths))
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			existing = append(existing, path)
		}
	}

	var check xssh.HostKeyCallback
	if len(existing) > 0 {
		callback, err := knownhosts.New(existing...)
		if err != nil {
			return nil, fmt.Errorf("load known_hosts: %w", err)
		}
		check = callback
	}

	return func(hostname string, remote net.Addr, key xssh.PublicKey) error {
		if check != nil {
			err := check(hostname, remote, key)
			if err == nil {
				return nil
			}

			var keyErr *knownhosts.KeyError
			if !errors.As(err, &keyErr) {
				return err
			}
			if len(keyErr.Want) > 0 {
				logger.Error().
					Str("host", hostname).
					Msg("host key mismatch, refusing connection")
				return fmt.Errorf("%w: key for %s changed", ErrHostKeyRejected, hostname)
			}
			// Unknown host, fall through to the prompt.
		}

		if prompt == nil {
			return fmt.Errorf("%w: unknown host %s", ErrHostKeyRejected, hostname)
		}

		accept, err := prompt(hostname, remote, key)
		if err != nil {
			return err
		}
		if !accept {
			return fmt.Errorf("%w: unknown host %s", ErrHostKeyRejected, hostname)
		}

		if err := appendKnownHost(writePath, hostname, key); err != nil {
			logger.Warn().Err(err).Str("host", hostname).Msg("failed to record host key")
			return nil
		}

		logger.Debug().Str("host", hostname).Msg("host key recorded")
		return nil
	}, nil
}

func appendKnownHost(path, hostname string, key xssh.PublicKey) error {
	if path == "" {
		return errors.New("no known_hosts path to write to")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	// Strip the default port so entries match plain host lookups.
	host := hostname
	if h, port, err := net.SplitHostPort(hostname); err == nil && port == "22" {
		host = h
	}

	line := knownhosts.Line([]string{host}, key)
	_, err = f.WriteString(line + "\n")
	return err
}
