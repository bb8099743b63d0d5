package ssh

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
)

// LocalExecutor runs commands on the local host. Used when the submission
// host is the machine batchforge runs on.
type LocalExecutor struct {
	// Shell is the shell used to interpret commands. Defaults to /bin/sh.
	Shell string
}

// NewLocalExecutor returns an executor for the local host.
func NewLocalExecutor() *LocalExecutor {
	return &LocalExecutor{Shell: "/bin/sh"}
}

// Exec runs a command through the shell and returns its output.
func (e *LocalExecutor) Exec(ctx context.Context, cmd string) ([]byte, []byte, error) {
	shell := e.Shell
	if shell == "" {
		shell = "/bin/sh"
	}

	var stdout, stderr bytes.Buffer
	c := exec.CommandContext(ctx, shell, "-c", cmd)
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Upload copies a local file into place, creating parent directories.
func (e *LocalExecutor) Upload(ctx context.Context, localPath, remotePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(remotePath), 0755); err != nil {
		return fmt.Errorf("create directory for %s: %w", remotePath, err)
	}

	dst, err := os.OpenFile(remotePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return fmt.Errorf("create %s: %w", remotePath, err)
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}

// Close is a no-op for the local executor.
func (e *LocalExecutor) Close() error {
	return nil
}
