package cli

import (
	"fmt"
	"net"
	"os"

	xssh "golang.org/x/crypto/ssh"

	"github.com/batchforge/batchforge/internal/config"
	"github.com/batchforge/batchforge/internal/slurm"
	"github.com/batchforge/batchforge/internal/ssh"
	"github.com/batchforge/batchforge/internal/templates"
)

// skeletonFinder adapts the skeleton search paths to the maker.
type skeletonFinder struct {
	projectDir string
	extraDirs  []string
}

func newSkeletonFinder(cfg *config.Config) skeletonFinder {
	finder := skeletonFinder{projectDir: "."}
	if cfg != nil {
		finder.extraDirs = cfg.SkeletonDirs
	}
	return finder
}

func (f skeletonFinder) Find(name string) (*templates.Skeleton, error) {
	for _, dir := range f.extraDirs {
		skels, err := templates.LoadSkeletonsFromDir(dir)
		if err != nil {
			continue
		}
		for _, skel := range skels {
			if skel.Name == name {
				return skel, nil
			}
		}
	}
	return templates.FindSkeleton(f.projectDir, name)
}

func (f skeletonFinder) All() ([]*templates.Skeleton, error) {
	seen := make(map[string]struct{})
	var out []*templates.Skeleton

	for _, dir := range f.extraDirs {
		skels, err := templates.LoadSkeletonsFromDir(dir)
		if err != nil {
			continue
		}
		for _, skel := range skels {
			if _, ok := seen[skel.Name]; ok {
				continue
			}
			seen[skel.Name] = struct{}{}
			out = append(out, skel)
		}
	}

	standard, err := templates.LoadSkeletonsFromSearchPaths(f.projectDir)
	if err != nil {
		return nil, err
	}
	for _, skel := range standard {
		if _, ok := seen[skel.Name]; ok {
			continue
		}
		seen[skel.Name] = struct{}{}
		out = append(out, skel)
	}

	return out, nil
}

// buildExecutor returns the executor jobs are submitted through: an SSH
// connection when a remote host is configured, the local shell otherwise.
func buildExecutor(cfg *config.Config) (ssh.Executor, error) {
	if cfg == nil || !cfg.RemoteEnabled() {
		return ssh.NewLocalExecutor(), nil
	}

	opts := ssh.ConnectionOptions{
		Host:            cfg.Remote.Host,
		Port:            cfg.Remote.Port,
		User:            cfg.Remote.User,
		KeyPath:         cfg.Remote.KeyPath,
		ProxyJump:       cfg.Remote.ProxyJump,
		KnownHostsPaths: cfg.Remote.KnownHosts,
		Timeout:         cfg.Remote.Timeout,
	}

	client, err := ssh.Dial(opts, hostKeyPrompt)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Remote.Host, err)
	}
	return client, nil
}

// hostKeyPrompt asks the user to accept an unknown host key. Without a TTY
// unknown keys are rejected.
func hostKeyPrompt(hostname string, remote net.Addr, key xssh.PublicKey) (bool, error) {
	if SkipConfirmation() && !assumeYes {
		return false, nil
	}
	fingerprint := xssh.FingerprintSHA256(key)
	fmt.Fprintf(os.Stderr, "The authenticity of host %s (%s) can't be established.\n", hostname, remote)
	fmt.Fprintf(os.Stderr, "%s key fingerprint is %s.\n", key.Type(), fingerprint)
	if assumeYes {
		return true, nil
	}
	return confirm("Are you sure you want to continue connecting?"), nil
}

func buildSlurmClient(cfg *config.Config, executor ssh.Executor) *slurm.Client {
	cmds := slurm.Commands{}
	if cfg != nil {
		cmds = slurm.Commands{
			Sbatch:  cfg.Slurm.Sbatch,
			Scancel: cfg.Slurm.Scancel,
			Squeue:  cfg.Slurm.Squeue,
			Sacct:   cfg.Slurm.Sacct,
		}
	}
	return slurm.NewClient(executor, cmds)
}
