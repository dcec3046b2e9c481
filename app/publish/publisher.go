package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Publisher pushes freshly written artifacts to wherever the feeds are served from.
type Publisher interface {
	Push(ctx context.Context, artifacts []Artifact) error
}

// NoopPublisher skips publishing.
type NoopPublisher struct{}

func (NoopPublisher) Push(ctx context.Context, artifacts []Artifact) error {
	slog.Info("Publishing disabled, skipping push", "artifacts", len(artifacts))
	return nil
}

// Runner executes a git command in dir and returns its combined output.
type Runner func(ctx context.Context, dir string, args ...string) ([]byte, error)

func ExecRunner(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// GitPublisher syncs a working copy with its remote and pushes the artifacts.
//
// Push is destructive: the working copy is hard reset to remote/branch,
// discarding any local commits and uncommitted changes, and the result is
// force pushed. The repository is meant to be owned by this tool.
type GitPublisher struct {
	repoPath string
	remote   string
	branch   string
	timeout  time.Duration
	run      Runner
	writer   *ArtifactWriter
}

func NewGitPublisher(repoPath, remote, branch string, timeout time.Duration, run Runner) *GitPublisher {
	if run == nil {
		run = ExecRunner
	}
	return &GitPublisher{
		repoPath: repoPath,
		remote:   remote,
		branch:   branch,
		timeout:  timeout,
		run:      run,
		writer:   NewArtifactWriter(),
	}
}

func (p *GitPublisher) Push(ctx context.Context, artifacts []Artifact) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	if err := p.git(ctx, "fetch", p.remote, p.branch); err != nil {
		return err
	}
	if err := p.git(ctx, "reset", "--hard", p.remote+"/"+p.branch); err != nil {
		return err
	}

	// The reset may have overwritten tracked artifacts, so write them again.
	if err := p.writer.WriteAll(artifacts); err != nil {
		return fmt.Errorf("failed to rewrite artifacts after reset: %w", err)
	}

	addArgs := []string{"add", "--"}
	for _, a := range artifacts {
		rel, err := filepath.Rel(p.repoPath, a.Path)
		if err != nil || strings.HasPrefix(rel, "..") {
			return fmt.Errorf("artifact %s is outside repository %s", a.Path, p.repoPath)
		}
		addArgs = append(addArgs, rel)
	}
	if err := p.git(ctx, addArgs...); err != nil {
		return err
	}

	changed, err := p.hasStagedChanges(ctx)
	if err != nil {
		return err
	}
	if !changed {
		slog.Info("Artifacts unchanged, nothing to commit", "repo", p.repoPath)
	} else {
		msg := fmt.Sprintf("Update feeds %s", time.Now().UTC().Format(time.RFC3339))
		if err := p.git(ctx, "commit", "-m", msg); err != nil {
			return err
		}
	}

	if err := p.git(ctx, "push", "--force", p.remote, "HEAD:"+p.branch); err != nil {
		return err
	}

	slog.Info("Feeds pushed", "remote", p.remote, "branch", p.branch, "committed", changed)
	return nil
}

func (p *GitPublisher) hasStagedChanges(ctx context.Context) (bool, error) {
	out, err := p.run(ctx, p.repoPath, "diff", "--cached", "--quiet")
	if err == nil {
		return false, nil
	}
	var exitErr interface{ ExitCode() int }
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return true, nil
	}
	return false, fmt.Errorf("git diff failed: %w: %s", err, strings.TrimSpace(string(out)))
}

func (p *GitPublisher) git(ctx context.Context, args ...string) error {
	slog.Debug("Running git", "args", args, "repo", p.repoPath)

	out, err := p.run(ctx, p.repoPath, args...)
	if err != nil {
		return fmt.Errorf("git %s failed: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}
