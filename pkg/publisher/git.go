package publisher

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// gitRepo drives the external content repository through the git
// binary. All mutations happen in the local working copy; nothing
// reaches the remote until push.
type gitRepo struct {
	dir    string
	url    string
	branch string
	author string
	email  string
	log    zerolog.Logger
}

// run executes one git command inside the working copy
func (g *gitRepo) run(ctx context.Context, args ...string) (string, error) {
	return runGit(ctx, g.dir, args...)
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s",
			strings.Join(args, " "), err, strings.TrimSpace(out.String()))
	}
	return strings.TrimSpace(out.String()), nil
}

// ensure clones the repository when the working copy does not exist yet
func (g *gitRepo) ensure(ctx context.Context) error {
	if _, err := os.Stat(filepath.Join(g.dir, ".git")); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(g.dir), 0o755); err != nil {
		return fmt.Errorf("creating publish directory: %w", err)
	}
	g.log.Info().Str("url", g.url).Str("dir", g.dir).Msg("cloning content repository")
	_, err := runGit(ctx, "", "clone", "--branch", g.branch, "--single-branch", g.url, g.dir)
	return err
}

// sync brings the working copy up to date with the remote. Local state
// that is not publisher-owned is stashed out of the way first so the
// fast-forward cannot conflict.
func (g *gitRepo) sync(ctx context.Context) error {
	status, err := g.run(ctx, "status", "--porcelain")
	if err != nil {
		return err
	}
	if status != "" {
		if _, err := g.run(ctx, "stash", "--include-untracked"); err != nil {
			return err
		}
	}
	_, err = g.run(ctx, "pull", "--ff-only")
	return err
}

// stage adds the data directory and reports whether anything changed
// along with the staged diff stats
func (g *gitRepo) stage(ctx context.Context, dataDir string) (bool, string, error) {
	if _, err := g.run(ctx, "add", "--all", dataDir); err != nil {
		return false, "", err
	}
	status, err := g.run(ctx, "status", "--porcelain", dataDir)
	if err != nil {
		return false, "", err
	}
	if status == "" {
		return false, "", nil
	}
	stats, err := g.run(ctx, "diff", "--cached", "--shortstat")
	if err != nil {
		return false, "", err
	}
	return true, stats, nil
}

// commit records the staged artifacts and returns the new commit id
func (g *gitRepo) commit(ctx context.Context, message string) (string, error) {
	args := []string{
		"-c", "user.name=" + g.author,
		"-c", "user.email=" + g.email,
		"commit", "-m", message,
	}
	if _, err := g.run(ctx, args...); err != nil {
		return "", err
	}
	return g.run(ctx, "rev-parse", "HEAD")
}

// push publishes the branch to the remote
func (g *gitRepo) push(ctx context.Context) error {
	_, err := g.run(ctx, "push", "origin", g.branch)
	return err
}

// head returns the current commit id, or empty in a fresh repository
func (g *gitRepo) head(ctx context.Context) string {
	id, err := g.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return ""
	}
	return id
}
