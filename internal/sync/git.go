package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Identity used for ledger commits unless the clone configures its own.
const (
	commitAuthorName  = "charters-sync"
	commitAuthorEmail = "charters-sync@localhost"
)

// GitDestination keeps the ledger export as one file in a git clone, so every
// charter change shows up as a reviewable commit.
type GitDestination struct {
	repo   string
	file   string // relative to repo
	branch string
}

// NewGitDestination returns a destination that writes file inside the
// existing clone at repo and pushes branch to origin.
func NewGitDestination(repo, file, branch string) *GitDestination {
	return &GitDestination{repo: repo, file: file, branch: branch}
}

func (d *GitDestination) Name() string { return "git" }

// Write replaces the ledger file, then commits and pushes if it changed.
func (d *GitDestination) Write(ctx context.Context, data []byte) error {
	if _, err := d.git(ctx, "checkout", d.branch); err != nil {
		return err
	}
	// The remote branch may not exist yet on a fresh repository.
	_, _ = d.git(ctx, "pull", "--ff-only", "origin", d.branch)

	path := filepath.Join(d.repo, d.file)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	if _, err := d.git(ctx, "add", "--", d.file); err != nil {
		return err
	}

	status, err := d.git(ctx, "status", "--porcelain", "--", d.file)
	if err != nil {
		return err
	}
	if status == "" {
		return nil
	}

	commit := []string{"commit", "-m", commitMessage(data)}
	if !d.hasIdentity(ctx) {
		commit = append([]string{"-c", "user.name=" + commitAuthorName, "-c", "user.email=" + commitAuthorEmail}, commit...)
	}
	if _, err := d.git(ctx, commit...); err != nil {
		return err
	}
	_, err = d.git(ctx, "push", "origin", d.branch)
	return err
}

func (d *GitDestination) hasIdentity(ctx context.Context) bool {
	email, err := d.git(ctx, "config", "user.email")
	return err == nil && email != ""
}

// git runs one git command in the clone and returns its trimmed stdout.
// Failures carry git's stderr.
func (d *GitDestination) git(ctx context.Context, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = d.repo
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("git %s: %w", subcommand(args), err)
		}
		return "", fmt.Errorf("git %s: %w: %s", subcommand(args), err, msg)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// subcommand skips leading -c options.
func subcommand(args []string) string {
	for i := 0; i < len(args); i++ {
		if args[i] == "-c" {
			i++
			continue
		}
		return args[i]
	}
	return ""
}

// commitMessage summarizes the export from its header line.
func commitMessage(data []byte) string {
	line, _, _ := bytes.Cut(data, []byte("\n"))
	var h header
	if err := json.Unmarshal(line, &h); err != nil || h.Type != "header" {
		return "sync: update charter ledger"
	}
	return fmt.Sprintf("sync: %d charters, %d versions", h.CharterCount, h.VersionCount)
}
