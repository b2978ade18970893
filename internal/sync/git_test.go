package sync

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// gitFixture is a clone of a bare repository with one commit on main.
type gitFixture struct {
	t    *testing.T
	repo string
}

func newGitFixture(t *testing.T, identity bool) *gitFixture {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not found in PATH")
	}
	// Keep the user's global config (and its identity) out of the test.
	t.Setenv("GIT_CONFIG_GLOBAL", os.DevNull)
	t.Setenv("GIT_CONFIG_NOSYSTEM", "1")

	bare := t.TempDir()
	f := &gitFixture{t: t, repo: filepath.Join(t.TempDir(), "clone")}
	f.run(bare, "init", "--bare")
	f.run("", "clone", bare, f.repo)
	f.run(f.repo, "symbolic-ref", "HEAD", "refs/heads/main")
	if identity {
		f.run(f.repo, "config", "user.name", "Ledger Bot")
		f.run(f.repo, "config", "user.email", "ledger@example.com")
	}
	if err := os.WriteFile(filepath.Join(f.repo, "README"), []byte("ledger\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	f.run(f.repo, "add", "README")
	f.run(f.repo, "-c", "user.name=init", "-c", "user.email=init@example.com", "commit", "-m", "init")
	f.run(f.repo, "push", "origin", "main")
	return f
}

func (f *gitFixture) run(dir string, args ...string) string {
	f.t.Helper()
	cmd := exec.Command("git", args...)
	if dir != "" {
		cmd.Dir = dir
	} else {
		cmd.Dir = f.t.TempDir()
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		f.t.Fatalf("git %v: %v\n%s", args, err, out)
	}
	return strings.TrimSpace(string(out))
}

func (f *gitFixture) read(name string) string {
	f.t.Helper()
	b, err := os.ReadFile(filepath.Join(f.repo, name))
	if err != nil {
		f.t.Fatalf("read %s: %v", name, err)
	}
	return string(b)
}

func TestGitDestination_CommitsOnlyChanges(t *testing.T) {
	f := newGitFixture(t, true)
	dest := NewGitDestination(f.repo, "charters.jsonl", "main")
	ctx := context.Background()

	first := `{"version":"1","type":"header"}` + "\n"
	second := `{"version":"1","type":"header","charter_count":1,"version_count":3}` + "\n"
	for i, data := range []string{first, first, second} {
		if err := dest.Write(ctx, []byte(data)); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		if got := f.read("charters.jsonl"); got != data {
			t.Fatalf("write %d: file = %q, want %q", i, got, data)
		}
	}

	log := strings.Split(f.run(f.repo, "log", "--format=%s|%an", "origin/main"), "\n")
	want := []string{"sync: 1 charters, 3 versions|Ledger Bot", "sync: 0 charters, 0 versions|Ledger Bot", "init|init"}
	if strings.Join(log, "\n") != strings.Join(want, "\n") {
		t.Fatalf("pushed history = %q, want %q", log, want)
	}
}

func TestGitDestination_NestedPathAndDefaultIdentity(t *testing.T) {
	f := newGitFixture(t, false)
	dest := NewGitDestination(f.repo, "data/charters.jsonl", "main")

	data := `{"type":"header"}` + "\n"
	if err := dest.Write(context.Background(), []byte(data)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := f.read("data/charters.jsonl"); got != data {
		t.Fatalf("file = %q", got)
	}
	if author := f.run(f.repo, "log", "-1", "--format=%an <%ae>"); author != commitAuthorName+" <"+commitAuthorEmail+">" {
		t.Errorf("author = %q", author)
	}
}

func TestGitDestination_MissingBranch(t *testing.T) {
	f := newGitFixture(t, true)
	dest := NewGitDestination(f.repo, "charters.jsonl", "release")

	err := dest.Write(context.Background(), []byte("{}\n"))
	if err == nil || !strings.Contains(err.Error(), "git checkout") {
		t.Fatalf("err = %v, want git checkout failure", err)
	}
}

func TestCommitMessage(t *testing.T) {
	for _, tc := range []struct {
		data string
		want string
	}{
		{`{"version":"1","type":"header","charter_count":4,"version_count":9}` + "\n" + `{"type":"charter"}`, "sync: 4 charters, 9 versions"},
		{`{"type":"charter"}`, "sync: update charter ledger"},
		{"not json", "sync: update charter ledger"},
	} {
		if got := commitMessage([]byte(tc.data)); got != tc.want {
			t.Errorf("commitMessage(%q) = %q, want %q", tc.data, got, tc.want)
		}
	}
}

func TestSubcommand(t *testing.T) {
	if got := subcommand([]string{"-c", "user.name=x", "-c", "user.email=y", "commit", "-m", "m"}); got != "commit" {
		t.Errorf("subcommand = %q", got)
	}
	if got := subcommand([]string{"push", "origin"}); got != "push" {
		t.Errorf("subcommand = %q", got)
	}
}
