package git

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// dataDir resolves where bare clones live. The configured directory wins,
// then CODEPROV_DATA_DIR so tests can point at a temp directory, then the
// home default.
func (r *CommandReader) dataDir() (string, error) {
	if r.DataDir != "" {
		return r.DataDir, nil
	}
	if dir := os.Getenv("CODEPROV_DATA_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".codeprov", "repos"), nil
}

// CloneOrFetch materializes a bare clone under the data directory. Bare
// clones carry full history without a working tree, which is all the
// analysis needs. An existing valid clone is refreshed with fetch --prune
// instead of re-cloned.
func (r *CommandReader) CloneOrFetch(ctx context.Context, cloneURL, repoID string) (string, error) {
	base, err := r.dataDir()
	if err != nil {
		return "", err
	}
	repoPath := filepath.Join(base, repoHash(cloneURL, repoID)+".git")

	if info, err := os.Stat(repoPath); err == nil && info.IsDir() {
		if isBareRepo(repoPath) {
			if err := r.fetch(ctx, repoPath); err != nil {
				return "", err
			}
			return repoPath, nil
		}
		// Corrupt or non-git directory: re-clone from scratch
		if err := os.RemoveAll(repoPath); err != nil {
			return "", fmt.Errorf("remove invalid clone: %w", err)
		}
	}

	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}

	cmd := exec.CommandContext(ctx, "git", "clone", "--bare", cloneURL, repoPath)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("git clone %s: %w (output: %s)", cloneURL, err, strings.TrimSpace(string(out)))
	}
	return repoPath, nil
}

func (r *CommandReader) fetch(ctx context.Context, repoPath string) error {
	cmd := exec.CommandContext(ctx, "git", "fetch", "--all", "--prune")
	cmd.Dir = repoPath
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git fetch: %w (output: %s)", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// repoHash derives a stable directory name from the clone URL and repo ID.
func repoHash(cloneURL, repoID string) string {
	url := strings.TrimSuffix(strings.TrimSuffix(cloneURL, "/"), ".git")
	sum := sha256.Sum256([]byte(url + "#" + repoID))
	return fmt.Sprintf("%x", sum)[:16]
}

func isBareRepo(path string) bool {
	cmd := exec.Command("git", "rev-parse", "--is-bare-repository")
	cmd.Dir = path
	out, err := cmd.Output()
	return err == nil && strings.TrimSpace(string(out)) == "true"
}
