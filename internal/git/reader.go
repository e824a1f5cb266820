// Package git wraps a local materialized clone with pure read access to
// commit history. No network calls happen here except clone/fetch refresh.
package git

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// BranchRef is a branch name with its head commit.
type BranchRef struct {
	Name    string
	HeadSHA string
}

// FileStat is the line-level add/delete count for one file in one commit.
// Binary files are omitted entirely.
type FileStat struct {
	Path      string
	Additions int
	Deletions int
}

// Commit is one history entry with the files it touched, diffed against its
// first parent.
type Commit struct {
	SHA         string
	Author      string
	AuthorEmail string
	Message     string
	Timestamp   time.Time
	Files       []FileStat
}

// Reader is the read-only contract the pipeline has against a local clone.
type Reader interface {
	// CloneOrFetch materializes a bare clone under the data directory, or
	// refreshes it when it already exists. Returns the local path.
	CloneOrFetch(ctx context.Context, cloneURL, repoID string) (string, error)
	// Branches lists all branches with their head commits.
	Branches(ctx context.Context, repoPath string) ([]BranchRef, error)
	// DefaultBranch resolves the branch HEAD points at.
	DefaultBranch(ctx context.Context, repoPath string) (string, error)
	// Commits enumerates a branch's history in reverse-chronological order,
	// each commit carrying per-file numstat counts against its first parent.
	Commits(ctx context.Context, repoPath, branch string) ([]Commit, error)
	// CommitsSince is Commits limited to history after the given SHA
	// (exclusive). An empty since behaves like Commits.
	CommitsSince(ctx context.Context, repoPath, branch, since string) ([]Commit, error)
	// FileAt reads a file's content at a specific revision.
	FileAt(ctx context.Context, repoPath, sha, path string) (string, error)
}

// CommandReader implements Reader by shelling out to the git binary.
type CommandReader struct {
	// DataDir overrides where bare clones are kept. Empty falls back to
	// CODEPROV_DATA_DIR, then ~/.codeprov/repos.
	DataDir string
}

// NewCommandReader returns a Reader backed by the git CLI, keeping clones
// under dataDir.
func NewCommandReader(dataDir string) *CommandReader {
	return &CommandReader{DataDir: dataDir}
}

func (r *CommandReader) git(ctx context.Context, repoPath string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = repoPath
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git %s: %w (stderr: %s)", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// Branches lists local and remote-tracking branch heads, deduplicated by
// short name. Bare clones created by CloneOrFetch carry all branches locally.
func (r *CommandReader) Branches(ctx context.Context, repoPath string) ([]BranchRef, error) {
	out, err := r.git(ctx, repoPath, "for-each-ref", "--format=%(refname:short) %(objectname)", "refs/heads")
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}

	var refs []BranchRef
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}
		refs = append(refs, BranchRef{Name: fields[0], HeadSHA: fields[1]})
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("repository at %s has no branches", repoPath)
	}
	return refs, scanner.Err()
}

// DefaultBranch resolves HEAD to its branch name.
func (r *CommandReader) DefaultBranch(ctx context.Context, repoPath string) (string, error) {
	out, err := r.git(ctx, repoPath, "symbolic-ref", "--short", "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolve default branch: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Commits enumerates branch history newest-first with numstat file counts.
func (r *CommandReader) Commits(ctx context.Context, repoPath, branch string) ([]Commit, error) {
	return r.CommitsSince(ctx, repoPath, branch, "")
}

// CommitsSince enumerates branch history newest-first, stopping at (and
// excluding) the since commit.
func (r *CommandReader) CommitsSince(ctx context.Context, repoPath, branch, since string) ([]Commit, error) {
	rev := branch
	if since != "" {
		rev = since + ".." + branch
	}
	out, err := r.git(ctx, repoPath, "log", rev,
		"--numstat",
		"--pretty=format:%x01%H|%an|%ae|%aI|%s",
		"--date=iso-strict")
	if err != nil {
		return nil, fmt.Errorf("enumerate commits on %s: %w", branch, err)
	}
	return parseLog(string(out))
}

// parseLog parses git log --numstat output. Each commit begins with a \x01
// prefixed header line "SHA|author|email|date|subject" followed by numstat
// lines "adds\tdels\tpath". Binary files report "-" counts and are skipped.
func parseLog(output string) ([]Commit, error) {
	var commits []Commit
	var current *Commit

	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "\x01") {
			if current != nil {
				commits = append(commits, *current)
			}
			parts := strings.SplitN(strings.TrimPrefix(line, "\x01"), "|", 5)
			if len(parts) != 5 {
				current = nil
				continue
			}
			ts, err := time.Parse(time.RFC3339, parts[3])
			if err != nil {
				return nil, fmt.Errorf("parse commit date %q: %w", parts[3], err)
			}
			current = &Commit{
				SHA:         parts[0],
				Author:      parts[1],
				AuthorEmail: strings.ToLower(parts[2]),
				Timestamp:   ts,
				Message:     parts[4],
			}
			continue
		}

		if current == nil {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 3 {
			continue
		}
		// Binary files are marked "-"
		if fields[0] == "-" || fields[1] == "-" {
			continue
		}
		additions, _ := strconv.Atoi(fields[0])
		deletions, _ := strconv.Atoi(fields[1])
		current.Files = append(current.Files, FileStat{
			Path:      fields[2],
			Additions: additions,
			Deletions: deletions,
		})
	}
	if current != nil {
		commits = append(commits, *current)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan git log output: %w", err)
	}
	return commits, nil
}

// FileAt reads path's content at the given revision.
func (r *CommandReader) FileAt(ctx context.Context, repoPath, sha, path string) (string, error) {
	out, err := r.git(ctx, repoPath, "show", sha+":"+path)
	if err != nil {
		return "", fmt.Errorf("read %s at %s: %w", path, shortSHA(sha), err)
	}
	return string(out), nil
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
