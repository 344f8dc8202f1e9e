package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// git runs a git subcommand in dir, capturing combined output. Mirrors
// internal/worktree's shell-out pattern: no pack example links a Go git
// library.
func git(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}

// mergeNoCommit stages a merge of branch into the checked-out worktree at
// dir without committing (§4.5.1 Stage 2), leaving MERGE_HEAD set so a
// subsequent abort cleanly restores pre-merge state.
func mergeNoCommit(ctx context.Context, dir, branch string) (conflictPaths []string, err error) {
	_, err = git(ctx, dir, "merge", "--no-commit", "--no-ff", branch)
	if err == nil {
		return nil, nil
	}

	paths, lsErr := git(ctx, dir, "diff", "--name-only", "--diff-filter=U")
	if lsErr == nil {
		conflictPaths = splitNonEmptyLines(paths)
	}
	return conflictPaths, err
}

// abortMerge restores dir to its pre-merge state.
func abortMerge(ctx context.Context, dir string) error {
	_, err := git(ctx, dir, "merge", "--abort")
	return err
}

// commitMerge finalizes the staged merge with a deterministic message
// referencing the session id and branch (§4.5.1 Stage 5).
func commitMerge(ctx context.Context, dir, sessionID, branch string) (string, error) {
	msg := fmt.Sprintf("merge: session %s (%s)", sessionID, branch)
	if _, err := git(ctx, dir, "commit", "--no-edit", "-m", msg); err != nil {
		return "", err
	}
	sha, err := git(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(sha), nil
}

// branchAheadOfMainline reports whether branch has commits not on base.
func branchAheadOfMainline(ctx context.Context, dir, base, branch string) (bool, error) {
	out, err := git(ctx, dir, "rev-list", "--count", base+".."+branch)
	if err != nil {
		return false, err
	}
	n, convErr := strconv.Atoi(strings.TrimSpace(out))
	if convErr != nil {
		return false, fmt.Errorf("parse rev-list count %q: %w", out, convErr)
	}
	return n > 0, nil
}

// numstat parses `git diff --numstat base..branch` into DiffStats.
func numstat(ctx context.Context, dir, base, branch string) (DiffStats, error) {
	out, err := git(ctx, dir, "diff", "--numstat", base+".."+branch)
	if err != nil {
		return DiffStats{}, err
	}
	var stats DiffStats
	for _, line := range splitNonEmptyLines(out) {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		stats.FilesChanged++
		if ins, err := strconv.Atoi(fields[0]); err == nil {
			stats.Insertions += ins
		}
		if del, err := strconv.Atoi(fields[1]); err == nil {
			stats.Deletions += del
		}
	}
	return stats, nil
}

// unifiedDiff returns the raw patch text for base..branch, submitted to the
// model evaluator.
func unifiedDiff(ctx context.Context, dir, base, branch string) (string, error) {
	return git(ctx, dir, "diff", base+".."+branch)
}

func splitNonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}
