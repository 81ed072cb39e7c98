// Package source materializes a config.Source into a local directory of
// journey definition files: either a plain filesystem path or a git
// checkout, cloned (or pulled if already present) via go-git.
package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/relayform/journeyengine/internal/config"
)

// Sync ensures the local checkout for src exists and is up to date under
// baseDir, returning the directory journeys should be loaded from.
func Sync(ctx context.Context, baseDir string, src config.Source) (string, error) {
	if src.Git == "" {
		if src.Path == "" {
			return "", fmt.Errorf("source %q declares neither git nor path", src.ID)
		}
		return src.Path, nil
	}

	dest := filepath.Join(baseDir, src.ID)

	cloneOpts := &git.CloneOptions{URL: src.Git}
	if src.Ref != "" {
		cloneOpts.ReferenceName = plumbing.NewBranchReferenceName(src.Ref)
	}

	repo, err := git.PlainCloneContext(ctx, dest, false, cloneOpts)
	switch {
	case err == nil:
		// fresh clone
	case errors.Is(err, git.ErrRepositoryAlreadyExists):
		repo, err = git.PlainOpen(dest)
		if err != nil {
			return "", fmt.Errorf("open existing checkout for %q: %w", src.ID, err)
		}
		if err := pull(ctx, repo); err != nil {
			return "", fmt.Errorf("update checkout for %q: %w", src.ID, err)
		}
	default:
		return "", fmt.Errorf("clone %q: %w", src.Git, err)
	}

	subdir := dest
	if src.Path != "" {
		subdir = filepath.Join(dest, src.Path)
	}
	if _, err := os.Stat(subdir); err != nil {
		return "", fmt.Errorf("source %q checkout missing path %q: %w", src.ID, src.Path, err)
	}
	return subdir, nil
}

func pull(ctx context.Context, repo *git.Repository) error {
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	err = wt.PullContext(ctx, &git.PullOptions{})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return err
	}
	return nil
}
