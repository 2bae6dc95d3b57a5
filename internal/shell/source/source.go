// Package source turns a build context reference into a local directory the
// image builder can stream.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

var (
	// ErrEmptyRef is returned for an empty context reference.
	ErrEmptyRef = errors.New("build context reference is empty")

	// ErrNotDirectory is returned when a local context is not a directory.
	ErrNotDirectory = errors.New("build context is not a directory")

	// ErrCloneFailed is returned when a remote context cannot be cloned.
	ErrCloneFailed = errors.New("clone build context failed")
)

// GitRef is a remote build context: a repository URL with an optional branch
// given after '#', as in "https://github.com/colav/quyca.git#main".
type GitRef struct {
	URL    string
	Branch string
}

// IsRemote reports whether ref names a git repository rather than a local
// directory.
func IsRemote(ref string) bool {
	url, _, _ := strings.Cut(ref, "#")
	return strings.HasPrefix(url, "https://") ||
		strings.HasPrefix(url, "http://") ||
		strings.HasPrefix(url, "git@") ||
		strings.HasPrefix(url, "ssh://") ||
		strings.HasSuffix(url, ".git")
}

// ParseGitRef splits a remote reference into URL and branch.
func ParseGitRef(ref string) GitRef {
	url, branch, _ := strings.Cut(ref, "#")
	return GitRef{URL: url, Branch: branch}
}

// Preparer resolves build contexts. Remote contexts are shallow-cloned into
// a temporary directory that the returned cleanup removes.
type Preparer struct {
	// TempDir is the parent of clone directories. Empty means os.TempDir.
	TempDir string
	// Progress receives clone progress. nil discards it.
	Progress io.Writer

	logger *slog.Logger
}

// NewPreparer creates a Preparer.
func NewPreparer(logger *slog.Logger) *Preparer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Preparer{logger: logger}
}

// Prepare returns a local directory for ref and a cleanup func that is
// always safe to call.
func (p *Preparer) Prepare(ctx context.Context, ref string) (string, func(), error) {
	noop := func() {}
	if strings.TrimSpace(ref) == "" {
		return "", noop, ErrEmptyRef
	}

	if !IsRemote(ref) {
		info, err := os.Stat(ref)
		if err != nil {
			return "", noop, fmt.Errorf("build context %s: %w", ref, err)
		}
		if !info.IsDir() {
			return "", noop, fmt.Errorf("build context %s: %w", ref, ErrNotDirectory)
		}
		return ref, noop, nil
	}

	return p.clone(ctx, ParseGitRef(ref))
}

func (p *Preparer) clone(ctx context.Context, ref GitRef) (string, func(), error) {
	noop := func() {}

	dir, err := os.MkdirTemp(p.TempDir, "quyca-build-*")
	if err != nil {
		return "", noop, fmt.Errorf("failed to create temp dir: %w", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			p.logger.Warn("failed to remove build context", "dir", dir, "error", err)
		}
	}

	opts := &git.CloneOptions{
		URL:      ref.URL,
		Depth:    1,
		Progress: p.Progress,
	}
	if ref.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(ref.Branch)
		opts.SingleBranch = true
	}

	p.logger.Info("cloning build context", "url", ref.URL, "branch", ref.Branch, "dir", dir)
	if _, err := git.PlainCloneContext(ctx, dir, false, opts); err != nil {
		cleanup()
		return "", noop, fmt.Errorf("%w: %s: %v", ErrCloneFailed, ref.URL, err)
	}
	return dir, cleanup, nil
}
