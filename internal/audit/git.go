package audit

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// GitSink commits the persisted document after every mutation, using the
// entry's description as the commit message. The git history becomes the
// restore point for the marker collection.
type GitSink struct {
	mu    sync.Mutex
	repo  *git.Repository
	path  string
	email string
}

// NewGitSink opens the repository containing repoDir. documentPath is the
// data file to stage; it must live inside the repository's worktree.
func NewGitSink(repoDir, documentPath, email string) (*GitSink, error) {
	repo, err := git.PlainOpenWithOptions(repoDir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open git repo %s: %w", repoDir, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("git worktree: %w", err)
	}

	abs, err := filepath.Abs(documentPath)
	if err != nil {
		return nil, err
	}
	root, err := filepath.Abs(wt.Filesystem.Root())
	if err != nil {
		return nil, err
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	if dir, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		abs = filepath.Join(dir, filepath.Base(abs))
	}

	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("document %s is outside repository %s", documentPath, root)
	}

	return &GitSink{
		repo:  repo,
		path:  filepath.ToSlash(rel),
		email: email,
	}, nil
}

// Name implements Sink.
func (s *GitSink) Name() string {
	return "git"
}

// Append stages the document and commits it. A document that did not change
// produces no commit.
func (s *GitSink) Append(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wt, err := s.repo.Worktree()
	if err != nil {
		return fmt.Errorf("git worktree: %w", err)
	}
	if _, err := wt.Add(s.path); err != nil {
		return fmt.Errorf("git add %s: %w", s.path, err)
	}

	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("git status: %w", err)
	}
	if fs, ok := status[s.path]; !ok || fs.Staging == git.Unmodified {
		return nil
	}

	_, err = wt.Commit(e.Message(), &git.CommitOptions{
		Author: &object.Signature{
			Name:  e.Actor,
			Email: s.email,
			When:  e.Time,
		},
	})
	if err != nil {
		return fmt.Errorf("git commit: %w", err)
	}
	return nil
}

// Close implements Sink.
func (s *GitSink) Close() error {
	return nil
}
