package audit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) (string, *git.Repository) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	return dir, repo
}

func headMessage(t *testing.T, repo *git.Repository) (string, string) {
	t.Helper()
	ref, err := repo.Head()
	require.NoError(t, err)
	c, err := repo.CommitObject(ref.Hash())
	require.NoError(t, err)
	return c.Message, c.Author.Name
}

func TestGitSink_CommitsDocument(t *testing.T) {
	dir, repo := initRepo(t)
	doc := filepath.Join(dir, "data.json")
	require.NoError(t, os.WriteFile(doc, []byte(`{"markers":[]}`), 0o644))

	s, err := NewGitSink(dir, doc, "mapsync@localhost")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, Entry{Op: OpAdd, MarkerID: "1", MarkerName: "Camp", Actor: "alice", Time: time.Now()}))
	msg, author := headMessage(t, repo)
	assert.Equal(t, "Add marker Camp by alice", msg)
	assert.Equal(t, "alice", author)

	// unchanged document: no new commit
	first, err := repo.Head()
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, Entry{Op: OpUpdate, MarkerID: "1", Actor: "bob", Time: time.Now()}))
	again, err := repo.Head()
	require.NoError(t, err)
	assert.Equal(t, first.Hash(), again.Hash())

	require.NoError(t, os.WriteFile(doc, []byte(`{"markers":[{"id":"1"}]}`), 0o644))
	require.NoError(t, s.Append(ctx, Entry{Op: OpUpdate, MarkerID: "1", Actor: "bob", Time: time.Now()}))
	msg, _ = headMessage(t, repo)
	assert.Equal(t, "Update marker 1 by bob", msg)
}

func TestGitSink_DetectsParentRepo(t *testing.T) {
	dir, _ := initRepo(t)
	sub := filepath.Join(dir, "state")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	s, err := NewGitSink(sub, filepath.Join(sub, "data.json"), "x@y")
	require.NoError(t, err)
	assert.Equal(t, "state/data.json", s.path)
}

func TestGitSink_RejectsOutsideDocument(t *testing.T) {
	dir, _ := initRepo(t)
	_, err := NewGitSink(dir, filepath.Join(t.TempDir(), "data.json"), "x@y")
	assert.Error(t, err)
}

func TestGitSink_NotARepo(t *testing.T) {
	_, err := NewGitSink(t.TempDir(), "data.json", "x@y")
	assert.Error(t, err)
}
