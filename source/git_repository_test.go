package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/google/go-cmp/cmp"
	"github.com/sardine-ai/go-config-sync/model"
)

func TestGitRepository(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo, err := NewGitRepository(dir, "settings/config.json")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := repo.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// Unrelated files in the work tree do not force commits.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("scratch"), 0o600); err != nil {
		t.Fatal(err)
	}

	want := model.Default()
	// Saving the same snapshot twice must only produce one commit.
	for i := 0; i < 2; i++ {
		if err := repo.Save(ctx, want); err != nil {
			t.Fatal(err)
		}
	}
	want.AutoReport = true
	if err := repo.Save(ctx, want); err != nil {
		t.Fatal(err)
	}

	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}

	r, err := git.PlainOpen(dir)
	if err != nil {
		t.Fatal(err)
	}
	iter, err := r.Log(&git.LogOptions{})
	if err != nil {
		t.Fatal(err)
	}
	commits := 0
	err = iter.ForEach(func(*object.Commit) error {
		commits++
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if commits != 2 {
		t.Errorf("expected 2 commits, got %d", commits)
	}

	// Reopening picks up the committed file.
	reopened, err := NewGitRepository(dir, "settings/config.json")
	if err != nil {
		t.Fatal(err)
	}
	got, err = reopened.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("config mismatch after reopen (-want +got):\n%s", diff)
	}
}
