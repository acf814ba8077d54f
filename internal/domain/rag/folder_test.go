package rag

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFolderRepo struct {
	folders map[uuid.UUID]Folder
	moved   bool
}

func newFakeFolderRepo() *fakeFolderRepo {
	return &fakeFolderRepo{folders: map[uuid.UUID]Folder{}}
}

func (r *fakeFolderRepo) Create(_ context.Context, f Folder) error {
	r.folders[f.ID] = f
	return nil
}

func (r *fakeFolderRepo) Get(_ context.Context, id uuid.UUID) (Folder, bool, error) {
	f, ok := r.folders[id]
	return f, ok, nil
}

func (r *fakeFolderRepo) ListByCollection(_ context.Context, _ string) ([]Folder, error) {
	out := make([]Folder, 0, len(r.folders))
	for _, f := range r.folders {
		out = append(out, f)
	}
	return out, nil
}

func (r *fakeFolderRepo) Move(_ context.Context, id uuid.UUID, newParent *uuid.UUID) error {
	f := r.folders[id]
	f.ParentID = newParent
	r.folders[id] = f
	r.moved = true
	return nil
}

func (r *fakeFolderRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(r.folders, id)
	return nil
}

func TestMoveFolder_RejectsSelfAsParent(t *testing.T) {
	repo := newFakeFolderRepo()
	id := uuid.New()
	repo.folders[id] = Folder{ID: id}

	err := MoveFolder(context.Background(), repo, id, &id)
	require.ErrorIs(t, err, ErrFolderCycle)
	assert.False(t, repo.moved)
}

func TestMoveFolder_RejectsMovingIntoOwnDescendant(t *testing.T) {
	repo := newFakeFolderRepo()
	root := uuid.New()
	child := uuid.New()
	grandchild := uuid.New()

	repo.folders[root] = Folder{ID: root}
	repo.folders[child] = Folder{ID: child, ParentID: &root}
	repo.folders[grandchild] = Folder{ID: grandchild, ParentID: &child}

	err := MoveFolder(context.Background(), repo, root, &grandchild)
	require.ErrorIs(t, err, ErrFolderCycle, "moving root under its own grandchild must be rejected")
	assert.False(t, repo.moved)
}

func TestMoveFolder_AllowsMoveToUnrelatedFolder(t *testing.T) {
	repo := newFakeFolderRepo()
	a := uuid.New()
	b := uuid.New()
	repo.folders[a] = Folder{ID: a}
	repo.folders[b] = Folder{ID: b}

	err := MoveFolder(context.Background(), repo, a, &b)
	require.NoError(t, err)
	assert.True(t, repo.moved)
	assert.Equal(t, &b, repo.folders[a].ParentID)
}

func TestMoveFolder_AllowsMoveToRoot(t *testing.T) {
	repo := newFakeFolderRepo()
	a := uuid.New()
	repo.folders[a] = Folder{ID: a}

	err := MoveFolder(context.Background(), repo, a, nil)
	require.NoError(t, err)
	assert.True(t, repo.moved)
}
