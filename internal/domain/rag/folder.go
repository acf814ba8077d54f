package rag

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrFolderCycle is returned when moving a folder would make it its own
// descendant.
var ErrFolderCycle = errors.New("rag: moving folder would create a cycle")

// MoveFolder reassigns folder id's parent to newParent, rejecting the move
// if newParent is id itself or a descendant of id. Folders form a tree,
// never a DAG; acyclicity is enforced at write time by walking from the
// proposed parent up to the root.
func MoveFolder(ctx context.Context, repo FolderRepository, id uuid.UUID, newParent *uuid.UUID) error {
	if newParent != nil {
		if *newParent == id {
			return ErrFolderCycle
		}
		cursor := *newParent
		for {
			f, ok, err := repo.Get(ctx, cursor)
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			if f.ParentID == nil {
				break
			}
			if *f.ParentID == id {
				return ErrFolderCycle
			}
			cursor = *f.ParentID
		}
	}
	return repo.Move(ctx, id, newParent)
}

// DeleteFolderCascade removes folder id along with every descendant folder,
// then reverts any document placed in one of the deleted folders back to
// the collection root (a nil folder reference). docFolders may be nil when
// no document→folder mapping is wired, in which case only the folder tree
// itself is pruned.
func DeleteFolderCascade(ctx context.Context, repo FolderRepository, docFolders DocumentFolderRepository, id uuid.UUID) error {
	folder, ok, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	siblings, err := repo.ListByCollection(ctx, folder.Collection)
	if err != nil {
		return err
	}
	childrenOf := make(map[uuid.UUID][]uuid.UUID, len(siblings))
	for _, f := range siblings {
		if f.ParentID != nil {
			childrenOf[*f.ParentID] = append(childrenOf[*f.ParentID], f.ID)
		}
	}

	toDelete := []uuid.UUID{id}
	for stack := []uuid.UUID{id}; len(stack) > 0; {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		children := childrenOf[cur]
		toDelete = append(toDelete, children...)
		stack = append(stack, children...)
	}

	if docFolders != nil {
		if err := docFolders.RevertToRoot(ctx, toDelete); err != nil {
			return err
		}
	}
	for _, fid := range toDelete {
		if err := repo.Delete(ctx, fid); err != nil {
			return err
		}
	}
	return nil
}
