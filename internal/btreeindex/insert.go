package btreeindex

import (
	"context"

	"github.com/RichardKnop/btreeindex/internal/bufpool"
)

// Insert adds (key, rid) to the index. If the target leaf has room the
// entry is inserted in place; otherwise the leaf splits and the promoted
// separator is propagated upward along the descent path, splitting
// ancestors in turn and, if the path is exhausted, growing a new root. Every
// pin this takes is matched by exactly one unpin before Insert returns.
func (idx *Index) Insert(ctx context.Context, key int32, rid RID) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	path, leafID, err := idx.findLeafWithPath(ctx, key)
	if err != nil {
		return err
	}

	leafPage, err := idx.pool.ReadPage(ctx, leafID)
	if err != nil {
		return err
	}
	leaf := leafPage.Data.(*LeafNode)

	if !leaf.Full() {
		leaf.insert(key, rid)
		return idx.pool.UnpinPage(leafID, true)
	}

	rightID, promoted, err := idx.splitLeaf(ctx, leafPage, key, rid)
	if err != nil {
		return err
	}

	return idx.propagate(ctx, path, leafID, rightID, promoted, 1)
}

// splitLeaf moves the upper half of a full leaf's entries into a freshly
// allocated sibling, links the two leaves, inserts (key, rid) into whichever
// half it belongs in, and returns the new sibling's id and the key promoted
// to the parent (the new sibling's smallest key). Both pages are unpinned
// before returning.
func (idx *Index) splitLeaf(ctx context.Context, leftPage *bufpool.Page, key int32, rid RID) (PageID, int32, error) {
	left := leftPage.Data.(*LeafNode)

	rightPage, err := idx.pool.AllocPage(ctx, newLeafNode())
	if err != nil {
		return InvalidPageID, 0, err
	}
	right := rightPage.Data.(*LeafNode)

	mid := LeafCapacity / 2
	right.Cells = append(right.Cells, left.Cells[mid:]...)
	left.Cells = left.Cells[:mid]

	right.RightSibling = left.RightSibling
	left.RightSibling = rightPage.ID

	if key < right.Cells[0].Key {
		left.insert(key, rid)
	} else {
		right.insert(key, rid)
	}
	promoted := right.Cells[0].Key

	if err := idx.pool.UnpinPage(leftPage.ID, true); err != nil {
		return InvalidPageID, 0, err
	}
	if err := idx.pool.UnpinPage(rightPage.ID, true); err != nil {
		return InvalidPageID, 0, err
	}

	return rightPage.ID, promoted, nil
}

// propagate inserts (promoted, rightID) as the separator following leftID in
// the last node of path, splitting that node in turn if it is full and
// recursing on the remaining path, or creating a new root once path is
// exhausted. childLevel is the Level a freshly created root would have: 1
// the first time this is called (leftID/rightID are leaves), or the split
// internal node's own Level+1 on any recursive call.
func (idx *Index) propagate(ctx context.Context, path []PageID, leftID, rightID PageID, promoted int32, childLevel uint8) error {
	if len(path) == 0 {
		return idx.createNewRoot(ctx, leftID, rightID, promoted, childLevel)
	}

	parentID := path[len(path)-1]
	rest := path[:len(path)-1]

	parentPage, err := idx.pool.ReadPage(ctx, parentID)
	if err != nil {
		return err
	}
	parent := parentPage.Data.(*InternalNode)

	if !parent.Full() {
		if err := parent.insertChildAfter(leftID, promoted, rightID); err != nil {
			return err
		}
		return idx.pool.UnpinPage(parentID, true)
	}

	newRightID, newPromoted, err := idx.splitInternal(ctx, parentPage, leftID, promoted, rightID)
	if err != nil {
		return err
	}

	return idx.propagate(ctx, rest, parentID, newRightID, newPromoted, parent.Level+1)
}

// splitInternal inserts (promoted, rightID) as the separator following
// leftID into a full internal node, then splits the resulting N+1 key / N+2
// child sequence around its midpoint, leaving the lower half in place and
// moving the upper half into a freshly allocated sibling at the same level.
func (idx *Index) splitInternal(ctx context.Context, leftPage *bufpool.Page, leftID PageID, promoted int32, rightID PageID) (PageID, int32, error) {
	node := leftPage.Data.(*InternalNode)

	i, ok := node.childIndexOf(leftID)
	if !ok {
		return InvalidPageID, 0, errChildNotFound(leftID)
	}

	n := len(node.Cells)
	origKeys := make([]int32, n)
	origChildren := make([]PageID, n+1)
	for j := 0; j < n; j++ {
		origKeys[j] = node.Cells[j].Key
		origChildren[j] = node.Cells[j].Child
	}
	origChildren[n] = node.RightChild

	// Merge (promoted, rightID) into the conceptual N+1-key, N+2-child
	// sequence, with rightID taking the slot immediately after leftID.
	keys := make([]int32, n+1)
	children := make([]PageID, n+2)
	for j := 0; j < i; j++ {
		keys[j] = origKeys[j]
		children[j] = origChildren[j]
	}
	children[i] = origChildren[i]
	keys[i] = promoted
	children[i+1] = rightID
	for j := i; j < n; j++ {
		keys[j+1] = origKeys[j]
		children[j+2] = origChildren[j+1]
	}

	mid := n / 2

	siblingPage, err := idx.pool.AllocPage(ctx, newInternalNode(node.Level))
	if err != nil {
		return InvalidPageID, 0, err
	}
	sibling := siblingPage.Data.(*InternalNode)

	node.Cells = node.Cells[:0]
	for j := 0; j < mid; j++ {
		node.Cells = append(node.Cells, internalCell{Key: keys[j], Child: children[j]})
	}
	node.RightChild = children[mid]

	for j := mid + 1; j <= n; j++ {
		sibling.Cells = append(sibling.Cells, internalCell{Key: keys[j], Child: children[j]})
	}
	sibling.RightChild = children[n+1]

	midKey := keys[mid]

	if err := idx.pool.UnpinPage(leftPage.ID, true); err != nil {
		return InvalidPageID, 0, err
	}
	if err := idx.pool.UnpinPage(siblingPage.ID, true); err != nil {
		return InvalidPageID, 0, err
	}

	return siblingPage.ID, midKey, nil
}

// createNewRoot allocates a fresh internal node holding exactly one
// separator between leftID and rightID and installs it as the index's root,
// updating the meta page to match.
func (idx *Index) createNewRoot(ctx context.Context, leftID, rightID PageID, key int32, childLevel uint8) error {
	rootPage, err := idx.pool.AllocPage(ctx, newInternalNode(childLevel))
	if err != nil {
		return err
	}
	root := rootPage.Data.(*InternalNode)
	root.Cells = append(root.Cells, internalCell{Key: key, Child: leftID})
	root.RightChild = rightID

	metaPage, err := idx.pool.ReadPage(ctx, PageID(0))
	if err != nil {
		return err
	}
	meta := metaPage.Data.(*metaNode)
	meta.RootPageID = rootPage.ID
	idx.rootID = rootPage.ID

	if err := idx.pool.UnpinPage(metaPage.ID, true); err != nil {
		return err
	}
	return idx.pool.UnpinPage(rootPage.ID, true)
}
