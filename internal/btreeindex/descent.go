package btreeindex

import "context"

// findLeaf descends from the root to the leaf that must contain key, if it
// is present at all. Descent is read-only: every page visited is pinned
// just long enough to read its header and separators, then unpinned before
// the next page is pinned, so it never holds more than one page pinned at a
// time and never modifies a node.
func (idx *Index) findLeaf(ctx context.Context, key int32) (PageID, error) {
	_, leafID, err := idx.descend(ctx, key, false)
	return leafID, err
}

// findLeafWithPath is findLeaf but also returns the chain of internal node
// ids visited from the root down to (not including) the leaf. Insertion
// uses this path to propagate a split upward without any node needing to
// remember its own parent.
func (idx *Index) findLeafWithPath(ctx context.Context, key int32) ([]PageID, PageID, error) {
	return idx.descend(ctx, key, true)
}

func (idx *Index) descend(ctx context.Context, key int32, keepPath bool) ([]PageID, PageID, error) {
	curID := idx.rootID
	curPage, err := idx.pool.ReadPage(ctx, curID)
	if err != nil {
		return nil, InvalidPageID, err
	}

	if _, ok := curPage.Data.(*LeafNode); ok {
		if err := idx.pool.UnpinPage(curID, false); err != nil {
			return nil, InvalidPageID, err
		}
		return nil, curID, nil
	}

	var path []PageID
	for {
		internal := curPage.Data.(*InternalNode)
		if keepPath {
			path = append(path, curID)
		}

		childIdx := internal.findChildIndex(key)
		childID := internal.Child(childIdx)
		atLeafLevel := internal.Level == 1

		if err := idx.pool.UnpinPage(curID, false); err != nil {
			return nil, InvalidPageID, err
		}
		if atLeafLevel {
			return path, childID, nil
		}

		curID = childID
		curPage, err = idx.pool.ReadPage(ctx, curID)
		if err != nil {
			return nil, InvalidPageID, err
		}
	}
}
