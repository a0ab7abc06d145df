package btreeindex

import (
	"context"
	"fmt"

	"github.com/RichardKnop/btreeindex/internal/bufpool"
)

// Op is a comparison operator used to bound a range scan.
type Op uint8

const (
	GT Op = iota + 1
	GTE
	LT
	LTE
)

type scanLifecycle uint8

const (
	scanIdle scanLifecycle = iota
	scanActive
	scanDone
)

type scanState struct {
	state scanLifecycle

	low    int32
	lowOp  Op
	high   int32
	highOp Op

	leafPage  *bufpool.Page
	nextEntry int
}

func (s *scanState) matchesLow(key int32) bool {
	if s.lowOp == GTE {
		return key >= s.low
	}
	return key > s.low
}

func (s *scanState) matchesHigh(key int32) bool {
	if s.highOp == LTE {
		return key <= s.high
	}
	return key < s.high
}

// StartScan positions a new range scan over keys satisfying low lowOp key
// and key highOp high, fully locating the first qualifying entry before
// returning. Any scan already in progress is implicitly ended first.
func (idx *Index) StartScan(ctx context.Context, low int32, lowOp Op, high int32, highOp Op) error {
	if (lowOp != GT && lowOp != GTE) || (highOp != LT && highOp != LTE) {
		return fmt.Errorf("%w: low op %d / high op %d", ErrBadOpcodes, lowOp, highOp)
	}
	if low > high {
		return fmt.Errorf("%w: low %d > high %d", ErrBadScanrange, low, high)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.scan.state != scanIdle {
		idx.endScanLocked()
	}

	idx.scan.low, idx.scan.lowOp = low, lowOp
	idx.scan.high, idx.scan.highOp = high, highOp

	leafID, err := idx.findLeaf(ctx, low)
	if err != nil {
		return err
	}
	leafPage, err := idx.pool.ReadPage(ctx, leafID)
	if err != nil {
		return err
	}

	for {
		leaf := leafPage.Data.(*LeafNode)
		pos := firstMatchIndex(leaf, &idx.scan)

		if pos < len(leaf.Cells) {
			if idx.scan.matchesHigh(leaf.Cells[pos].Key) {
				idx.scan.leafPage = leafPage
				idx.scan.nextEntry = pos
				idx.scan.state = scanActive
				return nil
			}
			if err := idx.pool.UnpinPage(leafPage.ID, false); err != nil {
				return err
			}
			return fmt.Errorf("%w: low %d high %d", ErrNoSuchKeyFound, low, high)
		}

		next := leaf.RightSibling
		if err := idx.pool.UnpinPage(leafPage.ID, false); err != nil {
			return err
		}
		if next == InvalidPageID {
			return fmt.Errorf("%w: low %d high %d", ErrNoSuchKeyFound, low, high)
		}
		leafPage, err = idx.pool.ReadPage(ctx, next)
		if err != nil {
			return err
		}
	}
}

// firstMatchIndex returns the smallest index in leaf whose key satisfies the
// scan's low bound, or len(leaf.Cells) if none does. Keys are sorted
// ascending, so the predicate is monotonic and a binary search applies.
func firstMatchIndex(leaf *LeafNode, s *scanState) int {
	lo, hi := 0, len(leaf.Cells)
	for lo < hi {
		mid := (lo + hi) / 2
		if s.matchesLow(leaf.Cells[mid].Key) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// Next returns the next RID in the active scan's range, advancing past it.
// Every cell is checked against the high bound before it is returned, so the
// call that would cross the bound transitions to Done and returns
// ErrIndexScanCompleted instead of an out-of-range RID; only the call that
// still satisfies the bound returns a valid RID.
func (idx *Index) Next(ctx context.Context) (RID, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	switch idx.scan.state {
	case scanDone:
		return RID{}, ErrIndexScanCompleted
	case scanIdle:
		return RID{}, ErrScanNotInitialized
	}

	for {
		leaf := idx.scan.leafPage.Data.(*LeafNode)
		if idx.scan.nextEntry < len(leaf.Cells) {
			break
		}

		rightSibling := leaf.RightSibling
		if err := idx.pool.UnpinPage(idx.scan.leafPage.ID, false); err != nil {
			return RID{}, err
		}
		if rightSibling == InvalidPageID {
			idx.scan.state = scanDone
			idx.scan.leafPage = nil
			return RID{}, ErrIndexScanCompleted
		}

		nextPage, err := idx.pool.ReadPage(ctx, rightSibling)
		if err != nil {
			return RID{}, err
		}
		idx.scan.leafPage = nextPage
		idx.scan.nextEntry = 0
	}

	leaf := idx.scan.leafPage.Data.(*LeafNode)
	cell := leaf.Cells[idx.scan.nextEntry]
	if !idx.scan.matchesHigh(cell.Key) {
		if err := idx.pool.UnpinPage(idx.scan.leafPage.ID, false); err != nil {
			return RID{}, err
		}
		idx.scan.state = scanDone
		idx.scan.leafPage = nil
		return RID{}, ErrIndexScanCompleted
	}

	idx.scan.nextEntry++
	return cell.RID, nil
}

// EndScan releases the scan's pinned leaf, if any, and returns the index to
// Idle.
func (idx *Index) EndScan(ctx context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.scan.state == scanIdle {
		return ErrScanNotInitialized
	}
	idx.endScanLocked()
	return nil
}

// endScanLocked performs EndScan's cleanup unconditionally; callers that
// already know a scan is in progress (StartScan re-arming, Close) use this
// directly so they don't have to handle ErrScanNotInitialized themselves.
func (idx *Index) endScanLocked() {
	if idx.scan.leafPage != nil {
		_ = idx.pool.UnpinPage(idx.scan.leafPage.ID, false)
	}
	idx.scan = scanState{}
}
