package btreeindex

import (
	"errors"
	"fmt"
)

func errChildNotFound(id PageID) error {
	return fmt.Errorf("btreeindex: page %d is not a child of the node being split", id)
}

// Sentinel errors surfaced by the index's external operations. Conditions
// the teacher's original draft modeled as exceptions (a missing file, end of
// a relation scan) are represented as explicit results instead; these
// sentinels are reserved for genuinely invalid requests and scan misuse.
var (
	// ErrBadIndexInfo is returned by Open when the requested attribute type
	// is not INTEGER, or when an on-disk meta page does not match the
	// requested relation/attribute.
	ErrBadIndexInfo = errors.New("btreeindex: bad index info")

	// ErrBadOpcodes is returned by StartScan when the low/high comparison
	// operators are not a GT/GTE paired with a LT/LTE.
	ErrBadOpcodes = errors.New("btreeindex: bad scan opcodes")

	// ErrBadScanrange is returned by StartScan when the low bound is
	// greater than the high bound.
	ErrBadScanrange = errors.New("btreeindex: bad scan range")

	// ErrNoSuchKeyFound is returned by StartScan when no entry in the index
	// satisfies both bounds.
	ErrNoSuchKeyFound = errors.New("btreeindex: no such key found")

	// ErrScanNotInitialized is returned by Next or EndScan when no scan has
	// been started (the index is Idle). A scan that has run to completion
	// still counts as started: Next then returns ErrIndexScanCompleted and
	// EndScan succeeds.
	ErrScanNotInitialized = errors.New("btreeindex: scan not initialized")

	// ErrIndexScanCompleted is returned by Next once a scan has exhausted
	// its range.
	ErrIndexScanCompleted = errors.New("btreeindex: index scan completed")
)
