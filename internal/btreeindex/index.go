// Package btreeindex implements a disk-resident B+-tree index mapping
// 32-bit signed integer keys to RIDs in an underlying relation. A single
// index covers one (relation, attribute) pair; its file holds a meta page
// at id 0, a root node reachable from the meta page, and leaf/internal
// nodes linked only by child pointers — no node persists a parent pointer,
// so multi-level propagation during insertion is carried on an explicit
// descent stack instead.
package btreeindex

import (
	"context"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/RichardKnop/btreeindex/internal/bufpool"
	"github.com/RichardKnop/btreeindex/internal/pagefile"
)

const defaultMaxCachedPages = 128

// Index is a handle on one open B+-tree index file.
type Index struct {
	logger *zap.Logger

	relationName   string
	attrByteOffset int32
	attrType       AttrType
	fileName       string

	file           *pagefile.File
	pool           *bufpool.Pool
	maxCachedPages int

	mu     sync.Mutex
	rootID PageID

	scan scanState
}

// Option customizes Open.
type Option func(*Index)

// WithMaxCachedPages overrides the number of pages the buffer pool will keep
// resident at once. The default is 128.
func WithMaxCachedPages(n int) Option {
	return func(idx *Index) {
		idx.maxCachedPages = n
	}
}

// Open opens the index file for (relationName, attrByteOffset) under dir,
// creating and bulk-loading it from scanner if it does not already exist.
// It returns the name of the file backing the index.
func Open(ctx context.Context, logger *zap.Logger, dir, relationName string, attrByteOffset int32, attrType AttrType, scanner RelationScanner, opts ...Option) (*Index, string, error) {
	if attrType != TypeInteger {
		return nil, "", fmt.Errorf("%w: attribute type %d is not supported, only INTEGER is", ErrBadIndexInfo, attrType)
	}
	if len(relationName) == 0 || len(relationName) > relationNameSize {
		return nil, "", fmt.Errorf("%w: relation name %q must be 1-%d bytes", ErrBadIndexInfo, relationName, relationNameSize)
	}

	idx := &Index{
		logger:         logger,
		relationName:   relationName,
		attrByteOffset: attrByteOffset,
		attrType:       attrType,
		maxCachedPages: defaultMaxCachedPages,
	}
	for _, opt := range opts {
		opt(idx)
	}

	idx.fileName = fmt.Sprintf("%s.%d", relationName, attrByteOffset)
	path := filepath.Join(dir, idx.fileName)

	file, existed, err := pagefile.Open(path, PageSize)
	if err != nil {
		return nil, "", err
	}
	idx.file = file
	idx.pool = bufpool.New(file, PageSize, idx.maxCachedPages, unmarshalPage, marshalPage)

	if existed {
		if err := idx.openExisting(ctx); err != nil {
			_ = file.Close()
			return nil, "", err
		}
		return idx, idx.fileName, nil
	}

	if err := idx.buildFresh(ctx, scanner); err != nil {
		_ = file.Close()
		return nil, "", err
	}
	return idx, idx.fileName, nil
}

func (idx *Index) openExisting(ctx context.Context) error {
	metaPage, err := idx.pool.ReadPage(ctx, PageID(0))
	if err != nil {
		return err
	}
	meta, ok := metaPage.Data.(*metaNode)
	if !ok {
		_ = idx.pool.UnpinPage(0, false)
		return fmt.Errorf("%w: page 0 is not a meta page", ErrBadIndexInfo)
	}

	if meta.RelationName != idx.relationName || meta.AttrByteOffset != idx.attrByteOffset || meta.AttrType != idx.attrType {
		_ = idx.pool.UnpinPage(0, false)
		return fmt.Errorf("%w: existing index is for (%s, %d, %d), not (%s, %d, %d)",
			ErrBadIndexInfo, meta.RelationName, meta.AttrByteOffset, meta.AttrType,
			idx.relationName, idx.attrByteOffset, idx.attrType)
	}

	idx.rootID = meta.RootPageID
	return idx.pool.UnpinPage(0, false)
}

func (idx *Index) buildFresh(ctx context.Context, scanner RelationScanner) error {
	metaPage, err := idx.pool.AllocPage(ctx, newMetaNode(idx.relationName, idx.attrByteOffset, idx.attrType, InvalidPageID))
	if err != nil {
		return err
	}
	rootPage, err := idx.pool.AllocPage(ctx, newLeafNode())
	if err != nil {
		return err
	}

	idx.rootID = rootPage.ID
	meta := metaPage.Data.(*metaNode)
	meta.RootPageID = idx.rootID

	if err := idx.pool.UnpinPage(rootPage.ID, true); err != nil {
		return err
	}
	if err := idx.pool.UnpinPage(metaPage.ID, true); err != nil {
		return err
	}

	if scanner == nil {
		return nil
	}

	var rows int
	for {
		rid, row, ok, err := scanner.Next(ctx)
		if err != nil {
			return fmt.Errorf("scanning relation %q: %w", idx.relationName, err)
		}
		if !ok {
			break
		}
		key, err := extractKey(row, idx.attrByteOffset)
		if err != nil {
			return err
		}
		if err := idx.Insert(ctx, key, rid); err != nil {
			return err
		}
		rows++
	}

	idx.logger.Sugar().With("relation", idx.relationName, "rows", rows, "file", idx.fileName).Debug("built index from relation scan")
	return nil
}

func extractKey(row []byte, attrByteOffset int32) (int32, error) {
	if attrByteOffset < 0 || int(attrByteOffset)+4 > len(row) {
		return 0, fmt.Errorf("btreeindex: row of %d bytes has no INTEGER at offset %d", len(row), attrByteOffset)
	}
	return int32(binary.NativeEndian.Uint32(row[attrByteOffset:])), nil
}

// Close ends any active scan, flushes all dirty pages and closes the
// underlying file.
func (idx *Index) Close(ctx context.Context) error {
	idx.mu.Lock()
	if idx.scan.state != scanIdle {
		idx.endScanLocked()
	}
	idx.mu.Unlock()

	if err := idx.pool.FlushFile(ctx); err != nil {
		return err
	}
	return idx.file.Close()
}

// FileName is the name of the file backing this index, relative to the
// directory it was opened under.
func (idx *Index) FileName() string {
	return idx.fileName
}
