// Package relscan provides RelationScanner implementations used to bulk-load
// a freshly built index from the rows of the relation it indexes.
package relscan

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/RichardKnop/btreeindex/internal/btreeindex"
)

// Row pairs a relation tuple's RID with its raw bytes.
type Row struct {
	RID btreeindex.RID
	Row []byte
}

// SliceScanner walks an in-memory slice of rows. It is the scanner used in
// tests and by callers that have already materialized the relation.
type SliceScanner struct {
	rows []Row
	pos  int
}

// NewSliceScanner returns a scanner over rows, in the order given.
func NewSliceScanner(rows []Row) *SliceScanner {
	return &SliceScanner{rows: rows}
}

// Next implements btreeindex.RelationScanner.
func (s *SliceScanner) Next(ctx context.Context) (btreeindex.RID, []byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return btreeindex.RID{}, nil, false, err
	}
	if s.pos >= len(s.rows) {
		return btreeindex.RID{}, nil, false, nil
	}
	row := s.rows[s.pos]
	s.pos++
	return row.RID, row.Row, true, nil
}

// FileScanner reads fixed-size rows sequentially from a flat file of packed
// rowSize-byte records, rowsPerPage per page, assigning each row the RID
// (page, slot) implied by its position. It mirrors the layout the index's
// own pages use: a plain array of fixed-width records with no per-row
// framing.
type FileScanner struct {
	r           *bufio.Reader
	rowSize     int
	rowsPerPage int
	nextPage    uint32
	nextSlot    uint32
}

// NewFileScanner opens a scanner over r, where every row is exactly rowSize
// bytes and rowsPerPage rows make up one page's worth of RIDs.
func NewFileScanner(r io.Reader, rowSize, rowsPerPage int) *FileScanner {
	return &FileScanner{
		r:           bufio.NewReader(r),
		rowSize:     rowSize,
		rowsPerPage: rowsPerPage,
	}
}

// Next implements btreeindex.RelationScanner.
func (s *FileScanner) Next(ctx context.Context) (btreeindex.RID, []byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return btreeindex.RID{}, nil, false, err
	}

	buf := make([]byte, s.rowSize)
	if _, err := io.ReadFull(s.r, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return btreeindex.RID{}, nil, false, nil
		}
		return btreeindex.RID{}, nil, false, fmt.Errorf("relscan: reading row: %w", err)
	}

	rid := btreeindex.RID{PageID: s.nextPage, Slot: s.nextSlot}
	s.nextSlot++
	if int(s.nextSlot) == s.rowsPerPage {
		s.nextSlot = 0
		s.nextPage++
	}

	return rid, buf, true, nil
}
