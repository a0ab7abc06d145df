package relscan

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RichardKnop/btreeindex/internal/btreeindex"
)

func TestSliceScanner_YieldsRowsThenEOF(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	scanner := NewSliceScanner([]Row{
		{RID: btreeindex.RID{PageID: 1, Slot: 0}, Row: []byte("aaaa")},
		{RID: btreeindex.RID{PageID: 1, Slot: 1}, Row: []byte("bbbb")},
	})

	rid, row, ok, err := scanner.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, btreeindex.RID{PageID: 1, Slot: 0}, rid)
	assert.Equal(t, []byte("aaaa"), row)

	_, _, ok, err = scanner.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	_, _, ok, err = scanner.Next(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileScanner_AssignsRIDsByPosition(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var buf bytes.Buffer
	for i := 0; i < 5; i++ {
		buf.WriteString("1234")
	}
	scanner := NewFileScanner(&buf, 4, 2)

	var rids []btreeindex.RID
	for {
		rid, row, ok, err := scanner.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		assert.Equal(t, []byte("1234"), row)
		rids = append(rids, rid)
	}

	assert.Equal(t, []btreeindex.RID{
		{PageID: 0, Slot: 0},
		{PageID: 0, Slot: 1},
		{PageID: 1, Slot: 0},
		{PageID: 1, Slot: 1},
		{PageID: 2, Slot: 0},
	}, rids)
}

func TestFileScanner_RejectsPartialTrailingRow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	buf := bytes.NewBufferString("1234" + "12")
	scanner := NewFileScanner(buf, 4, 10)

	_, _, ok, err := scanner.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	_, _, ok, err = scanner.Next(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}
