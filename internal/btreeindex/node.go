package btreeindex

import (
	"encoding/binary"
	"fmt"

	"github.com/RichardKnop/btreeindex/internal/bufpool"
)

// PageID addresses a page within the index file.
type PageID = bufpool.PageID

// InvalidPageID marks an absent child or sibling pointer.
const InvalidPageID = bufpool.InvalidPageID

// RID identifies one tuple in the relation the index was built over.
type RID struct {
	PageID uint32
	Slot   uint32
}

// AttrType is the type of the attribute an index is built on. Only
// TypeInteger is currently supported; the field exists so a meta page can
// name the mismatch explicitly instead of silently misinterpreting bytes.
type AttrType uint8

const (
	TypeInteger AttrType = 1
)

const (
	pageTypeMeta     byte = 1
	pageTypeLeaf     byte = 2
	pageTypeInternal byte = 3
)

// PageSize is the fixed size of every page in an index file, including the
// meta page.
const PageSize = 4096

const (
	relationNameSize = 20

	metaHeaderSize = 1 + relationNameSize + 4 + 1 + 4

	leafHeaderSize = 1 + 4 + 4   // tag + occupied + right sibling
	leafCellSize   = 4 + 4 + 4   // key + rid.PageID + rid.Slot
	LeafCapacity   = (PageSize - leafHeaderSize) / leafCellSize

	internalHeaderSize = 1 + 1 + 4 + 4 // tag + level + keys + right child
	internalCellSize   = 4 + 4         // key + child
	NonLeafCapacity    = (PageSize - internalHeaderSize) / internalCellSize
)

// metaNode is the decoded form of page 0.
type metaNode struct {
	RelationName   string
	AttrByteOffset int32
	AttrType       AttrType
	RootPageID     PageID
}

func newMetaNode(relationName string, attrByteOffset int32, attrType AttrType, root PageID) *metaNode {
	return &metaNode{
		RelationName:   relationName,
		AttrByteOffset: attrByteOffset,
		AttrType:       attrType,
		RootPageID:     root,
	}
}

// leafCell is one (key, rid) pair stored in a leaf node, kept sorted by Key
// with ties broken by insertion order.
type leafCell struct {
	Key int32
	RID RID
}

// LeafNode is a fixed-capacity leaf of the index: a sorted run of keys
// paired with the RID each one maps to, plus a pointer to the next leaf in
// key order so a range scan can walk the chain without revisiting internal
// nodes.
type LeafNode struct {
	Cells        []leafCell
	RightSibling PageID
}

func newLeafNode() *LeafNode {
	return &LeafNode{RightSibling: InvalidPageID}
}

func (n *LeafNode) Occupied() int { return len(n.Cells) }

func (n *LeafNode) Full() bool { return len(n.Cells) >= LeafCapacity }

// insert places (key, rid) in sorted position, with equal keys kept in the
// order they were inserted. Caller must have already verified n is not Full.
func (n *LeafNode) insert(key int32, rid RID) {
	n.Cells = append(n.Cells, leafCell{Key: key, RID: rid})
	i := len(n.Cells) - 1
	for i > 0 && n.Cells[i-1].Key > n.Cells[i].Key {
		n.Cells[i-1], n.Cells[i] = n.Cells[i], n.Cells[i-1]
		i--
	}
}

// internalCell is one (separator key, left child) pair. The rightmost child
// of an internal node is held out-of-band in InternalNode.RightChild, so an
// N-separator node has N cells and N+1 children.
type internalCell struct {
	Key   int32
	Child PageID
}

// InternalNode is a fixed-capacity internal node: Keys[i] separates the
// subtree rooted at Child(i) (all keys strictly less than Keys[i]) from the
// subtree rooted at Child(i+1). Level counts distance from the leaves: a
// Level-1 internal node's children are leaves.
type InternalNode struct {
	Level      uint8
	Cells      []internalCell
	RightChild PageID
}

func newInternalNode(level uint8) *InternalNode {
	return &InternalNode{Level: level, RightChild: InvalidPageID}
}

func (n *InternalNode) Keys() int { return len(n.Cells) }

func (n *InternalNode) Full() bool { return len(n.Cells) >= NonLeafCapacity }

// Child returns the i-th child pointer, where i ranges over [0, Keys()].
func (n *InternalNode) Child(i int) PageID {
	if i == len(n.Cells) {
		return n.RightChild
	}
	return n.Cells[i].Child
}

// findChildIndex returns the smallest i such that key < Keys[i], or Keys()
// if no such separator exists (key belongs in the rightmost subtree).
func (n *InternalNode) findChildIndex(key int32) int {
	lo, hi := 0, len(n.Cells)
	for lo < hi {
		mid := (lo + hi) / 2
		if key < n.Cells[mid].Key {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// childIndexOf returns the position of childID among this node's children,
// and true if found.
func (n *InternalNode) childIndexOf(childID PageID) (int, bool) {
	for i, cell := range n.Cells {
		if cell.Child == childID {
			return i, true
		}
	}
	if n.RightChild == childID {
		return len(n.Cells), true
	}
	return 0, false
}

// insertChildAfter inserts key and rightID so that rightID becomes the child
// immediately following leftID, shifting everything after leftID's position
// one slot to the right. Caller must have already verified n is not Full.
func (n *InternalNode) insertChildAfter(leftID PageID, key int32, rightID PageID) error {
	i, ok := n.childIndexOf(leftID)
	if !ok {
		return fmt.Errorf("btreeindex: page %d is not a child of this node", leftID)
	}

	k := len(n.Cells)
	if i == k {
		n.Cells = append(n.Cells, internalCell{Key: key, Child: leftID})
		n.RightChild = rightID
		return nil
	}

	n.Cells = append(n.Cells, internalCell{})
	for j := k - 1; j > i; j-- {
		n.Cells[j+1] = n.Cells[j]
	}
	n.Cells[i+1] = internalCell{Key: n.Cells[i].Key, Child: rightID}
	n.Cells[i] = internalCell{Key: key, Child: leftID}
	return nil
}

func marshalMeta(m *metaNode, buf []byte) error {
	if len(m.RelationName) > relationNameSize {
		return fmt.Errorf("btreeindex: relation name %q exceeds %d bytes", m.RelationName, relationNameSize)
	}

	buf[0] = pageTypeMeta
	off := 1
	copy(buf[off:off+relationNameSize], m.RelationName)
	off += relationNameSize
	binary.NativeEndian.PutUint32(buf[off:], uint32(m.AttrByteOffset))
	off += 4
	buf[off] = byte(m.AttrType)
	off += 1
	binary.NativeEndian.PutUint32(buf[off:], uint32(m.RootPageID))
	return nil
}

func unmarshalMeta(buf []byte) (*metaNode, error) {
	if buf[0] != pageTypeMeta {
		return nil, fmt.Errorf("btreeindex: page 0 has tag %d, expected meta", buf[0])
	}
	off := 1
	name := trimRelationName(buf[off : off+relationNameSize])
	off += relationNameSize
	attrOffset := int32(binary.NativeEndian.Uint32(buf[off:]))
	off += 4
	attrType := AttrType(buf[off])
	off += 1
	root := PageID(binary.NativeEndian.Uint32(buf[off:]))

	return &metaNode{
		RelationName:   name,
		AttrByteOffset: attrOffset,
		AttrType:       attrType,
		RootPageID:     root,
	}, nil
}

func trimRelationName(raw []byte) string {
	n := len(raw)
	for n > 0 && raw[n-1] == 0 {
		n--
	}
	return string(raw[:n])
}

func marshalLeaf(n *LeafNode, buf []byte) error {
	if len(n.Cells) > LeafCapacity {
		return fmt.Errorf("btreeindex: leaf node holds %d cells, capacity is %d", len(n.Cells), LeafCapacity)
	}

	buf[0] = pageTypeLeaf
	binary.NativeEndian.PutUint32(buf[1:], uint32(len(n.Cells)))
	binary.NativeEndian.PutUint32(buf[5:], uint32(n.RightSibling))

	off := leafHeaderSize
	for _, cell := range n.Cells {
		binary.NativeEndian.PutUint32(buf[off:], uint32(cell.Key))
		binary.NativeEndian.PutUint32(buf[off+4:], cell.RID.PageID)
		binary.NativeEndian.PutUint32(buf[off+8:], cell.RID.Slot)
		off += leafCellSize
	}
	return nil
}

func unmarshalLeaf(buf []byte) (*LeafNode, error) {
	if buf[0] != pageTypeLeaf {
		return nil, fmt.Errorf("btreeindex: page has tag %d, expected leaf", buf[0])
	}
	occupied := int(binary.NativeEndian.Uint32(buf[1:]))
	rightSibling := PageID(binary.NativeEndian.Uint32(buf[5:]))

	cells := make([]leafCell, occupied)
	off := leafHeaderSize
	for i := range cells {
		key := int32(binary.NativeEndian.Uint32(buf[off:]))
		ridPage := binary.NativeEndian.Uint32(buf[off+4:])
		ridSlot := binary.NativeEndian.Uint32(buf[off+8:])
		cells[i] = leafCell{Key: key, RID: RID{PageID: ridPage, Slot: ridSlot}}
		off += leafCellSize
	}

	return &LeafNode{Cells: cells, RightSibling: rightSibling}, nil
}

func marshalInternal(n *InternalNode, buf []byte) error {
	if len(n.Cells) > NonLeafCapacity {
		return fmt.Errorf("btreeindex: internal node holds %d keys, capacity is %d", len(n.Cells), NonLeafCapacity)
	}

	buf[0] = pageTypeInternal
	buf[1] = n.Level
	binary.NativeEndian.PutUint32(buf[2:], uint32(len(n.Cells)))
	binary.NativeEndian.PutUint32(buf[6:], uint32(n.RightChild))

	off := internalHeaderSize
	for _, cell := range n.Cells {
		binary.NativeEndian.PutUint32(buf[off:], uint32(cell.Key))
		binary.NativeEndian.PutUint32(buf[off+4:], uint32(cell.Child))
		off += internalCellSize
	}
	return nil
}

func unmarshalInternal(buf []byte) (*InternalNode, error) {
	if buf[0] != pageTypeInternal {
		return nil, fmt.Errorf("btreeindex: page has tag %d, expected internal", buf[0])
	}
	level := buf[1]
	keys := int(binary.NativeEndian.Uint32(buf[2:]))
	rightChild := PageID(binary.NativeEndian.Uint32(buf[6:]))

	cells := make([]internalCell, keys)
	off := internalHeaderSize
	for i := range cells {
		key := int32(binary.NativeEndian.Uint32(buf[off:]))
		child := PageID(binary.NativeEndian.Uint32(buf[off+4:]))
		cells[i] = internalCell{Key: key, Child: child}
		off += internalCellSize
	}

	return &InternalNode{Level: level, Cells: cells, RightChild: rightChild}, nil
}

// unmarshalPage dispatches on a page's leading tag byte; it backs the
// bufpool.Unmarshaler the index opens its buffer pool with.
func unmarshalPage(id PageID, buf []byte) (any, error) {
	if len(buf) == 0 {
		return nil, fmt.Errorf("btreeindex: empty page %d", id)
	}
	switch buf[0] {
	case pageTypeMeta:
		return unmarshalMeta(buf)
	case pageTypeLeaf:
		return unmarshalLeaf(buf)
	case pageTypeInternal:
		return unmarshalInternal(buf)
	default:
		return nil, fmt.Errorf("btreeindex: page %d has unknown tag %d", id, buf[0])
	}
}

// marshalPage backs the bufpool.Marshaler the index opens its buffer pool
// with.
func marshalPage(id PageID, data any, buf []byte) error {
	switch n := data.(type) {
	case *metaNode:
		return marshalMeta(n, buf)
	case *LeafNode:
		return marshalLeaf(n, buf)
	case *InternalNode:
		return marshalInternal(n, buf)
	default:
		return fmt.Errorf("btreeindex: page %d holds unmarshalable type %T", id, data)
	}
}
