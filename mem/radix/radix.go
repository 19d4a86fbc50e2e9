package radix

import (
	"errors"

	"github.com/joshuapare/memkit/internal/spin"
)

const (
	// fanoutShift is the number of key bits consumed per tree level.
	fanoutShift = 6

	// fanout is the number of slots per node.
	fanout = 1 << fanoutShift

	// slotMask extracts one level's slot index from a key.
	slotMask = fanout - 1

	// maxHeight is the number of levels needed to cover a full 64-bit key.
	maxHeight = (64 + fanoutShift - 1) / fanoutShift
)

// NumTags is the number of independent per-entry tag bits.
const NumTags = 2

// Tag selects one of the per-entry boolean tag sets.
type Tag uint8

var (
	// ErrAlreadyPresent indicates an Insert on an occupied key.
	// Use Replace when overwrite is the intent.
	ErrAlreadyPresent = errors.New("radix: key already present")

	// ErrNotFound indicates a key with no entry.
	ErrNotFound = errors.New("radix: key not found")

	// ErrNilValue indicates an attempt to store a nil value. A nil slot
	// means "absent"; storing nil would make the entry unobservable.
	ErrNilValue = errors.New("radix: nil value")

	// ErrBadTag indicates a tag index outside [0, NumTags).
	ErrBadTag = errors.New("radix: bad tag index")
)

// node is one radix level. Interior slots hold *node children; leaf slots
// (shift 0) hold caller values. tags carries one bitmap per tag set, with
// one bit per slot; tag bits are only meaningful on leaves.
type node struct {
	shift  uint // key shift of this level's slot index; 0 = leaf
	count  int  // occupied slots
	parent *node
	offset int // this node's slot index in parent

	slots [fanout]any
	tags  [NumTags]uint64

	// nextFree links nodes on the cache free list. A node is either live
	// in a tree or on the free list, never both; keeping the link in a
	// dedicated field makes that transition explicit.
	nextFree *node
}

// Tree is a radix tree keyed by uint64. The zero value is not usable;
// construct with New. All operations are safe for concurrent use.
type Tree struct {
	lk     spin.Lock
	cache  *NodeCache
	root   *node
	height int // levels; 0 = empty tree
	size   int
}

// Option configures tree construction.
type Option func(*Tree)

// WithNodeCache makes the tree draw its nodes from c. Trees sharing one
// bookkeeping domain should share a cache.
func WithNodeCache(c *NodeCache) Option {
	return func(t *Tree) { t.cache = c }
}

// New creates an empty tree. Without options it owns a private node cache.
func New(opts ...Option) *Tree {
	t := &Tree{}
	for _, opt := range opts {
		opt(t)
	}
	if t.cache == nil {
		t.cache = NewNodeCache()
	}
	return t
}

// Len returns the number of entries.
func (t *Tree) Len() int {
	t.lk.Acquire()
	defer t.lk.Release()
	return t.size
}

// covers reports whether a tree of the given height can hold key.
// Height maxHeight covers the full 64-bit key space.
func covers(height int, key uint64) bool {
	if height >= maxHeight {
		return true
	}
	return key < 1<<(uint(height)*fanoutShift)
}

// Insert stores value under key. Inserting an occupied key fails with
// ErrAlreadyPresent and leaves the tree untouched.
func (t *Tree) Insert(key uint64, value any) error {
	if value == nil {
		return ErrNilValue
	}

	t.lk.Acquire()
	defer t.lk.Release()

	t.extend(key)

	n := t.root
	shift := uint(t.height-1) * fanoutShift
	for shift > 0 {
		idx := int(key>>shift) & slotMask
		child, _ := n.slots[idx].(*node)
		if child == nil {
			child = t.cache.get()
			child.shift = shift - fanoutShift
			child.parent = n
			child.offset = idx
			n.slots[idx] = child
			n.count++
		}
		n = child
		shift -= fanoutShift
	}

	idx := int(key) & slotMask
	if n.slots[idx] != nil {
		// The full path pre-existed, so nothing above needs unwinding.
		return ErrAlreadyPresent
	}
	n.slots[idx] = value
	n.count++
	t.size++
	return nil
}

// Replace overwrites the value under an existing key and returns the
// previous value. Missing keys fail with ErrNotFound; Replace never
// creates entries.
func (t *Tree) Replace(key uint64, value any) (any, error) {
	if value == nil {
		return nil, ErrNilValue
	}

	t.lk.Acquire()
	defer t.lk.Release()

	n, idx := t.leaf(key)
	if n == nil || n.slots[idx] == nil {
		return nil, ErrNotFound
	}
	prev := n.slots[idx]
	n.slots[idx] = value
	return prev, nil
}

// Lookup returns the value stored under key, if any. The walk never
// allocates.
func (t *Tree) Lookup(key uint64) (any, bool) {
	t.lk.Acquire()
	defer t.lk.Release()

	n, idx := t.leaf(key)
	if n == nil || n.slots[idx] == nil {
		return nil, false
	}
	return n.slots[idx], true
}

// Delete removes the entry under key and returns its value. Deleting a
// missing key is a safe no-op reported as (nil, false). Interior nodes
// emptied by the removal are returned to the node cache all the way up to
// the first non-empty ancestor.
func (t *Tree) Delete(key uint64) (any, bool) {
	t.lk.Acquire()
	defer t.lk.Release()

	n, idx := t.leaf(key)
	if n == nil || n.slots[idx] == nil {
		return nil, false
	}

	value := n.slots[idx]
	n.slots[idx] = nil
	n.count--
	for tag := 0; tag < NumTags; tag++ {
		n.tags[tag] &^= 1 << idx
	}
	t.size--

	// Collapse emptied nodes upward; no dangling empty node persists.
	for n.count == 0 {
		parent := n.parent
		if parent == nil {
			t.root = nil
			t.height = 0
			t.cache.put(n)
			break
		}
		parent.slots[n.offset] = nil
		parent.count--
		t.cache.put(n)
		n = parent
	}

	return value, true
}

// SetTag sets the given tag bit on an existing entry.
func (t *Tree) SetTag(key uint64, tag Tag) error {
	return t.tagOp(key, tag, func(n *node, idx int) {
		n.tags[tag] |= 1 << idx
	})
}

// ClearTag clears the given tag bit on an existing entry.
func (t *Tree) ClearTag(key uint64, tag Tag) error {
	return t.tagOp(key, tag, func(n *node, idx int) {
		n.tags[tag] &^= 1 << idx
	})
}

// TestTag reports whether the tag bit is set on the entry. Missing keys
// report false.
func (t *Tree) TestTag(key uint64, tag Tag) bool {
	if int(tag) >= NumTags {
		return false
	}

	t.lk.Acquire()
	defer t.lk.Release()

	n, idx := t.leaf(key)
	if n == nil || n.slots[idx] == nil {
		return false
	}
	return n.tags[tag]&(1<<idx) != 0
}

func (t *Tree) tagOp(key uint64, tag Tag, apply func(*node, int)) error {
	if int(tag) >= NumTags {
		return ErrBadTag
	}

	t.lk.Acquire()
	defer t.lk.Release()

	n, idx := t.leaf(key)
	if n == nil || n.slots[idx] == nil {
		return ErrNotFound
	}
	apply(n, idx)
	return nil
}

// leaf walks to the leaf node containing key's slot without allocating.
// Returns (nil, 0) when the path does not exist. Caller holds t.lk.
func (t *Tree) leaf(key uint64) (*node, int) {
	if t.root == nil || !covers(t.height, key) {
		return nil, 0
	}
	n := t.root
	shift := uint(t.height-1) * fanoutShift
	for shift > 0 {
		child, _ := n.slots[int(key>>shift)&slotMask].(*node)
		if child == nil {
			return nil, 0
		}
		n = child
		shift -= fanoutShift
	}
	return n, int(key) & slotMask
}

// extend grows the tree height until key fits, pushing the old root one
// level down each step. Caller holds t.lk.
func (t *Tree) extend(key uint64) {
	if t.root == nil {
		t.root = t.cache.get()
		t.height = 1
	}
	for !covers(t.height, key) {
		newRoot := t.cache.get()
		newRoot.shift = uint(t.height) * fanoutShift
		if t.root.count > 0 {
			t.root.parent = newRoot
			t.root.offset = 0
			newRoot.slots[0] = t.root
			newRoot.count = 1
		} else {
			// Empty old root: recycle it instead of keeping a dead level.
			t.cache.put(t.root)
		}
		t.root = newRoot
		t.height++
	}
	t.root.shift = uint(t.height-1) * fanoutShift
}
