package radix

// Iterator walks entries in ascending key order. Each Next re-walks the
// tree from the cursor under the lock, so the iterator survives concurrent
// mutation: keys deleted behind the cursor stay gone, keys inserted ahead
// of it may or may not be seen.
type Iterator struct {
	t    *Tree
	next uint64
	done bool
}

// Iter returns an iterator positioned at the first entry with key >= start.
func (t *Tree) Iter(start uint64) *Iterator {
	return &Iterator{t: t, next: start}
}

// Next returns the next entry at or after the cursor, advancing past it.
// The third result is false once the key space is exhausted.
func (it *Iterator) Next() (uint64, any, bool) {
	if it.done {
		return 0, nil, false
	}

	it.t.lk.Acquire()
	key, value, ok := it.t.findNext(it.next)
	it.t.lk.Release()

	if !ok {
		it.done = true
		return 0, nil, false
	}
	if key == ^uint64(0) {
		it.done = true
	} else {
		it.next = key + 1
	}
	return key, value, true
}

// Seek repositions the iterator at the first entry with key >= start and
// clears any exhausted state, restarting the walk.
func (it *Iterator) Seek(start uint64) {
	it.next = start
	it.done = false
}

// findNext returns the smallest populated key >= start. Caller holds t.lk.
func (t *Tree) findNext(start uint64) (uint64, any, bool) {
	if t.root == nil {
		return 0, nil, false
	}
	return findNextIn(t.root, uint(t.height-1)*fanoutShift, 0, start)
}

// findNextIn scans a node whose slots cover keys prefix | i<<shift.
func findNextIn(n *node, shift uint, prefix, start uint64) (uint64, any, bool) {
	for i := 0; i < fanout; i++ {
		if n.slots[i] == nil {
			continue
		}
		base := prefix | uint64(i)<<shift

		if shift == 0 {
			if base >= start {
				return base, n.slots[i], true
			}
			continue
		}

		// Skip subtrees that end before the cursor.
		end := base + (1<<shift - 1)
		if end < start {
			continue
		}
		child, _ := n.slots[i].(*node)
		if child == nil {
			continue
		}
		if key, value, ok := findNextIn(child, shift-fanoutShift, base, start); ok {
			return key, value, ok
		}
	}
	return 0, nil, false
}
