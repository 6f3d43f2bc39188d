package st

import "math/bits"

// coroHeap is the intrusive min-heap of coroutines keyed by absolute wakeup
// time (spec.md §3 "Timeout heap", §4.4). Unlike a conventional binary heap,
// there is no backing array: the tree is threaded directly through each
// Coroutine's own left/right/parent/heapIndex fields. heapIndex is a 1-based
// integer whose bits (after the leading 1) encode the root-to-node path —
// this lets both insert and delete locate the current last-leaf in O(log n)
// without any separate index structure.
type coroHeap struct {
	root *Coroutine
	size uint64
}

// pathBits returns, MSB-first, the bits of idx below its leading 1 — the
// sequence of left(false)/right(true) turns from the root to the node whose
// heapIndex is idx. The root itself (idx==1) has an empty path.
func pathBits(idx uint64) []bool {
	bl := bits.Len64(idx)
	if bl <= 1 {
		return nil
	}
	path := make([]bool, 0, bl-1)
	for i := bl - 2; i >= 0; i-- {
		path = append(path, (idx>>uint(i))&1 == 1)
	}
	return path
}

// insert adds node to the heap (spec.md §4.4 "Insert"). node must not
// already be a member of any heap.
func (h *coroHeap) insert(node *Coroutine) {
	h.size++
	idx := h.size
	node.left, node.right, node.parent = nil, nil, nil
	node.heapIndex = idx

	if idx == 1 {
		h.root = node
		return
	}

	path := pathBits(idx)
	cur := h.root
	traveling := node
	for i, right := range path {
		occupant := cur
		var child *Coroutine
		if right {
			child = cur.right
		} else {
			child = cur.left
		}

		if cur.due.After(traveling.due) {
			// The inserted (or previously displaced) node is smaller than
			// the occupant of this position: it takes over the position,
			// adopting the occupant's parent link and both children: the
			// larger value continues downward carrying nothing (it will
			// either displace a deeper node or land at the new leaf).
			traveling.parent = cur.parent
			if cur.parent == nil {
				h.root = traveling
			} else if cur.parent.left == cur {
				cur.parent.left = traveling
			} else {
				cur.parent.right = traveling
			}
			traveling.left, traveling.right = cur.left, cur.right
			if traveling.left != nil {
				traveling.left.parent = traveling
			}
			if traveling.right != nil {
				traveling.right.parent = traveling
			}
			traveling.heapIndex = cur.heapIndex

			occupant = traveling
			cur.parent, cur.left, cur.right = nil, nil, nil
			traveling = cur
		}

		if i == len(path)-1 {
			traveling.parent = occupant
			traveling.left, traveling.right = nil, nil
			traveling.heapIndex = idx
			if right {
				occupant.right = traveling
			} else {
				occupant.left = traveling
			}
			return
		}
		cur = child
	}
}

// nodeAt walks the path encoded by idx from the root and returns the node
// currently occupying that position, or nil if idx is out of range.
func (h *coroHeap) nodeAt(idx uint64) *Coroutine {
	if idx == 0 || idx > h.size {
		return nil
	}
	n := h.root
	for _, right := range pathBits(idx) {
		if n == nil {
			return nil
		}
		if right {
			n = n.right
		} else {
			n = n.left
		}
	}
	return n
}

// swapParentChild exchanges the tree positions of a parent and one of its
// direct children, leaving each node's own due (and therefore its owning
// coroutine's identity) untouched — only the structural links (parent,
// left, right, heapIndex) move. Used by delete's sift-up/sift-down; insert
// relinks nodes itself during its top-down walk.
func swapParentChild(h *coroHeap, parent, child *Coroutine) {
	grandparent := parent.parent
	childWasLeft := parent.left == child
	var sibling *Coroutine
	if childWasLeft {
		sibling = parent.right
	} else {
		sibling = parent.left
	}
	cl, cr := child.left, child.right

	child.parent = grandparent
	if grandparent == nil {
		h.root = child
	} else if grandparent.left == parent {
		grandparent.left = child
	} else {
		grandparent.right = child
	}
	if childWasLeft {
		child.left, child.right = parent, sibling
	} else {
		child.left, child.right = sibling, parent
	}
	if sibling != nil {
		sibling.parent = child
	}

	parent.parent = child
	parent.left, parent.right = cl, cr
	if cl != nil {
		cl.parent = parent
	}
	if cr != nil {
		cr.parent = parent
	}

	parent.heapIndex, child.heapIndex = child.heapIndex, parent.heapIndex
}

// siftUp moves n toward the root while it is smaller than its parent.
func (h *coroHeap) siftUp(n *Coroutine) {
	for n.parent != nil && n.due.Before(n.parent.due) {
		swapParentChild(h, n.parent, n)
	}
}

// siftDown moves n toward the leaves while either child is smaller.
func (h *coroHeap) siftDown(n *Coroutine) {
	for {
		smallest := n
		if n.left != nil && n.left.due.Before(smallest.due) {
			smallest = n.left
		}
		if n.right != nil && n.right.due.Before(smallest.due) {
			smallest = n.right
		}
		if smallest == n {
			return
		}
		swapParentChild(h, n, smallest)
	}
}

// delete removes node from the heap (spec.md §4.4 "Delete"): the current
// last leaf (located via the bit pattern of size) is unlinked and, unless it
// was node itself, relocated into node's vacated position before the heap
// property is re-established by sifting in whichever direction is needed.
func (h *coroHeap) delete(node *Coroutine) {
	if node.heapIndex == 0 {
		return
	}

	last := h.nodeAt(h.size)
	if last.parent != nil {
		if last.parent.left == last {
			last.parent.left = nil
		} else {
			last.parent.right = nil
		}
	} else {
		h.root = nil
	}
	last.parent = nil
	h.size--

	if last == node {
		node.left, node.right, node.heapIndex = nil, nil, 0
		return
	}

	last.parent = node.parent
	if node.parent == nil {
		h.root = last
	} else if node.parent.left == node {
		node.parent.left = last
	} else {
		node.parent.right = last
	}
	last.left, last.right = node.left, node.right
	if last.left != nil {
		last.left.parent = last
	}
	if last.right != nil {
		last.right.parent = last
	}
	last.heapIndex = node.heapIndex

	node.left, node.right, node.parent, node.heapIndex = nil, nil, nil, 0

	h.siftUp(last)
	h.siftDown(last)
}

// min returns the coroutine with the smallest due, or nil if empty.
func (h *coroHeap) min() *Coroutine {
	return h.root
}

// empty reports whether the heap has no members.
func (h *coroHeap) empty() bool {
	return h.size == 0
}
