package st

// listNode is an intrusive doubly-linked circular list node, generic over
// the type it is embedded in. Embedding it in a struct (rather than
// allocating a separate list element) lets the run queue, zombie queue,
// I/O queue and mutex/condvar wait queues splice members in and out in O(1)
// without touching the heap. (The stack pool's free list is a plain slice.) owner recovers the
// containing value directly, which is the Go-native replacement for the
// original C library's pointer-to-container-by-fixed-offset trick
// (spec.md §4.1).
//
// A node that is its own neighbor (next == self) is the empty-list sentinel
// or an unlinked node; both states look the same, which is intentional: an
// unlinked node is indistinguishable from a singleton empty list until it is
// inserted somewhere.
type listNode[T any] struct {
	next, prev *listNode[T]
	owner      *T
}

// initList turns n into an empty circular list (a sentinel head). Sentinel
// heads have no owner.
func initList[T any](n *listNode[T]) {
	n.next = n
	n.prev = n
}

// listEmpty reports whether the list headed by n has no other members.
func listEmpty[T any](n *listNode[T]) bool {
	return n.next == n
}

// listInsertAfter splices node after n.
func listInsertAfter[T any](n, node *listNode[T]) {
	node.prev = n
	node.next = n.next
	n.next.prev = node
	n.next = node
}

// listInsertBefore splices node before n.
func listInsertBefore[T any](n, node *listNode[T]) {
	node.next = n
	node.prev = n.prev
	n.prev.next = node
	n.prev = node
}

// listRemove unlinks node from whatever list it is on. Safe to call on an
// already-unlinked node (it becomes a no-op self-link).
func listRemove[T any](node *listNode[T]) {
	node.prev.next = node.next
	node.next.prev = node.prev
	node.next = node
	node.prev = node
}

// listPushTail inserts node at the tail of the list headed by head
// (equivalent to enqueue for a FIFO run queue).
func listPushTail[T any](head, node *listNode[T]) {
	listInsertBefore(head, node)
}

// listPushHead inserts node at the head of the list headed by head (used
// when freshly expired sleepers must run before previously runnable work at
// the same dispatch tick, spec.md §5).
func listPushHead[T any](head, node *listNode[T]) {
	listInsertAfter(head, node)
}

// listPopHead removes and returns the owner of the first element of the
// list headed by head, or nil if the list is empty.
func listPopHead[T any](head *listNode[T]) *T {
	if listEmpty(head) {
		return nil
	}
	n := head.next
	listRemove(n)
	return n.owner
}

// listForEachRemove calls fn for every element currently in the list headed
// by head, removing each from the list before calling fn (so fn may
// re-insert it elsewhere, e.g. onto the run queue). Iteration order is
// head-to-tail (FIFO for queues built with listPushTail).
func listForEachRemove[T any](head *listNode[T], fn func(*T)) {
	for n := head.next; n != head; {
		next := n.next
		listRemove(n)
		fn(n.owner)
		n = next
	}
}
