// Package deque provides LinkedDeque, an intrusive doubly linked list used as
// the ordering structure behind the LRU caches and the pool wait queues.
//
// Removed nodes are recycled through a small spare list so that steady-state
// push/poll traffic does not allocate. A LinkedDeque is not safe for
// concurrent use; callers must hold their own lock.
package deque

import (
	"github.com/ajitpratap0/sqlpool/pkg/errors"
)

// DefaultSpareNodes is the number of freed nodes kept for reuse by New.
const DefaultSpareNodes = 1

// Node is a handle to an element linked into a LinkedDeque. Handles stay
// valid until the element is removed; afterwards the node may be recycled
// for a later PutFirst.
type Node[T any] struct {
	prev, next *Node[T]
	owner      *LinkedDeque[T]

	Value T
}

// LinkedDeque is a doubly linked deque with O(1) push-front, poll from
// either end, and O(1) unlinking by node handle.
type LinkedDeque[T any] struct {
	head, tail *Node[T]
	size       int

	spare    []*Node[T]
	maxSpare int
}

// New creates an empty deque retaining DefaultSpareNodes recycled nodes.
func New[T any]() *LinkedDeque[T] {
	return &LinkedDeque[T]{
		spare:    make([]*Node[T], 0, DefaultSpareNodes),
		maxSpare: DefaultSpareNodes,
	}
}

// NewWithSpare creates an empty deque retaining up to spare recycled nodes.
func NewWithSpare[T any](spare int) (*LinkedDeque[T], error) {
	if spare <= 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "spare node count must be positive").
			WithDetail("spare", spare)
	}
	return &LinkedDeque[T]{
		spare:    make([]*Node[T], 0, spare),
		maxSpare: spare,
	}, nil
}

// Len returns the number of linked elements.
func (d *LinkedDeque[T]) Len() int {
	return d.size
}

// IsEmpty reports whether the deque holds no elements.
func (d *LinkedDeque[T]) IsEmpty() bool {
	return d.size == 0
}

// PutFirst links item at the head and returns its node handle.
func (d *LinkedDeque[T]) PutFirst(item T) *Node[T] {
	n := d.obtain(item)
	d.linkFirst(n)
	return n
}

// PeekFirst returns the head element without removing it.
func (d *LinkedDeque[T]) PeekFirst() (T, bool) {
	if d.head == nil {
		var zero T
		return zero, false
	}
	return d.head.Value, true
}

// PeekLast returns the tail element without removing it.
func (d *LinkedDeque[T]) PeekLast() (T, bool) {
	if d.tail == nil {
		var zero T
		return zero, false
	}
	return d.tail.Value, true
}

// PollFirst unlinks and returns the head element.
func (d *LinkedDeque[T]) PollFirst() (T, bool) {
	if d.head == nil {
		var zero T
		return zero, false
	}
	return d.release(d.head), true
}

// PollLast unlinks and returns the tail element.
func (d *LinkedDeque[T]) PollLast() (T, bool) {
	if d.tail == nil {
		var zero T
		return zero, false
	}
	return d.release(d.tail), true
}

// PollFirstMatching scans from the head and unlinks the first element for
// which match returns true.
func (d *LinkedDeque[T]) PollFirstMatching(match func(T) bool) (T, bool) {
	for n := d.head; n != nil; n = n.next {
		if match(n.Value) {
			return d.release(n), true
		}
	}
	var zero T
	return zero, false
}

// Remove unlinks the node. It returns false if the node is not currently
// linked into this deque.
func (d *LinkedDeque[T]) Remove(n *Node[T]) bool {
	if n == nil || n.owner != d {
		return false
	}
	d.release(n)
	return true
}

// MoveToFront relinks an element of this deque at the head.
func (d *LinkedDeque[T]) MoveToFront(n *Node[T]) bool {
	if n == nil || n.owner != d {
		return false
	}
	if d.head == n {
		return true
	}
	d.unlink(n)
	d.linkFirst(n)
	return true
}

// Each calls fn for every element from head to tail.
func (d *LinkedDeque[T]) Each(fn func(T)) {
	for n := d.head; n != nil; n = n.next {
		fn(n.Value)
	}
}

// Clear unlinks every element.
func (d *LinkedDeque[T]) Clear() {
	for d.head != nil {
		d.release(d.head)
	}
}

// ReverseMutableIterator returns an iterator walking from the tail toward
// the head whose Remove unlinks the element last returned by Next.
func (d *LinkedDeque[T]) ReverseMutableIterator() *ReverseIterator[T] {
	return &ReverseIterator[T]{
		deque: d,
		next:  d.tail,
	}
}

func (d *LinkedDeque[T]) obtain(item T) *Node[T] {
	if last := len(d.spare) - 1; last >= 0 {
		n := d.spare[last]
		d.spare[last] = nil
		d.spare = d.spare[:last]
		n.Value = item
		return n
	}
	return &Node[T]{Value: item}
}

func (d *LinkedDeque[T]) linkFirst(n *Node[T]) {
	n.owner = d
	n.prev = nil
	n.next = d.head
	if d.head != nil {
		d.head.prev = n
	} else {
		d.tail = n
	}
	d.head = n
	d.size++
}

func (d *LinkedDeque[T]) unlink(n *Node[T]) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		d.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		d.tail = n.prev
	}
	n.prev = nil
	n.next = nil
	d.size--
}

// release unlinks n, returns its value and recycles the node.
func (d *LinkedDeque[T]) release(n *Node[T]) T {
	d.unlink(n)
	item := n.Value

	var zero T
	n.Value = zero
	n.owner = nil
	if len(d.spare) < d.maxSpare {
		d.spare = append(d.spare, n)
	}
	return item
}

// ReverseIterator walks a LinkedDeque from tail to head.
type ReverseIterator[T any] struct {
	deque *LinkedDeque[T]
	next  *Node[T]
	last  *Node[T]
}

// HasNext reports whether Next will yield another element.
func (it *ReverseIterator[T]) HasNext() bool {
	return it.next != nil
}

// Next yields the next element toward the head.
func (it *ReverseIterator[T]) Next() (T, bool) {
	if it.next == nil {
		var zero T
		return zero, false
	}
	it.last = it.next
	it.next = it.next.prev
	return it.last.Value, true
}

// Remove unlinks the element most recently returned by Next. It fails if
// Next has not yielded anything since the last Remove.
func (it *ReverseIterator[T]) Remove() error {
	if it.last == nil {
		return errors.New(errors.ErrorTypeValidation, "remove called without a preceding next")
	}
	it.deque.release(it.last)
	it.last = nil
	return nil
}
