package cache

import (
	"fmt"

	"github.com/skipor/txcache/internal/tag"
)

// Pre and post conditions (Invariants) for push, moveToTail and shrink methods:
// * queue owns nodes between fakeHead and fakeTail.
// * {fakeHead, all owned nodes, fakeTail} are correct doubly linked list.
// * all nodes owned by queue have field node.owner equal to &queue
// * queue.size equal to number of owned nodes.
type queue[K comparable, V any] struct {
	size int
	// onShrink called in shrink for every removed node.
	// Node is already disowned and detached when callback is called.
	onShrink func(*node[K, V])

	// Fake nodes. Real nodes are between them.
	// nil <- fakeHead <-> node_0 <-> ... <-> node_(n-1) <-> fakeTail -> nil
	// Such structure prevent nil checks in code.

	// fakeHead is bottom of queue. fakeHead.next is least recently written node.
	fakeHead *node[K, V]

	// fakeTail is top of queue. All new added before fakeTail.
	fakeTail *node[K, V]
}

// For debug output.
const fakeHeadName = " !HEAD! "
const fakeTailName = " !TAIL! "

func newQueue[K comparable, V any]() *queue[K, V] {
	q := &queue[K, V]{}
	q.fakeHead = &node[K, V]{fake: fakeHeadName}
	q.fakeTail = &node[K, V]{fake: fakeTailName}
	link(q.fakeHead, q.fakeTail)
	return q
}

func (q *queue[K, V]) push(n *node[K, V]) {
	n.owner = q
	q.size++
	q.attachToTail(n)
}

// moveToTail makes owned node most recently written.
func (q *queue[K, V]) moveToTail(n *node[K, V]) {
	if tag.Debug && n.owner != q {
		panic("move to tail of not owned node")
	}
	n.detach()
	q.attachToTail(n)
}

// shrink detach nodes from head to tail until queue size is toSize, and call
// onShrink for every of them.
func (q *queue[K, V]) shrink(toSize int) {
	if toSize < 0 {
		panic(fmt.Sprintf("try shrink to negative size %v", toSize))
	}
	cur := q.head()
	for q.size > toSize {
		q.assertNotTail(cur)
		next := cur.next
		if tag.Debug {
			cur.prev = nil
			cur.next = nil
		}
		cur.disown()
		if q.onShrink != nil {
			q.onShrink(cur)
		}
		cur = next
	}
	link(q.fakeHead, cur)
}

func (q *queue[K, V]) attachToTail(n *node[K, V]) {
	link(q.tail(), n)
	link(n, q.fakeTail)
}

func (q *queue[K, V]) head() *node[K, V] { return q.fakeHead.next }
func (q *queue[K, V]) tail() *node[K, V] { return q.fakeTail.prev }
func (q *queue[K, V]) end(n *node[K, V]) bool {
	if tag.Debug {
		if n.owner != q && n != q.fakeTail {
			panic("check end of not owned node")
		}
	}
	return n == q.fakeTail
}
func (q *queue[K, V]) empty() bool { return q.size == 0 }

// keys returns owned keys from least to most recently written.
func (q *queue[K, V]) keys() []K {
	keys := make([]K, 0, q.size)
	for n := q.head(); !q.end(n); n = n.next {
		keys = append(keys, n.key)
	}
	return keys
}

type node[K comparable, V any] struct {
	key   K
	value V
	owner *queue[K, V]
	prev  *node[K, V]
	next  *node[K, V]
	fake  string // Not empty only for fake head and tail.
}

func newNode[K comparable, V any](key K, value V) *node[K, V] {
	return &node[K, V]{key: key, value: value}
}

func (n *node[K, V]) disown() {
	n.owner.size--
	if tag.Debug {
		n.owner = nil
	}
}

func (n *node[K, V]) detach() {
	link(n.prev, n.next)
	if tag.Debug {
		n.prev = nil
		n.next = nil
	}
}

func (q *queue[K, V]) assertNotTail(n *node[K, V]) {
	if n == q.fakeTail {
		panic("node pointer out of range")
	}
}

func link[K comparable, V any](a, b *node[K, V]) { a.next, b.prev = b, a }

func (n *node[K, V]) GoString() string {
	name := func(n *node[K, V]) interface{} {
		if n == nil {
			return nil
		}
		if n.fake != "" {
			return n.fake
		}
		return n.key
	}
	return fmt.Sprintf("{key:%v, value:%#v, owner:%p, prev:%v, next:%v}",
		name(n), n.value, n.owner, name(n.prev), name(n.next))
}

var _ fmt.GoStringer = (*node[string, int])(nil)
