// +build debug

// Gomega should not be dependency in non-debug build.

package cache

import (
	"errors"
	"log"

	"github.com/facebookgo/stackerr"
	. "github.com/onsi/gomega"
)

var _ = func() (_ struct{}) {
	RegisterFailHandler(GomegaFailHandler)
	return
}()

func GomegaFailHandler(message string, callerSkip ...int) {
	skip := 1
	if len(callerSkip) > 0 {
		skip += callerSkip[0]
	}
	log.Fatal("FATAL: invariants are broken:", stackerr.WrapSkip(errors.New(message), skip))
}

func (q *queue[K, V]) checkInvariants() {
	Expect(q.fakeHead.prev).To(BeNil())
	Expect(q.fakeTail.next).To(BeNil())
	Expect(q.fakeHead.owner).To(BeNil())
	Expect(q.fakeTail.owner).To(BeNil())
	var actualSize int
	for n := q.head(); !q.end(n); n = n.next {
		actualSize++
		Expect(n.prev.next).To(BeIdenticalTo(n))
		Expect(n.owner).To(BeIdenticalTo(q))
	}
	Expect(q.tail().next).To(BeIdenticalTo(q.fakeTail))
	Expect(actualSize).To(Equal(q.size))
}

func (s *store[K, V]) checkInvariants() {
	s.order.checkInvariants()
	var items int
	for n := s.order.head(); !s.order.end(n); n = n.next {
		items++
		tn, ok := s.table[n.key]
		Expect(ok).To(BeTrue(), "no table ref to item")
		Expect(tn).To(BeIdenticalTo(n), "table refs to another node")
	}
	ExpectWithOffset(1, items).To(Equal(len(s.table)), "too many items in table")
	ExpectWithOffset(1, items).To(BeNumerically("<=", s.capacity), "capacity overflow")
}
