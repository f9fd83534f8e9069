package cache

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Queue", func() {
	var (
		q *queue[string, int]
	)
	BeforeEach(func() {
		resetTestKeys()
		q = newQueue[string, int]()
	})
	AfterEach(func() {
		q.ExpectInvariantsOk()
	})
	It("init", func() {
		Expect(q.empty()).To(BeTrue())
		Expect(q.keys()).To(BeEmpty())
	})

	It("push", func() {
		n := testNode()
		q.push(n)
		Expect(q.nodes()).To(Equal([]*node[string, int]{n}))
	})

	It("push multi", func() {
		n0, n1 := testNode(), testNode()
		q.push(n0)
		q.push(n1)
		Expect(q.nodes()).To(Equal([]*node[string, int]{n0, n1}))
		Expect(q.keys()).To(Equal([]string{n0.key, n1.key}))
	})

	Context("with nodes", func() {
		var ns []*node[string, int]
		BeforeEach(func() {
			ns = nil
			for i := 0; i < 3; i++ {
				n := testNode()
				ns = append(ns, n)
				q.push(n)
			}
		})

		It("move head to tail", func() {
			q.moveToTail(ns[0])
			Expect(q.nodes()).To(Equal([]*node[string, int]{ns[1], ns[2], ns[0]}))
		})

		It("move tail to tail", func() {
			q.moveToTail(ns[2])
			Expect(q.nodes()).To(Equal(ns))
		})

		Context("shrink", func() {
			var mc *MockCallback
			BeforeEach(func() {
				mc = &MockCallback{}
				q.onShrink = mc.Shrinked
			})
			AfterEach(func() { mc.AssertExpectations(GinkgoT()) })

			It("to some", func() {
				mc.On("Shrinked", ns[0]).Once()
				q.shrink(2)
				Expect(q.nodes()).To(Equal([]*node[string, int]{ns[1], ns[2]}))
			})

			It("to zero", func() {
				for _, n := range ns {
					mc.On("Shrinked", n).Once()
				}
				q.shrink(0)
				Expect(q.nodes()).To(BeEmpty())
				Expect(q.empty()).To(BeTrue())
			})

			It("nothing to shrink", func() {
				q.shrink(len(ns))
				Expect(q.nodes()).To(Equal(ns))
			})

			It("negative size", func() {
				Expect(func() { q.shrink(-1) }).To(Panic())
			})
		})
	})
})
