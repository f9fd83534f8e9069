package txcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	. "github.com/onsi/gomega/gbytes"

	"github.com/skipor/txcache/cache"
	"github.com/skipor/txcache/log"
	. "github.com/skipor/txcache/testutil"
)

const (
	ReadTimeout  = 0.2
	BlockTimeout = 100 * time.Millisecond
)

type Out struct {
	buf *Buffer
}

func NewOut() *Out {
	return &Out{NewBuffer()}
}

var _ BufferProvider = (*Out)(nil)

func (o *Out) Buffer() *Buffer {
	return o.buf
}

func (o *Out) ExpectItem(key string, i Item) {
	Eventually(o, ReadTimeout).Should(Say(ValueResponse + " "))
	o.expectChunk([]byte(key))
	Eventually(o, ReadTimeout).Should(Say(fmt.Sprintf(" %v %v"+SeparatorPattern, i.Flags, len(i.Data))))
	o.expectChunk(i.Data)
	Expect(o).To(Say(SeparatorPattern))
}

func (o *Out) expectChunk(ch []byte) {
	actualCh := make([]byte, len(ch))
	_, err := io.ReadFull(o.buf, actualCh)
	Expect(err).To(BeNil())
	ExpectBytesEqual(actualCh, ch)
}

func SetInput(key string, i Item, exptime int, noreply bool) string {
	s := fmt.Sprintf("%s %s %v %v %v", SetCommand, key, i.Flags, exptime, len(i.Data))
	if noreply {
		s += " " + NoReplyOption
	}
	return s + Separator + string(i.Data) + Separator
}

func NewTestCache(capacity int) *cache.Cache[string, Item] {
	c, err := cache.New[string, Item](log.NewLogger(log.DebugLevel, GinkgoWriter), cache.Config[string, Item]{
		Capacity: capacity,
	})
	Expect(err).NotTo(HaveOccurred())
	return c
}

var _ = Describe("Conn", func() {
	const capacity = 3
	var (
		ctx           context.Context
		testCache     *cache.Cache[string, Item]
		connMeta      *ConnMeta
		c             *conn
		out           *Out
		in            *io.PipeWriter
		serveFinished chan struct{}
	)
	BeforeEach(func() {
		ctx = context.Background()
		serveFinished = make(chan struct{})
		out = NewOut()
		testCache = NewTestCache(capacity)
		connMeta = &ConnMeta{Cache: testCache}
	})
	// Context BeforeEach may change connMeta before conn start.
	JustBeforeEach(func() {
		connMeta.init()
		var connReader *io.PipeReader
		connReader, in = io.Pipe()
		rwc := struct {
			io.ReadCloser
			io.Writer
		}{connReader, out.buf}
		l := log.NewLogger(log.DebugLevel, GinkgoWriter)
		c = newConn(ctx, l, connMeta, rwc)
		go func() {
			defer GinkgoRecover()
			c.serve()
			close(serveFinished)
		}()
	})

	AfterEach(func() {
		in.Close()
		Eventually(serveFinished).Should(BeClosed())
		Expect(out).NotTo(Say(Anything))
	})

	// Send doesn't wait for conn to read input, so it can be used when conn
	// is blocked on transaction lock.
	Send := func(s string) {
		go func() {
			io.WriteString(in, s)
		}()
	}
	ExpectSay := func(pattern string) {
		EventuallyWithOffset(1, out, ReadTimeout).Should(Say(pattern))
	}
	ExpectGet := func(key string, expected Item) {
		actual, ok := testCache.Get(key)
		ExpectWithOffset(1, ok).To(BeTrue(), "key %s not found", key)
		ExpectWithOffset(1, actual).To(Equal(expected))
	}

	It("server error", func() {
		in.CloseWithError(errors.New("test err"))
		ExpectSay(ServerErrorPattern)
	})

	It("client error", func() {
		Send("get \r\n")
		ExpectSay(ClientErrorPattern)
	})

	It("unknown command", func() {
		Send("delete key\r\n")
		ExpectSay(ErrorPattern)
	})

	It("connection usable after client error", func() {
		Send("get \r\n" + "contains key\r\n")
		ExpectSay(ClientErrorPattern)
		ExpectSay(NotFoundPattern)
	})

	Context("set", func() {
		var item Item
		BeforeEach(func() {
			item = Item{Flags: 42, Data: []byte("some data")}
		})

		It("stored", func() {
			Send(SetInput("key", item, 0, false))
			ExpectSay(StoredPattern)
			ExpectGet("key", item)
		})

		It("no reply", func() {
			Send(SetInput("key", item, 0, true))
			Eventually(func() bool { return testCache.Contains("key") }, ReadTimeout).Should(BeTrue())
			Consistently(out, BlockTimeout).ShouldNot(Say(Anything))
		})

		It("binary data", func() {
			Fuzz(&item.Flags)
			var data [1 << 10]byte
			Fuzz(&data)
			item.Data = append(data[:], Separator...)
			Send(SetInput("key", item, 0, false))
			ExpectSay(StoredPattern)
			actual, ok := testCache.Get("key")
			Expect(ok).To(BeTrue())
			Expect(actual.Flags).To(Equal(item.Flags))
			ExpectBytesEqual(actual.Data, item.Data)
		})

		It("expiration unsupported", func() {
			Send(SetInput("key", item, 100, false) + "contains key\r\n")
			ExpectSay(ClientErrorResponse + " " + ErrExpirationUnsupported.Error())
			ExpectSay(NotFoundPattern)
		})

		It("invalid data separator", func() {
			Send("set key 0 0 4\r\ndata\n")
			ExpectSay(ClientErrorPattern)
			Expect(testCache.Contains("key")).To(BeFalse())
		})

		Context("too large item", func() {
			BeforeEach(func() {
				connMeta.MaxItemSize = 4
			})
			It("data skipped", func() {
				Send(SetInput("key", item, 0, false) + "contains key\r\n")
				ExpectSay(ClientErrorResponse + " " + ErrTooLargeItem.Error())
				ExpectSay(NotFoundPattern)
			})
		})
	})

	Context("get", func() {
		It("not found", func() {
			Send("get key\r\n")
			ExpectSay(EndPattern)
		})

		It("found", func() {
			items := map[string]Item{
				"key1": {Flags: 1, Data: []byte("one")},
				"key2": {Flags: 2, Data: []byte{}},
			}
			for k, i := range items {
				Expect(testCache.Set(ctx, k, i)).To(Succeed())
			}
			Send("gets key1 missing key2\r\n")
			out.ExpectItem("key1", items["key1"])
			out.ExpectItem("key2", items["key2"])
			ExpectSay(EndPattern)
		})

		It("invalid key", func() {
			Send("get key\x01\r\n")
			ExpectSay(ClientErrorPattern)
		})
	})

	Context("contains", func() {
		BeforeEach(func() {
			Expect(testCache.Set(ctx, "key", Item{})).To(Succeed())
		})
		It("found", func() {
			Send("contains key\r\n")
			ExpectSay(FoundPattern)
		})
		It("not found", func() {
			Send("contains other\r\n")
			ExpectSay(NotFoundPattern)
		})
		It("too many fields", func() {
			Send("contains key other\r\n")
			ExpectSay(ClientErrorPattern)
		})
	})

	Context("transaction", func() {
		// other writer sets key out of transaction.
		OtherSet := func(key string) chan error {
			done := make(chan error, 1)
			go func() {
				done <- testCache.Set(ctx, key, Item{Data: []byte("other")})
			}()
			return done
		}

		It("begin end", func() {
			Send("begin\r\nend\r\n")
			ExpectSay(OKPattern)
			ExpectSay(OKPattern)
			Expect(testCache.TrySet(ctx, "key", Item{})).To(BeTrue())
		})

		It("begin twice", func() {
			Send("begin\r\nbegin\r\n")
			ExpectSay(OKPattern)
			ExpectSay(ClientErrorResponse + " " + cache.ErrAlreadyInTransaction.Error())
			Send("end\r\n")
			ExpectSay(OKPattern)
		})

		It("end without begin", func() {
			Send("end\r\n")
			ExpectSay(ClientErrorResponse + " " + cache.ErrNotInTransaction.Error())
		})

		It("begin with fields", func() {
			Send("begin now\r\n")
			ExpectSay(ClientErrorPattern)
			Expect(testCache.TrySet(ctx, "key", Item{})).To(BeTrue())
		})

		It("other writers wait for end", func() {
			Send("begin\r\n")
			ExpectSay(OKPattern)
			done := OtherSet("key")
			Send(SetInput("key", Item{Data: []byte("tx")}, 0, false))
			ExpectSay(StoredPattern)
			Consistently(done, BlockTimeout).ShouldNot(Receive())
			Send("get key\r\n")
			out.ExpectItem("key", Item{Data: []byte("tx")})
			ExpectSay(EndPattern)

			Send("end\r\n")
			ExpectSay(OKPattern)
			Eventually(done, ReadTimeout).Should(Receive(BeNil()))
			ExpectGet("key", Item{Data: []byte("other")})
		})

		It("released on connection close", func() {
			Send("begin\r\n")
			ExpectSay(OKPattern)
			done := OtherSet("key")
			Consistently(done, BlockTimeout).ShouldNot(Receive())
			in.Close()
			Eventually(serveFinished).Should(BeClosed())
			Eventually(done, ReadTimeout).Should(Receive(BeNil()))
		})
	})

	Context("set waits for other transaction", func() {
		var txCtx context.Context
		BeforeEach(func() {
			var err error
			txCtx, err = testCache.BeginTransaction(ctx)
			Expect(err).NotTo(HaveOccurred())
		})
		AfterEach(func() {
			testCache.EndTransaction(txCtx)
		})

		It("stored after end", func() {
			Send(SetInput("key", Item{Data: []byte("conn")}, 0, false))
			Consistently(out, BlockTimeout).ShouldNot(Say(Anything))
			Expect(testCache.EndTransaction(txCtx)).To(Succeed())
			ExpectSay(StoredPattern)
			Expect(testCache.Contains("key")).To(BeTrue())
		})

		Context("conn context canceled", func() {
			var cancel context.CancelFunc
			BeforeEach(func() {
				ctx, cancel = context.WithCancel(ctx)
			})
			It("server error", func() {
				Send(SetInput("key", Item{Data: []byte("conn")}, 0, false))
				Consistently(out, BlockTimeout).ShouldNot(Say(Anything))
				cancel()
				ExpectSay(ServerErrorPattern)
				Eventually(serveFinished).Should(BeClosed())
				Expect(testCache.Contains("key")).To(BeFalse())
			})
		})
	})
})
