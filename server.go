package txcache

import (
	"context"
	"net"
	"os"
	"sync"
	"time"

	"github.com/skipor/txcache/log"
)

type Server struct {
	Addr string
	ConnMeta
	Log         log.Logger
	connCounter int64

	initOnce sync.Once
	// ctx is canceled on Close. It interrupts connections waiting for transaction lock.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	listener net.Listener
	closed   bool
}

// ConnMeta is data shared between connections.
type ConnMeta struct {
	Cache       Cache
	MaxItemSize int
}

func (s *Server) ListenAndServe() error {
	if s.Addr == "" {
		s.Addr = ":11211"
	}
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections until Close is called, or listener fails.
// Returns nil after Close.
func (s *Server) Serve(l net.Listener) error {
	s.init()
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		l.Close()
		return nil
	}
	s.listener = l
	s.mu.Unlock()
	var tempDelay time.Duration // How long to sleep on accept failure.
	for {
		c, err := l.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return nil
			}
			if ne, ok := err.(net.Error); !(ok && ne.Temporary()) {
				return err
			}
			if tempDelay == 0 {
				tempDelay = 5 * time.Millisecond
			} else {
				tempDelay *= 2
			}
			if max := 1 * time.Second; tempDelay > max {
				tempDelay = max
			}
			s.Log.Errorf("txcache: Accept error: %v; retrying in %v", err, tempDelay)
			time.Sleep(tempDelay)
			continue
		}
		tempDelay = 0
		go s.newConn(c).serve()
	}
}

// Close stops accepting connections and interrupts connections waiting for
// transaction lock. Served connections are not closed.
// Repeated Close is noop.
func (s *Server) Close() error {
	s.init()
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil || s.closed {
		return nil
	}
	s.closed = true
	return s.listener.Close()
}

func (s *Server) newConn(c net.Conn) *conn {
	l := s.Log.WithFields(log.Fields{"conn": s.connCounter})
	s.connCounter++
	return newConn(s.ctx, l, &s.ConnMeta, c)
}

func (s *Server) init() {
	s.initOnce.Do(func() {
		if s.Log == nil {
			s.Log = log.NewLogger(log.ErrorLevel, os.Stderr)
		}
		if s.Cache == nil {
			s.Log.Panic("Server cache is not set.")
		}
		s.ctx, s.cancel = context.WithCancel(context.Background())
		s.ConnMeta.init()
	})
}

func (m *ConnMeta) init() {
	if m.MaxItemSize == 0 {
		m.MaxItemSize = DefaultMaxItemSize
	}
}
