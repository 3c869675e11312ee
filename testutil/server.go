package testutil

import (
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/c360/gazestream/frame"
	"github.com/c360/gazestream/message"
)

// ConnHandler serves one accepted connection after the subscribe request byte
// has been read.
type ConnHandler func(conn net.Conn, requestID byte)

// FrameServer is an in-process stream source listening on 127.0.0.1.
type FrameServer struct {
	ln       net.Listener
	handler  ConnHandler
	accepted atomic.Int64
	requests chan byte

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// NewFrameServer starts a server that hands each connection to handler.
// The server is closed automatically when the test ends.
func NewFrameServer(t testing.TB, handler ConnHandler) *FrameServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	s := &FrameServer{
		ln:       ln,
		handler:  handler,
		requests: make(chan byte, 64),
		conns:    make(map[net.Conn]struct{}),
	}

	s.wg.Add(1)
	go s.acceptLoop()

	t.Cleanup(s.Close)
	return s
}

func (s *FrameServer) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.accepted.Add(1)

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.forget(conn)

			var req [1]byte
			if _, err := io.ReadFull(conn, req[:]); err != nil {
				return
			}
			select {
			case s.requests <- req[0]:
			default:
			}
			s.handler(conn, req[0])
		}()
	}
}

func (s *FrameServer) forget(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	_ = conn.Close()
}

// Addr returns host:port.
func (s *FrameServer) Addr() string {
	return s.ln.Addr().String()
}

// Host returns the listening host.
func (s *FrameServer) Host() string {
	host, _, _ := net.SplitHostPort(s.Addr())
	return host
}

// Port returns the listening port.
func (s *FrameServer) Port() int {
	_, port, _ := net.SplitHostPort(s.Addr())
	n, _ := strconv.Atoi(port)
	return n
}

// Accepted returns how many connections have been accepted.
func (s *FrameServer) Accepted() int {
	return int(s.accepted.Load())
}

// Requests yields the subscribe byte of each connection.
func (s *FrameServer) Requests() <-chan byte {
	return s.requests
}

// DropConnections closes every live connection, keeping the listener open.
func (s *FrameServer) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}

// Close stops the listener and all connections. Safe to call twice.
func (s *FrameServer) Close() {
	_ = s.ln.Close()
	s.DropConnections()
	s.wg.Wait()
}

// Hold blocks until the peer closes conn.
func Hold(conn net.Conn, _ byte) {
	_, _ = io.Copy(io.Discard, conn)
}

// SendRecords writes records as frames of type requestID, then holds the
// connection open.
func SendRecords(records ...message.Record) ConnHandler {
	return func(conn net.Conn, requestID byte) {
		for _, r := range records {
			buf, err := frame.EncodeRecord(requestID, r)
			if err != nil {
				return
			}
			if _, err := conn.Write(buf); err != nil {
				return
			}
		}
		Hold(conn, requestID)
	}
}

// SendRaw writes raw bytes and holds the connection open.
func SendRaw(data []byte) ConnHandler {
	return func(conn net.Conn, _ byte) {
		_, _ = conn.Write(data)
		Hold(conn, 0)
	}
}

// StreamEvery writes SampleRecord(i) every interval until the write fails.
func StreamEvery(interval time.Duration) ConnHandler {
	return func(conn net.Conn, requestID byte) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for i := 0; ; i++ {
			buf, err := frame.EncodeRecord(requestID, SampleRecord(i))
			if err != nil {
				return
			}
			if _, err := conn.Write(buf); err != nil {
				return
			}
			<-ticker.C
		}
	}
}

// Sequence serves the n-th accepted connection with handlers[n], repeating
// the last handler once the list is exhausted.
func Sequence(handlers ...ConnHandler) ConnHandler {
	var n atomic.Int64
	return func(conn net.Conn, requestID byte) {
		i := int(n.Add(1)) - 1
		if i >= len(handlers) {
			i = len(handlers) - 1
		}
		handlers[i](conn, requestID)
	}
}
