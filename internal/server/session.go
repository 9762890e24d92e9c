package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"relay/internal/protocol"
)

const (
	defaultName = "guest"
	keepAlive   = 30 * time.Second
)

var (
	errSendFailed    = errors.New("send failed")
	errSessionBroken = errors.New("session: earlier write failed")
)

// Session represents one TCP connection.
//
// A single goroutine runs per session (run). It blocks on reading the next
// frame; there is no read timeout. Other goroutines write to the session
// through Send while fanning out broadcasts, and may close it at any time.
//
// States: Handshaking (until the first frame names the client), Active
// (initialized), Closing (running cleared) and Closed (run returned).
type Session struct {
	id     uint64
	server *Server
	conn   net.Conn
	reader *bufio.Reader
	log    *slog.Logger

	writeTimeout time.Duration
	writeMu      sync.Mutex  // serialises frames on conn
	broken       atomic.Bool // a write failed; the stream may hold a partial frame

	// Display name. Written only with the hub mutex held; mu lets readers
	// that do not hold the hub mutex see a consistent value.
	mu   sync.RWMutex
	name string

	initialized atomic.Bool // handshake complete, receives broadcasts
	running     atomic.Bool // cleared exactly once, by close
}

func newSession(id uint64, conn net.Conn, srv *Server) (*Session, error) {
	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.SetKeepAlive(true); err != nil {
			return nil, fmt.Errorf("session %d: enable keep-alive: %w", id, err)
		}
		if err := tcp.SetKeepAlivePeriod(keepAlive); err != nil {
			return nil, fmt.Errorf("session %d: keep-alive period: %w", id, err)
		}
	}
	s := &Session{
		id:           id,
		server:       srv,
		conn:         conn,
		reader:       bufio.NewReader(conn),
		log:          srv.log.With("session", id, "remote", conn.RemoteAddr().String()),
		writeTimeout: srv.writeTimeout,
		name:         defaultName,
	}
	s.running.Store(true)
	return s, nil
}

func (s *Session) ID() uint64 { return s.id }

func (s *Session) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

func (s *Session) setName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
}

// Send writes msg as one frame. Safe for concurrent use.
// After the first failed write every later Send fails without writing.
func (s *Session) Send(msg string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.broken.Load() {
		return errSessionBroken
	}
	if s.writeTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			s.broken.Store(true)
			return err
		}
	}
	if err := protocol.WriteFrame(s.conn, msg); err != nil {
		if !errors.Is(err, protocol.ErrFrameTooLarge) && !errors.Is(err, protocol.ErrInvalidFrame) {
			s.broken.Store(true)
		}
		return err
	}
	return nil
}

// run drives the session until it closes: handshake first, then one command
// or chat line per frame.
func (s *Session) run() {
	name, err := protocol.ReadFrame(s.reader)
	if err != nil {
		s.abort(err)
		return
	}
	if err := s.server.hub.join(s, name); err != nil {
		s.abort(err)
		return
	}

	for s.running.Load() {
		line, err := protocol.ReadFrame(s.reader)
		if err != nil {
			s.abort(err)
			return
		}
		// Closed elsewhere while blocked on the read
		if !s.running.Load() {
			return
		}
		if err := s.server.handleLine(s, line); err != nil {
			s.abort(err)
			return
		}
	}
}

// Close sends a farewell line, releases the connection and leaves the hub.
// Only the first call on a session has any effect.
func (s *Session) Close(reason string) {
	farewell := "Closing"
	if reason != "" {
		farewell = "Closing: " + reason
	}
	s.close(farewell)
}

// abort closes the session after an I/O failure, without a farewell.
func (s *Session) abort(err error) {
	if !s.running.Load() {
		return
	}
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		s.log.Debug("connection closed", "error", err)
	default:
		s.log.Warn("connection failed", "error", err)
	}
	s.close("")
}

func (s *Session) close(farewell string) {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	if farewell != "" {
		if err := s.Send(farewell); err != nil {
			s.log.Debug("farewell not delivered", "error", err)
		}
	}
	if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.log.Debug("close connection", "error", err)
	}
	s.server.hub.remove(s)
}
