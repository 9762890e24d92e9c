// Package server implements the TCP text relay.
//
// Concurrency overview
// --------------------
//
//	┌─────────────────────────────────────────────────────────┐
//	│  Accept goroutine (Serve)                                │
//	│  Accepts TCP connections, assigns sequential ids,        │
//	│  registers a Session and starts its goroutine.           │
//	└───────────────────┬─────────────────────────────────────┘
//	                    │  one goroutine per Session
//	                    ▼
//	┌─────────────────────────────────────────────────────────┐
//	│  Session goroutines                                      │
//	│  Block on the next frame; handshake, then chat lines     │
//	│  and commands.                                           │
//	└───────────────────┬─────────────────────────────────────┘
//	                    │  method calls under one mutex
//	                    ▼
//	┌─────────────────────────────────────────────────────────┐
//	│  Hub                                                     │
//	│  Sessions, recent history and welcome text; fans out     │
//	│  every broadcast.                                        │
//	└─────────────────────────────────────────────────────────┘
package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// Options configures a Server.
type Options struct {
	Welcome      string        // initial welcome text
	HistorySize  int           // lines replayed to new clients
	WriteTimeout time.Duration // per-frame write deadline, 0 disables
}

// Server ties together the accept loop and the Hub.
type Server struct {
	hub          *Hub
	log          *slog.Logger
	writeTimeout time.Duration

	mu       sync.Mutex
	listener net.Listener

	nextID    atomic.Uint64 // monotonically increasing session id
	closeOnce sync.Once
	done      chan struct{}
}

// New creates a Server.
func New(opts Options, log *slog.Logger) *Server {
	return &Server{
		hub:          newHub(opts.Welcome, opts.HistorySize, log),
		log:          log,
		writeTimeout: opts.WriteTimeout,
		done:         make(chan struct{}),
	}
}

// ListenAndServe listens on addr and accepts connections until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown closes it, then returns nil.
// A connection that cannot be set up is logged and dropped; it never stops
// the loop.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.isShutdown() {
		s.mu.Unlock()
		_ = ln.Close()
		return nil
	}
	s.listener = ln
	s.mu.Unlock()

	s.log.Info("listening", "addr", ln.Addr().String())

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isShutdown() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			backoff = nextBackoff(backoff)
			s.log.Error("accept failed", "error", err, "retry_in", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		id := s.nextID.Add(1)
		sess, err := newSession(id, conn, s)
		if err != nil {
			s.log.Error("session setup failed", "session", id, "error", err)
			_ = conn.Close()
			continue
		}
		if err := s.hub.add(sess); err != nil {
			s.log.Warn("session rejected", "session", id, "error", err)
			_ = conn.Close()
			continue
		}
		go sess.run()
	}
}

// Shutdown announces reason, closes every session with it and stops the
// accept loop. Later calls do nothing.
func (s *Server) Shutdown(reason string) {
	s.closeOnce.Do(func() {
		s.log.Info("shutting down", "reason", reason)
		s.hub.announce(reason)
		for _, sess := range s.hub.closeAll() {
			sess.Close(reason)
		}

		s.mu.Lock()
		close(s.done)
		if s.listener != nil {
			_ = s.listener.Close()
		}
		s.mu.Unlock()
	})
}

// Done is closed once Shutdown has run.
func (s *Server) Done() <-chan struct{} { return s.done }

func (s *Server) isShutdown() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return minAcceptBackoff
	}
	if d *= 2; d > maxAcceptBackoff {
		return maxAcceptBackoff
	}
	return d
}
