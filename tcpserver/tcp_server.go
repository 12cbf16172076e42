// Package tcpserver implements the listener's connection acceptance loop:
// it binds one socket and serves rounds strictly one after another, as many
// as its Policy allows.
package tcpserver

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/cyberinferno/filecopy/logger"
)

// NewSessionFunc creates the session for an accepted connection. It receives
// the round ID assigned by the server.
type NewSessionFunc func(id uint32, conn net.Conn) TCPServerSession

// TCPServer accepts connections on Addr and hands each one to a session
// created by NewSession. Rounds are served sequentially on the goroutine
// calling Serve; a slow peer delays every later connection.
type TCPServer struct {
	Logger     logger.Logger
	Name       string
	Addr       string
	Listener   net.Listener
	Running    atomic.Bool
	Policy     Policy
	NewSession NewSessionFunc

	rounds atomic.Uint32
	mu     sync.Mutex
	active TCPServerSession
}

// Start binds to Addr. It is safe to call only when the server is not running.
//
// Returns:
//   - An error if the server is already running or if listening on Addr fails
func (s *TCPServer) Start() error {
	if s.Running.Load() {
		s.Logger.Error("server already running")
		return fmt.Errorf("server %s already running", s.Name)
	}

	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		s.Logger.Error("server failed to start", logger.Field{Key: "error", Value: err})
		return fmt.Errorf("server %s failed to start: %w", s.Name, err)
	}

	s.Listener = ln
	s.Running.Store(true)

	s.Logger.Info(fmt.Sprintf("%s server started", s.Name),
		logger.Field{Key: "addr", Value: ln.Addr().String()},
		logger.Field{Key: "policy", Value: s.Policy.String()})
	return nil
}

// ListenAddr returns the bound address, or nil before Start.
func (s *TCPServer) ListenAddr() net.Addr {
	if s.Listener == nil {
		return nil
	}

	return s.Listener.Addr()
}

// Serve runs rounds until the policy is exhausted, a round signals halt
// (Count and Forever only) or Stop is called. A round that fails is logged
// and still counts as served. The listener is closed when Serve returns.
//
// Returns:
//   - nil on a normal end, or the accept error that ended the loop
func (s *TCPServer) Serve() error {
	if !s.Running.Load() {
		return fmt.Errorf("server %s not started", s.Name)
	}
	defer s.Stop()

	for served := 0; s.Policy.Allows(served); served++ {
		conn, err := s.Listener.Accept()
		if err != nil {
			if !s.Running.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}

			s.Logger.Error(fmt.Sprintf("%s server accept error", s.Name), logger.Field{Key: "error", Value: err})
			return fmt.Errorf("server %s accept: %w", s.Name, err)
		}

		if !s.serveRound(conn) && s.Policy.HonoursHalt() {
			s.Logger.Info("halt signal received, no further rounds")
			return nil
		}
	}

	return nil
}

// serveRound runs one session and reports whether serving may continue.
func (s *TCPServer) serveRound(conn net.Conn) bool {
	id := s.rounds.Add(1)
	session := s.NewSession(id, conn)
	if !s.setActive(session) {
		_ = session.Close()
	}
	defer s.setActive(nil)

	log := s.Logger.With(logger.Field{Key: "round", Value: id}, logger.Field{Key: "peer", Value: conn.RemoteAddr().String()})
	log.Debug("round started")

	cont, err := session.Handle()
	_ = session.Close()
	if err != nil {
		log.Error("round aborted", logger.Field{Key: "error", Value: err})
		return true
	}

	log.Debug("round finished")
	return cont
}

// setActive records the running session and reports whether the server is
// still running; Stop only closes sessions it can see here.
func (s *TCPServer) setActive(session TCPServerSession) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = session
	return s.Running.Load()
}

// Rounds returns the number of rounds started so far.
func (s *TCPServer) Rounds() uint32 {
	return s.rounds.Load()
}

// Stop closes the listener and the active round's connection. Safe to call
// from any goroutine and when the server is not running.
func (s *TCPServer) Stop() {
	if !s.Running.CompareAndSwap(true, false) {
		return
	}

	if s.Listener != nil {
		_ = s.Listener.Close()
	}

	s.mu.Lock()
	if s.active != nil {
		_ = s.active.Close()
	}
	s.mu.Unlock()

	s.Logger.Info(fmt.Sprintf("%s server stopped", s.Name), logger.Field{Key: "rounds", Value: s.Rounds()})
}
