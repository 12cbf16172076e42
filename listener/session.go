package listener

import (
	"context"
	"net"
	"sync"
)

// Session adapts one accepted connection to tcpserver.TCPServerSession.
type Session struct {
	ctx      context.Context
	id       uint32
	conn     net.Conn
	listener *Listener
	once     sync.Once
	closeErr error
}

// NewSession binds conn to l for one round. ctx bounds journal writes.
func (l *Listener) NewSession(ctx context.Context, id uint32, conn net.Conn) *Session {
	return &Session{ctx: ctx, id: id, conn: conn, listener: l}
}

// ID returns the round ID.
func (s *Session) ID() uint32 {
	return s.id
}

// Handle serves the round and closes the connection. It returns false when
// the initiator sent the halt signal.
func (s *Session) Handle() (bool, error) {
	defer func() { _ = s.Close() }()

	result, err := s.listener.Serve(s.ctx, s.id, s.conn.RemoteAddr().String(), s.conn)
	return result.Continue, err
}

// Close closes the connection once.
func (s *Session) Close() error {
	s.once.Do(func() { s.closeErr = s.conn.Close() })
	return s.closeErr
}
