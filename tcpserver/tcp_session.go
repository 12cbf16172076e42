package tcpserver

// TCPServerSession handles one accepted connection, i.e. one round. The
// server runs Handle on the accept goroutine, so rounds never overlap.
type TCPServerSession interface {
	// ID returns the round identifier assigned by the server.
	ID() uint32

	// Handle runs the round to completion and closes the connection.
	//
	// Returns:
	//   - false if the peer asked the server to stop serving further rounds
	//   - An error if the round was aborted
	Handle() (bool, error)

	// Close closes the connection, unblocking a running Handle. It should be
	// safe to call multiple times.
	Close() error
}
