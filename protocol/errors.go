package protocol

import (
	"errors"
	"fmt"
)

// ErrNameTooLong is returned when a file name does not fit the 255-byte
// length prefix of the file header.
var ErrNameTooLong = errors.New("file name too long")

// ErrInvalidName is returned by DecodeFileHeader when the name bytes are not
// valid UTF-8. It is a negotiated outcome (NameError), not a broken stream.
var ErrInvalidName = errors.New("file name is not valid text")

// Violation identifies which part of the wire format a peer broke.
type Violation uint8

const (
	UnknownStatus Violation = iota // Status byte outside 0..5
	NegativeCount                  // Batch header below zero
)

// ProtocolError reports a peer that violated the wire format. It aborts the
// current connection only.
type ProtocolError struct {
	Violation Violation
	Byte      byte  // offending status byte for UnknownStatus
	Count     int16 // offending value for NegativeCount
}

// Error implements error.
func (e *ProtocolError) Error() string {
	switch e.Violation {
	case NegativeCount:
		return fmt.Sprintf("protocol error: negative batch count %d", e.Count)
	default:
		return fmt.Sprintf("protocol error: unknown status byte 0x%02x", e.Byte)
	}
}

// IsProtocolError reports whether err wraps a *ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
