// Package protocol implements the filecopy wire format: one-byte status
// codes, the batch header, the fixed-size file header and raw payload
// framing. Every function works on plain io.Reader/io.Writer values so the
// same code serves TCP connections and in-memory pipes.
package protocol

import (
	"fmt"
	"io"
)

// Status is the one-byte outcome code exchanged between peers after nearly
// every protocol step.
type Status uint8

const (
	Ok                Status = iota // Step accepted
	Abort                           // Peer aborted the operation
	FileAlreadyExists               // Destination already exists on the listener
	NameError                       // File name bytes could not be decoded
	FileOpenError                   // A side could not open its file
	Halt                            // Stop serving further rounds
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case Ok:
		return "Ok"
	case Abort:
		return "Abort"
	case FileAlreadyExists:
		return "FileAlreadyExists"
	case NameError:
		return "NameError"
	case FileOpenError:
		return "FileOpenError"
	case Halt:
		return "Halt"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// Describe returns a human-readable message for the outcome of the named file.
//
// Parameters:
//   - name: The file the outcome refers to
//
// Returns:
//   - A message suitable for logs or terminal output
func (s Status) Describe(name string) string {
	switch s {
	case Ok:
		return fmt.Sprintf("%s transferred", name)
	case Abort:
		return "peer aborted this operation"
	case FileAlreadyExists:
		return fmt.Sprintf("a file named %s already exists on the listener", name)
	case NameError:
		return "the peer cannot convert the received name bytes into a file name"
	case FileOpenError:
		return fmt.Sprintf("the file %s could not be opened", name)
	case Halt:
		return "initiator is stopping the listener, no file will be transferred"
	default:
		return s.String()
	}
}

// Byte returns the wire representation of s.
func (s Status) Byte() byte {
	return byte(s)
}

// DecodeStatus converts a wire byte into a Status.
//
// Parameters:
//   - b: The received byte
//
// Returns:
//   - The decoded Status
//   - A *ProtocolError carrying b when b is outside 0..5
func DecodeStatus(b byte) (Status, error) {
	if b > byte(Halt) {
		return 0, &ProtocolError{Violation: UnknownStatus, Byte: b}
	}

	return Status(b), nil
}

// SendStatus writes exactly one status byte to w.
func SendStatus(w io.Writer, s Status) error {
	if _, err := w.Write([]byte{s.Byte()}); err != nil {
		return fmt.Errorf("send status %s: %w", s, err)
	}

	return nil
}

// ReceiveStatus blocks until one byte is read from r and decodes it.
//
// Returns:
//   - The received Status
//   - An I/O error, or a *ProtocolError if the byte is not a valid status
func ReceiveStatus(r io.Reader) (Status, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("receive status: %w", err)
	}

	return DecodeStatus(buf[0])
}
