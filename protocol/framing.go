package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"path/filepath"
	"unicode/utf8"
)

const (
	// BatchHeaderSize is the wire size of the file count.
	BatchHeaderSize = 2
	// MaxNameLength is the longest name the one-byte length prefix can carry.
	MaxNameLength = 255
	// NameFieldSize is the fixed, zero padded name field of a file header.
	NameFieldSize = 256
	// FileHeaderSize is length byte + name field + 8 byte size.
	FileHeaderSize = 1 + NameFieldSize + 8
)

// FileHeader describes one file of a batch.
type FileHeader struct {
	Name string
	Size uint64
}

// WireName returns the name transmitted for a local path. Absolute paths
// are reduced to their final component; relative paths are sent verbatim.
func WireName(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Base(path)
	}

	return path
}

// EncodeBatchHeader encodes the number of files that follow.
func EncodeBatchHeader(count int16) [BatchHeaderSize]byte {
	var buf [BatchHeaderSize]byte
	binary.LittleEndian.PutUint16(buf[:], uint16(count))
	return buf
}

// DecodeBatchHeader decodes a file count. Negative counts are rejected.
//
// Parameters:
//   - buf: At least BatchHeaderSize bytes
//
// Returns:
//   - The file count
//   - A *ProtocolError if the count is negative
func DecodeBatchHeader(buf []byte) (int16, error) {
	if len(buf) < BatchHeaderSize {
		return 0, fmt.Errorf("batch header: %w", io.ErrUnexpectedEOF)
	}

	count := int16(binary.LittleEndian.Uint16(buf))
	if count < 0 {
		return 0, &ProtocolError{Violation: NegativeCount, Count: count}
	}

	return count, nil
}

// WriteBatchHeader writes the file count to w.
func WriteBatchHeader(w io.Writer, count int16) error {
	buf := EncodeBatchHeader(count)
	if _, err := w.Write(buf[:]); err != nil {
		return fmt.Errorf("write batch header: %w", err)
	}

	return nil
}

// ReadBatchHeader reads and validates the file count from r.
func ReadBatchHeader(r io.Reader) (int16, error) {
	var buf [BatchHeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("read batch header: %w", err)
	}

	return DecodeBatchHeader(buf[:])
}

// EncodeFileHeader lays out h as FileHeaderSize bytes. The name is never
// truncated: names over MaxNameLength bytes fail with ErrNameTooLong.
//
// Parameters:
//   - h: The header to encode
//
// Returns:
//   - The encoded header
//   - ErrNameTooLong if h.Name does not fit
func EncodeFileHeader(h FileHeader) ([]byte, error) {
	if len(h.Name) > MaxNameLength {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrNameTooLong, len(h.Name), MaxNameLength)
	}

	buf := make([]byte, FileHeaderSize)
	buf[0] = byte(len(h.Name))
	copy(buf[1:1+NameFieldSize], h.Name)
	binary.LittleEndian.PutUint64(buf[1+NameFieldSize:], h.Size)
	return buf, nil
}

// DecodeFileHeader parses a FileHeaderSize buffer. Bytes of the name field
// past the length prefix are padding and ignored.
//
// Parameters:
//   - buf: At least FileHeaderSize bytes
//
// Returns:
//   - The decoded header; Size is set even when the name is rejected
//   - ErrInvalidName if the name bytes are not valid UTF-8
func DecodeFileHeader(buf []byte) (FileHeader, error) {
	if len(buf) < FileHeaderSize {
		return FileHeader{}, fmt.Errorf("file header: %w", io.ErrUnexpectedEOF)
	}

	n := int(buf[0])
	name := buf[1 : 1+n]
	h := FileHeader{Size: binary.LittleEndian.Uint64(buf[1+NameFieldSize:])}
	if !utf8.Valid(name) {
		return h, ErrInvalidName
	}

	h.Name = string(name)
	return h, nil
}

// WriteFileHeader encodes h and writes it to w.
func WriteFileHeader(w io.Writer, h FileHeader) error {
	buf, err := EncodeFileHeader(h)
	if err != nil {
		return err
	}

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write file header: %w", err)
	}

	return nil
}

// ReadFileHeader consumes exactly FileHeaderSize bytes from r before
// decoding, so the stream stays aligned even when the name is rejected.
// An ErrInvalidName result leaves the connection usable.
func ReadFileHeader(r io.Reader) (FileHeader, error) {
	buf := make([]byte, FileHeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return FileHeader{}, fmt.Errorf("read file header: %w", err)
	}

	return DecodeFileHeader(buf)
}
