package protocol

import (
	"errors"
	"fmt"
	"io"
)

// ChunkSize is the default payload buffer size.
const ChunkSize = 2048

// NewChunkBuffer returns a payload buffer of size bytes, or ChunkSize when
// size is not positive.
func NewChunkBuffer(size int) []byte {
	if size <= 0 {
		size = ChunkSize
	}

	return make([]byte, size)
}

// CopyPayload moves exactly size bytes from src to dst in chunks of len(buf).
// The last chunk is sized to the remaining byte count; nothing is read past
// size. A source that ends early yields io.ErrUnexpectedEOF.
//
// Parameters:
//   - dst: Destination of the payload
//   - src: Source of the payload
//   - size: Exact number of bytes to move
//   - buf: Chunk buffer; must not be empty
//
// Returns:
//   - The number of bytes written to dst
//   - An error if reading or writing fails
func CopyPayload(dst io.Writer, src io.Reader, size uint64, buf []byte) (uint64, error) {
	if len(buf) == 0 {
		return 0, errors.New("copy payload: empty chunk buffer")
	}

	var written uint64
	for written < size {
		chunk := buf
		if remaining := size - written; remaining < uint64(len(buf)) {
			chunk = buf[:remaining]
		}

		n, err := io.ReadFull(src, chunk)
		if n > 0 {
			if _, werr := dst.Write(chunk[:n]); werr != nil {
				return written, fmt.Errorf("write payload: %w", werr)
			}
			written += uint64(n)
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return written, fmt.Errorf("read payload: %w", err)
		}
	}

	return written, nil
}
