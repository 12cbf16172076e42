package protocol

import (
	"bytes"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchHeader(t *testing.T) {
	t.Run("little endian layout", func(t *testing.T) {
		buf := EncodeBatchHeader(0x0102)
		assert.Equal(t, [2]byte{0x02, 0x01}, buf)
	})

	t.Run("non-negative counts decode", func(t *testing.T) {
		for _, c := range []int16{0, 1, 7, math.MaxInt16} {
			buf := EncodeBatchHeader(c)
			got, err := DecodeBatchHeader(buf[:])
			require.NoError(t, err)
			assert.Equal(t, c, got)
		}
	})

	t.Run("negative count is a protocol error", func(t *testing.T) {
		_, err := ReadBatchHeader(bytes.NewReader([]byte{0xff, 0xff}))
		var pe *ProtocolError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, NegativeCount, pe.Violation)
		assert.Equal(t, int16(-1), pe.Count)
	})

	t.Run("short buffer", func(t *testing.T) {
		_, err := ReadBatchHeader(bytes.NewReader([]byte{1}))
		assert.Error(t, err)
		assert.False(t, IsProtocolError(err))
	})
}

func TestEncodeFileHeader(t *testing.T) {
	t.Run("layout is length, padded name, little endian size", func(t *testing.T) {
		buf, err := EncodeFileHeader(FileHeader{Name: "file", Size: 0x0807060504030201})
		require.NoError(t, err)
		require.Len(t, buf, FileHeaderSize)
		assert.Equal(t, byte(4), buf[0])
		assert.Equal(t, []byte("file"), buf[1:5])
		assert.Equal(t, make([]byte, NameFieldSize-4), buf[5:1+NameFieldSize])
		assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, buf[1+NameFieldSize:])
	})

	t.Run("255 byte name fits", func(t *testing.T) {
		buf, err := EncodeFileHeader(FileHeader{Name: strings.Repeat("n", 255)})
		require.NoError(t, err)
		assert.Equal(t, byte(255), buf[0])
	})

	t.Run("256 byte name fails without truncation", func(t *testing.T) {
		buf, err := EncodeFileHeader(FileHeader{Name: strings.Repeat("n", 256)})
		assert.ErrorIs(t, err, ErrNameTooLong)
		assert.Nil(t, buf)
	})

	t.Run("write refuses long names before touching the stream", func(t *testing.T) {
		var out bytes.Buffer
		err := WriteFileHeader(&out, FileHeader{Name: strings.Repeat("n", 300)})
		assert.ErrorIs(t, err, ErrNameTooLong)
		assert.Zero(t, out.Len())
	})
}

func TestDecodeFileHeader(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		cases := []FileHeader{
			{Name: "", Size: 0},
			{Name: "a.txt", Size: 4},
			{Name: "dir/sub/ü.bin", Size: math.MaxUint64},
			{Name: strings.Repeat("x", 255), Size: 2049},
		}
		for _, h := range cases {
			buf, err := EncodeFileHeader(h)
			require.NoError(t, err)
			got, err := DecodeFileHeader(buf)
			require.NoError(t, err)
			assert.Equal(t, h, got)
		}
	})

	t.Run("padding bytes are ignored", func(t *testing.T) {
		buf, err := EncodeFileHeader(FileHeader{Name: "ab", Size: 3})
		require.NoError(t, err)
		buf[10] = 'z'
		got, err := DecodeFileHeader(buf)
		require.NoError(t, err)
		assert.Equal(t, "ab", got.Name)
	})

	t.Run("invalid utf-8 keeps size and reports ErrInvalidName", func(t *testing.T) {
		buf, err := EncodeFileHeader(FileHeader{Name: "ab", Size: 42})
		require.NoError(t, err)
		buf[1] = 0xff
		got, err := DecodeFileHeader(buf)
		assert.ErrorIs(t, err, ErrInvalidName)
		assert.Equal(t, uint64(42), got.Size)
	})

	t.Run("read consumes the whole header even on bad names", func(t *testing.T) {
		buf, err := EncodeFileHeader(FileHeader{Name: "ab", Size: 1})
		require.NoError(t, err)
		buf[2] = 0xfe
		stream := bytes.NewBuffer(append(buf, 0x07))
		_, err = ReadFileHeader(stream)
		assert.ErrorIs(t, err, ErrInvalidName)
		assert.Equal(t, []byte{0x07}, stream.Bytes())
	})
}

func TestWireName(t *testing.T) {
	abs := filepath.Join(string(filepath.Separator), "system", "user", "file")
	assert.Equal(t, "file", WireName(abs))
	assert.Equal(t, "rel/file.txt", WireName("rel/file.txt"))
	assert.Equal(t, "file.txt", WireName("file.txt"))
}
