package worker

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"dms_transfer/errs"
	"dms_transfer/fileio"
	"dms_transfer/networking"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frameFor(path string, offset uint64, data []byte, checksum string) *networking.ChunkFrame {
	return &networking.ChunkFrame{
		Header: networking.Header{Offset: offset, Length: uint64(len(data))},
		Path:   path,
		Meta:   networking.ChunkMeta{Checksum: checksum, RawLength: uint64(len(data))},
		Data:   data,
	}
}

func TestChunkWriterOutOfOrder(t *testing.T) {
	root := t.TempDir()
	writer := NewChunkWriter(root)

	full := []byte("0123456789abcdef")
	sum := fileio.CRC32Hex(full)

	// Last chunk first.
	for _, offset := range []uint64{12, 4, 0, 8} {
		_, err := writer.Persist(frameFor("dir/file.bin", offset, full[offset:offset+4], sum))
		require.NoError(t, err)
	}

	got, err := os.ReadFile(filepath.Join(root, "dir", "file.bin"))
	require.NoError(t, err)
	assert.Equal(t, full, got)

	files := writer.Files()
	require.Len(t, files, 1)
	assert.Equal(t, FileRecord{RelativePath: "dir/file.bin", Chunks: 4, Bytes: 16, Checksum: sum}, files[0])

	ok, err := writer.Verify("dir/file.bin", 4096)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestChunkWriterCompressed(t *testing.T) {
	root := t.TempDir()
	writer := NewChunkWriter(root)

	raw := bytes.Repeat([]byte("lz4 "), 4096)
	packed, ok := fileio.CompressChunk(raw)
	require.True(t, ok)

	frame := frameFor("c.bin", 0, packed, fileio.CRC32Hex(raw))
	frame.Meta.Flags = networking.FlagLZ4
	frame.Meta.RawLength = uint64(len(raw))

	dest, err := writer.Persist(frame)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "c.bin"), dest)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, raw, got)
}

func TestChunkWriterRejectsEscape(t *testing.T) {
	writer := NewChunkWriter(t.TempDir())
	_, err := writer.Persist(frameFor("../../escape.bin", 0, []byte("x"), ""))
	assert.True(t, errors.Is(err, errs.ErrInvalidArgument))
	assert.Empty(t, writer.Files())
}

func TestChunkWriterVerifyMismatch(t *testing.T) {
	writer := NewChunkWriter(t.TempDir())
	_, err := writer.Persist(frameFor("f.bin", 0, []byte("abc"), "deadbeef"))
	require.NoError(t, err)

	ok, err := writer.Verify("f.bin", 4096)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = writer.Verify("unknown.bin", 4096)
	assert.True(t, errors.Is(err, errs.ErrInvalidArgument))
}

func TestChunkWriterNormalizesRecordPaths(t *testing.T) {
	root := t.TempDir()
	writer := NewChunkWriter(root)

	full := []byte("abcdefgh")
	sum := fileio.CRC32Hex(full)

	// Same destination file, three spellings.
	_, err := writer.Persist(frameFor(`dir\f.bin`, 0, full[:4], "stale"))
	require.NoError(t, err)
	_, err = writer.Persist(frameFor("dir/./f.bin", 4, full[4:], sum))
	require.NoError(t, err)
	_, err = writer.Persist(frameFor("/dir/f.bin", 0, full[:4], sum))
	require.NoError(t, err)

	files := writer.Files()
	require.Len(t, files, 1)
	assert.Equal(t, FileRecord{RelativePath: "dir/f.bin", Chunks: 3, Bytes: 12, Checksum: sum}, files[0])

	for _, spelling := range []string{"dir/f.bin", `dir\f.bin`, "/dir/f.bin"} {
		ok, err := writer.Verify(spelling, 4096)
		require.NoError(t, err)
		assert.True(t, ok, spelling)
	}
}
