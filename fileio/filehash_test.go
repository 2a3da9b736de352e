package fileio

import (
	"bytes"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"dms_transfer/constants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCRC32KnownVector(t *testing.T) {
	assert.Equal(t, uint32(0x352441C2), CRC32([]byte("abc")))
	assert.Equal(t, "352441c2", CRC32Hex([]byte("abc")))
	assert.Equal(t, uint32(0xCBF43926), CRC32([]byte("123456789")))
}

func TestCRC32EmptyInput(t *testing.T) {
	assert.Equal(t, uint32(0), CRC32(nil))
	assert.Equal(t, "00000000", CRC32Hex([]byte{}))

	var acc Accumulator
	assert.Equal(t, uint32(0), acc.Value())
	assert.Equal(t, "00000000", acc.Hex())
}

func TestCRC32HexZeroPadded(t *testing.T) {
	// Find an input whose CRC has a leading zero nibble.
	for i := 0; i < 1<<16; i++ {
		data := []byte{byte(i), byte(i >> 8)}
		if CRC32(data) < 0x10000000 {
			hex := CRC32Hex(data)
			assert.Len(t, hex, 8)
			assert.Equal(t, byte('0'), hex[0])
			return
		}
	}
	t.Fatal("no small CRC found")
}

func TestAccumulatorPartitionIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	data := make([]byte, 10000)
	rng.Read(data)
	want := CRC32(data)

	partitions := [][]int{
		{len(data)},
		{1, 1, 1, len(data) - 3},
		{4096, 4096, len(data) - 8192},
		{0, 5000, 0, 5000},
	}

	for _, parts := range partitions {
		var acc Accumulator
		pos := 0
		for _, n := range parts {
			acc.Update(data[pos : pos+n])
			pos += n
		}
		require.Equal(t, len(data), pos)
		assert.Equal(t, want, acc.Value(), "partition %v", parts)
		assert.Equal(t, CRC32Hex(data), acc.Hex())
	}

	// Random partitions.
	for round := 0; round < 50; round++ {
		var acc Accumulator
		pos := 0
		for pos < len(data) {
			n := rng.Intn(700)
			if pos+n > len(data) {
				n = len(data) - pos
			}
			acc.Update(data[pos : pos+n])
			pos += n
		}
		assert.Equal(t, want, acc.Value())
	}
}

func TestAccumulatorAsWriter(t *testing.T) {
	var acc Accumulator
	n, err := bytes.NewBufferString("abc").WriteTo(&acc)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, "352441c2", acc.Hex())
}

func TestClampChecksumBuffer(t *testing.T) {
	assert.Equal(t, constants.MIN_CHECKSUM_BUFFER, ClampChecksumBuffer(0))
	assert.Equal(t, constants.MIN_CHECKSUM_BUFFER, ClampChecksumBuffer(512))
	assert.Equal(t, 64*1024, ClampChecksumBuffer(64*1024))
	assert.Equal(t, constants.MAX_CHECKSUM_BUFFER, ClampChecksumBuffer(8*1024*1024))
}

func TestFileChecksumCRC32(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	data := bytes.Repeat([]byte{0x02}, 4096+17)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	for _, bufSize := range []int{1, 512, 4096, 1 << 22} {
		sum, err := FileChecksumCRC32(path, bufSize)
		require.NoError(t, err)
		assert.Equal(t, CRC32Hex(data), sum)
	}

	_, err := FileChecksumCRC32(filepath.Join(dir, "missing"), 4096)
	assert.Error(t, err)
}
