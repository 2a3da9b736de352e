package fileio

import (
	"dms_transfer/errs"

	"github.com/pierrec/lz4/v4"
)

// CompressChunk attempts to compress a chunk in LZ4 and either returns original or compressed chunk
func CompressChunk(chunk []byte) ([]byte, bool) {
	if len(chunk) == 0 {
		return chunk, false
	}
	// Attempt to compress.
	compressedSize, compressed := compress(chunk)

	if compressedSize == 0 || compressedSize >= len(chunk) {
		// Chunk was not compressible.
		return chunk, false
	}
	// Chunk was compressed.
	return compressed[:compressedSize], true
}

// DecompressChunk returns the rawSize bytes encoded in an LZ4 block
func DecompressChunk(chunk []byte, rawSize int) ([]byte, error) {
	buffer := make([]byte, rawSize)
	actual, err := lz4.UncompressBlock(chunk, buffer)
	if err != nil {
		return nil, errs.New(errs.ErrProtocol, "corrupt lz4 block", err)
	}
	if actual != rawSize {
		return nil, errs.Newf(errs.ErrProtocol, "lz4 block decoded to %d bytes, expected %d", actual, rawSize)
	}
	return buffer, nil
}

// compress compresses chunk and returns # of bytes compressed (0 if incompressible) and the buffer
func compress(block []byte) (int, []byte) {
	buffer := make([]byte, lz4.CompressBlockBound(len(block)))
	compressed, err := lz4.CompressBlock(block, buffer, nil)
	if err != nil {
		return 0, nil
	}
	return compressed, buffer
}
