package fileio

import (
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"dms_transfer/constants"
	"dms_transfer/errs"
)

// CRC32 returns the IEEE CRC-32 of data
func CRC32(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// CRC32Hex returns the IEEE CRC-32 of data as 8 lowercase hex digits
func CRC32Hex(data []byte) string {
	return formatCRC32(CRC32(data))
}

func formatCRC32(value uint32) string {
	return fmt.Sprintf("%08x", value)
}

// Accumulator incrementally calculates CRC-32 over data fed in any number of pieces.
// The zero value is ready to use and yields the CRC-32 of empty input.
type Accumulator struct {
	crc uint32
}

// Update feeds the next piece of data
func (a *Accumulator) Update(data []byte) {
	a.crc = progressiveChecksumCRC32(a.crc, data)
}

// Write implements io.Writer so an Accumulator can sit at the end of io.Copy.
func (a *Accumulator) Write(data []byte) (int, error) {
	a.Update(data)
	return len(data), nil
}

// Value returns the CRC-32 of everything fed so far
func (a *Accumulator) Value() uint32 {
	return a.crc
}

// Hex returns Value as 8 lowercase hex digits
func (a *Accumulator) Hex() string {
	return formatCRC32(a.crc)
}

// ClampChecksumBuffer keeps a configured chunk size within sane I/O block bounds
func ClampChecksumBuffer(size int) int {
	if size < constants.MIN_CHECKSUM_BUFFER {
		return constants.MIN_CHECKSUM_BUFFER
	}
	if size > constants.MAX_CHECKSUM_BUFFER {
		return constants.MAX_CHECKSUM_BUFFER
	}
	return size
}

// FileChecksumCRC32 streams the whole file through an Accumulator using reads of bufSize bytes
func FileChecksumCRC32(file string, bufSize int) (string, error) {
	handle, err := os.Open(file)
	if err != nil {
		return "", errs.New(errs.ErrIO, "open "+file+" for checksum", err)
	}
	defer handle.Close()

	var acc Accumulator
	buf := make([]byte, ClampChecksumBuffer(bufSize))
	for {
		read, err := handle.Read(buf)
		if read > 0 {
			acc.Update(buf[:read])
		}
		if err == io.EOF {
			return acc.Hex(), nil
		}
		if err != nil {
			return "", errs.New(errs.ErrIO, "read "+file+" for checksum", err)
		}
	}
}

// progressiveChecksumCRC32 incrementally calculates CRC32 checksum
func progressiveChecksumCRC32(hash uint32, data []byte) uint32 {
	return crc32.Update(hash, crc32.IEEETable, data)
}
