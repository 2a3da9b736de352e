package fileio

import (
	"bufio"
	"io"
	"os"
	"path/filepath"

	"dms_transfer/errs"
)

// BufferedWriter does buffered writes into a file starting at a fixed offset
type BufferedWriter struct {
	file    *os.File
	writer  *bufio.Writer
	written uint64
	crc     Accumulator
}

// CreateAt creates parent directories, opens or creates filename for writing without
// truncating it, and positions it at offset.
func CreateAt(filename string, offset uint64, bufferSize int) (*BufferedWriter, error) {
	if err := os.MkdirAll(filepath.Dir(filename), os.ModePerm); err != nil {
		return nil, errs.New(errs.ErrIO, "failed to create parent directories for '"+filename+"'", err)
	}
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errs.New(errs.ErrIO, "failed to open destination file '"+filename+"'", err)
	}
	if _, err := file.Seek(int64(offset), io.SeekStart); err != nil {
		file.Close()
		return nil, errs.New(errs.ErrIO, "seek failed", err)
	}
	return &BufferedWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, bufferSize),
	}, nil
}

// Write buffers data for the file and updates the running checksum
func (b *BufferedWriter) Write(data []byte) (int, error) {
	n, err := b.writer.Write(data)
	b.written += uint64(n)
	b.crc.Update(data[:n])
	if err != nil {
		return n, errs.New(errs.ErrIO, "write failed", err)
	}
	return n, nil
}

// Written returns the number of bytes accepted so far
func (b *BufferedWriter) Written() uint64 {
	return b.written
}

// Checksum returns the CRC-32 hex of everything written so far
func (b *BufferedWriter) Checksum() string {
	return b.crc.Hex()
}

// Close flushes any remaining bytes and releases the file. Safe to call more than once.
func (b *BufferedWriter) Close() error {
	if b.file == nil {
		return nil
	}
	flushErr := b.writer.Flush()
	closeErr := b.file.Close()
	b.file = nil
	if flushErr != nil {
		return errs.New(errs.ErrIO, "write failed", flushErr)
	}
	if closeErr != nil {
		return errs.New(errs.ErrIO, "close failed", closeErr)
	}
	return nil
}
