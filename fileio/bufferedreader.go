package fileio

import (
	"io"
	"os"

	"dms_transfer/constants"
	"dms_transfer/errs"
)

// BufferedReader reads one byte range of a file in fixed size pieces
type BufferedReader struct {
	file      *os.File
	buf       []byte
	remaining uint64
}

// OpenRange opens filename read-only and positions it at offset
func OpenRange(filename string, offset, length uint64, bufSize int) (*BufferedReader, error) {
	if bufSize <= 0 {
		bufSize = constants.STREAM_BUFFER_SIZE
	}
	file, err := os.Open(filename)
	if err != nil {
		return nil, errs.New(errs.ErrIO, "failed to open source file '"+filename+"'", err)
	}
	if _, err := file.Seek(int64(offset), io.SeekStart); err != nil {
		file.Close()
		return nil, errs.New(errs.ErrIO, "seek failed", err)
	}
	return &BufferedReader{
		file:      file,
		buf:       make([]byte, bufSize),
		remaining: length,
	}, nil
}

// Next returns the next piece of the range. The slice is reused by the following call.
// io.EOF is returned once the whole range has been consumed.
func (b *BufferedReader) Next() ([]byte, error) {
	if b.remaining == 0 {
		return nil, io.EOF
	}
	want := uint64(len(b.buf))
	if b.remaining < want {
		want = b.remaining
	}
	for {
		read, err := b.file.Read(b.buf[:want])
		if read > 0 {
			b.remaining -= uint64(read)
			return b.buf[:read], nil
		}
		if err == io.EOF {
			return nil, errs.New(errs.ErrProtocol, "unexpected EOF while reading source file", io.ErrUnexpectedEOF)
		}
		if err != nil {
			return nil, errs.New(errs.ErrIO, "read failed", err)
		}
	}
}

// Remaining returns how many bytes of the range have not been returned yet
func (b *BufferedReader) Remaining() uint64 {
	return b.remaining
}

// Close releases the file handle
func (b *BufferedReader) Close() error {
	return b.file.Close()
}

// ReadChunk reads up to chunk.Size bytes at chunk.Offset. Hitting end of file early
// truncates the result rather than failing.
func ReadChunk(chunk FileChunk) ([]byte, error) {
	file, err := os.Open(chunk.Path)
	if err != nil {
		return nil, errs.New(errs.ErrIO, "failed to open file '"+chunk.Path+"'", err)
	}
	defer file.Close()

	data := make([]byte, chunk.Size)
	read, err := file.ReadAt(data, int64(chunk.Offset))
	if err != nil && err != io.EOF {
		return nil, errs.New(errs.ErrIO, "read failed", err)
	}

	return data[:read], nil
}
