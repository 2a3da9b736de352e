package networking

import (
	"errors"
	"io"
	"syscall"

	"dms_transfer/errs"
)

// SendAll writes the whole buffer, retrying interrupted calls and short writes.
// It never returns having written less than len(buffer) without an error.
func SendAll(w io.Writer, buffer []byte) error {
	sent := 0
	for sent < len(buffer) {
		n, err := w.Write(buffer[sent:])
		sent += n
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			return errs.New(errs.ErrIO, "socket send failed", err)
		}
		if n == 0 {
			return errs.New(errs.ErrIO, "socket send failed", io.ErrShortWrite)
		}
	}
	return nil
}

// RecvAll reads exactly length bytes
func RecvAll(r io.Reader, length int) ([]byte, error) {
	buffer := make([]byte, length)
	if err := RecvInto(r, buffer); err != nil {
		return nil, err
	}
	return buffer, nil
}

// RecvInto fills buffer completely, retrying interrupted calls. A peer closing the
// stream early is a protocol error wrapping io.ErrUnexpectedEOF.
func RecvInto(r io.Reader, buffer []byte) error {
	received := 0
	for received < len(buffer) {
		n, err := r.Read(buffer[received:])
		received += n
		if received == len(buffer) {
			return nil
		}
		if err == nil {
			continue
		}
		if errors.Is(err, syscall.EINTR) {
			continue
		}
		if err == io.EOF {
			return errs.New(errs.ErrProtocol, "unexpected EOF on socket", io.ErrUnexpectedEOF)
		}
		return errs.New(errs.ErrIO, "socket recv failed", err)
	}
	return nil
}

// CopyN streams exactly length bytes from r to w through buffer
func CopyN(w io.Writer, r io.Reader, length uint64, buffer []byte) error {
	remaining := length
	for remaining > 0 {
		piece := buffer
		if remaining < uint64(len(piece)) {
			piece = piece[:remaining]
		}
		if err := RecvInto(r, piece); err != nil {
			return err
		}
		if _, err := w.Write(piece); err != nil {
			return errs.New(errs.ErrIO, "write failed", err)
		}
		remaining -= uint64(len(piece))
	}
	return nil
}
