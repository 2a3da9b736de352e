package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"dms_transfer/constants"
	"dms_transfer/errs"
	"dms_transfer/fileio"
	"dms_transfer/networking"

	"github.com/sirupsen/logrus"
)

// ReceiveOptions configure a point-to-point receive
type ReceiveOptions struct {
	Bind       string
	Port       int // 0 requests an ephemeral port
	DestRoot   string
	IOTimeout  time.Duration
	BufferSize int
}

// Receiver accepts a single transfer of one byte range of one file
type Receiver struct {
	listener net.Listener
	opts     ReceiveOptions
}

// ReceiveResult describes a completed receive
type ReceiveResult struct {
	Destination string
	Offset      uint64
	Length      uint64
	Checksum    string // CRC-32 of the bytes received
}

// Listen binds the receiving socket. The transfer itself starts with ReceiveOne.
func Listen(ctx context.Context, opts ReceiveOptions) (*Receiver, error) {
	if opts.DestRoot == "" {
		return nil, errs.Newf(errs.ErrInvalidArgument, "destination root is required")
	}
	l, err := networking.Listen(ctx, opts.Bind, opts.Port, false)
	if err != nil {
		return nil, err
	}
	return &Receiver{listener: l, opts: opts}, nil
}

// Port returns the port actually bound
func (r *Receiver) Port() int {
	return networking.ListenerPort(r.listener)
}

// Close releases the listening socket
func (r *Receiver) Close() error {
	return r.listener.Close()
}

// ReceiveOne accepts exactly one connection and writes the announced range below
// the destination root. Cancelling ctx aborts a pending accept.
func (r *Receiver) ReceiveOne(ctx context.Context) (*ReceiveResult, error) {
	stop := context.AfterFunc(ctx, func() { r.listener.Close() })
	defer stop()

	conn, err := r.listener.Accept()
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
			return nil, errs.New(errs.ErrConnection, "accept aborted", err)
		}
		return nil, errs.New(errs.ErrConnection, "accept failed", err)
	}
	defer conn.Close()

	log := logrus.WithFields(logrus.Fields{
		"function": "ReceiveOne",
		"remote":   conn.RemoteAddr().String(),
	})

	if r.opts.IOTimeout > 0 {
		conn.SetDeadline(time.Now().Add(r.opts.IOTimeout))
	}

	header, relative, err := networking.ReadHeader(conn, constants.MAX_PATH_LENGTH)
	if err != nil {
		return nil, err
	}

	dest, err := fileio.JoinUnderRoot(r.opts.DestRoot, relative)
	if err != nil {
		return nil, err
	}

	log = log.WithFields(logrus.Fields{
		"destination": dest,
		"offset":      header.Offset,
		"length":      header.Length,
	})
	log.Info("Receiving range")

	bufSize := r.opts.BufferSize
	if bufSize <= 0 {
		bufSize = constants.STREAM_BUFFER_SIZE
	}

	writer, err := fileio.CreateAt(dest, header.Offset, bufSize)
	if err != nil {
		return nil, err
	}
	defer writer.Close()

	buffer := make([]byte, min(uint64(bufSize), max(header.Length, 1)))
	if err := networking.CopyN(writer, conn, header.Length, buffer); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	result := &ReceiveResult{
		Destination: dest,
		Offset:      header.Offset,
		Length:      writer.Written(),
		Checksum:    writer.Checksum(),
	}
	log.WithField("checksum", result.Checksum).Info("Range received")
	return result, nil
}

// Receive binds, reports PORT=<n> on report, then handles exactly one transfer
func Receive(ctx context.Context, opts ReceiveOptions, report io.Writer) (*ReceiveResult, error) {
	r, err := Listen(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	if _, err := fmt.Fprintf(report, "PORT=%d\n", r.Port()); err != nil {
		return nil, errs.New(errs.ErrIO, "failed to report port", err)
	}
	return r.ReceiveOne(ctx)
}
