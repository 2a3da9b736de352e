package comms

import (
	"context"
	"errors"
	"io"
	"time"

	"dms_transfer/errs"
	"dms_transfer/fileio"
	"dms_transfer/networking"

	"github.com/sirupsen/logrus"
)

// SendOptions describe one byte range of one file to push to a receiver
type SendOptions struct {
	Host         string
	Port         int
	File         string
	RelativePath string // Path the receiver joins below its destination root
	Offset       uint64
	Length       uint64
	Dial         networking.DialOptions
	BufferSize   int // Read size, 0 means the default stream buffer
}

// SendRange connects to the receiver, announces the range and streams exactly
// Length bytes of File starting at Offset.
func SendRange(ctx context.Context, opts SendOptions) error {
	if opts.Host == "" || opts.File == "" {
		return errs.Newf(errs.ErrInvalidArgument, "host and file are required")
	}
	if opts.Port <= 0 || opts.Port > 65535 {
		return errs.Newf(errs.ErrInvalidArgument, "port %d out of range", opts.Port)
	}

	log := logrus.WithFields(logrus.Fields{
		"function": "SendRange",
		"host":     opts.Host,
		"port":     opts.Port,
		"file":     opts.File,
		"offset":   opts.Offset,
		"length":   opts.Length,
	})

	conn, err := networking.Connect(ctx, opts.Host, opts.Port, opts.Dial)
	if err != nil {
		return err
	}
	defer conn.Close()

	if opts.Dial.Timeout > 0 {
		conn.SetDeadline(time.Now().Add(opts.Dial.Timeout))
	}

	header := networking.NewHeader(opts.RelativePath, opts.Offset, opts.Length)
	if err := networking.WriteHeader(conn, header, opts.RelativePath); err != nil {
		return err
	}

	reader, err := fileio.OpenRange(opts.File, opts.Offset, opts.Length, opts.BufferSize)
	if err != nil {
		return err
	}
	defer reader.Close()

	start := time.Now()
	for {
		piece, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.WithField("unsent", reader.Remaining()).Error("Source ended before the range")
			return err
		}
		if err := networking.SendAll(conn, piece); err != nil {
			log.WithField("unsent", reader.Remaining()+uint64(len(piece))).Error("Send failed")
			return err
		}
		// Refresh the deadline so it bounds stalls, not the whole transfer.
		if opts.Dial.Timeout > 0 {
			conn.SetDeadline(time.Now().Add(opts.Dial.Timeout))
		}
	}

	log.WithField("elapsed", time.Since(start).String()).Info("Range sent")
	return nil
}
