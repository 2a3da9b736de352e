package transport

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"time"

	"dms_transfer/errs"
	"dms_transfer/fileio"
	"dms_transfer/networking"

	"github.com/sirupsen/logrus"
)

// TCPTransport sends every chunk over its own TCP connection as a chunk frame and
// waits for the receiver to confirm it was persisted. No socket state is shared
// between calls.
type TCPTransport struct {
	dial     networking.DialOptions
	compress bool

	chunksTotal      atomic.Uint32
	compressedChunks atomic.Uint32
}

// NewTCPTransport returns a transport dialing with opts. With compress set, chunks
// are sent as LZ4 blocks whenever that makes them smaller.
func NewTCPTransport(opts networking.DialOptions, compress bool) *TCPTransport {
	return &TCPTransport{dial: opts, compress: compress}
}

// SendChunk implements NetworkTransport
func (t *TCPTransport) SendChunk(endpoint NetworkEndpoint, payload ChunkPayload) error {
	log := logrus.WithFields(logrus.Fields{
		"function":  "SendChunk",
		"endpoint":  endpoint.String(),
		"interface": endpoint.InterfaceName,
		"path":      payload.Path,
		"offset":    payload.Offset,
		"size":      len(payload.Data),
	})

	conn, err := networking.Connect(context.Background(), endpoint.Address, int(endpoint.Port), t.dial)
	if err != nil {
		return err
	}
	defer conn.Close()

	relative := payload.RelativePath
	if relative == "" {
		relative = filepath.Base(payload.Path)
	}

	frame := &networking.ChunkFrame{
		Header: networking.Header{Offset: payload.Offset},
		Path:   filepath.ToSlash(relative),
		Meta: networking.ChunkMeta{
			Checksum:  payload.ChecksumHex,
			RawLength: uint64(len(payload.Data)),
		},
		Data: payload.Data,
	}

	// Compress chunk if possible.
	if t.compress {
		if packed, ok := fileio.CompressChunk(payload.Data); ok {
			frame.Data = packed
			frame.Meta.Flags |= networking.FlagLZ4
			t.compressedChunks.Add(1)
		}
	}
	t.chunksTotal.Add(1)

	if t.dial.Timeout > 0 {
		conn.SetDeadline(time.Now().Add(t.dial.Timeout))
	}
	if err := networking.WriteChunkFrame(conn, frame); err != nil {
		return err
	}

	status, err := networking.ReadStatus(conn)
	if err != nil {
		return err
	}
	if status != networking.StatusOK {
		return errs.Newf(errs.ErrIO, "receiver at %s failed to persist chunk %s@%d (status %d)",
			endpoint.String(), frame.Path, payload.Offset, status)
	}

	log.WithField("compressed", frame.Meta.Compressed()).Debug("Chunk delivered")
	return nil
}

// GetChunkStats returns compressed:total chunk count so far
func (t *TCPTransport) GetChunkStats() (int, int) {
	return int(t.compressedChunks.Load()), int(t.chunksTotal.Load())
}
