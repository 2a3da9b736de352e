package networking

import (
	"encoding/binary"
	"io"

	"dms_transfer/constants"
	"dms_transfer/errs"
)

// Chunk frame flags
const (
	FlagLZ4 uint8 = 1 << 0 // Payload is an LZ4 block
)

// Chunk frame reply status
const (
	StatusOK     uint8 = 0
	StatusFailed uint8 = 1
)

// ChunkMeta travels between the path and the payload of a chunk frame:
//
//	1 byte  flags
//	1 byte  checksum length N
//	N bytes checksum hex
//	8 bytes raw (uncompressed) length, big-endian
type ChunkMeta struct {
	Flags     uint8
	Checksum  string // Whole-file CRC-32 hex of the originating file
	RawLength uint64
}

// Compressed reports whether the payload is an LZ4 block
func (m *ChunkMeta) Compressed() bool {
	return m.Flags&FlagLZ4 != 0
}

// Encode encodes meta to its wire form
func (m *ChunkMeta) Encode() ([]byte, error) {
	if len(m.Checksum) > constants.MAX_CHECKSUM_LENGTH {
		return nil, errs.Newf(errs.ErrInvalidArgument, "checksum field of %d bytes does not fit", len(m.Checksum))
	}
	buf := make([]byte, 0, 2+len(m.Checksum)+8)
	buf = append(buf, m.Flags, uint8(len(m.Checksum)))
	buf = append(buf, m.Checksum...)
	buf = binary.BigEndian.AppendUint64(buf, m.RawLength)
	return buf, nil
}

// ReadChunkMeta receives a ChunkMeta
func ReadChunkMeta(r io.Reader) (*ChunkMeta, error) {
	lead, err := RecvAll(r, 2)
	if err != nil {
		return nil, err
	}
	meta := &ChunkMeta{Flags: lead[0]}
	if lead[1] > 0 {
		sum, err := RecvAll(r, int(lead[1]))
		if err != nil {
			return nil, err
		}
		meta.Checksum = string(sum)
	}
	raw, err := RecvAll(r, 8)
	if err != nil {
		return nil, err
	}
	meta.RawLength = binary.BigEndian.Uint64(raw)
	return meta, nil
}

// ChunkFrame is one chunk as carried by a chunk connection
type ChunkFrame struct {
	Header
	Path string
	Meta ChunkMeta
	Data []byte // Payload exactly as on the wire, compressed if Meta says so
}

// WriteChunkFrame sends header, path, meta and payload. Header fields are derived
// from the frame so PathLength and Length always match what follows.
func WriteChunkFrame(w io.Writer, frame *ChunkFrame) error {
	header := NewHeader(frame.Path, frame.Offset, uint64(len(frame.Data)))
	meta, err := frame.Meta.Encode()
	if err != nil {
		return err
	}
	if err := WriteHeader(w, header, frame.Path); err != nil {
		return err
	}
	if err := SendAll(w, meta); err != nil {
		return err
	}
	return SendAll(w, frame.Data)
}

// ReadChunkFrame receives a whole chunk frame. Payloads above maxPayload are
// rejected before allocation.
func ReadChunkFrame(r io.Reader, maxPayload uint64) (*ChunkFrame, error) {
	header, path, err := ReadHeader(r, constants.MAX_PATH_LENGTH)
	if err != nil {
		return nil, err
	}
	meta, err := ReadChunkMeta(r)
	if err != nil {
		return nil, err
	}
	if header.Length > maxPayload {
		return nil, errs.Newf(errs.ErrProtocol, "chunk payload of %d bytes exceeds limit %d", header.Length, maxPayload)
	}
	if !meta.Compressed() && meta.RawLength != header.Length {
		return nil, errs.Newf(errs.ErrProtocol, "raw length %d does not match payload length %d",
			meta.RawLength, header.Length)
	}
	if meta.RawLength > maxPayload {
		return nil, errs.Newf(errs.ErrProtocol, "chunk of %d bytes exceeds limit %d", meta.RawLength, maxPayload)
	}
	data, err := RecvAll(r, int(header.Length))
	if err != nil {
		return nil, err
	}
	return &ChunkFrame{Header: *header, Path: path, Meta: *meta, Data: data}, nil
}

// WriteStatus sends the one byte reply to a chunk frame
func WriteStatus(w io.Writer, status uint8) error {
	return SendAll(w, []byte{status})
}

// ReadStatus receives the one byte reply to a chunk frame
func ReadStatus(r io.Reader) (uint8, error) {
	status, err := RecvAll(r, 1)
	if err != nil {
		return 0, err
	}
	return status[0], nil
}
