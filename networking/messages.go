package networking

import (
	"encoding/binary"
	"io"

	"dms_transfer/constants"
	"dms_transfer/errs"
)

// Header is the fixed transfer preamble. On the wire it is packed and big-endian:
//
//	offset 0:  uint32 path length
//	offset 4:  uint64 file offset
//	offset 12: uint64 payload length
//
// It is followed by PathLength bytes of UTF-8 relative path and Length bytes of payload.
type Header struct {
	PathLength uint32
	Offset     uint64
	Length     uint64
}

// Encode encodes header to its packed wire form
func (h *Header) Encode() []byte {
	buf := make([]byte, constants.HEADER_SIZE)
	binary.BigEndian.PutUint32(buf[0:4], h.PathLength)
	binary.BigEndian.PutUint64(buf[4:12], h.Offset)
	binary.BigEndian.PutUint64(buf[12:20], h.Length)
	return buf
}

// DecodeHeader decodes slice of bytes to Header
func DecodeHeader(message []byte) (*Header, error) {
	if len(message) != constants.HEADER_SIZE {
		return nil, errs.Newf(errs.ErrProtocol, "header length should always be %d bytes, got %d",
			constants.HEADER_SIZE, len(message))
	}

	return &Header{
		PathLength: binary.BigEndian.Uint32(message[0:4]),
		Offset:     binary.BigEndian.Uint64(message[4:12]),
		Length:     binary.BigEndian.Uint64(message[12:20]),
	}, nil
}

// NewHeader builds the header announcing relativePath and the byte range [offset, offset+length)
func NewHeader(relativePath string, offset, length uint64) *Header {
	return &Header{
		PathLength: uint32(len(relativePath)),
		Offset:     offset,
		Length:     length,
	}
}

// WriteHeader sends the header followed by the relative path bytes
func WriteHeader(w io.Writer, header *Header, relativePath string) error {
	if err := SendAll(w, header.Encode()); err != nil {
		return err
	}
	if len(relativePath) > 0 {
		return SendAll(w, []byte(relativePath))
	}
	return nil
}

// ReadHeader receives a header and the relative path that follows it.
// Path lengths above maxPath are rejected before any allocation.
func ReadHeader(r io.Reader, maxPath uint32) (*Header, string, error) {
	raw, err := RecvAll(r, constants.HEADER_SIZE)
	if err != nil {
		return nil, "", err
	}
	header, err := DecodeHeader(raw)
	if err != nil {
		return nil, "", err
	}
	if maxPath > 0 && header.PathLength > maxPath {
		return nil, "", errs.Newf(errs.ErrProtocol, "path length %d exceeds limit %d", header.PathLength, maxPath)
	}
	var path []byte
	if header.PathLength > 0 {
		if path, err = RecvAll(r, int(header.PathLength)); err != nil {
			return nil, "", err
		}
	}
	return header, string(path), nil
}
