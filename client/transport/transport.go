// Package transport delivers planned chunks to remote endpoints.
package transport

import (
	"net"
	"strconv"
	"sync"
)

// NetworkEndpoint identifies where a chunk goes
type NetworkEndpoint struct {
	Address string
	Port    uint16
	// InterfaceName is advisory: it names the local interface the path is meant
	// to use and is only reported in logs.
	InterfaceName string
}

// String returns host:port
func (e NetworkEndpoint) String() string {
	return net.JoinHostPort(e.Address, strconv.Itoa(int(e.Port)))
}

// ChunkPayload is one chunk ready to be delivered
type ChunkPayload struct {
	Path         string // File the chunk was read from
	RelativePath string // Path relative to the job's source root, sent on the wire
	Offset       uint64
	Data         []byte
	ChecksumHex  string // CRC-32 of the whole originating file, identical for all of its chunks
}

// NetworkTransport delivers one chunk to one endpoint. Implementations must be
// safe for concurrent use from multiple workers, against the same or different endpoints.
// A nil error means the chunk was fully delivered.
type NetworkTransport interface {
	SendChunk(endpoint NetworkEndpoint, payload ChunkPayload) error
}

// SentChunk is a SendChunk call observed by Recorder
type SentChunk struct {
	Endpoint NetworkEndpoint
	Payload  ChunkPayload
}

// Recorder is a NetworkTransport that records every call instead of sending.
// Fail, when set, decides per call whether to report an error instead.
type Recorder struct {
	Fail func(endpoint NetworkEndpoint, payload ChunkPayload) error

	mu         sync.Mutex
	sent       []SentChunk
	totalBytes uint64
}

// SendChunk records the call
func (r *Recorder) SendChunk(endpoint NetworkEndpoint, payload ChunkPayload) error {
	if r.Fail != nil {
		if err := r.Fail(endpoint, payload); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, SentChunk{Endpoint: endpoint, Payload: payload})
	r.totalBytes += uint64(len(payload.Data))
	return nil
}

// Sent returns a copy of all recorded calls in arrival order
func (r *Recorder) Sent() []SentChunk {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SentChunk, len(r.sent))
	copy(out, r.sent)
	return out
}

// TotalBytes returns the payload bytes recorded so far
func (r *Recorder) TotalBytes() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalBytes
}

// Chunks returns the number of recorded calls
func (r *Recorder) Chunks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}
