package server

import (
	"net"

	"dms_transfer/constants"
	"dms_transfer/networking"
	"dms_transfer/server/worker"

	"github.com/sirupsen/logrus"
)

// Handler turns one chunk connection into one persisted chunk
type Handler struct {
	writer     *worker.ChunkWriter
	maxPayload uint64
}

// handleChunkConnection reads a single chunk frame, persists it and replies with
// its status before closing the connection.
func (h *Handler) handleChunkConnection(conn net.Conn) {
	defer conn.Close()

	log := logrus.WithFields(logrus.Fields{
		"function": "handleChunkConnection",
		"remote":   conn.RemoteAddr().String(),
	})

	maxPayload := h.maxPayload
	if maxPayload == 0 {
		maxPayload = constants.MAX_CHUNK_PAYLOAD
	}

	frame, err := networking.ReadChunkFrame(conn, maxPayload)
	if err != nil {
		// Stream is unusable after a framing error; nothing to reply to.
		log.WithField("error", err.Error()).Warn("Malformed chunk frame from client")
		return
	}

	log = log.WithFields(logrus.Fields{
		"path":       frame.Path,
		"offset":     frame.Offset,
		"length":     frame.Length,
		"compressed": frame.Meta.Compressed(),
		"checksum":   frame.Meta.Checksum,
	})

	status := networking.StatusOK
	if _, err := h.writer.Persist(frame); err != nil {
		log.WithField("error", err.Error()).Error("Could not persist chunk")
		status = networking.StatusFailed
	} else {
		log.Debug("Chunk persisted")
	}

	if err := networking.WriteStatus(conn, status); err != nil {
		log.WithField("error", err.Error()).Warn("Could not acknowledge chunk")
	}
}
