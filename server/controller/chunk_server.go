package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"dms_transfer/networking"
	"dms_transfer/server/worker"

	"github.com/sirupsen/logrus"
)

// ChunkServer receives chunk frames from any number of concurrent connections
// and persists them below a destination root.
type ChunkServer struct {
	listener  net.Listener
	writer    *worker.ChunkWriter
	handler   *Handler
	ioTimeout time.Duration

	wg      sync.WaitGroup
	closing atomic.Bool
}

// ServerOptions configure a ChunkServer
type ServerOptions struct {
	Bind         string
	Port         int // 0 requests an ephemeral port
	DestRoot     string
	IOTimeout    time.Duration
	MultipathTCP bool
	MaxPayload   uint64
}

// NewChunkServer binds the listening socket. Call Serve to start accepting.
func NewChunkServer(ctx context.Context, opts ServerOptions) (*ChunkServer, error) {
	l, err := networking.Listen(ctx, opts.Bind, opts.Port, opts.MultipathTCP)
	if err != nil {
		return nil, err
	}

	writer := worker.NewChunkWriter(opts.DestRoot)
	s := &ChunkServer{
		listener:  l,
		writer:    writer,
		handler:   &Handler{writer: writer, maxPayload: opts.MaxPayload},
		ioTimeout: opts.IOTimeout,
	}

	logrus.WithFields(logrus.Fields{
		"function":  "NewChunkServer",
		"address":   l.Addr().String(),
		"dest_root": opts.DestRoot,
	}).Info("Listening for chunks")

	return s, nil
}

// Port returns the port actually bound
func (s *ChunkServer) Port() int {
	return networking.ListenerPort(s.listener)
}

// Writer exposes what has been persisted
func (s *ChunkServer) Writer() *worker.ChunkWriter {
	return s.writer
}

// Serve accepts connections until ctx is cancelled or Close is called. Each
// connection is handled on its own goroutine. Serve waits for in-flight
// connections before returning.
func (s *ChunkServer) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	defer s.wg.Wait()

	for {
		// Handle incoming connection.
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closing.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			logrus.WithFields(logrus.Fields{
				"function": "Serve",
				"error":    err.Error(),
			}).Warn("Failed to establish incoming connection")
			continue
		}

		if s.ioTimeout > 0 {
			conn.SetDeadline(time.Now().Add(s.ioTimeout))
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handler.handleChunkConnection(conn)
		}()
	}
}

// Close stops accepting new connections. Safe to call more than once.
func (s *ChunkServer) Close() error {
	if s.closing.Swap(true) {
		return nil
	}
	return s.listener.Close()
}
