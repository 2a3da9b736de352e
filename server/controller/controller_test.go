package server

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"dms_transfer/errs"
	"dms_transfer/fileio"
	"dms_transfer/networking"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialLocal(t *testing.T, port int) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), 5*time.Second)
	require.NoError(t, err)
	return conn
}

func TestReceiveOneWritesRangeAtOffset(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	r, err := Listen(ctx, ReceiveOptions{Bind: "127.0.0.1", DestRoot: root, BufferSize: 7})
	require.NoError(t, err)
	defer r.Close()
	require.NotZero(t, r.Port())

	payload := []byte("the quick brown fox jumps over the lazy dog")
	go func() {
		conn := dialLocal(t, r.Port())
		defer conn.Close()
		networking.WriteHeader(conn, networking.NewHeader("sub/out.bin", 10, uint64(len(payload))), "sub/out.bin")
		networking.SendAll(conn, payload)
	}()

	result, err := r.ReceiveOne(ctx)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "sub", "out.bin"), result.Destination)
	assert.Equal(t, uint64(10), result.Offset)
	assert.Equal(t, uint64(len(payload)), result.Length)
	assert.Equal(t, fileio.CRC32Hex(payload), result.Checksum)

	got, err := os.ReadFile(result.Destination)
	require.NoError(t, err)
	require.Len(t, got, 10+len(payload))
	assert.Equal(t, payload, got[10:])
}

func TestReceiveReportsEphemeralPort(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		_, err := Receive(ctx, ReceiveOptions{Bind: "127.0.0.1", DestRoot: root}, pw)
		pw.Close()
		done <- err
	}()

	line, err := bufio.NewReader(pr).ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "PORT="))
	port, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "PORT=")))
	require.NoError(t, err)
	require.NotZero(t, port)
	go io.Copy(io.Discard, pr)

	conn := dialLocal(t, port)
	require.NoError(t, networking.WriteHeader(conn, networking.NewHeader("p.bin", 0, 3), "p.bin"))
	require.NoError(t, networking.SendAll(conn, []byte("abc")))
	conn.Close()

	require.NoError(t, <-done)
	got, err := os.ReadFile(filepath.Join(root, "p.bin"))
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}

func TestReceiveOneTruncatedStream(t *testing.T) {
	ctx := context.Background()
	r, err := Listen(ctx, ReceiveOptions{Bind: "127.0.0.1", DestRoot: t.TempDir()})
	require.NoError(t, err)
	defer r.Close()

	go func() {
		conn := dialLocal(t, r.Port())
		networking.WriteHeader(conn, networking.NewHeader("short.bin", 0, 100), "short.bin")
		networking.SendAll(conn, []byte("only a few"))
		conn.Close()
	}()

	_, err = r.ReceiveOne(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrProtocol))
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
}

func TestReceiveOneRejectsEscapingPath(t *testing.T) {
	ctx := context.Background()
	r, err := Listen(ctx, ReceiveOptions{Bind: "127.0.0.1", DestRoot: t.TempDir()})
	require.NoError(t, err)
	defer r.Close()

	go func() {
		conn := dialLocal(t, r.Port())
		defer conn.Close()
		networking.WriteHeader(conn, networking.NewHeader("../../x", 0, 1), "../../x")
		networking.SendAll(conn, []byte("x"))
	}()

	_, err = r.ReceiveOne(ctx)
	assert.True(t, errors.Is(err, errs.ErrInvalidArgument))
}

func TestReceiveOneCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r, err := Listen(ctx, ReceiveOptions{Bind: "127.0.0.1", DestRoot: t.TempDir()})
	require.NoError(t, err)
	defer r.Close()

	cancel()
	_, err = r.ReceiveOne(ctx)
	assert.True(t, errors.Is(err, errs.ErrConnection))
}

func TestListenRequiresDestRoot(t *testing.T) {
	_, err := Listen(context.Background(), ReceiveOptions{Bind: "127.0.0.1"})
	assert.True(t, errors.Is(err, errs.ErrInvalidArgument))
}

func startChunkServer(t *testing.T, root string) (*ChunkServer, context.CancelFunc, chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	s, err := NewChunkServer(ctx, ServerOptions{Bind: "127.0.0.1", DestRoot: root, IOTimeout: 5 * time.Second})
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()
	return s, cancel, done
}

func TestChunkServerPersistsAndAcknowledges(t *testing.T) {
	root := t.TempDir()
	s, cancel, done := startChunkServer(t, root)

	full := bytes.Repeat([]byte("0123456789"), 100)
	sum := fileio.CRC32Hex(full)

	for _, offset := range []uint64{500, 0} {
		conn := dialLocal(t, s.Port())
		frame := &networking.ChunkFrame{
			Header: networking.Header{Offset: offset},
			Path:   "a/b.bin",
			Meta:   networking.ChunkMeta{Checksum: sum, RawLength: 500},
			Data:   full[offset : offset+500],
		}
		require.NoError(t, networking.WriteChunkFrame(conn, frame))
		status, err := networking.ReadStatus(conn)
		require.NoError(t, err)
		assert.Equal(t, networking.StatusOK, status)
		conn.Close()
	}

	cancel()
	require.NoError(t, <-done)

	got, err := os.ReadFile(filepath.Join(root, "a", "b.bin"))
	require.NoError(t, err)
	assert.Equal(t, full, got)

	ok, err := s.Writer().Verify("a/b.bin", 4096)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestChunkServerReportsFailure(t *testing.T) {
	s, cancel, done := startChunkServer(t, t.TempDir())
	defer func() {
		cancel()
		<-done
	}()

	conn := dialLocal(t, s.Port())
	defer conn.Close()
	frame := &networking.ChunkFrame{
		Path: "../outside.bin",
		Meta: networking.ChunkMeta{RawLength: 1},
		Data: []byte("x"),
	}
	require.NoError(t, networking.WriteChunkFrame(conn, frame))
	status, err := networking.ReadStatus(conn)
	require.NoError(t, err)
	assert.Equal(t, networking.StatusFailed, status)
}

func TestChunkServerCloseIsIdempotent(t *testing.T) {
	s, err := NewChunkServer(context.Background(), ServerOptions{Bind: "127.0.0.1", DestRoot: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.NoError(t, s.Serve(context.Background()))
}
