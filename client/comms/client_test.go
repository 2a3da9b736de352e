package comms

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"dms_transfer/errs"
	"dms_transfer/fileio"
	"dms_transfer/networking"
	server "dms_transfer/server/controller"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sourceFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func pattern(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i * 31)
	}
	return data
}

func startReceiver(t *testing.T, root string) (*server.Receiver, chan *server.ReceiveResult, chan error) {
	t.Helper()
	r, err := server.Listen(context.Background(), server.ReceiveOptions{Bind: "127.0.0.1", DestRoot: root})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	results := make(chan *server.ReceiveResult, 1)
	failures := make(chan error, 1)
	go func() {
		result, err := r.ReceiveOne(context.Background())
		if err != nil {
			failures <- err
			return
		}
		results <- result
	}()
	return r, results, failures
}

func TestSendRangeRoundTrip(t *testing.T) {
	data := pattern(100_000)
	src := sourceFile(t, data)
	root := t.TempDir()
	r, results, failures := startReceiver(t, root)

	err := SendRange(context.Background(), SendOptions{
		Host:         "127.0.0.1",
		Port:         r.Port(),
		File:         src,
		RelativePath: "out/part.bin",
		Offset:       1000,
		Length:       50_000,
		Dial:         networking.DialOptions{Timeout: 5 * time.Second, NoDelay: true},
		BufferSize:   4096,
	})
	require.NoError(t, err)

	select {
	case result := <-results:
		assert.Equal(t, fileio.CRC32Hex(data[1000:51000]), result.Checksum)
	case err := <-failures:
		t.Fatalf("receive failed: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(root, "out", "part.bin"))
	require.NoError(t, err)
	assert.Equal(t, data[1000:51000], got[1000:])
}

func TestSendRangeZeroLength(t *testing.T) {
	src := sourceFile(t, []byte("ignored"))
	root := t.TempDir()
	r, results, failures := startReceiver(t, root)

	require.NoError(t, SendRange(context.Background(), SendOptions{
		Host: "127.0.0.1", Port: r.Port(), File: src, RelativePath: "empty.bin",
	}))

	select {
	case result := <-results:
		assert.Equal(t, uint64(0), result.Length)
	case err := <-failures:
		t.Fatalf("receive failed: %v", err)
	}
	info, err := os.Stat(filepath.Join(root, "empty.bin"))
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestSendRangeSourceTooShort(t *testing.T) {
	src := sourceFile(t, []byte("short"))
	r, _, failures := startReceiver(t, t.TempDir())

	err := SendRange(context.Background(), SendOptions{
		Host: "127.0.0.1", Port: r.Port(), File: src, RelativePath: "x.bin", Length: 100,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrProtocol))
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))

	// The receiver sees the stream end early as well.
	assert.True(t, errors.Is(<-failures, errs.ErrProtocol))
}

func TestSendRangeMissingSource(t *testing.T) {
	r, _, _ := startReceiver(t, t.TempDir())
	err := SendRange(context.Background(), SendOptions{
		Host: "127.0.0.1", Port: r.Port(), File: filepath.Join(t.TempDir(), "nope"), Length: 1,
	})
	assert.True(t, errors.Is(err, errs.ErrIO))
}

func TestSendRangeConnectionRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	err = SendRange(context.Background(), SendOptions{
		Host: "127.0.0.1", Port: port, File: sourceFile(t, []byte("a")), Length: 1,
		Dial: networking.DialOptions{Timeout: time.Second},
	})
	assert.True(t, errors.Is(err, errs.ErrConnection))
}

func TestSendRangeInvalidArguments(t *testing.T) {
	err := SendRange(context.Background(), SendOptions{Port: 1, File: "f"})
	assert.True(t, errors.Is(err, errs.ErrInvalidArgument))

	err = SendRange(context.Background(), SendOptions{Host: "h", Port: 70000, File: "f"})
	assert.True(t, errors.Is(err, errs.ErrInvalidArgument))
}
