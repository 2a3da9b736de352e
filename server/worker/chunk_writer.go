package worker

import (
	"os"
	"path/filepath"
	"sort"
	"sync"

	"dms_transfer/errs"
	"dms_transfer/fileio"
	"dms_transfer/networking"
)

// FileRecord summarizes the chunks persisted for one destination file
type FileRecord struct {
	RelativePath string
	Chunks       int
	Bytes        uint64
	Checksum     string // Whole-file CRC-32 announced by the sender
}

// ChunkWriter persists chunk frames below a destination root. Chunks may arrive
// in any order and from concurrent connections; each is written at its own offset.
type ChunkWriter struct {
	root string

	mu    sync.Mutex
	files map[string]*FileRecord
}

// NewChunkWriter returns a writer rooted at root
func NewChunkWriter(root string) *ChunkWriter {
	return &ChunkWriter{
		root:  filepath.Clean(root),
		files: make(map[string]*FileRecord),
	}
}

// Persist decompresses the frame if needed and writes it at its offset.
// It returns the destination path.
func (c *ChunkWriter) Persist(frame *networking.ChunkFrame) (string, error) {
	dest, err := fileio.JoinUnderRoot(c.root, frame.Path)
	if err != nil {
		return "", err
	}

	data := frame.Data
	// Decompress if compressed.
	if frame.Meta.Compressed() {
		if data, err = fileio.DecompressChunk(frame.Data, int(frame.Meta.RawLength)); err != nil {
			return dest, err
		}
	}

	if err := writeAt(dest, frame.Offset, data); err != nil {
		return dest, err
	}

	key := c.recordKey(dest)
	c.mu.Lock()
	defer c.mu.Unlock()
	record, ok := c.files[key]
	if !ok {
		record = &FileRecord{RelativePath: key}
		c.files[key] = record
	}
	record.Chunks++
	record.Bytes += uint64(len(data))
	record.Checksum = frame.Meta.Checksum

	return dest, nil
}

// Files returns what has been persisted so far, ordered by path
func (c *ChunkWriter) Files() []FileRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]FileRecord, 0, len(c.files))
	for _, record := range c.files {
		out = append(out, *record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RelativePath < out[j].RelativePath })
	return out
}

// Verify recomputes the CRC-32 of a destination file and compares it with the
// checksum its sender announced.
func (c *ChunkWriter) Verify(relative string, bufSize int) (bool, error) {
	dest, err := fileio.JoinUnderRoot(c.root, relative)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	record, ok := c.files[c.recordKey(dest)]
	var checksum string
	if ok {
		checksum = record.Checksum
	}
	c.mu.Unlock()
	if !ok {
		return false, errs.Newf(errs.ErrInvalidArgument, "no chunks received for %s", relative)
	}

	sum, err := fileio.FileChecksumCRC32(dest, bufSize)
	if err != nil {
		return false, err
	}
	return sum == checksum, nil
}

// recordKey identifies a destination file by its slash separated path below root,
// so different spellings of the same file share one record.
func (c *ChunkWriter) recordKey(dest string) string {
	rel, err := filepath.Rel(c.root, dest)
	if err != nil {
		return filepath.ToSlash(dest)
	}
	return filepath.ToSlash(rel)
}

func writeAt(dest string, offset uint64, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(dest), os.ModePerm); err != nil {
		return errs.New(errs.ErrIO, "failed to create parent directories for '"+dest+"'", err)
	}
	file, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errs.New(errs.ErrIO, "failed to open destination file '"+dest+"'", err)
	}
	defer file.Close()

	if _, err := file.WriteAt(data, int64(offset)); err != nil {
		return errs.New(errs.ErrIO, "write failed", err)
	}
	return nil
}
