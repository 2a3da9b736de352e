package fileio

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"dms_transfer/errs"
)

// FileChunk is a planned byte range of a file
type FileChunk struct {
	Path   string
	Offset uint64
	Size   int
}

// EnumerateFiles returns root itself if it is a regular file, or every regular file
// below root in lexical order if it is a directory.
func EnumerateFiles(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errs.New(errs.ErrInvalidArgument, "root does not exist: "+root, err)
	}

	if info.Mode().IsRegular() {
		return []string{root}, nil
	}

	files := make([]string, 0)
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, errs.New(errs.ErrIO, "walk "+root, err)
	}

	// Full-path order, independent of how the platform orders separators.
	sort.Strings(files)
	return files, nil
}

// ChunkFile plans contiguous chunks of at most chunkSize bytes covering the file.
// An empty file yields a single chunk of size 0. File contents are not read.
func ChunkFile(path string, chunkSize int) ([]FileChunk, error) {
	if chunkSize <= 0 {
		return nil, errs.Newf(errs.ErrInvalidArgument, "chunk size must be > 0, got %d", chunkSize)
	}

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return nil, errs.New(errs.ErrInvalidArgument, "path must be a regular file: "+path, err)
	}

	fileSize := uint64(info.Size())
	step := uint64(chunkSize)
	chunks := make([]FileChunk, 0, fileSize/step+1)

	for offset := uint64(0); offset < fileSize; offset += step {
		size := step
		if remaining := fileSize - offset; remaining < step {
			size = remaining
		}
		chunks = append(chunks, FileChunk{Path: path, Offset: offset, Size: int(size)})
	}

	if len(chunks) == 0 {
		chunks = append(chunks, FileChunk{Path: path, Offset: 0, Size: 0})
	}

	return chunks, nil
}
