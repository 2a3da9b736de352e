package fileio

import (
	"path/filepath"
	"strings"

	"dms_transfer/errs"
)

// JoinUnderRoot joins a peer supplied relative path onto root, refusing any
// result that leaves root.
func JoinUnderRoot(root, relative string) (string, error) {
	cleanRoot := filepath.Clean(root)
	localized := filepath.FromSlash(strings.ReplaceAll(relative, "\\", "/"))
	joined := filepath.Join(cleanRoot, localized)

	rel, err := filepath.Rel(cleanRoot, joined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		// We have strayed from the path of light.
		return "", errs.Newf(errs.ErrInvalidArgument, "invalid path %q outside %s", relative, cleanRoot)
	}
	return joined, nil
}

// RelativeTo returns path relative to the job root used on the wire. A root that
// is the file itself yields the file's base name.
func RelativeTo(root, path string) string {
	if filepath.Clean(root) == filepath.Clean(path) {
		return filepath.Base(path)
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.Base(path)
	}
	return filepath.ToSlash(rel)
}
