// Package ingest finds CFDI documents on disk, either by walking a directory
// or by watching it for new files.
package ingest

import (
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/cfdi-bills/constants"
)

// Document is one discovered file.
type Document struct {
	Path         string
	HashHex      string
	Size         int64
	Deduplicated bool // same content already seen earlier in the walk
	Err          string
}

// DirStats summarizes a directory walk.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Succeeded    uint32
	Deduplicated uint32
	Failed       uint32
}

// AllowedExt checks if a file extension is in the allowed set.
func AllowedExt(ext string) bool {
	return constants.IsAllowedExt(ext)
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") && base != "." && base != ".."
}
