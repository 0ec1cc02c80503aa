package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/cfdi-bills/internal/common"
)

// HashFile resolves path and returns its size and SHA-256.
func HashFile(path string) (Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Document{}, fmt.Errorf("abs path: %w", err)
	}
	if !AllowedExt(filepath.Ext(abs)) {
		return Document{}, common.InvalidInputErrorf("unsupported or missing extension: %q", filepath.Ext(abs))
	}

	f, err := os.Open(abs)
	if err != nil {
		return Document{}, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return Document{}, fmt.Errorf("hash: %w", err)
	}
	return Document{Path: abs, HashHex: hex.EncodeToString(h.Sum(nil)), Size: n}, nil
}

// Discover walks root and returns every allowed file in lexical order.
// Per-file failures are reported in the results and do not stop the walk;
// only an unusable root or a cancelled ctx returns an error.
func Discover(ctx context.Context, root string, skipHidden bool) ([]Document, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, common.InvalidInputErrorf("root path is required")
	}
	if _, err := os.Stat(root); err != nil {
		return nil, DirStats{}, fmt.Errorf("root: %w", err)
	}

	var (
		docs  []Document
		stats DirStats
		seen  = map[string]struct{}{}
	)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			docs = append(docs, Document{Path: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !AllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		doc, err := HashFile(path)
		if err != nil {
			docs = append(docs, Document{Path: path, Err: err.Error()})
			stats.Failed++
			return nil
		}
		if _, dup := seen[doc.HashHex]; dup {
			doc.Deduplicated = true
			stats.Deduplicated++
		}
		seen[doc.HashHex] = struct{}{}
		docs = append(docs, doc)
		stats.Succeeded++
		return nil
	})
	if err != nil {
		return docs, stats, fmt.Errorf("walk: %w", err)
	}
	return docs, stats, nil
}
