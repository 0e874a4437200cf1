package localmodel

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"
)

// unpackBundle extracts the weights entry from the configured zip archive.
// An entry whose base name equals the model file wins; otherwise the first
// .gguf entry is used.
func (p *Provisioner) unpackBundle(ctx context.Context, onProgress ProgressFunc) error {
	archive, err := zip.OpenReader(p.opts.BundlePath)
	if err != nil {
		return fmt.Errorf("open bundle: %w", err)
	}
	defer func() { _ = archive.Close() }()

	entry := findWeightsEntry(archive.File, p.opts.File)
	if entry == nil {
		return fmt.Errorf("bundle %s has no .gguf entry", p.opts.BundlePath)
	}

	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("open bundle entry %s: %w", entry.Name, err)
	}
	defer func() { _ = src.Close() }()

	tmp, err := os.CreateTemp(p.opts.Dir, p.opts.File+".partial-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	hasher := sha256.New()
	counter := &progressWriter{
		total:      int64(entry.UncompressedSize64),
		onStatus:   func(string) {},
		onProgress: onProgress,
	}
	if _, err := io.Copy(io.MultiWriter(tmp, hasher, counter), contextReader{ctx: ctx, r: src}); err != nil {
		return fmt.Errorf("unpack %s: %w", entry.Name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	return p.install(tmpPath, hex.EncodeToString(hasher.Sum(nil)))
}

func findWeightsEntry(files []*zip.File, want string) *zip.File {
	var first *zip.File
	for _, f := range files {
		if f.FileInfo().IsDir() {
			continue
		}
		base := path.Base(f.Name)
		if base == want {
			return f
		}
		if first == nil && strings.HasSuffix(strings.ToLower(base), ".gguf") {
			first = f
		}
	}
	return first
}

// contextReader stops a long copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(b []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(b)
}
