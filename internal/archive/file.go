package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// FileStore writes one file per batch into a directory.
type FileStore struct {
	dir         string
	compression Compression
	logger      *slog.Logger
}

func NewFileStore(dir string, compression Compression, logger *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &FileStore{dir: dir, compression: compression, logger: logger}, nil
}

// Path returns where batch id is written.
func (s *FileStore) Path(id uint64) string {
	return filepath.Join(s.dir, Key(id)+s.compression.Suffix())
}

// Put writes to a temporary file in the same directory and renames it into
// place, so readers and concurrent writers only ever see whole files.
func (s *FileStore) Put(ctx context.Context, id uint64, raw []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := Compress(raw, s.compression)
	if err != nil {
		return err
	}

	key := Key(id)
	tmp, err := os.CreateTemp(s.dir, "."+key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}

	path := s.Path(id)
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename to %s: %w", path, err)
	}

	s.logger.Debug("batch archived",
		"key", key,
		"path", path,
		"bytes", len(raw),
		"stored_bytes", len(payload),
		"blake3", Digest(raw),
	)
	return nil
}

// Get reads batch id back, whichever compression it was written with.
func (s *FileStore) Get(ctx context.Context, id uint64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, c := range []Compression{s.compression, CompressionNone, CompressionZstd, CompressionLZ4} {
		data, err := ReadFile(filepath.Join(s.dir, Key(id)+c.Suffix()))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		return data, err
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, Key(id))
}

func (s *FileStore) Close() error { return nil }

// ReadFile reads an archived batch file, decompressing it according to its
// extension.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := CompressionNone
	switch {
	case strings.HasSuffix(path, CompressionZstd.Suffix()):
		c = CompressionZstd
	case strings.HasSuffix(path, CompressionLZ4.Suffix()):
		c = CompressionLZ4
	}
	out, err := Decompress(data, c)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}
