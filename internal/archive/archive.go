// Package archive keeps the raw bytes of every telemetry batch the gateway
// receives, keyed by batch id. Archiving happens before any decoding so a
// batch nothing can parse is still kept for later inspection.
package archive

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"
)

var ErrNotFound = errors.New("batch not found")

// Store persists batches. Implementations must be safe for concurrent use;
// two writers of the same id leave one complete copy, never a mix.
type Store interface {
	Put(ctx context.Context, id uint64, raw []byte) error
	Get(ctx context.Context, id uint64) ([]byte, error)
	Close() error
}

// Key formats a batch id as eight zero-padded hex digits.
func Key(id uint64) string {
	return fmt.Sprintf("%08x", id)
}

// ParseKey is the inverse of Key. It accepts only what Key produces: at
// least eight lowercase hex digits.
func ParseKey(key string) (uint64, error) {
	if len(key) < 8 || strings.ToLower(key) != key {
		return 0, fmt.Errorf("invalid batch key %q", key)
	}
	id, err := strconv.ParseUint(key, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid batch key %q: %w", key, err)
	}
	return id, nil
}

// Digest returns the hex BLAKE3-256 of the uncompressed payload.
func Digest(raw []byte) string {
	sum := blake3.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
