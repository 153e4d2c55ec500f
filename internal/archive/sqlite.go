package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	upsertBatchSQL = `
INSERT INTO batches (batch_key, batch_id, payload, size, digest, compression, received_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(batch_key) DO UPDATE SET
    batch_id    = excluded.batch_id,
    payload     = excluded.payload,
    size        = excluded.size,
    digest      = excluded.digest,
    compression = excluded.compression,
    received_at = excluded.received_at`

	selectBatchSQL = `SELECT payload, compression FROM batches WHERE batch_key = ?`
)

// SQLiteStore keeps batches as rows of the batches table. The schema is
// created by the migrate package.
type SQLiteStore struct {
	db          *sql.DB
	compression Compression
	now         func() time.Time
}

func NewSQLiteStore(db *sql.DB, compression Compression) *SQLiteStore {
	return &SQLiteStore{db: db, compression: compression, now: time.Now}
}

// Put replaces any earlier batch stored under the same key.
func (s *SQLiteStore) Put(ctx context.Context, id uint64, raw []byte) error {
	payload, err := Compress(raw, s.compression)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, upsertBatchSQL,
		Key(id),
		int64(id),
		payload,
		len(raw),
		Digest(raw),
		string(s.compression),
		s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store batch %s: %w", Key(id), err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id uint64) ([]byte, error) {
	var (
		payload     []byte
		compression string
	)
	err := s.db.QueryRowContext(ctx, selectBatchSQL, Key(id)).Scan(&payload, &compression)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, Key(id))
	}
	if err != nil {
		return nil, fmt.Errorf("load batch %s: %w", Key(id), err)
	}
	return Decompress(payload, Compression(compression))
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
