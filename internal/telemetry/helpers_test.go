package telemetry

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bobobo1618/ninesleep/internal/archive"
	"github.com/bobobo1618/ninesleep/internal/codec"
	"github.com/bobobo1618/ninesleep/internal/sensor"
)

// logRecord is one captured log line with the logger's attributes merged in.
type logRecord struct {
	level slog.Level
	msg   string
	attrs map[string]slog.Value
}

type logStore struct {
	mu      sync.Mutex
	records []logRecord
}

// captureHandler records log records, including attributes added with
// Logger.With, for assertion in tests.
type captureHandler struct {
	store *logStore
	attrs []slog.Attr
}

func newCaptureHandler() *captureHandler {
	return &captureHandler{store: &logStore{}}
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	rec := logRecord{level: r.Level, msg: r.Message, attrs: map[string]slog.Value{}}
	for _, a := range h.attrs {
		rec.attrs[a.Key] = a.Value
	}
	r.Attrs(func(a slog.Attr) bool {
		rec.attrs[a.Key] = a.Value
		return true
	})
	h.store.mu.Lock()
	h.store.records = append(h.store.records, rec)
	h.store.mu.Unlock()
	return nil
}

func (h *captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &captureHandler{store: h.store, attrs: merged}
}

func (h *captureHandler) WithGroup(string) slog.Handler { return h }

func (h *captureHandler) atLevel(level slog.Level) []logRecord {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	var out []logRecord
	for _, r := range h.store.records {
		if r.level == level {
			out = append(out, r)
		}
	}
	return out
}

func (h *captureHandler) withMessage(msg string) []logRecord {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	var out []logRecord
	for _, r := range h.store.records {
		if r.msg == msg {
			out = append(out, r)
		}
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory archive.Store. When release is set, Put blocks
// until it is closed.
type memStore struct {
	mu      sync.Mutex
	batches map[string][]byte
	release chan struct{}
	entered chan struct{}
	err     error
}

func newMemStore() *memStore {
	return &memStore{batches: map[string][]byte{}}
}

func (s *memStore) Put(ctx context.Context, id uint64, raw []byte) error {
	if s.entered != nil {
		close(s.entered)
	}
	if s.release != nil {
		<-s.release
	}
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[archive.Key(id)] = append([]byte(nil), raw...)
	return nil
}

func (s *memStore) Get(ctx context.Context, id uint64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.batches[archive.Key(id)]
	if !ok {
		return nil, archive.ErrNotFound
	}
	return raw, nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for k := range s.batches {
		out = append(out, k)
	}
	return out
}

type recordingSink struct {
	mu       sync.Mutex
	readings []sensor.Reading
}

func (s *recordingSink) Publish(_ context.Context, r sensor.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings = append(s.readings, r)
	return nil
}

func (s *recordingSink) all() []sensor.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sensor.Reading(nil), s.readings...)
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := codec.Marshal(v)
	require.NoError(t, err)
	return data
}

func bedTemp() sensor.BedTemp {
	return sensor.BedTemp{
		TS: 1705995001, MCU: 31.5, Ambient: 22.25, Humidity: 41,
		Left:  sensor.TempSide{Center: 28.5, In: 28.25, Out: 27.75},
		Right: sensor.TempSide{Center: 29, In: 28.75, Out: 28.5},
	}
}

// itemStream encodes items back to back as a batch stream.
func itemStream(t *testing.T, items ...Item) []byte {
	t.Helper()
	var out []byte
	for _, it := range items {
		out = append(out, mustMarshal(t, it)...)
	}
	return out
}

func uint64p(v uint64) *uint64 { return &v }
