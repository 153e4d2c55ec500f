package telemetry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/bobobo1618/ninesleep/internal/archive"
	"github.com/bobobo1618/ninesleep/internal/codec"
	"github.com/bobobo1618/ninesleep/internal/netutil"
	"github.com/bobobo1618/ninesleep/internal/sensor"
)

const (
	DefaultIdleTimeout = 60 * time.Second

	writeTimeout = 10 * time.Second
)

type Options struct {
	// Store archives raw batch envelopes. Nil disables archiving.
	Store archive.Store
	// Sink receives decoded records. Nil means records are only logged.
	Sink   Sink
	Logger *slog.Logger
	// IdleTimeout closes a connection that sends nothing for this long.
	IdleTimeout time.Duration
}

// Handler runs the telemetry protocol on accepted connections. One Handler
// serves any number of connections concurrently; per-connection state lives
// in ServeConn.
type Handler struct {
	store       archive.Store
	sink        Sink
	logger      *slog.Logger
	idleTimeout time.Duration
	now         func() time.Time
}

func NewHandler(opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	return &Handler{
		store:       opts.Store,
		sink:        opts.Sink,
		logger:      opts.Logger,
		idleTimeout: opts.IdleTimeout,
		now:         time.Now,
	}
}

// idleReader pushes the read deadline forward before every read, so only
// silence (not a long transfer) trips the timeout.
type idleReader struct {
	conn    net.Conn
	timeout time.Duration
}

func (r idleReader) Read(p []byte) (int, error) {
	// A failed deadline update means the conn is closed; Read reports it.
	_ = r.conn.SetReadDeadline(time.Now().Add(r.timeout))
	return r.conn.Read(p)
}

type session struct {
	conn   net.Conn
	logger *slog.Logger
	device string
}

// ServeConn reads envelopes from conn until the peer disconnects, goes
// idle, sends something that is not an envelope, or ctx is cancelled. It
// closes conn before returning.
func (h *Handler) ServeConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	s := &session{
		conn:   conn,
		logger: h.logger.With("session", uuid.NewString(), "remote", conn.RemoteAddr().String()),
	}
	s.logger.Info("telemetry connection opened")

	dec := codec.NewDecoder(idleReader{conn: conn, timeout: h.idleTimeout})
	for {
		var raw codec.RawMessage
		if err := dec.Decode(&raw); err != nil {
			h.logReadError(ctx, s.logger, err)
			return
		}

		var env Envelope
		if err := codec.Unmarshal(raw, &env); err != nil {
			s.logger.Warn("undecodable envelope, dropping connection",
				"error", err,
				"bytes", len(raw),
			)
			return
		}

		if err := h.dispatch(ctx, s, env, raw); err != nil {
			if netutil.IsExpectedClose(err) || ctx.Err() != nil {
				s.logger.Info("telemetry connection closed while acknowledging", "error", err)
			} else {
				s.logger.Error("acknowledgement failed", "error", err)
			}
			return
		}
	}
}

func (h *Handler) logReadError(ctx context.Context, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, io.EOF):
		logger.Info("telemetry connection closed")
	case ctx.Err() != nil:
		logger.Info("telemetry connection closed on shutdown")
	case netutil.IsTimeout(err):
		logger.Warn("telemetry connection idle, closing", "idle_timeout", h.idleTimeout)
	case netutil.IsExpectedClose(err):
		logger.Info("telemetry connection closed", "error", err)
	case errors.Is(err, codec.ErrTruncated):
		logger.Warn("telemetry connection closed mid-envelope", "error", err)
	case errors.Is(err, codec.ErrMalformed):
		logger.Warn("malformed envelope, dropping connection", "error", err)
	default:
		logger.Error("telemetry read failed", "error", err)
	}
}

// dispatch handles one envelope. The returned error is an acknowledgement
// write failure; everything else is logged and the loop continues.
func (h *Handler) dispatch(ctx context.Context, s *session, env Envelope, raw []byte) error {
	switch env.Part {
	case PartSession:
		s.device = env.Dev
		s.logger.Info("telemetry session started",
			"device", env.Dev,
			"version", env.Version,
			"proto", env.Proto,
		)
		return s.write(sessionAck())

	case PartBatch:
		if env.ID == nil {
			s.logger.Warn("batch without id, not acknowledged")
			return nil
		}
		id := *env.ID
		if err := s.write(batchAck(id)); err != nil {
			return err
		}
		if len(env.Stream) == 0 {
			s.logger.Warn("batch without stream", "batch_id", id)
			return nil
		}
		h.persist(ctx, s.logger, id, raw)
		h.decodeBatch(ctx, s, id, env.Stream)
		return nil

	default:
		s.logger.Warn("unknown envelope part, skipping", "part", env.Part)
		return nil
	}
}

func (s *session) write(env Envelope) error {
	data, err := codec.Marshal(env)
	if err != nil {
		return err
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	_, err = s.conn.Write(data)
	return err
}

func (h *Handler) persist(ctx context.Context, logger *slog.Logger, id uint64, raw []byte) {
	if h.store == nil {
		return
	}
	if err := h.store.Put(ctx, id, raw); err != nil {
		logger.Warn("batch archive failed", "batch_id", id, "key", archive.Key(id), "error", err)
		return
	}
	logger.Debug("batch archived", "batch_id", id, "key", archive.Key(id), "bytes", len(raw))
}

func (h *Handler) decodeBatch(ctx context.Context, s *session, id uint64, stream []byte) {
	receivedAt := h.now()
	outcomes, err := DecodeItems(stream)

	var decoded int
	for _, o := range outcomes {
		if o.Err != nil {
			s.logger.Warn("discarding batch item",
				"batch_id", id,
				"seq", o.Seq,
				"error", o.Err,
				"diagnostic", o.Diagnostic(),
			)
			continue
		}
		decoded++
		s.logger.Info("sensor record",
			"batch_id", id,
			"seq", o.Seq,
			"type", o.Record.Type(),
			"ts", o.Record.Timestamp(),
		)
		h.forward(ctx, s.logger, sensor.Reading{
			Device:     s.device,
			BatchID:    id,
			Seq:        o.Seq,
			ReceivedAt: receivedAt,
			Record:     o.Record,
		})
	}

	if err != nil {
		s.logger.Warn("batch stream corrupt, dropping remaining items",
			"batch_id", id,
			"decoded", decoded,
			"error", err,
		)
		return
	}
	s.logger.Debug("batch decoded", "batch_id", id, "items", len(outcomes), "decoded", decoded)
}

func (h *Handler) forward(ctx context.Context, logger *slog.Logger, r sensor.Reading) {
	if h.sink == nil {
		return
	}
	if err := h.sink.Publish(ctx, r); err != nil {
		logger.Debug("forwarding record failed",
			"batch_id", r.BatchID,
			"seq", r.Seq,
			"error", err,
		)
	}
}
