package telemetry

import (
	"encoding/hex"
	"fmt"

	"github.com/bobobo1618/ninesleep/internal/codec"
	"github.com/bobobo1618/ninesleep/internal/sensor"
)

// maxDumpBytes bounds the hex fallback when an item is not even valid CBOR.
const maxDumpBytes = 256

// Item is one frame of a batch stream.
type Item struct {
	Seq  uint64 `cbor:"seq"`
	Data []byte `cbor:"data"`
}

// Outcome is the result of decoding one item. Exactly one of Record and
// Err is set. Raw holds the item's data payload, or the whole frame when
// the frame itself did not have the item shape.
type Outcome struct {
	Seq    uint64
	Record sensor.Record
	Err    error
	Raw    []byte
}

// Diagnostic renders Raw for a log line: CBOR diagnostic notation when the
// bytes are well formed, a bounded hex dump otherwise.
func (o Outcome) Diagnostic() string {
	if notation, err := codec.Diagnose(o.Raw); err == nil {
		return notation
	}
	if len(o.Raw) > maxDumpBytes {
		return hex.EncodeToString(o.Raw[:maxDumpBytes]) + "..."
	}
	return hex.EncodeToString(o.Raw)
}

// DecodeItems splits a batch stream into items and decodes each one. Items
// that do not decode into a known record are returned with Err set and do
// not stop the loop. A frame that is cut short or structurally invalid
// ends decoding; the outcomes gathered so far are returned with the error.
func DecodeItems(stream []byte) ([]Outcome, error) {
	var (
		out  []Outcome
		rest = stream
	)
	for len(rest) > 0 {
		offset := len(stream) - len(rest)

		var frame codec.RawMessage
		next, err := codec.UnmarshalFirst(rest, &frame)
		if err != nil {
			return out, fmt.Errorf("item %d at offset %d: %w", len(out), offset, err)
		}
		rest = next

		var item Item
		if err := codec.Unmarshal(frame, &item); err != nil {
			out = append(out, Outcome{Err: fmt.Errorf("item frame: %w", err), Raw: frame})
			continue
		}

		rec, err := sensor.Decode(item.Data)
		out = append(out, Outcome{Seq: item.Seq, Record: rec, Err: err, Raw: item.Data})
	}
	return out, nil
}
