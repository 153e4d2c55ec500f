package sensor

import (
	"encoding/json"
	"time"
)

// Reading is a decoded record together with where it came from. It is the
// unit handed to downstream sinks.
type Reading struct {
	Device     string
	BatchID    uint64
	Seq        uint64
	ReceivedAt time.Time
	Record     Record
}

type readingJSON struct {
	Device     string    `json:"device"`
	BatchID    uint64    `json:"batch_id"`
	Seq        uint64    `json:"seq"`
	ReceivedAt time.Time `json:"received_at"`
	Type       string    `json:"type"`
	Record     Record    `json:"record"`
}

func (r Reading) MarshalJSON() ([]byte, error) {
	out := readingJSON{
		Device:     r.Device,
		BatchID:    r.BatchID,
		Seq:        r.Seq,
		ReceivedAt: r.ReceivedAt.UTC(),
		Record:     r.Record,
	}
	if r.Record != nil {
		out.Type = r.Record.Type()
	}
	return json.Marshal(out)
}
