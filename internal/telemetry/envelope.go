// Package telemetry ingests the firmware's telemetry export stream.
//
// The firmware opens a TCP connection and writes a sequence of CBOR
// envelopes. A "session" envelope announces the device and is answered
// with a fixed acknowledgement. A "batch" envelope carries an id and a
// byte stream of CBOR items; the gateway acknowledges the id, archives the
// raw envelope, then decodes each item into a sensor.Record.
package telemetry

// Envelope parts.
const (
	PartSession = "session"
	PartBatch   = "batch"

	protoRaw = "raw"
)

// Envelope is one top-level record of the telemetry stream.
type Envelope struct {
	Part    string  `cbor:"part"`
	Proto   string  `cbor:"proto,omitempty"`
	ID      *uint64 `cbor:"id,omitempty"`
	Version string  `cbor:"version,omitempty"`
	Dev     string  `cbor:"dev,omitempty"`
	Stream  []byte  `cbor:"stream,omitempty"`
}

func sessionAck() Envelope {
	return Envelope{Part: PartSession, Proto: protoRaw}
}

func batchAck(id uint64) Envelope {
	return Envelope{Part: PartBatch, Proto: protoRaw, ID: &id}
}
