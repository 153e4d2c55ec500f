// Package sensor defines the typed readings carried inside telemetry batch
// items. Every record travels as a CBOR map whose "type" key names the
// variant; the remaining keys are the variant's fields.
package sensor

import "github.com/bobobo1618/ninesleep/internal/codec"

// Variant discriminators as they appear on the wire.
const (
	TypeCapSense    = "capSense"
	TypePiezoDual   = "piezo-dual"
	TypeBedTemp     = "bedTemp"
	TypeLog         = "log"
	TypeFreezerTemp = "frzTemp"
)

// Record is one decoded sensor reading. The set of implementations is
// closed: CapSense, PiezoDual, BedTemp, Log and FreezerTemp.
type Record interface {
	Type() string
	Timestamp() int64
	isRecord()
}

// CapSide is the capacitive presence state of one side of the bed.
type CapSide struct {
	Status string `json:"status"`
	Center int64  `json:"cen"`
	In     int64  `json:"in"`
	Out    int64  `json:"out"`
}

type CapSense struct {
	TS    int64   `json:"ts"`
	Left  CapSide `json:"left"`
	Right CapSide `json:"right"`
}

// PiezoDual carries one window of raw waveform samples from the two piezo
// sensors under each side. The sample blobs are passed along untouched.
type PiezoDual struct {
	TS     int64  `json:"ts"`
	ADC    int64  `json:"adc"`
	Freq   int64  `json:"freq"`
	Gain   int64  `json:"gain"`
	Left1  []byte `json:"left1"`
	Left2  []byte `json:"left2"`
	Right1 []byte `json:"right1"`
	Right2 []byte `json:"right2"`
}

// TempSide holds the three cover thermistors of one side.
type TempSide struct {
	Center float64 `json:"cen"`
	In     float64 `json:"in"`
	Out    float64 `json:"out"`
}

type BedTemp struct {
	TS       int64    `json:"ts"`
	MCU      float64  `json:"mcu"`
	Ambient  float64  `json:"amb"`
	Humidity float64  `json:"hu"`
	Left     TempSide `json:"left"`
	Right    TempSide `json:"right"`
}

// Log is a firmware log line forwarded through the telemetry stream.
type Log struct {
	TS      int64  `json:"ts"`
	Message string `json:"msg"`
	Level   string `json:"level"`
}

// FreezerTemp reports the water unit temperatures.
type FreezerTemp struct {
	TS       int64   `json:"ts"`
	Ambient  float64 `json:"amb"`
	Heatsink float64 `json:"hs"`
	Left     float64 `json:"left"`
	Right    float64 `json:"right"`
}

func (CapSense) Type() string    { return TypeCapSense }
func (PiezoDual) Type() string   { return TypePiezoDual }
func (BedTemp) Type() string     { return TypeBedTemp }
func (Log) Type() string         { return TypeLog }
func (FreezerTemp) Type() string { return TypeFreezerTemp }

func (r CapSense) Timestamp() int64    { return r.TS }
func (r PiezoDual) Timestamp() int64   { return r.TS }
func (r BedTemp) Timestamp() int64     { return r.TS }
func (r Log) Timestamp() int64         { return r.TS }
func (r FreezerTemp) Timestamp() int64 { return r.TS }

func (CapSense) isRecord()    {}
func (PiezoDual) isRecord()   {}
func (BedTemp) isRecord()     {}
func (Log) isRecord()         {}
func (FreezerTemp) isRecord() {}

// The MarshalCBOR methods add the "type" discriminator next to the
// variant's own fields. The local plain types drop the method set so the
// inner encode does not recurse.

func (r CapSense) MarshalCBOR() ([]byte, error) {
	type plain CapSense
	return codec.Marshal(struct {
		Type string `json:"type"`
		plain
	}{TypeCapSense, plain(r)})
}

func (r PiezoDual) MarshalCBOR() ([]byte, error) {
	type plain PiezoDual
	return codec.Marshal(struct {
		Type string `json:"type"`
		plain
	}{TypePiezoDual, plain(r)})
}

func (r BedTemp) MarshalCBOR() ([]byte, error) {
	type plain BedTemp
	return codec.Marshal(struct {
		Type string `json:"type"`
		plain
	}{TypeBedTemp, plain(r)})
}

func (r Log) MarshalCBOR() ([]byte, error) {
	type plain Log
	return codec.Marshal(struct {
		Type string `json:"type"`
		plain
	}{TypeLog, plain(r)})
}

func (r FreezerTemp) MarshalCBOR() ([]byte, error) {
	type plain FreezerTemp
	return codec.Marshal(struct {
		Type string `json:"type"`
		plain
	}{TypeFreezerTemp, plain(r)})
}
