// Package codec wraps the CBOR encoding used on both firmware links: the
// telemetry stream and the hex payloads of control commands.
//
// Encoding uses Core Deterministic Encoding (sorted map keys, smallest
// integer form, no indefinite lengths). Decoding accepts any well-formed
// CBOR, ignores unknown map keys and decodes maps held in any-typed values
// as map[string]any.
//
// Every decode error is classified. ErrTruncated means the input ended
// before a complete value was read; when not a single byte was available
// the error also matches io.EOF, which is how stream readers recognise a
// clean frame boundary. ErrMalformed means the bytes can never become a
// valid value. Errors from the underlying reader (timeouts, resets) are
// returned unclassified.
package codec

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"reflect"
	"syscall"

	"github.com/fxamacker/cbor/v2"
)

var (
	ErrTruncated = errors.New("truncated input")
	ErrMalformed = errors.New("malformed input")
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// RawMessage is one undecoded CBOR value.
type RawMessage = cbor.RawMessage

// Marshal encodes v using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes exactly one CBOR value from data into v. Trailing
// bytes are malformed input.
func Unmarshal(data []byte, v any) error {
	return classify(decMode.Unmarshal(data, v))
}

// UnmarshalFirst decodes the first CBOR value in data into v and returns
// the bytes that follow it.
func UnmarshalFirst(data []byte, v any) (rest []byte, err error) {
	rest, err = decMode.UnmarshalFirst(data, v)
	if err != nil {
		return nil, classify(err)
	}
	return rest, nil
}

// Encoder writes successive CBOR values to a stream.
type Encoder struct {
	enc *cbor.Encoder
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: encMode.NewEncoder(w)}
}

func (e *Encoder) Encode(v any) error {
	return e.enc.Encode(v)
}

// Decoder reads successive CBOR values from a stream. Each call to Decode
// consumes exactly one top-level value and leaves the stream positioned
// immediately after it.
type Decoder struct {
	dec *cbor.Decoder
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: decMode.NewDecoder(r)}
}

func (d *Decoder) Decode(v any) error {
	return classify(d.dec.Decode(v))
}

// NumBytesRead returns the number of bytes consumed by successful Decode
// calls so far.
func (d *Decoder) NumBytesRead() int {
	return d.dec.NumBytesRead()
}

// Diagnose renders data in CBOR diagnostic notation (RFC 8949 §8). Used to
// show operators the shape of records nothing else could decode.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}

// DiagnoseFirst renders the first value in data and returns the rest.
func DiagnoseFirst(data []byte) (string, []byte, error) {
	return cbor.DiagnoseFirst(data)
}

// classify maps decoder errors onto the package sentinels. The CBOR decoder
// reports io.EOF only when no byte of a new value was available.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, io.EOF):
		return fmt.Errorf("%w: %w", ErrTruncated, io.EOF)
	case errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: %w", ErrTruncated, io.ErrUnexpectedEOF)
	case isIOError(err):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
}

func isIOError(err error) bool {
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var errno syscall.Errno
	return errors.As(err, &errno)
}
