package sensor

import (
	"errors"
	"fmt"

	"github.com/bobobo1618/ninesleep/internal/codec"
)

// ErrUnknownType is returned by Decode when the record's discriminator
// names no known variant.
var ErrUnknownType = errors.New("unknown record type")

type discriminator struct {
	Type string `json:"type"`
}

// Decode reads the "type" key of a CBOR-encoded record and decodes the
// whole value into the matching variant. Structural failures wrap the
// codec sentinels.
func Decode(data []byte) (Record, error) {
	var d discriminator
	if err := codec.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode record type: %w", err)
	}

	switch d.Type {
	case TypeCapSense:
		return decodeAs[CapSense](data)
	case TypePiezoDual:
		return decodeAs[PiezoDual](data)
	case TypeBedTemp:
		return decodeAs[BedTemp](data)
	case TypeLog:
		return decodeAs[Log](data)
	case TypeFreezerTemp:
		return decodeAs[FreezerTemp](data)
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrUnknownType)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, d.Type)
	}
}

func decodeAs[T Record](data []byte) (Record, error) {
	var r T
	if err := codec.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.Type(), err)
	}
	return r, nil
}
