// Package command talks to the bed firmware over its local control socket.
//
// A command is a decimal code on its own line, optionally followed by a
// line of lowercase hex (a CBOR value), and terminated by a blank line.
// The firmware answers with free-form text which is returned untouched.
package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Code selects a firmware operation.
type Code int

const (
	Hello                    Code = 0
	AlarmLeft                Code = 5
	AlarmRight               Code = 6
	Settings                 Code = 8
	TemperatureDurationLeft  Code = 9
	TemperatureDurationRight Code = 10
	TemperatureLeft          Code = 11
	TemperatureRight         Code = 12
	Prime                    Code = 13
	Variables                Code = 14
	AlarmClear               Code = 16
)

var ErrInvalidSide = errors.New("side must be left or right")

// Side is one half of the bed.
type Side string

const (
	Left  Side = "left"
	Right Side = "right"
)

func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case Left, Right:
		return Side(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSide, s)
}

// Pick returns left for the left side and right otherwise.
func (s Side) Pick(left, right Code) Code {
	if s == Left {
		return left
	}
	return right
}

// Command is one request to the firmware. Payload is sent verbatim on the
// second line and must not contain line breaks.
type Command struct {
	Code    Code
	Payload string
}

// Bytes renders the command in wire form.
func (c Command) Bytes() []byte {
	var b strings.Builder
	b.WriteString(strconv.Itoa(int(c.Code)))
	b.WriteByte('\n')
	if c.Payload != "" {
		b.WriteString(c.Payload)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return []byte(b.String())
}

// ValidPayload reports whether p can be framed without breaking the
// line protocol.
func ValidPayload(p string) bool {
	return !strings.ContainsAny(p, "\r\n")
}
