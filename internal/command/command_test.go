package command

import (
	"errors"
	"testing"
)

func TestCommandBytes(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		want string
	}{
		{"no payload", Command{Code: Variables}, "14\n\n"},
		{"hello", Command{Code: Hello}, "0\n\n"},
		{"with payload", Command{Code: AlarmLeft, Payload: "a1626c6200"}, "5\na1626c6200\n\n"},
		{"raw payload", Command{Code: TemperatureRight, Payload: "-40"}, "12\n-40\n\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(tt.cmd.Bytes()); got != tt.want {
				t.Errorf("Bytes() = %q; want %q", got, tt.want)
			}
		})
	}
}

func TestParseSide(t *testing.T) {
	for _, s := range []string{"left", "right"} {
		side, err := ParseSide(s)
		if err != nil {
			t.Fatalf("ParseSide(%q): %v", s, err)
		}
		if string(side) != s {
			t.Errorf("ParseSide(%q) = %q", s, side)
		}
	}

	for _, s := range []string{"", "Left", "middle", "both"} {
		if _, err := ParseSide(s); !errors.Is(err, ErrInvalidSide) {
			t.Errorf("ParseSide(%q) err = %v; want ErrInvalidSide", s, err)
		}
	}
}

func TestSidePick(t *testing.T) {
	if got := Left.Pick(AlarmLeft, AlarmRight); got != AlarmLeft {
		t.Errorf("Left.Pick = %d; want %d", got, AlarmLeft)
	}
	if got := Right.Pick(TemperatureLeft, TemperatureRight); got != TemperatureRight {
		t.Errorf("Right.Pick = %d; want %d", got, TemperatureRight)
	}
}

func TestValidPayload(t *testing.T) {
	if !ValidPayload("a462706c1832") {
		t.Error("hex payload rejected")
	}
	if !ValidPayload("") {
		t.Error("empty payload rejected")
	}
	for _, p := range []string{"1\n2", "true\r", "\n"} {
		if ValidPayload(p) {
			t.Errorf("ValidPayload(%q) = true; want false", p)
		}
	}
}
