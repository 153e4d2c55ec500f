package telemetry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobobo1618/ninesleep/internal/codec"
	"github.com/bobobo1618/ninesleep/internal/sensor"
)

func TestDecodeItems_AllKnown(t *testing.T) {
	logRec := sensor.Log{TS: 10, Message: "pump started", Level: "info"}
	frz := sensor.FreezerTemp{TS: 11, Ambient: 23.5, Heatsink: 35.25, Left: 18, Right: 19.5}

	stream := itemStream(t,
		Item{Seq: 1, Data: mustMarshal(t, bedTemp())},
		Item{Seq: 2, Data: mustMarshal(t, logRec)},
		Item{Seq: 3, Data: mustMarshal(t, frz)},
	)

	outcomes, err := DecodeItems(stream)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	assert.Equal(t, uint64(1), outcomes[0].Seq)
	assert.Equal(t, bedTemp(), outcomes[0].Record)
	assert.Equal(t, logRec, outcomes[1].Record)
	assert.Equal(t, frz, outcomes[2].Record)
	for _, o := range outcomes {
		assert.NoError(t, o.Err)
	}
}

func TestDecodeItems_EmptyStream(t *testing.T) {
	outcomes, err := DecodeItems(nil)
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}

func TestDecodeItems_OneBadItemAmongMany(t *testing.T) {
	unknown := mustMarshal(t, map[string]any{"type": "weight", "ts": 12, "kg": 71.5})

	stream := itemStream(t,
		Item{Seq: 1, Data: mustMarshal(t, bedTemp())},
		Item{Seq: 2, Data: unknown},
		Item{Seq: 3, Data: []byte{0xff, 0x00, 0x13}},
		Item{Seq: 4, Data: mustMarshal(t, sensor.Log{TS: 13, Message: "ok", Level: "debug"})},
	)

	outcomes, err := DecodeItems(stream)
	require.NoError(t, err, "item-level failures must not end the batch")
	require.Len(t, outcomes, 4)

	assert.NoError(t, outcomes[0].Err)
	assert.ErrorIs(t, outcomes[1].Err, sensor.ErrUnknownType)
	assert.ErrorIs(t, outcomes[2].Err, codec.ErrMalformed)
	assert.NoError(t, outcomes[3].Err)
	assert.Equal(t, uint64(4), outcomes[3].Seq)

	assert.Contains(t, outcomes[1].Diagnostic(), `"weight"`)
	assert.Equal(t, "ff0013", outcomes[2].Diagnostic())
}

func TestDecodeItems_FrameWithWrongShapeIsSkipped(t *testing.T) {
	stream := append(mustMarshal(t, []int{1, 2, 3}),
		itemStream(t, Item{Seq: 9, Data: mustMarshal(t, bedTemp())})...)

	outcomes, err := DecodeItems(stream)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	assert.ErrorIs(t, outcomes[0].Err, codec.ErrMalformed)
	assert.Equal(t, "[1, 2, 3]", outcomes[0].Diagnostic())
	assert.Equal(t, bedTemp(), outcomes[1].Record)
}

func TestDecodeItems_MidFrameCorruptionEndsBatch(t *testing.T) {
	good := itemStream(t,
		Item{Seq: 1, Data: mustMarshal(t, bedTemp())},
		Item{Seq: 2, Data: mustMarshal(t, bedTemp())},
	)
	after := itemStream(t, Item{Seq: 4, Data: mustMarshal(t, bedTemp())})

	tests := []struct {
		name    string
		corrupt []byte
		want    error
	}{
		{name: "reserved byte", corrupt: []byte{0x1c}, want: codec.ErrMalformed},
		{name: "stray break", corrupt: []byte{0xff}, want: codec.ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream := append(append(append([]byte{}, good...), tt.corrupt...), after...)

			outcomes, err := DecodeItems(stream)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Len(t, outcomes, 2, "items before the corruption are kept, items after are lost")
		})
	}
}

func TestDecodeItems_TruncatedTail(t *testing.T) {
	full := itemStream(t,
		Item{Seq: 1, Data: mustMarshal(t, bedTemp())},
		Item{Seq: 2, Data: mustMarshal(t, bedTemp())},
	)
	stream := full[:len(full)-5]

	outcomes, err := DecodeItems(stream)
	require.Error(t, err)
	assert.ErrorIs(t, err, codec.ErrTruncated)
	assert.Len(t, outcomes, 1)
	assert.True(t, strings.Contains(err.Error(), "item 1"), err.Error())
}

func TestDecodeItems_Idempotent(t *testing.T) {
	stream := itemStream(t,
		Item{Seq: 5, Data: mustMarshal(t, bedTemp())},
		Item{Seq: 6, Data: []byte{0x01}},
		Item{Seq: 7, Data: mustMarshal(t, sensor.CapSense{TS: 1})},
	)

	first, err1 := DecodeItems(stream)
	second, err2 := DecodeItems(stream)
	require.NoError(t, err1)
	require.NoError(t, err2)
	require.Len(t, second, len(first))

	for i := range first {
		assert.Equal(t, first[i].Seq, second[i].Seq)
		assert.Equal(t, first[i].Record, second[i].Record)
		assert.Equal(t, first[i].Err == nil, second[i].Err == nil)
	}
}

func TestOutcomeDiagnostic_BoundsHexDump(t *testing.T) {
	raw := make([]byte, 1000)
	for i := range raw {
		raw[i] = 0xff
	}
	d := Outcome{Raw: raw}.Diagnostic()
	assert.Len(t, d, maxDumpBytes*2+3)
	assert.True(t, strings.HasSuffix(d, "..."))
}
