package telemetry

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServe_ConcurrentConnections(t *testing.T) {
	ln, err := Listen("127.0.0.1:0")
	require.NoError(t, err)

	store := newMemStore()
	handler := NewHandler(Options{Store: store, Logger: discardLogger(), IdleTimeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, ln, handler, discardLogger()) }()

	dial := func() *firmware {
		conn, err := net.Dial("tcp", ln.Addr().String())
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
		return newFirmware(t, conn)
	}

	// The first connection stays open and idle while the second is served.
	first := dial()
	first.send(Envelope{Part: PartSession, Dev: "A"})
	assert.Equal(t, "session", first.ack()["part"])

	second := dial()
	second.send(Envelope{Part: PartBatch, ID: uint64p(9), Stream: []byte{0x01}})
	assert.EqualValues(t, 9, second.ack()["id"])

	first.send(Envelope{Part: PartBatch, ID: uint64p(10), Stream: []byte{0x01}})
	assert.EqualValues(t, 10, first.ack()["id"])

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel with open connections")
	}

	assert.ElementsMatch(t, []string{"00000009", "0000000a"}, store.keys())
}

func TestListen_AddressInUse(t *testing.T) {
	ln, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	_, err = Listen(ln.Addr().String())
	assert.Error(t, err)
}
