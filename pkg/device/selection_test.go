package device

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-ctap/keylink/pkg/ctap2"
	"github.com/go-ctap/keylink/pkg/ctaphid"
	"github.com/go-ctap/keylink/pkg/ctaptypes"
)

// selectionChannel emulates a device that answers the INIT handshake, then
// reports keepalives for the selection command until it is cancelled, at
// which point it finishes the exchange with a cancellation status.
type selectionChannel struct {
	mu        sync.Mutex
	cid       [4]byte
	pending   [][]byte
	cancelled bool
	closed    bool
}

func (c *selectionChannel) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(p) < ctaphid.PacketSize || p[4]&ctaphid.INIT_PACKET_BIT == 0 {
		return len(p), nil
	}

	switch ctaphid.Command(p[4] &^ ctaphid.INIT_PACKET_BIT) {
	case ctaphid.CTAPHID_INIT:
		resp := make([]byte, ctaphid.PacketSize)
		copy(resp[:4], p[:4]) // broadcast channel
		resp[4] = byte(ctaphid.CTAPHID_INIT) | ctaphid.INIT_PACKET_BIT
		resp[6] = 17
		copy(resp[7:15], p[7:15]) // nonce echo
		copy(resp[15:19], c.cid[:])
		resp[19] = 2       // protocol version
		resp[20] = 5       // firmware 5.4.3
		resp[21] = 4
		resp[22] = 3
		resp[23] = byte(ctaphid.CAPABILITY_CBOR)
		c.pending = append(c.pending, resp)
	case ctaphid.CTAPHID_CANCEL:
		c.cancelled = true
	}
	return len(p), nil
}

func (c *selectionChannel) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pending) > 0 {
		n := copy(p, c.pending[0])
		c.pending = c.pending[1:]
		return n, nil
	}

	resp := make([]byte, ctaphid.PacketSize)
	copy(resp[:4], c.cid[:])
	if c.cancelled {
		resp[4] = byte(ctaphid.CTAPHID_CBOR) | ctaphid.INIT_PACKET_BIT
		resp[6] = 1
		resp[7] = byte(ctaptypes.CTAP2_ERR_KEEPALIVE_CANCEL)
	} else {
		resp[4] = byte(ctaphid.CTAPHID_KEEPALIVE) | ctaphid.INIT_PACKET_BIT
		resp[6] = 1
		resp[7] = 0x01
	}
	return copy(p, resp), nil
}

func (c *selectionChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func newSelectionDevice(t *testing.T, path string, ch *selectionChannel) *Device {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tr, err := ctaphid.NewTransport(ch, ctaphid.WithLogger(logger))
	require.NoError(t, err)

	return &Device{
		Path:      path,
		channel:   ch,
		transport: tr,
		session:   ctap2.NewSession(tr),
	}
}

func TestRaceSelectionParentCancelReturns(t *testing.T) {
	channels := make([]*selectionChannel, 2)
	devices := make([]*Device, 2)
	for i := range channels {
		channels[i] = &selectionChannel{cid: [4]byte{0x01, 0x02, 0x03, byte(i + 1)}}
		devices[i] = newSelectionDevice(t, fmt.Sprintf("fake-%d", i), channels[i])
	}

	parent, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	var dev *Device
	var err error
	go func() {
		dev, err = raceSelection(parent, devices)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("raceSelection did not return after parent cancellation")
	}

	assert.Nil(t, dev)
	assert.ErrorIs(t, err, context.Canceled)
	for i, ch := range channels {
		ch.mu.Lock()
		assert.True(t, ch.closed, "device %d left open", i)
		ch.mu.Unlock()
	}
}
