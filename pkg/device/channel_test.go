package device

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-ctap/keylink/pkg/transport"
)

type fakeHid struct {
	wrote  [][]byte
	rx     *bytes.Buffer
	closed bool
}

func (f *fakeHid) Read(p []byte) (int, error)  { return f.rx.Read(p) }
func (f *fakeHid) Write(p []byte) (int, error) { f.wrote = append(f.wrote, append([]byte(nil), p...)); return len(p), nil }
func (f *fakeHid) Close() error                { f.closed = true; return nil }

func TestReportChannelPrefixesReportID(t *testing.T) {
	hid := &fakeHid{rx: bytes.NewBuffer(nil)}
	channel := newReportChannel(hid)

	packet := bytes.Repeat([]byte{0xab}, transport.PacketSize)
	n, err := channel.Write(packet)
	require.NoError(t, err)
	assert.Equal(t, transport.PacketSize, n)

	require.Len(t, hid.wrote, 1)
	report := hid.wrote[0]
	require.Len(t, report, transport.PacketSize+1)
	assert.EqualValues(t, 0x00, report[0])
	assert.Equal(t, packet, report[1:])
}

func TestReportChannelReadPassthrough(t *testing.T) {
	packet := bytes.Repeat([]byte{0x5a}, transport.PacketSize)
	hid := &fakeHid{rx: bytes.NewBuffer(packet)}
	channel := newReportChannel(hid)

	buf := make([]byte, transport.PacketSize)
	n, err := channel.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, transport.PacketSize, n)
	assert.Equal(t, packet, buf)

	require.NoError(t, channel.Close())
	assert.True(t, hid.closed)
}
