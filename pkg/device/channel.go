package device

import (
	"io"

	"github.com/go-ctap/keylink/pkg/transport"
)

// reportChannel adapts a raw HID handle to the 64-byte packet contract: every
// outgoing packet is sent as a 65-byte output report with a zero report ID,
// while reads deliver bare packets.
type reportChannel struct {
	dev io.ReadWriteCloser
}

func newReportChannel(dev io.ReadWriteCloser) transport.PacketChannel {
	return &reportChannel{dev: dev}
}

func (c *reportChannel) Read(p []byte) (int, error) {
	return c.dev.Read(p)
}

func (c *reportChannel) Write(p []byte) (int, error) {
	report := make([]byte, 1+len(p))
	copy(report[1:], p)

	n, err := c.dev.Write(report)
	if n > 0 {
		n--
	}
	return n, err
}

func (c *reportChannel) Close() error {
	return c.dev.Close()
}
