// Package hidproxy defines the framing used to reach HID devices through a
// broker process over a named pipe, for setups where the platform restricts
// direct FIDO HID access.
package hidproxy

import (
	"encoding/binary"
	"io"

	"github.com/fxamacker/cbor/v2"
)

var encMode, _ = cbor.CTAP2EncOptions().EncMode()

const NamedPipePath = "\\\\.\\pipe\\keylink"

type Command byte

const (
	CommandEnumerate Command = iota + 1
	CommandStart
)

// Message is one length-prefixed frame on the proxy pipe: a command byte, a
// 2-byte big-endian payload length and a CBOR payload.
type Message struct {
	Command Command
	length  uint16
	Data    []byte
}

func NewMessage(cmd Command, data any) (*Message, error) {
	msg := &Message{Command: cmd}

	if data != nil {
		b, err := encMode.Marshal(data)
		if err != nil {
			return nil, err
		}
		msg.Data = b
		msg.length = uint16(len(b))
	}

	return msg, nil
}

func ParseMessage(r io.Reader) (*Message, error) {
	header := make([]byte, 3)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	msg := &Message{
		Command: Command(header[0]),
		length:  binary.BigEndian.Uint16(header[1:]),
	}

	msg.Data = make([]byte, msg.length)
	if msg.length > 0 {
		if _, err := io.ReadFull(r, msg.Data); err != nil {
			return nil, err
		}
	}

	return msg, nil
}

func (m *Message) WriteTo(w io.Writer) (int64, error) {
	buf := make([]byte, 0, 3+len(m.Data))
	buf = append(buf, byte(m.Command))
	buf = binary.BigEndian.AppendUint16(buf, m.length)
	buf = append(buf, m.Data...)

	n, err := w.Write(buf)
	return int64(n), err
}
