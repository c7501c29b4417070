package ctaphid

import (
	"encoding/binary"
	"io"
)

// decodePacket interprets one fixed-size block read from the channel.
func decodePacket(buf []byte) (*packet, error) {
	if len(buf) < PacketSize {
		return nil, ErrShortPacket
	}

	p := &packet{}
	copy(p.cid[:], buf[:4])

	if buf[4]&INIT_PACKET_BIT != 0 {
		p.command = Command(buf[4] &^ INIT_PACKET_BIT)
		p.length = binary.BigEndian.Uint16(buf[5:7])
		p.data = buf[initHeaderLen:]
	} else {
		p.continuation = true
		p.sequence = buf[4]
		p.data = buf[contHeaderLen:]
	}
	return p, nil
}

// ReadFrom reassembles one logical message from the channel, reading
// fixed-size packets until the length declared by the initialization packet
// is satisfied. It performs no channel or sequence validation; the Transport
// receive loop enforces those on live exchanges.
func (m *Message) ReadFrom(r io.Reader) (int64, error) {
	var read int64
	buf := make([]byte, PacketSize)

	remaining := -1
	for remaining != 0 {
		n, err := io.ReadFull(r, buf)
		read += int64(n)
		if err != nil {
			return read, err
		}

		p, err := decodePacket(buf)
		if err != nil {
			return read, err
		}

		if !p.continuation {
			remaining = int(p.length)
		} else if remaining < 0 {
			return read, ErrUnexpectedContinuation
		}
		if remaining < len(p.data) {
			p.data = p.data[:remaining]
		}
		p.data = append([]byte(nil), p.data...)
		remaining -= len(p.data)

		*m = append(*m, p)
	}

	return read, nil
}

// Payload concatenates the data of every packet in the message.
func (m Message) Payload() []byte {
	var out []byte
	for _, p := range m {
		out = append(out, p.data...)
	}
	return out
}
