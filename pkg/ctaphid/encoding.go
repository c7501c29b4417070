package ctaphid

import (
	"encoding/binary"
	"io"

	"github.com/samber/lo"
)

// NewMessage fragments a logical payload into an initialization packet and as
// many continuation packets as needed.
func NewMessage(cid ChannelID, cmd Command, data []byte) (Message, error) {
	if len(data) > maxPayloadSize {
		return nil, ErrMessageTooLarge
	}

	msg := make(Message, 0)
	msg = append(msg, &packet{
		cid:     cid,
		command: cmd,
		length:  uint16(len(data)),
		data:    lo.Slice(data, 0, PacketSize-initHeaderLen),
	})

	if len(data) > PacketSize-initHeaderLen {
		chunks := lo.Chunk(data[PacketSize-initHeaderLen:], PacketSize-contHeaderLen)
		for i, chunk := range chunks {
			msg = append(msg, &packet{
				cid:          cid,
				sequence:     byte(i),
				data:         chunk,
				continuation: true,
			})
		}
	}

	return msg, nil
}

// WriteTo writes the message to the channel, one fixed-size packet per write.
func (m Message) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, p := range m {
		n, err := w.Write(p.encode())
		if err != nil {
			return total, err
		}
		total += int64(n)
	}
	return total, nil
}

// encode lays the packet out as one zero-padded fixed-size block.
func (p *packet) encode() []byte {
	buf := make([]byte, PacketSize)
	copy(buf, p.cid[:])
	if p.continuation {
		buf[4] = 0x7f & p.sequence
		copy(buf[contHeaderLen:], p.data)
	} else {
		buf[4] = byte(p.command) | INIT_PACKET_BIT
		binary.BigEndian.PutUint16(buf[5:], p.length)
		copy(buf[initHeaderLen:], p.data)
	}
	return buf
}
