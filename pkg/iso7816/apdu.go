// Package iso7816 implements the ISO/IEC 7816-4 smart-card transport: APDU
// encoding, command chaining for oversized payloads and response draining via
// GET RESPONSE style follow-ups.
package iso7816

import "fmt"

// shortApduMaxChunk is the largest data field a short-form APDU can carry.
const shortApduMaxChunk = 0xff

// claChaining marks a command block that is continued by the next one.
const claChaining = 0x10

// Apdu is a single ISO 7816-4 command unit.
type Apdu struct {
	Cla  byte
	Ins  byte
	P1   byte
	P2   byte
	Data []byte
	// Le is the expected response length, 0 when absent.
	Le int
}

// NewApdu validates that the header parameters fit in a byte and builds an
// Apdu without an expected-length field.
func NewApdu(cla, ins, p1, p2 int, data []byte) (Apdu, error) {
	for _, v := range []int{cla, ins, p1, p2} {
		if v < 0 || v > 0xff {
			return Apdu{}, fmt.Errorf("iso7816: header value %#x does not fit in a byte", v)
		}
	}
	return Apdu{Cla: byte(cla), Ins: byte(ins), P1: byte(p1), P2: byte(p2), Data: data}, nil
}

// encodeShort encodes a short-form APDU. The data length and Le must both be
// at most 255 bytes.
func encodeShort(cla byte, a Apdu, data []byte) ([]byte, error) {
	if len(data) > shortApduMaxChunk {
		return nil, fmt.Errorf("iso7816: short APDU data must be no longer than %d bytes", shortApduMaxChunk)
	}
	if a.Le < 0 || a.Le > shortApduMaxChunk {
		return nil, fmt.Errorf("iso7816: Le must be between 0 and %d", shortApduMaxChunk)
	}

	buf := make([]byte, 0, 4+1+len(data)+1)
	buf = append(buf, cla, a.Ins, a.P1, a.P2)
	if len(data) > 0 {
		buf = append(buf, byte(len(data)))
		buf = append(buf, data...)
	}
	if a.Le > 0 {
		buf = append(buf, byte(a.Le))
	}
	return buf, nil
}

// EncodeCommand encodes an APDU in short form when the data fits, extended
// form otherwise. This is the exact wire layout a Protocol in extended mode
// transmits, which secure-channel MAC computation depends on.
func EncodeCommand(a Apdu) ([]byte, error) {
	return encodeExtended(a)
}

// encodeExtended encodes an extended-length APDU when the data does not fit
// the short form.
func encodeExtended(a Apdu) ([]byte, error) {
	if len(a.Data) <= shortApduMaxChunk {
		return encodeShort(a.Cla, a, a.Data)
	}
	if len(a.Data) > 0xffff {
		return nil, fmt.Errorf("iso7816: data too long for extended APDU: %d bytes", len(a.Data))
	}

	buf := make([]byte, 0, 4+3+len(a.Data))
	buf = append(buf, a.Cla, a.Ins, a.P1, a.P2)
	buf = append(buf, 0x00, byte(len(a.Data)>>8), byte(len(a.Data)))
	buf = append(buf, a.Data...)
	return buf, nil
}
