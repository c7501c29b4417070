package scp

import (
	"errors"
	"fmt"
)

// Minimal BER-TLV helpers for the SCP11 key-agreement records. Tags are one
// or two bytes, lengths use the short form or the 0x81/0x82 long forms.

type tlv struct {
	tag   uint16
	value []byte
}

// bytes returns the full encoded record including tag and length.
func (t tlv) bytes() []byte {
	out := make([]byte, 0, 4+len(t.value))
	if t.tag > 0xff {
		out = append(out, byte(t.tag>>8), byte(t.tag))
	} else {
		out = append(out, byte(t.tag))
	}
	n := len(t.value)
	switch {
	case n < 0x80:
		out = append(out, byte(n))
	case n <= 0xff:
		out = append(out, 0x81, byte(n))
	default:
		out = append(out, 0x82, byte(n>>8), byte(n))
	}
	return append(out, t.value...)
}

func encodeTlvList(tlvs ...tlv) []byte {
	var out []byte
	for _, t := range tlvs {
		out = append(out, t.bytes()...)
	}
	return out
}

// parseTlv decodes one record from the head of buf, returning it together
// with its encoded size.
func parseTlv(buf []byte) (tlv, int, error) {
	if len(buf) < 2 {
		return tlv{}, 0, errors.New("scp: truncated TLV")
	}

	offset := 1
	tag := uint16(buf[0])
	// Multi-byte tag when the low five bits of the first byte are set.
	if buf[0]&0x1f == 0x1f {
		tag = tag<<8 | uint16(buf[1])
		offset = 2
	}

	if len(buf) < offset+1 {
		return tlv{}, 0, errors.New("scp: truncated TLV length")
	}
	length := int(buf[offset])
	offset++
	switch {
	case length == 0x81:
		if len(buf) < offset+1 {
			return tlv{}, 0, errors.New("scp: truncated TLV length")
		}
		length = int(buf[offset])
		offset++
	case length == 0x82:
		if len(buf) < offset+2 {
			return tlv{}, 0, errors.New("scp: truncated TLV length")
		}
		length = int(buf[offset])<<8 | int(buf[offset+1])
		offset += 2
	case length > 0x82:
		return tlv{}, 0, fmt.Errorf("scp: unsupported TLV length form %#x", length)
	}

	if len(buf) < offset+length {
		return tlv{}, 0, errors.New("scp: TLV value exceeds buffer")
	}
	return tlv{tag: tag, value: buf[offset : offset+length]}, offset + length, nil
}

func parseTlvList(buf []byte) ([]tlv, error) {
	var out []tlv
	for len(buf) > 0 {
		t, n, err := parseTlv(buf)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
		buf = buf[n:]
	}
	return out, nil
}

// unpackTlv asserts the expected tag and returns the value.
func unpackTlv(tag uint16, buf []byte) ([]byte, error) {
	t, _, err := parseTlv(buf)
	if err != nil {
		return nil, err
	}
	if t.tag != tag {
		return nil, fmt.Errorf("scp: expected TLV tag %#x, got %#x", tag, t.tag)
	}
	return t.value, nil
}
