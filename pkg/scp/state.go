package scp

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"
)

// State carries the live secure-channel transforms: the outgoing encryption
// counter and the chained command/response MACs. A State belongs to exactly
// one channel; once MAC verification fails it must be discarded and the
// channel re-established.
type State struct {
	keys       SessionKeys
	macChain   []byte
	encCounter uint32
}

// NewState creates channel state from negotiated session keys and the
// initial MAC chaining value (zeros for SCP03, the receipt for SCP11).
func NewState(keys SessionKeys, macChain []byte) *State {
	chain := make([]byte, 16)
	copy(chain, macChain)
	return &State{keys: keys, macChain: chain, encCounter: 1}
}

// Encrypt pads plaintext the ISO 9797 M2 way (0x80 then zeros) and encrypts
// it under S-ENC with an IV derived from the outgoing counter.
func (s *State) Encrypt(data []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.keys.SEnc)
	if err != nil {
		return nil, err
	}

	padLen := 16 - len(data)%16
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	padded[len(data)] = 0x80

	ivInput := make([]byte, 16)
	binary.BigEndian.PutUint32(ivInput[12:], s.encCounter)
	s.encCounter++

	iv := make([]byte, 16)
	block.Encrypt(iv, ivInput)

	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

// Decrypt reverses the paired response transform (IV input carries a 0x80
// marker and the counter of the command already sent) and strips the
// padding.
func (s *State) Decrypt(encrypted []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.keys.SEnc)
	if err != nil {
		return nil, err
	}
	if len(encrypted)%16 != 0 || len(encrypted) == 0 {
		return nil, ErrBadPadding
	}

	ivInput := make([]byte, 16)
	ivInput[0] = 0x80
	binary.BigEndian.PutUint32(ivInput[12:], s.encCounter-1)

	iv := make([]byte, 16)
	block.Encrypt(iv, ivInput)

	plain := make([]byte, len(encrypted))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, encrypted)

	for i := len(plain) - 1; i > 0; i-- {
		if plain[i] == 0x80 {
			return plain[:i], nil
		} else if plain[i] != 0x00 {
			break
		}
	}
	return nil, ErrBadPadding
}

// Mac advances the command MAC chain over the formatted APDU and returns the
// 8-byte tag to append.
func (s *State) Mac(data []byte) ([]byte, error) {
	tag, err := aesCmac(s.keys.SMac, append(append([]byte(nil), s.macChain...), data...))
	if err != nil {
		return nil, err
	}
	s.macChain = tag
	return tag[:8], nil
}

// Unmac verifies the response MAC over the payload and status word and
// returns the payload with the tag removed. A mismatch is fatal to the
// channel and is never retried.
func (s *State) Unmac(data []byte, sw uint16) ([]byte, error) {
	if len(data) < 8 {
		return nil, ErrWrongMac
	}

	msg := make([]byte, 0, len(data)-8+2)
	msg = append(msg, data[:len(data)-8]...)
	msg = binary.BigEndian.AppendUint16(msg, sw)

	tag, err := aesCmac(s.keys.SRMac, append(append([]byte(nil), s.macChain...), msg...))
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare(tag[:8], data[len(data)-8:]) != 1 {
		return nil, ErrWrongMac
	}
	return msg[:len(msg)-2], nil
}
