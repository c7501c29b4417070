// Package scp implements the GlobalPlatform SCP03/SCP11 secure channel: a
// transparent encrypt-and-MAC decorator around the ISO 7816 transport, with
// session keys negotiated through a key-agreement handshake against the
// device's security domain.
package scp

import (
	"crypto/aes"
	"encoding/binary"

	"github.com/aead/cmac"
)

// SessionKeys hold the per-session AES keys derived during the handshake.
type SessionKeys struct {
	// SEnc encrypts and decrypts command and response payloads.
	SEnc []byte
	// SMac keys the command MAC chain.
	SMac []byte
	// SRMac keys the response MAC chain.
	SRMac []byte
	// DEK encrypts key material in management operations; may be nil.
	DEK []byte
}

// StaticKeys is an SCP03 static key set from which session keys are derived.
type StaticKeys struct {
	Enc []byte
	Mac []byte
	DEK []byte
}

// defaultKey is the GlobalPlatform test key 404142...4F.
var defaultKey = []byte{
	0x40, 0x41, 0x42, 0x43, 0x44, 0x45, 0x46, 0x47,
	0x48, 0x49, 0x4a, 0x4b, 0x4c, 0x4d, 0x4e, 0x4f,
}

// DefaultStaticKeys returns the GlobalPlatform default test key set.
func DefaultStaticKeys() StaticKeys {
	return StaticKeys{Enc: defaultKey, Mac: defaultKey, DEK: defaultKey}
}

// Derive produces session keys from the handshake context (host challenge
// followed by card challenge) per the SCP03 KDF.
func (k StaticKeys) Derive(context []byte) (SessionKeys, error) {
	senc, err := deriveKey(k.Enc, 0x04, context, 0x80)
	if err != nil {
		return SessionKeys{}, err
	}
	smac, err := deriveKey(k.Mac, 0x06, context, 0x80)
	if err != nil {
		return SessionKeys{}, err
	}
	srmac, err := deriveKey(k.Mac, 0x07, context, 0x80)
	if err != nil {
		return SessionKeys{}, err
	}
	return SessionKeys{SEnc: senc, SMac: smac, SRMac: srmac, DEK: k.DEK}, nil
}

// deriveKey is the SP 800-108 counter-mode KDF with AES-CMAC as PRF used
// throughout SCP03. t is the derivation constant, l the output length in
// bits (0x40 or 0x80).
func deriveKey(key []byte, t byte, context []byte, l uint16) ([]byte, error) {
	if l != 0x40 && l != 0x80 {
		return nil, ErrInvalidKdfLength
	}

	input := make([]byte, 0, 16+len(context))
	input = append(input, make([]byte, 11)...)
	input = append(input, t, 0x00)
	input = binary.BigEndian.AppendUint16(input, l)
	input = append(input, 0x01)
	input = append(input, context...)

	digest, err := aesCmac(key, input)
	if err != nil {
		return nil, err
	}
	return digest[:l/8], nil
}

// aesCmac computes a full-width AES-CMAC tag.
func aesCmac(key, message []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cmac.Sum(message, block, block.BlockSize())
}
