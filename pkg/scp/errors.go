package scp

import "errors"

var (
	ErrInvalidKdfLength = errors.New("scp: KDF output length must be 0x40 or 0x80 bits")
	ErrWrongKeySet      = errors.New("scp: card cryptogram mismatch, wrong SCP03 key set")
	ErrWrongMac         = errors.New("scp: response MAC verification failed")
	ErrBadPadding       = errors.New("scp: bad padding in decrypted response")
	ErrReceiptMismatch  = errors.New("scp: SCP11 receipt does not match")
	ErrShortHandshake   = errors.New("scp: handshake response too short")
)
