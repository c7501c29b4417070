// Package transport defines the raw channel contracts the protocol layers
// are built on. A channel has exactly one owner; closing it invalidates
// every session layered on top of it.
package transport

import "io"

// PacketSize is the fixed HID report payload size used by CTAPHID.
const PacketSize = 64

// PacketChannel is a duplex pipe exchanging fixed-size packets, e.g. a HID
// device. Read and Write transfer exactly one packet per call.
type PacketChannel interface {
	io.ReadWriteCloser
}

// Card is a duplex pipe exchanging ISO 7816 APDUs with a smart-card style
// device. Transmit sends one command APDU and blocks until the raw response
// (payload plus trailing status word) is available.
type Card interface {
	Transmit(command []byte) ([]byte, error)
	Close() error
}
