package ctaphid

import (
	"errors"
	"fmt"
)

var (
	ErrMessageTooLarge = errors.New("ctaphid: message payload too large")
	ErrNonceMismatch   = errors.New("ctaphid: INIT response echoed a different nonce")
	ErrShortPacket     = errors.New("ctaphid: packet shorter than the fixed packet size")

	// ErrUnexpectedContinuation reports a stream starting with a
	// continuation packet instead of an initialization packet.
	ErrUnexpectedContinuation = errors.New("ctaphid: continuation packet before an initialization packet")
)

// WrongChannelError reports a packet carrying a foreign channel id. The
// framing layer cannot recover from this; the transport must be
// re-established.
type WrongChannelError struct {
	Expected ChannelID
	Got      ChannelID
}

func (e *WrongChannelError) Error() string {
	return fmt.Sprintf("ctaphid: wrong channel id, expecting %x, got %x", e.Expected, e.Got)
}

// SequenceError reports a continuation packet out of order.
type SequenceError struct {
	Expected byte
	Got      byte
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("ctaphid: wrong sequence number, expecting %d, got %d", e.Expected, e.Got)
}

// CommandMismatchError reports a response tagged with a different command
// than was sent.
type CommandMismatchError struct {
	Sent Command
	Got  Command
}

func (e *CommandMismatchError) Error() string {
	return fmt.Sprintf("ctaphid: wrong response command, expecting %#02x, got %#02x", byte(e.Sent), byte(e.Got))
}

// TransportError carries the error byte of a CTAPHID_ERROR response.
type TransportError struct {
	Code ErrorCode
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("ctaphid: device reported error %#02x", byte(e.Code))
}
