package ctaphid

import "github.com/go-ctap/keylink/pkg/transport"

// Command represents a CTAPHID command byte.
type Command byte

const (
	CTAPHID_PING      Command = 0x01
	CTAPHID_MSG       Command = 0x03
	CTAPHID_LOCK      Command = 0x04
	CTAPHID_INIT      Command = 0x06
	CTAPHID_WINK      Command = 0x08
	CTAPHID_CBOR      Command = 0x10
	CTAPHID_CANCEL    Command = 0x11
	CTAPHID_KEEPALIVE Command = 0x3b
	CTAPHID_ERROR     Command = 0x3f
)

// ErrorCode is the payload byte of a CTAPHID_ERROR response.
type ErrorCode byte

const (
	ERR_INVALID_CMD     ErrorCode = 0x01
	ERR_INVALID_PAR     ErrorCode = 0x02
	ERR_INVALID_LEN     ErrorCode = 0x03
	ERR_INVALID_SEQ     ErrorCode = 0x04
	ERR_MSG_TIMEOUT     ErrorCode = 0x05
	ERR_CHANNEL_BUSY    ErrorCode = 0x06
	ERR_LOCK_REQUIRED   ErrorCode = 0x0A
	ERR_INVALID_CHANNEL ErrorCode = 0x0B
	ERR_OTHER           ErrorCode = 0x7F
)

// CapabilityFlag is a bit of the INIT response capability byte.
type CapabilityFlag byte

const (
	CAPABILITY_WINK CapabilityFlag = 0x01
	CAPABILITY_CBOR CapabilityFlag = 0x04
	CAPABILITY_NMSG CapabilityFlag = 0x08
)

// INIT_PACKET_BIT tags the command byte of an initialization packet; a clear
// bit marks a continuation packet carrying a 7-bit sequence number.
const INIT_PACKET_BIT byte = 0x80

const (
	// PacketSize is the fixed CTAPHID packet size.
	PacketSize = transport.PacketSize
	// initHeaderLen is CID(4) + command(1) + length(2).
	initHeaderLen = 7
	// contHeaderLen is CID(4) + sequence(1).
	contHeaderLen = 5
	// maxPayloadSize is one initialization packet plus 128 continuation
	// packets: 57 + 128*59.
	maxPayloadSize = (PacketSize - initHeaderLen) + 128*(PacketSize-contHeaderLen)
)
