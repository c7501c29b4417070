package ctaphid

import "github.com/go-ctap/keylink/pkg/session"

// Message is a logical request or response as a sequence of packets.
type Message []*packet

// packet is one fixed-size block on the wire.
type packet struct {
	cid          ChannelID
	command      Command
	sequence     byte
	length       uint16
	data         []byte
	continuation bool
}

// ChannelID identifies one logical client on a shared HID endpoint.
type ChannelID [4]byte

// BroadcastCID is the channel id used for the INIT handshake before a channel
// has been assigned.
var BroadcastCID = ChannelID{0xff, 0xff, 0xff, 0xff}

// InitResponse is the parsed CTAPHID_INIT response.
type InitResponse struct {
	Nonce           []byte
	CID             ChannelID
	ProtocolVersion byte
	Version         session.Version
	Capabilities    byte
}

func (r *InitResponse) ImplementsWink() bool {
	return r.Capabilities&byte(CAPABILITY_WINK) != 0
}

func (r *InitResponse) ImplementsCBOR() bool {
	return r.Capabilities&byte(CAPABILITY_CBOR) != 0
}

func (r *InitResponse) NotImplementsMSG() bool {
	return r.Capabilities&byte(CAPABILITY_NMSG) != 0
}
