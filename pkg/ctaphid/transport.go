// Package ctaphid implements the CTAPHID framing protocol: fragmentation and
// reassembly of logical messages over fixed-size packets, channel
// multiplexing, keepalive forwarding and cooperative cancellation.
package ctaphid

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"io"
	"log/slog"

	"github.com/go-ctap/keylink/pkg/session"
	"github.com/go-ctap/keylink/pkg/transport"
)

// Transport frames logical exchanges over one packet channel. It owns a
// channel id acquired once through the INIT handshake and assumes a single
// outstanding exchange at a time; it performs no internal locking.
type Transport struct {
	channel transport.PacketChannel
	logger  *slog.Logger

	cid             ChannelID
	protocolVersion byte
	version         session.Version
	capabilities    byte
}

type TransportOption func(*Transport)

// WithLogger attaches a logger used for hex dumps of the wire traffic.
func WithLogger(logger *slog.Logger) TransportOption {
	return func(t *Transport) {
		t.logger = logger
	}
}

// NewTransport performs the INIT handshake on the broadcast channel and
// returns a transport bound to the assigned channel id. An INIT response
// echoing a different nonce indicates cross-talk from another client and is
// rejected.
func NewTransport(channel transport.PacketChannel, opts ...TransportOption) (*Transport, error) {
	t := &Transport{
		channel: channel,
		logger:  slog.Default(),
		cid:     BroadcastCID,
	}
	for _, opt := range opts {
		opt(t)
	}

	nonce := make([]byte, 8)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	resp, err := t.SendAndReceive(CTAPHID_INIT, nonce, nil)
	if err != nil {
		return nil, err
	}

	init, err := parseInitResponse(resp, nonce)
	if err != nil {
		return nil, err
	}

	t.cid = init.CID
	t.protocolVersion = init.ProtocolVersion
	t.version = init.Version
	t.capabilities = init.Capabilities
	t.logger.Debug("ctaphid channel established",
		"cid", hex.EncodeToString(t.cid[:]),
		"version", t.version.String(),
	)
	return t, nil
}

func parseInitResponse(data, nonce []byte) (*InitResponse, error) {
	if len(data) < 17 {
		return nil, ErrShortPacket
	}
	if subtle.ConstantTimeCompare(data[:8], nonce) != 1 {
		return nil, ErrNonceMismatch
	}

	version, err := session.VersionFromBytes(data[13:16])
	if err != nil {
		return nil, err
	}

	return &InitResponse{
		Nonce:           data[:8],
		CID:             ChannelID(data[8:12]),
		ProtocolVersion: data[12],
		Version:         version,
		Capabilities:    data[16],
	}, nil
}

// CID returns the channel id assigned by the device.
func (t *Transport) CID() ChannelID {
	return t.cid
}

// Version returns the firmware version reported in the INIT response.
func (t *Transport) Version() session.Version {
	return t.version
}

// Capabilities returns the raw capability byte from the INIT response.
func (t *Transport) Capabilities() byte {
	return t.capabilities
}

// Close closes the underlying packet channel, invalidating every session
// built on it.
func (t *Transport) Close() error {
	return t.channel.Close()
}

// SendAndReceive performs one logical exchange: it fragments the payload,
// transmits it, and reassembles the response.
//
// Before every packet read the CommandState is polled; a pending cancellation
// causes a single CANCEL packet to be transmitted, after which reading
// continues until the device terminates the exchange (typically with a CTAP
// cancellation error carried in the response). Keepalive packets are
// forwarded to the CommandState and are otherwise transparent. A foreign
// channel id, a sequence gap or a mismatched response command is a hard
// protocol error requiring the transport to be re-established.
func (t *Transport) SendAndReceive(cmd Command, payload []byte, state *session.CommandState) ([]byte, error) {
	if state == nil {
		state = &session.CommandState{}
	}

	msg, err := NewMessage(t.cid, cmd, payload)
	if err != nil {
		return nil, err
	}
	if _, err := msg.WriteTo(t.channel); err != nil {
		return nil, err
	}
	t.logger.Debug("ctaphid message sent", "cmd", byte(cmd), "len", len(payload))

	var (
		response    []byte
		expectedLen = -1
		nextSeq     byte
		cancelSent  bool
		buf         = make([]byte, PacketSize)
	)

	for expectedLen < 0 || len(response) < expectedLen {
		if !cancelSent && state.CancelRequested() {
			cancel, err := NewMessage(t.cid, CTAPHID_CANCEL, nil)
			if err != nil {
				return nil, err
			}
			if _, err := cancel.WriteTo(t.channel); err != nil {
				return nil, err
			}
			t.logger.Debug("ctaphid cancel sent")
			cancelSent = true
		}

		if _, err := io.ReadFull(t.channel, buf); err != nil {
			return nil, err
		}

		p, err := decodePacket(buf)
		if err != nil {
			return nil, err
		}

		if p.cid != t.cid {
			return nil, &WrongChannelError{Expected: t.cid, Got: p.cid}
		}

		if expectedLen < 0 {
			if p.continuation {
				return nil, &SequenceError{Expected: 0, Got: p.sequence}
			}
			switch p.command {
			case cmd:
				expectedLen = int(p.length)
				response = make([]byte, 0, expectedLen)
			case CTAPHID_KEEPALIVE:
				// Keepalives carry a single status byte and no
				// sequence number; they are not part of the
				// response.
				state.OnKeepalive(p.data[0])
				continue
			case CTAPHID_ERROR:
				return nil, &TransportError{Code: ErrorCode(p.data[0])}
			default:
				return nil, &CommandMismatchError{Sent: cmd, Got: p.command}
			}
		} else {
			if !p.continuation {
				// A second initialization packet mid-response can
				// only be a keepalive or error status.
				switch p.command {
				case CTAPHID_KEEPALIVE:
					state.OnKeepalive(p.data[0])
					continue
				case CTAPHID_ERROR:
					return nil, &TransportError{Code: ErrorCode(p.data[0])}
				default:
					return nil, &CommandMismatchError{Sent: cmd, Got: p.command}
				}
			}
			if p.sequence != nextSeq {
				return nil, &SequenceError{Expected: nextSeq, Got: p.sequence}
			}
			nextSeq++
		}

		chunk := p.data
		if remaining := expectedLen - len(response); len(chunk) > remaining {
			chunk = chunk[:remaining]
		}
		response = append(response, chunk...)
	}

	t.logger.Debug("ctaphid message received", "cmd", byte(cmd), "len", len(response))
	return response, nil
}

// Ping exchanges an arbitrary payload to test the channel.
func (t *Transport) Ping(data []byte) ([]byte, error) {
	return t.SendAndReceive(CTAPHID_PING, data, nil)
}

// Wink asks the device to identify itself visually.
func (t *Transport) Wink() error {
	_, err := t.SendAndReceive(CTAPHID_WINK, nil, nil)
	return err
}

// Lock takes (or with 0 seconds releases) an exclusive channel lock.
func (t *Transport) Lock(seconds uint8) error {
	_, err := t.SendAndReceive(CTAPHID_LOCK, []byte{seconds}, nil)
	return err
}
