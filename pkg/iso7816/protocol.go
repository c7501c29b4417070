package iso7816

import (
	"bytes"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/lo"

	"github.com/go-ctap/keylink/pkg/session"
	"github.com/go-ctap/keylink/pkg/transport"
)

const (
	insSelect        = 0xa4
	p1Select         = 0x04
	p2Select         = 0x00
	insSendRemaining = 0xc0
)

// Exchanger is the logical exchange contract shared by the plain protocol and
// the secure-channel processor wrapped around it.
type Exchanger interface {
	SendAndReceive(command Apdu) ([]byte, error)
}

// Protocol converts arbitrarily large logical command/response pairs into one
// or more APDU exchanges over a transport.Card. It performs no retries; any
// I/O failure aborts the exchange and is fatal to the card connection.
//
// A Protocol must not be used concurrently; one logical exchange may be
// outstanding at a time.
type Protocol struct {
	card   transport.Card
	logger *slog.Logger

	insSendRemaining byte
	extended         bool

	// Firmware 4.2.0-4.2.6 over USB can time out the touch prompt right
	// after a long response. When enabled, a dummy APDU is sent first to
	// reset the timer.
	touchWorkaround  bool
	lastLongResponse time.Time
}

type ProtocolOption func(*Protocol)

// WithLogger attaches a logger used for hex dumps of the wire traffic.
func WithLogger(logger *slog.Logger) ProtocolOption {
	return func(p *Protocol) {
		p.logger = logger
	}
}

// WithInsSendRemaining overrides the follow-up instruction byte used to drain
// 61xx responses. Defaults to 0xC0.
func WithInsSendRemaining(ins byte) ProtocolOption {
	return func(p *Protocol) {
		p.insSendRemaining = ins
	}
}

// WithExtendedApdus sends oversized payloads as single extended-length APDUs
// instead of a short-APDU command chain. Required when a secure channel is
// layered on top, so that MAC input matches the transmitted bytes.
func WithExtendedApdus() ProtocolOption {
	return func(p *Protocol) {
		p.extended = true
	}
}

// NewProtocol creates a chaining engine over an open card channel.
func NewProtocol(card transport.Card, opts ...ProtocolOption) *Protocol {
	p := &Protocol{
		card:             card,
		logger:           slog.Default(),
		insSendRemaining: insSendRemaining,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Close closes the underlying card channel, invalidating every session built
// on it.
func (p *Protocol) Close() error {
	return p.card.Close()
}

// EnableTouchWorkaround turns on the dummy-APDU mitigation for the affected
// firmware range.
func (p *Protocol) EnableTouchWorkaround(fw session.Version) {
	p.touchWorkaround = fw.IsAtLeast(4, 2, 0) && fw.IsLessThan(4, 2, 7)
}

// Select sends a SELECT APDU for the given application identifier and returns
// the application's select response.
func (p *Protocol) Select(aid []byte) ([]byte, error) {
	resp, err := p.SendAndReceive(Apdu{Ins: insSelect, P1: p1Select, P2: p2Select, Data: aid})
	if err != nil {
		var apduErr *ApduError
		if errors.As(err, &apduErr) && apduErr.SW == SWFileNotFound {
			return nil, ErrApplicationNotAvailable
		}
		return nil, err
	}
	return resp, nil
}

// SendAndReceive performs one logical exchange. Payloads longer than one
// short APDU are sent as a chain with the continuation class bit set on every
// block but the last. A 61xx status word on the response is drained with
// follow-up requests asking for exactly the advertised byte count, until the
// terminal success status. Any other status word is returned as an ApduError
// carrying the raw SW and the payload collected so far.
func (p *Protocol) SendAndReceive(command Apdu) ([]byte, error) {
	if p.touchWorkaround && !p.lastLongResponse.IsZero() && time.Since(p.lastLongResponse) < 2*time.Second {
		// Dummy APDU; the error response is expected and discarded.
		_, _ = p.card.Transmit(make([]byte, 5))
		p.lastLongResponse = time.Time{}
	}

	resp, err := p.transmitChained(command)
	if err != nil {
		return nil, err
	}

	// Drain "more data available" responses.
	buf := bytes.NewBuffer(nil)
	for resp.SW1() == SW1MoreData {
		buf.Write(resp.Data)

		follow, err := encodeShort(0x00, Apdu{Ins: p.insSendRemaining, Le: int(resp.SW2())}, nil)
		if err != nil {
			return nil, err
		}
		resp, err = p.transmit(follow)
		if err != nil {
			return nil, err
		}
	}

	if resp.SW != SWSuccess {
		return nil, &ApduError{SW: resp.SW, Data: buf.Bytes()}
	}
	buf.Write(resp.Data)

	if p.touchWorkaround && buf.Len() > 54 {
		p.lastLongResponse = time.Now()
	} else {
		p.lastLongResponse = time.Time{}
	}
	return buf.Bytes(), nil
}

// transmitChained splits an oversized command payload into short APDU blocks,
// sending all but the last with the chaining class bit. Intermediate
// responses must report success; their payloads are discarded.
func (p *Protocol) transmitChained(command Apdu) (Response, error) {
	if p.extended {
		raw, err := encodeExtended(command)
		if err != nil {
			return Response{}, err
		}
		return p.transmit(raw)
	}

	data := command.Data
	if len(data) > shortApduMaxChunk {
		chunks := lo.Chunk(data, shortApduMaxChunk)
		for _, chunk := range chunks[:len(chunks)-1] {
			block, err := encodeShort(command.Cla|claChaining, command, chunk)
			if err != nil {
				return Response{}, err
			}
			resp, err := p.transmit(block)
			if err != nil {
				return Response{}, err
			}
			if resp.SW != SWSuccess {
				return Response{}, &ApduError{SW: resp.SW, Data: resp.Data}
			}
		}
		data = chunks[len(chunks)-1]
	}

	final, err := encodeShort(command.Cla, command, data)
	if err != nil {
		return Response{}, err
	}
	return p.transmit(final)
}

func (p *Protocol) transmit(raw []byte) (Response, error) {
	p.logger.Debug("apdu sent", "hex", hex.EncodeToString(raw))
	out, err := p.card.Transmit(raw)
	if err != nil {
		return Response{}, err
	}
	p.logger.Debug("apdu received", "hex", hex.EncodeToString(out))
	return ParseResponse(out)
}
