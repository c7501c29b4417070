package scp

import (
	"github.com/go-ctap/keylink/pkg/iso7816"
)

// claSecureMessaging marks an APDU as carrying secure messaging.
const claSecureMessaging = 0x04

// Processor is the secure-channel decorator. It exposes the same exchange
// contract as the plain ISO 7816 protocol; every command is encrypted and
// MAC'd under the session state, every response is verified and decrypted.
// Application sessions constructed with key parameters wrap themselves in a
// Processor and are otherwise unaware of it.
type Processor struct {
	protocol *iso7816.Protocol
	state    *State
}

// NewProcessor wraps a protocol (which must be in extended-APDU mode) with
// established channel state.
func NewProcessor(protocol *iso7816.Protocol, state *State) *Processor {
	return &Processor{protocol: protocol, state: state}
}

// SendAndReceive encrypts and MACs the command, exchanges it, then verifies
// and decrypts the response. A MAC failure returns ErrWrongMac and leaves the
// channel unusable; callers must re-establish, never retry.
func (p *Processor) SendAndReceive(command iso7816.Apdu) ([]byte, error) {
	return p.sendAndReceive(command, true)
}

// sendAndReceive optionally skips payload encryption; the SCP03 EXTERNAL
// AUTHENTICATE command is MAC'd but carries its cryptogram in the clear.
func (p *Processor) sendAndReceive(command iso7816.Apdu, encrypt bool) ([]byte, error) {
	data := command.Data
	if encrypt {
		var err error
		data, err = p.state.Encrypt(data)
		if err != nil {
			return nil, err
		}
	}

	cla := command.Cla | claSecureMessaging

	// The MAC covers the APDU exactly as formatted for the wire, with the
	// tag bytes themselves zeroed out.
	withTag := make([]byte, len(data)+8)
	copy(withTag, data)
	formatted, err := iso7816.EncodeCommand(iso7816.Apdu{
		Cla: cla, Ins: command.Ins, P1: command.P1, P2: command.P2, Data: withTag,
	})
	if err != nil {
		return nil, err
	}
	mac, err := p.state.Mac(formatted[:len(formatted)-8])
	if err != nil {
		return nil, err
	}
	copy(withTag[len(data):], mac)

	resp, err := p.protocol.SendAndReceive(iso7816.Apdu{
		Cla: cla, Ins: command.Ins, P1: command.P1, P2: command.P2, Data: withTag, Le: command.Le,
	})
	if err != nil {
		return nil, err
	}

	if len(resp) > 0 {
		resp, err = p.state.Unmac(resp, iso7816.SWSuccess)
		if err != nil {
			return nil, err
		}
	}
	if len(resp) > 0 {
		resp, err = p.state.Decrypt(resp)
		if err != nil {
			return nil, err
		}
	}
	return resp, nil
}
