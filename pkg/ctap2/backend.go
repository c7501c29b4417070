package ctap2

import (
	"github.com/go-ctap/keylink/pkg/ctaphid"
	"github.com/go-ctap/keylink/pkg/iso7816"
	"github.com/go-ctap/keylink/pkg/session"
)

// NFCCTAP_MSG carries one CTAP2 request in an APDU when CTAP2 is exposed over
// smart card.
const (
	insNfcCtapMsg = 0x10
	claNfcCtap    = 0x80
)

// backend hides whether CTAP2 rides on CTAPHID framing or on APDUs; it
// transmits one command byte plus CBOR payload and returns status byte plus
// CBOR response.
type backend interface {
	sendCBOR(payload []byte, state *session.CommandState) ([]byte, error)
	close() error
}

type hidBackend struct {
	transport *ctaphid.Transport
}

func (b *hidBackend) sendCBOR(payload []byte, state *session.CommandState) ([]byte, error) {
	return b.transport.SendAndReceive(ctaphid.CTAPHID_CBOR, payload, state)
}

func (b *hidBackend) close() error {
	return b.transport.Close()
}

type cardBackend struct {
	exchanger iso7816.Exchanger
	closer    func() error
}

// Keepalives do not exist on the card transport; the state's cancellation
// flag cannot interrupt an APDU exchange already in flight.
func (b *cardBackend) sendCBOR(payload []byte, _ *session.CommandState) ([]byte, error) {
	return b.exchanger.SendAndReceive(iso7816.Apdu{
		Cla:  claNfcCtap,
		Ins:  insNfcCtapMsg,
		Data: payload,
	})
}

func (b *cardBackend) close() error {
	return b.closer()
}
