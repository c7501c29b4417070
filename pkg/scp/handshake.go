package scp

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"

	"github.com/go-ctap/keylink/pkg/iso7816"
)

const (
	insInitializeUpdate     = 0x50
	insExternalAuthenticate = 0x82
	insInternalAuthenticate = 0x88

	// claGp is the GlobalPlatform proprietary class byte.
	claGp = 0x80

	// p1SecurityLevel requests C-DECRYPTION, C-MAC, R-ENCRYPTION and
	// R-MAC for the session.
	p1SecurityLevel = 0x33
)

// SecurityDomainAID selects the GlobalPlatform issuer security domain.
var SecurityDomainAID = []byte{0xa0, 0x00, 0x00, 0x01, 0x51, 0x00, 0x00, 0x00}

// KeyRef identifies a key on the device by version number and id.
type KeyRef struct {
	KVN byte
	KID byte
}

// Scp03KeyParams configures an SCP03 handshake with a static key set.
type Scp03KeyParams struct {
	Ref  KeyRef
	Keys StaticKeys
}

// Scp11KeyParams configures an SCP11b handshake against the device's static
// ECKA public key (usually extracted from its certificate chain).
type Scp11KeyParams struct {
	Ref      KeyRef
	PKSdEcka *ecdh.PublicKey
}

// InitScp03 performs the SCP03 mutual-authentication handshake (INITIALIZE
// UPDATE followed by EXTERNAL AUTHENTICATE) and returns a Processor wrapping
// the protocol. A hostChallenge of nil generates a random one.
func InitScp03(protocol *iso7816.Protocol, params Scp03KeyParams, hostChallenge []byte) (*Processor, error) {
	if hostChallenge == nil {
		hostChallenge = make([]byte, 8)
		if _, err := rand.Read(hostChallenge); err != nil {
			return nil, err
		}
	}

	resp, err := protocol.SendAndReceive(iso7816.Apdu{
		Cla:  claGp,
		Ins:  insInitializeUpdate,
		P1:   params.Ref.KVN,
		Data: hostChallenge,
	})
	if err != nil {
		return nil, err
	}
	// Diversification data (10), key info (3), card challenge (8), card
	// cryptogram (8).
	if len(resp) < 29 {
		return nil, ErrShortHandshake
	}
	cardChallenge := resp[13:21]
	cardCryptogram := resp[21:29]

	context := append(append([]byte(nil), hostChallenge...), cardChallenge...)
	keys, err := params.Keys.Derive(context)
	if err != nil {
		return nil, err
	}

	genCardCryptogram, err := deriveKey(keys.SMac, 0x00, context, 0x40)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare(genCardCryptogram, cardCryptogram) != 1 {
		return nil, ErrWrongKeySet
	}

	hostCryptogram, err := deriveKey(keys.SMac, 0x01, context, 0x40)
	if err != nil {
		return nil, err
	}

	processor := NewProcessor(protocol, NewState(keys, make([]byte, 16)))
	if _, err := processor.sendAndReceive(iso7816.Apdu{
		Cla:  claGp,
		Ins:  insExternalAuthenticate,
		P1:   p1SecurityLevel,
		Data: hostCryptogram,
	}, false); err != nil {
		return nil, err
	}
	return processor, nil
}

// InitScp11b performs the SCP11b key agreement: an ephemeral ECDH exchange
// with the security domain, an X9.63-style SHA-256 KDF over both shared
// secrets and verification of the returned receipt. SCP11b authenticates the
// card only; there is no off-card authentication step.
func InitScp11b(protocol *iso7816.Protocol, params Scp11KeyParams) (*Processor, error) {
	keyUsage := []byte{0x3c} // AUTHENTICATED | C_MAC | C_DECRYPTION | R_MAC | R_ENCRYPTION
	keyType := []byte{0x88}  // AES
	keyLen := []byte{16}     // 128-bit

	ephemeral, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}

	data := encodeTlvList(
		tlv{tag: 0xa6, value: encodeTlvList(
			tlv{tag: 0x90, value: []byte{0x11, 0x00}}, // SCP11b parameters
			tlv{tag: 0x95, value: keyUsage},
			tlv{tag: 0x80, value: keyType},
			tlv{tag: 0x81, value: keyLen},
		)},
		tlv{tag: 0x5f49, value: ephemeral.PublicKey().Bytes()},
	)

	resp, err := protocol.SendAndReceive(iso7816.Apdu{
		Cla:  claGp,
		Ins:  insInternalAuthenticate,
		P1:   params.Ref.KVN,
		P2:   params.Ref.KID,
		Data: data,
	})
	if err != nil {
		return nil, err
	}

	tlvs, err := parseTlvList(resp)
	if err != nil {
		return nil, err
	}
	if len(tlvs) < 2 {
		return nil, ErrShortHandshake
	}
	epkSdEckaTlv := tlvs[0]
	if epkSdEckaTlv.tag != 0x5f49 {
		return nil, ErrShortHandshake
	}
	receipt, err := unpackTlv(0x86, tlvs[1].bytes())
	if err != nil {
		return nil, err
	}

	epkSdEcka, err := ecdh.P256().NewPublicKey(epkSdEckaTlv.value)
	if err != nil {
		return nil, err
	}

	ka1, err := ephemeral.ECDH(epkSdEcka)
	if err != nil {
		return nil, err
	}
	// SCP11b uses the ephemeral key in place of a static off-card key.
	ka2, err := ephemeral.ECDH(params.PKSdEcka)
	if err != nil {
		return nil, err
	}

	keyMaterial := append(append([]byte(nil), ka1...), ka2...)
	sharedInfo := append(append(append([]byte(nil), keyUsage...), keyType...), keyLen...)

	// Five session keys plus the receipt key, 16 bytes each: three SHA-256
	// blocks of counter-mode derivation.
	derived := make([][]byte, 0, 6)
	for counter := uint32(1); counter <= 3; counter++ {
		h := sha256.New()
		h.Write(keyMaterial)
		h.Write(binary.BigEndian.AppendUint32(nil, counter))
		h.Write(sharedInfo)
		digest := h.Sum(nil)
		derived = append(derived, digest[:16], digest[16:])
	}

	keyAgreementData := append(append([]byte(nil), data...), epkSdEckaTlv.bytes()...)
	genReceipt, err := aesCmac(derived[0], keyAgreementData)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare(genReceipt, receipt) != 1 {
		return nil, ErrReceiptMismatch
	}

	keys := SessionKeys{SEnc: derived[1], SMac: derived[2], SRMac: derived[3], DEK: derived[4]}
	return NewProcessor(protocol, NewState(keys, receipt)), nil
}
