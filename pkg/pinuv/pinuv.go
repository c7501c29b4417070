// Package pinuv implements the CTAP2 PIN/UV auth protocols: an ECDH P-256
// encapsulation against the authenticator's key-agreement key and the
// per-protocol encryption and authentication primitives.
package pinuv

import (
	"crypto/ecdh"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/ldclabs/cose/iana"
	"github.com/ldclabs/cose/key"
	ecdh2 "github.com/ldclabs/cose/key/ecdh"

	"github.com/go-ctap/keylink/pkg/ctaptypes"
	"github.com/go-ctap/keylink/pkg/pinuv/protocolone"
	"github.com/go-ctap/keylink/pkg/pinuv/protocoltwo"
)

var ErrInvalidAuthProtocol = errors.New("pinuv: invalid PIN/UV auth protocol")

type Protocol struct {
	Number             ctaptypes.PinUvAuthProtocol
	platformPrivateKey *ecdh.PrivateKey
	platformCoseKey    key.Key
}

// NewProtocol generates a fresh platform key pair for one key agreement.
func NewProtocol(number ctaptypes.PinUvAuthProtocol) (*Protocol, error) {
	platformPrivkey, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("cannot generate platform P-256 keypair: %w", err)
	}

	platformPubkey, err := ecdh2.KeyFromPublic(platformPrivkey.Public().(*ecdh.PublicKey))
	if err != nil {
		return nil, fmt.Errorf("cannot convert platform public key to COSE_Key: %w", err)
	}
	if err := platformPubkey.Set(iana.KeyParameterAlg, -25); err != nil {
		return nil, fmt.Errorf("cannot set alg parameter for COSE_Key: %w", err)
	}

	// Authenticators are required to reject COSE_Keys carrying anything
	// beyond the key-agreement parameters, so strip the kid.
	delete(platformPubkey, iana.KeyParameterKid)

	return &Protocol{
		Number:             number,
		platformPrivateKey: platformPrivkey,
		platformCoseKey:    platformPubkey,
	}, nil
}

// Encapsulate derives the shared secret against the authenticator's
// key-agreement key and returns the platform COSE_Key to send alongside.
func (p *Protocol) Encapsulate(peerCoseKey key.Key) (key.Key, []byte, error) {
	sharedSecret, err := p.ECDH(peerCoseKey)
	if err != nil {
		return nil, nil, err
	}
	return p.platformCoseKey, sharedSecret, nil
}

func (p *Protocol) ECDH(peerCoseKey key.Key) ([]byte, error) {
	peerPubkey, err := ecdh2.KeyToPublic(peerCoseKey)
	if err != nil {
		return nil, fmt.Errorf("cannot convert peer public key to Go *ecdh.PublicKey: %w", err)
	}

	sharedSecret, err := p.platformPrivateKey.ECDH(peerPubkey)
	if err != nil {
		return nil, fmt.Errorf("cannot derive shared secret: %w", err)
	}

	return p.KDF(sharedSecret)
}

func (p *Protocol) KDF(z []byte) ([]byte, error) {
	switch p.Number {
	case ctaptypes.PinUvAuthProtocolOne:
		return protocolone.KDF(z), nil
	case ctaptypes.PinUvAuthProtocolTwo:
		return protocoltwo.KDF(z)
	default:
		return nil, ErrInvalidAuthProtocol
	}
}

func (p *Protocol) Encrypt(sharedSecret []byte, demPlaintext []byte) ([]byte, error) {
	switch p.Number {
	case ctaptypes.PinUvAuthProtocolOne:
		return protocolone.Encrypt(sharedSecret, demPlaintext)
	case ctaptypes.PinUvAuthProtocolTwo:
		return protocoltwo.Encrypt(sharedSecret, demPlaintext)
	default:
		return nil, ErrInvalidAuthProtocol
	}
}

func (p *Protocol) Decrypt(sharedSecret []byte, demCiphertext []byte) ([]byte, error) {
	switch p.Number {
	case ctaptypes.PinUvAuthProtocolOne:
		return protocolone.Decrypt(sharedSecret, demCiphertext)
	case ctaptypes.PinUvAuthProtocolTwo:
		return protocoltwo.Decrypt(sharedSecret, demCiphertext)
	default:
		return nil, ErrInvalidAuthProtocol
	}
}

// Authenticate computes the pinUvAuthParam tag for a message under the shared
// secret or a pinUvAuthToken.
func Authenticate(number ctaptypes.PinUvAuthProtocol, sharedSecret []byte, message []byte) []byte {
	switch number {
	case ctaptypes.PinUvAuthProtocolOne:
		return protocolone.Authenticate(sharedSecret, message)
	case ctaptypes.PinUvAuthProtocolTwo:
		return protocoltwo.Authenticate(sharedSecret, message)
	default:
		panic("invalid auth protocol")
	}
}
