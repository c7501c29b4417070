package pinuv

import (
	"crypto/ecdh"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ecdh2 "github.com/ldclabs/cose/key/ecdh"

	"github.com/go-ctap/keylink/pkg/ctaptypes"
)

func TestEncapsulateSharedSecret(t *testing.T) {
	for _, number := range []ctaptypes.PinUvAuthProtocol{
		ctaptypes.PinUvAuthProtocolOne,
		ctaptypes.PinUvAuthProtocolTwo,
	} {
		platform, err := NewProtocol(number)
		require.NoError(t, err)

		// Authenticator side of the key agreement.
		authnrPrivkey, err := ecdh.P256().GenerateKey(rand.Reader)
		require.NoError(t, err)
		authnrCoseKey, err := ecdh2.KeyFromPublic(authnrPrivkey.Public().(*ecdh.PublicKey))
		require.NoError(t, err)

		platformCoseKey, sharedSecret, err := platform.Encapsulate(authnrCoseKey)
		require.NoError(t, err)
		require.NotNil(t, platformCoseKey)

		platformPubkey, err := ecdh2.KeyToPublic(platformCoseKey)
		require.NoError(t, err)
		z, err := authnrPrivkey.ECDH(platformPubkey)
		require.NoError(t, err)

		authnrSecret, err := platform.KDF(z)
		require.NoError(t, err)
		assert.Equal(t, sharedSecret, authnrSecret)
	}
}

func TestProtocolOneRoundTrip(t *testing.T) {
	p, err := NewProtocol(ctaptypes.PinUvAuthProtocolOne)
	require.NoError(t, err)

	sharedSecret := make([]byte, 32)
	_, err = rand.Read(sharedSecret)
	require.NoError(t, err)

	plaintext := make([]byte, 64)
	copy(plaintext, "0000")

	ciphertext, err := p.Encrypt(sharedSecret, plaintext)
	require.NoError(t, err)
	assert.Len(t, ciphertext, 64)
	assert.NotEqual(t, plaintext, ciphertext)

	decrypted, err := p.Decrypt(sharedSecret, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)

	tag := Authenticate(ctaptypes.PinUvAuthProtocolOne, sharedSecret, ciphertext)
	assert.Len(t, tag, 16)
}

func TestProtocolTwoRoundTrip(t *testing.T) {
	p, err := NewProtocol(ctaptypes.PinUvAuthProtocolTwo)
	require.NoError(t, err)

	z := make([]byte, 32)
	_, err = rand.Read(z)
	require.NoError(t, err)
	sharedSecret, err := p.KDF(z)
	require.NoError(t, err)
	require.Len(t, sharedSecret, 64)

	plaintext := make([]byte, 64)
	copy(plaintext, "0000")

	ciphertext, err := p.Encrypt(sharedSecret, plaintext)
	require.NoError(t, err)
	// Random IV followed by the ciphertext.
	assert.Len(t, ciphertext, 80)

	again, err := p.Encrypt(sharedSecret, plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, ciphertext, again)

	decrypted, err := p.Decrypt(sharedSecret, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)

	tag := Authenticate(ctaptypes.PinUvAuthProtocolTwo, sharedSecret, ciphertext)
	assert.Len(t, tag, 32)
}

func TestInvalidProtocolNumber(t *testing.T) {
	p := &Protocol{Number: 99}

	_, err := p.KDF(make([]byte, 32))
	assert.ErrorIs(t, err, ErrInvalidAuthProtocol)
	_, err = p.Encrypt(make([]byte, 32), make([]byte, 16))
	assert.ErrorIs(t, err, ErrInvalidAuthProtocol)
	_, err = p.Decrypt(make([]byte, 32), make([]byte, 16))
	assert.ErrorIs(t, err, ErrInvalidAuthProtocol)
}
