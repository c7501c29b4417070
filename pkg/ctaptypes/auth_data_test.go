package ctaptypes

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/ldclabs/cose/iana"
	"github.com/ldclabs/cose/key"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAuthDataMinimal(t *testing.T) {
	data := make([]byte, 37)
	copy(data, bytes.Repeat([]byte{0x11}, 32))
	data[32] = byte(AuthDataFlagUserPresent | AuthDataFlagUserVerified)
	binary.BigEndian.PutUint32(data[33:], 7)

	d, err := ParseAuthData(data)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0x11}, 32), d.RPIDHash)
	assert.True(t, d.Flags.UserPresent())
	assert.True(t, d.Flags.UserVerified())
	assert.False(t, d.Flags.AttestedCredentialDataIncluded())
	assert.EqualValues(t, 7, d.SignCount)
	assert.Nil(t, d.AttestedCredentialData)
}

func TestParseAuthDataWithAttestedCredential(t *testing.T) {
	aaguid := uuid.New()
	credID := []byte{0xde, 0xad, 0xbe, 0xef}

	coseKey := key.Key{
		iana.KeyParameterKty: iana.KeyTypeEC2,
		iana.KeyParameterAlg: iana.AlgorithmES256,
	}
	keyBytes, err := cbor.Marshal(coseKey)
	require.NoError(t, err)

	data := make([]byte, 37)
	data[32] = byte(AuthDataFlagAttestedCredentialDataIncluded)
	data = append(data, aaguid[:]...)
	data = binary.BigEndian.AppendUint16(data, uint16(len(credID)))
	data = append(data, credID...)
	data = append(data, keyBytes...)

	d, err := ParseAuthData(data)
	require.NoError(t, err)
	require.NotNil(t, d.AttestedCredentialData)
	assert.Equal(t, aaguid, d.AttestedCredentialData.AAGUID)
	assert.Equal(t, credID, d.AttestedCredentialData.CredentialID)
	assert.NotNil(t, d.AttestedCredentialData.CredentialPublicKey)
}

func TestParseAuthDataTruncated(t *testing.T) {
	_, err := ParseAuthData(make([]byte, 10))
	assert.Error(t, err)

	data := make([]byte, 37)
	data[32] = byte(AuthDataFlagAttestedCredentialDataIncluded)
	_, err = ParseAuthData(data)
	assert.Error(t, err)
}

func TestVersionsSupports(t *testing.T) {
	vv := Versions{FIDO_2_0, FIDO_2_1_PRE}
	assert.True(t, vv.Supports(FIDO_2_0))
	assert.False(t, vv.Supports(FIDO_2_2))
}
