package ctaptypes

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/ldclabs/cose/key"
)

type AuthDataFlag byte

const (
	AuthDataFlagUserPresent AuthDataFlag = 1 << iota
	_
	AuthDataFlagUserVerified
	_
	_
	_
	AuthDataFlagAttestedCredentialDataIncluded
	AuthDataFlagExtensionDataIncluded
)

func (f AuthDataFlag) UserPresent() bool {
	return f&AuthDataFlagUserPresent != 0
}
func (f AuthDataFlag) UserVerified() bool {
	return f&AuthDataFlagUserVerified != 0
}
func (f AuthDataFlag) AttestedCredentialDataIncluded() bool {
	return f&AuthDataFlagAttestedCredentialDataIncluded != 0
}
func (f AuthDataFlag) ExtensionDataIncluded() bool {
	return f&AuthDataFlagExtensionDataIncluded != 0
}

type AttestedCredentialData struct {
	AAGUID              uuid.UUID
	CredentialID        []byte
	CredentialPublicKey key.Key
}

// AuthData is the parsed authenticator data structure carried in
// makeCredential and getAssertion responses.
type AuthData struct {
	RPIDHash               []byte
	Flags                  AuthDataFlag
	SignCount              uint32
	AttestedCredentialData *AttestedCredentialData
}

// ParseAuthData decodes the fixed header and, when the flag is set, the
// attested credential data with its CBOR-encoded public key.
func ParseAuthData(data []byte) (*AuthData, error) {
	if len(data) < 37 {
		return nil, errors.New("ctaptypes: authenticator data too short")
	}

	d := &AuthData{
		RPIDHash:  data[:32],
		Flags:     AuthDataFlag(data[32]),
		SignCount: binary.BigEndian.Uint32(data[33:37]),
	}

	if d.Flags.AttestedCredentialDataIncluded() {
		offset := 37
		if len(data) < offset+18 {
			return nil, errors.New("ctaptypes: attested credential data too short")
		}
		credData := &AttestedCredentialData{
			AAGUID: uuid.UUID(data[offset : offset+16]),
		}
		offset += 16

		length := binary.BigEndian.Uint16(data[offset : offset+2])
		offset += 2
		if len(data) < offset+int(length) {
			return nil, errors.New("ctaptypes: credential ID exceeds buffer")
		}
		credData.CredentialID = data[offset : offset+int(length)]
		offset += int(length)

		if err := cbor.NewDecoder(bytes.NewReader(data[offset:])).
			Decode(&credData.CredentialPublicKey); err != nil {
			return nil, err
		}

		d.AttestedCredentialData = credData
	}

	return d, nil
}
