package ctaptypes

import "github.com/ldclabs/cose/key"

type PublicKeyCredentialType string

const PublicKeyCredentialTypePublicKey PublicKeyCredentialType = "public-key"

// PublicKeyCredentialRpEntity supplies additional Relying Party attributes
// when creating a new credential.
type PublicKeyCredentialRpEntity struct {
	ID   string `cbor:"id"`
	Name string `cbor:"name,omitempty"`
}

// PublicKeyCredentialUserEntity supplies additional user account attributes
// when creating a new credential.
type PublicKeyCredentialUserEntity struct {
	ID          []byte `cbor:"id"`
	DisplayName string `cbor:"displayName,omitempty"`
	Name        string `cbor:"name,omitempty"`
}

// PublicKeyCredentialDescriptor identifies a specific public key credential.
type PublicKeyCredentialDescriptor struct {
	Type       PublicKeyCredentialType `cbor:"type"`
	ID         []byte                  `cbor:"id"`
	Transports []string                `cbor:"transports,omitempty"`
}

// PublicKeyCredentialParameters supplies additional parameters when creating
// a new credential.
type PublicKeyCredentialParameters struct {
	Type      PublicKeyCredentialType `cbor:"type"`
	Algorithm key.Alg                 `cbor:"alg"`
}
