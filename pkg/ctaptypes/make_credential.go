package ctaptypes

type AuthenticatorMakeCredentialRequest struct {
	ClientDataHash    []byte                          `cbor:"1,keyasint"`
	RP                PublicKeyCredentialRpEntity     `cbor:"2,keyasint"`
	User              PublicKeyCredentialUserEntity   `cbor:"3,keyasint"`
	PubKeyCredParams  []PublicKeyCredentialParameters `cbor:"4,keyasint"`
	ExcludeList       []PublicKeyCredentialDescriptor `cbor:"5,keyasint,omitempty"`
	Options           map[Option]bool                 `cbor:"7,keyasint,omitempty"`
	PinUvAuthParam    []byte                          `cbor:"8,keyasint,omitempty"`
	PinUvAuthProtocol PinUvAuthProtocol               `cbor:"9,keyasint,omitempty"`
}

type AuthenticatorMakeCredentialResponse struct {
	Format               string         `cbor:"1,keyasint"`
	AuthDataRaw          []byte         `cbor:"2,keyasint"`
	AuthData             *AuthData      `cbor:"-"`
	AttestationStatement map[string]any `cbor:"3,keyasint,omitempty"`
	LargeBlobKey         []byte         `cbor:"5,keyasint,omitempty"`
}
