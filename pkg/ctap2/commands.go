package ctap2

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"iter"
	"slices"

	"github.com/fxamacker/cbor/v2"
	"github.com/ldclabs/cose/key"

	"github.com/go-ctap/keylink/pkg/ctaptypes"
	"github.com/go-ctap/keylink/pkg/pinuv"
	"github.com/go-ctap/keylink/pkg/session"
)

func (s *Session) GetInfo() (*ctaptypes.AuthenticatorGetInfoResponse, error) {
	respRaw, err := s.sendCBOR(ctaptypes.AuthenticatorGetInfo, nil, nil)
	if err != nil {
		return nil, err
	}

	var resp *ctaptypes.AuthenticatorGetInfoResponse
	if err := cbor.Unmarshal(respRaw, &resp); err != nil {
		return nil, err
	}

	return resp, nil
}

func (s *Session) GetPINRetries(pinUvAuthProtocol ctaptypes.PinUvAuthProtocol) (uint, bool, error) {
	req := &ctaptypes.AuthenticatorClientPINRequest{
		// While this parameter is unnecessary, some authenticators require it.
		PinUvAuthProtocol: pinUvAuthProtocol,
		SubCommand:        ctaptypes.ClientPINSubCommandGetPINRetries,
	}

	respRaw, err := s.sendCBOR(ctaptypes.AuthenticatorClientPIN, req, nil)
	if err != nil {
		return 0, false, err
	}
	s.logger.Debug("getPINRetries CBOR response", "hex", hex.EncodeToString(respRaw))

	var resp *ctaptypes.AuthenticatorClientPINResponse
	if err := cbor.Unmarshal(respRaw, &resp); err != nil {
		return 0, false, err
	}

	return resp.PinRetries, resp.PowerCycleState, nil
}

func (s *Session) GetUVRetries() (uint, error) {
	req := &ctaptypes.AuthenticatorClientPINRequest{
		SubCommand: ctaptypes.ClientPINSubCommandGetUVRetries,
	}

	respRaw, err := s.sendCBOR(ctaptypes.AuthenticatorClientPIN, req, nil)
	if err != nil {
		return 0, err
	}

	var resp *ctaptypes.AuthenticatorClientPINResponse
	if err := cbor.Unmarshal(respRaw, &resp); err != nil {
		return 0, err
	}

	return resp.UvRetries, nil
}

func (s *Session) GetKeyAgreement(pinUvAuthProtocol ctaptypes.PinUvAuthProtocol) (key.Key, error) {
	req := &ctaptypes.AuthenticatorClientPINRequest{
		PinUvAuthProtocol: pinUvAuthProtocol,
		SubCommand:        ctaptypes.ClientPINSubCommandGetKeyAgreement,
	}

	respRaw, err := s.sendCBOR(ctaptypes.AuthenticatorClientPIN, req, nil)
	if err != nil {
		return nil, fmt.Errorf("keyAgreement request failed: %w", err)
	}
	s.logger.Debug("getKeyAgreement CBOR response", "hex", hex.EncodeToString(respRaw))

	var resp *ctaptypes.AuthenticatorClientPINResponse
	if err := cbor.Unmarshal(respRaw, &resp); err != nil {
		return nil, fmt.Errorf("cannot unmarshal keyAgreement CBOR response: %w", err)
	}

	return resp.KeyAgreement, nil
}

func (s *Session) SetPIN(
	pinUvAuthProtocol ctaptypes.PinUvAuthProtocol,
	keyAgreement key.Key,
	pin string,
) error {
	protocol, err := pinuv.NewProtocol(pinUvAuthProtocol)
	if err != nil {
		return err
	}

	platformCoseKey, sharedSecret, err := protocol.Encapsulate(keyAgreement)
	if err != nil {
		return err
	}

	pinBytes, err := padPin(pin)
	if err != nil {
		return err
	}

	ciphertext, err := protocol.Encrypt(sharedSecret, pinBytes)
	if err != nil {
		return err
	}

	req := &ctaptypes.AuthenticatorClientPINRequest{
		PinUvAuthProtocol: protocol.Number,
		SubCommand:        ctaptypes.ClientPINSubCommandSetPIN,
		KeyAgreement:      platformCoseKey,
		NewPinEnc:         ciphertext,
		PinUvAuthParam: pinuv.Authenticate(
			pinUvAuthProtocol,
			sharedSecret,
			ciphertext,
		),
	}

	_, err = s.sendCBOR(ctaptypes.AuthenticatorClientPIN, req, nil)
	return err
}

func (s *Session) ChangePIN(
	pinUvAuthProtocol ctaptypes.PinUvAuthProtocol,
	keyAgreement key.Key,
	currentPin string,
	newPin string,
) error {
	protocol, err := pinuv.NewProtocol(pinUvAuthProtocol)
	if err != nil {
		return err
	}

	platformCoseKey, sharedSecret, err := protocol.Encapsulate(keyAgreement)
	if err != nil {
		return err
	}

	pinHashEnc, err := protocol.Encrypt(sharedSecret, hashPin(currentPin))
	if err != nil {
		return err
	}

	newPinBytes, err := padPin(newPin)
	if err != nil {
		return err
	}

	newPinEnc, err := protocol.Encrypt(sharedSecret, newPinBytes)
	if err != nil {
		return err
	}

	req := &ctaptypes.AuthenticatorClientPINRequest{
		PinUvAuthProtocol: protocol.Number,
		SubCommand:        ctaptypes.ClientPINSubCommandChangePIN,
		KeyAgreement:      platformCoseKey,
		PinHashEnc:        pinHashEnc,
		NewPinEnc:         newPinEnc,
		PinUvAuthParam: pinuv.Authenticate(
			pinUvAuthProtocol,
			sharedSecret,
			slices.Concat(newPinEnc, pinHashEnc),
		),
	}

	_, err = s.sendCBOR(ctaptypes.AuthenticatorClientPIN, req, nil)
	return err
}

// GetPinToken obtains a PinUvAuthToken without permissions (superseded by the
// WithPermissions variants, kept for pre-2.1 authenticators). The token is
// cached on the session.
func (s *Session) GetPinToken(
	pinUvAuthProtocol ctaptypes.PinUvAuthProtocol,
	keyAgreement key.Key,
	pin string,
) ([]byte, error) {
	protocol, err := pinuv.NewProtocol(pinUvAuthProtocol)
	if err != nil {
		return nil, err
	}

	platformCoseKey, sharedSecret, err := protocol.Encapsulate(keyAgreement)
	if err != nil {
		return nil, err
	}

	pinHashEnc, err := protocol.Encrypt(sharedSecret, hashPin(pin))
	if err != nil {
		return nil, err
	}

	req := &ctaptypes.AuthenticatorClientPINRequest{
		PinUvAuthProtocol: protocol.Number,
		SubCommand:        ctaptypes.ClientPINSubCommandGetPinToken,
		KeyAgreement:      platformCoseKey,
		PinHashEnc:        pinHashEnc,
	}

	return s.requestToken(protocol, sharedSecret, req)
}

// GetPinUvAuthTokenUsingPinWithPermissions obtains a scoped PinUvAuthToken
// using the PIN. The token is cached on the session.
func (s *Session) GetPinUvAuthTokenUsingPinWithPermissions(
	pinUvAuthProtocol ctaptypes.PinUvAuthProtocol,
	keyAgreement key.Key,
	pin string,
	permissions ctaptypes.Permission,
	rpID string,
) ([]byte, error) {
	protocol, err := pinuv.NewProtocol(pinUvAuthProtocol)
	if err != nil {
		return nil, err
	}

	platformCoseKey, sharedSecret, err := protocol.Encapsulate(keyAgreement)
	if err != nil {
		return nil, err
	}

	pinHashEnc, err := protocol.Encrypt(sharedSecret, hashPin(pin))
	if err != nil {
		return nil, err
	}

	req := &ctaptypes.AuthenticatorClientPINRequest{
		PinUvAuthProtocol: protocol.Number,
		SubCommand:        ctaptypes.ClientPINSubCommandGetPinUvAuthTokenUsingPinWithPermissions,
		KeyAgreement:      platformCoseKey,
		PinHashEnc:        pinHashEnc,
		Permissions:       permissions,
		RPID:              rpID,
	}

	return s.requestToken(protocol, sharedSecret, req)
}

// GetPinUvAuthTokenUsingUvWithPermissions obtains a scoped PinUvAuthToken
// using built-in user verification. The token is cached on the session.
func (s *Session) GetPinUvAuthTokenUsingUvWithPermissions(
	pinUvAuthProtocol ctaptypes.PinUvAuthProtocol,
	keyAgreement key.Key,
	permissions ctaptypes.Permission,
	rpID string,
	state *session.CommandState,
) ([]byte, error) {
	protocol, err := pinuv.NewProtocol(pinUvAuthProtocol)
	if err != nil {
		return nil, err
	}

	platformCoseKey, sharedSecret, err := protocol.Encapsulate(keyAgreement)
	if err != nil {
		return nil, err
	}

	req := &ctaptypes.AuthenticatorClientPINRequest{
		PinUvAuthProtocol: protocol.Number,
		SubCommand:        ctaptypes.ClientPINSubCommandGetPinUvAuthTokenUsingUvWithPermissions,
		KeyAgreement:      platformCoseKey,
		Permissions:       permissions,
		RPID:              rpID,
	}

	respRaw, err := s.sendCBOR(ctaptypes.AuthenticatorClientPIN, req, state)
	if err != nil {
		return nil, err
	}

	return s.decryptToken(protocol, sharedSecret, respRaw)
}

func (s *Session) requestToken(
	protocol *pinuv.Protocol,
	sharedSecret []byte,
	req *ctaptypes.AuthenticatorClientPINRequest,
) ([]byte, error) {
	respRaw, err := s.sendCBOR(ctaptypes.AuthenticatorClientPIN, req, nil)
	if err != nil {
		return nil, err
	}
	return s.decryptToken(protocol, sharedSecret, respRaw)
}

func (s *Session) decryptToken(protocol *pinuv.Protocol, sharedSecret, respRaw []byte) ([]byte, error) {
	var resp *ctaptypes.AuthenticatorClientPINResponse
	if err := cbor.Unmarshal(respRaw, &resp); err != nil {
		return nil, err
	}

	pinUvAuthToken, err := protocol.Decrypt(sharedSecret, resp.PinUvAuthToken)
	if err != nil {
		return nil, err
	}

	s.cacheToken(protocol.Number, pinUvAuthToken)
	return pinUvAuthToken, nil
}

func (s *Session) MakeCredential(
	clientData []byte,
	rp ctaptypes.PublicKeyCredentialRpEntity,
	user ctaptypes.PublicKeyCredentialUserEntity,
	pubKeyCredParams []ctaptypes.PublicKeyCredentialParameters,
	excludeList []ctaptypes.PublicKeyCredentialDescriptor,
	opts map[ctaptypes.Option]bool,
	state *session.CommandState,
) (*ctaptypes.AuthenticatorMakeCredentialResponse, error) {
	clientDataHash := sha256.Sum256(clientData)

	req := &ctaptypes.AuthenticatorMakeCredentialRequest{
		ClientDataHash:   clientDataHash[:],
		RP:               rp,
		User:             user,
		PubKeyCredParams: pubKeyCredParams,
		ExcludeList:      excludeList,
		Options:          opts,
	}

	if s.pinUvAuthToken != nil {
		req.PinUvAuthParam = pinuv.Authenticate(s.tokenProtocol, s.pinUvAuthToken, clientDataHash[:])
		req.PinUvAuthProtocol = s.tokenProtocol
	}

	respRaw, err := s.sendCBOR(ctaptypes.AuthenticatorMakeCredential, req, state)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("MakeCredential CBOR response", "hex", hex.EncodeToString(respRaw))

	var resp *ctaptypes.AuthenticatorMakeCredentialResponse
	if err := cbor.Unmarshal(respRaw, &resp); err != nil {
		return nil, err
	}
	resp.AuthData, err = ctaptypes.ParseAuthData(resp.AuthDataRaw)
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// GetAssertion yields the first assertion and, when the authenticator reports
// more matching credentials, each further assertion via getNextAssertion.
func (s *Session) GetAssertion(
	rpID string,
	clientData []byte,
	allowList []ctaptypes.PublicKeyCredentialDescriptor,
	opts map[ctaptypes.Option]bool,
	state *session.CommandState,
) iter.Seq2[*ctaptypes.AuthenticatorGetAssertionResponse, error] {
	return func(yield func(*ctaptypes.AuthenticatorGetAssertionResponse, error) bool) {
		clientDataHash := sha256.Sum256(clientData)

		req := &ctaptypes.AuthenticatorGetAssertionRequest{
			RPID:           rpID,
			ClientDataHash: clientDataHash[:],
			AllowList:      allowList,
			Options:        opts,
		}

		if s.pinUvAuthToken != nil {
			req.PinUvAuthParam = pinuv.Authenticate(s.tokenProtocol, s.pinUvAuthToken, clientDataHash[:])
			req.PinUvAuthProtocol = s.tokenProtocol
		}

		respBegin, err := s.assertionExchange(ctaptypes.AuthenticatorGetAssertion, req, state)
		if err != nil {
			yield(nil, err)
			return
		}
		if !yield(respBegin, nil) {
			return
		}

		for i := uint(1); i < respBegin.NumberOfCredentials; i++ {
			resp, err := s.assertionExchange(ctaptypes.AuthenticatorGetNextAssertion, nil, nil)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(resp, nil) {
				return
			}
		}
	}
}

func (s *Session) assertionExchange(
	cmd ctaptypes.Command,
	req any,
	state *session.CommandState,
) (*ctaptypes.AuthenticatorGetAssertionResponse, error) {
	respRaw, err := s.sendCBOR(cmd, req, state)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("GetAssertion CBOR response", "hex", hex.EncodeToString(respRaw))

	var resp *ctaptypes.AuthenticatorGetAssertionResponse
	if err := cbor.Unmarshal(respRaw, &resp); err != nil {
		return nil, err
	}
	resp.AuthData, err = ctaptypes.ParseAuthData(resp.AuthDataRaw)
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// Selection blocks until the user confirms presence on this authenticator or
// the state is cancelled; cancellation is a normal outcome.
func (s *Session) Selection(state *session.CommandState) error {
	if _, err := s.sendCBOR(ctaptypes.AuthenticatorSelection, nil, state); err != nil &&
		!errors.Is(err, ErrUserCancelled) {
		return err
	}
	return nil
}

// Reset factory-resets the authenticator. Most devices require it shortly
// after power-up and confirm with a touch.
func (s *Session) Reset(state *session.CommandState) error {
	_, err := s.sendCBOR(ctaptypes.AuthenticatorReset, nil, state)
	return err
}

// hashPin derives the left 16 bytes of SHA-256 over the PIN.
func hashPin(pin string) []byte {
	digest := sha256.Sum256([]byte(pin))
	return digest[:16]
}

// padPin zero-pads the UTF-8 PIN to the fixed 64-byte plaintext block.
func padPin(pin string) ([]byte, error) {
	pinBytes := []byte(pin)
	if len(pinBytes) < 4 || len(pinBytes) > 63 {
		return nil, errors.New("ctap2: PIN must be between 4 and 63 bytes")
	}
	return append(pinBytes, make([]byte, 64-len(pinBytes))...), nil
}
