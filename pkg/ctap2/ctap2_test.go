package ctap2

import (
	"crypto/ecdh"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/fxamacker/cbor/v2"
	ecdh2 "github.com/ldclabs/cose/key/ecdh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-ctap/keylink/pkg/ctaptypes"
	"github.com/go-ctap/keylink/pkg/iso7816"
	"github.com/go-ctap/keylink/pkg/pinuv/protocoltwo"
	"github.com/go-ctap/keylink/pkg/session"
)

// fakeBackend plays the authenticator: it receives command byte plus CBOR and
// answers with status byte plus CBOR.
type fakeBackend struct {
	sent    [][]byte
	handler func(payload []byte) []byte
}

func (b *fakeBackend) sendCBOR(payload []byte, _ *session.CommandState) ([]byte, error) {
	b.sent = append(b.sent, payload)
	return b.handler(payload), nil
}

func (b *fakeBackend) close() error { return nil }

func newTestSession(backend *fakeBackend) *Session {
	encMode, _ := cbor.CTAP2EncOptions().EncMode()
	return &Session{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		encMode: encMode,
		backend: backend,
		fw:      session.New(session.Version{Major: 5, Minor: 4, Micro: 3}),
	}
}

func statusOK(t *testing.T, v any) []byte {
	t.Helper()
	encMode, _ := cbor.CTAP2EncOptions().EncMode()
	b, err := encMode.Marshal(v)
	require.NoError(t, err)
	return append([]byte{byte(ctaptypes.CTAP2_OK)}, b...)
}

func TestGetInfo(t *testing.T) {
	backend := &fakeBackend{handler: func(payload []byte) []byte {
		require.Equal(t, []byte{byte(ctaptypes.AuthenticatorGetInfo)}, payload)
		return statusOK(t, &ctaptypes.AuthenticatorGetInfoResponse{
			Versions: ctaptypes.Versions{ctaptypes.FIDO_2_0, ctaptypes.FIDO_2_1},
			Options:  map[ctaptypes.Option]bool{ctaptypes.OptionClientPIN: true},
			PinUvAuthProtocols: []ctaptypes.PinUvAuthProtocol{
				ctaptypes.PinUvAuthProtocolTwo,
				ctaptypes.PinUvAuthProtocolOne,
			},
		})
	}}
	s := newTestSession(backend)

	info, err := s.GetInfo()
	require.NoError(t, err)
	assert.True(t, info.Versions.Supports(ctaptypes.FIDO_2_1))
	assert.True(t, info.Options[ctaptypes.OptionClientPIN])
	assert.Equal(t, ctaptypes.PinUvAuthProtocolTwo, info.PinUvAuthProtocols[0])
}

func TestCtapErrorSurfacesCancellation(t *testing.T) {
	backend := &fakeBackend{handler: func([]byte) []byte {
		return []byte{byte(ctaptypes.CTAP2_ERR_KEEPALIVE_CANCEL)}
	}}
	s := newTestSession(backend)

	_, err := s.GetInfo()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUserCancelled)
	assert.NotErrorIs(t, err, ErrActionTimeout)

	var ctapErr *CTAPError
	require.ErrorAs(t, err, &ctapErr)
	assert.Equal(t, ctaptypes.CTAP2_ERR_KEEPALIVE_CANCEL, ctapErr.StatusCode)
	assert.Equal(t, ctaptypes.AuthenticatorGetInfo, ctapErr.Command)
}

func TestTokenInvalidation(t *testing.T) {
	status := ctaptypes.CTAP2_OK
	backend := &fakeBackend{handler: func([]byte) []byte {
		return []byte{byte(status)}
	}}
	s := newTestSession(backend)

	for _, code := range []ctaptypes.StatusCode{
		ctaptypes.CTAP2_ERR_PIN_AUTH_INVALID,
		ctaptypes.CTAP2_ERR_PUAT_REQUIRED,
	} {
		s.cacheToken(ctaptypes.PinUvAuthProtocolTwo, []byte("token"))
		status = code
		_, err := s.GetInfo()
		require.Error(t, err)

		number, token := s.Token()
		assert.Nil(t, token)
		assert.Zero(t, number)
	}

	// Unrelated errors leave the token alone.
	s.cacheToken(ctaptypes.PinUvAuthProtocolTwo, []byte("token"))
	status = ctaptypes.CTAP2_ERR_PIN_INVALID
	_, err := s.GetInfo()
	require.Error(t, err)
	_, token := s.Token()
	assert.Equal(t, []byte("token"), token)
}

func TestGetPinTokenRoundTrip(t *testing.T) {
	pin := "123456"
	issuedToken := make([]byte, 32)
	_, err := rand.Read(issuedToken)
	require.NoError(t, err)

	authnrPrivkey, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	authnrCoseKey, err := ecdh2.KeyFromPublic(authnrPrivkey.Public().(*ecdh.PublicKey))
	require.NoError(t, err)

	backend := &fakeBackend{handler: func(payload []byte) []byte {
		require.Equal(t, byte(ctaptypes.AuthenticatorClientPIN), payload[0])

		var req ctaptypes.AuthenticatorClientPINRequest
		require.NoError(t, cbor.Unmarshal(payload[1:], &req))
		require.Equal(t, ctaptypes.ClientPINSubCommandGetPinToken, req.SubCommand)

		platformPubkey, err := ecdh2.KeyToPublic(req.KeyAgreement)
		require.NoError(t, err)
		z, err := authnrPrivkey.ECDH(platformPubkey)
		require.NoError(t, err)
		sharedSecret, err := protocoltwo.KDF(z)
		require.NoError(t, err)

		pinHash, err := protocoltwo.Decrypt(sharedSecret, req.PinHashEnc)
		require.NoError(t, err)
		expected := sha256.Sum256([]byte(pin))
		require.Equal(t, expected[:16], pinHash[:16])

		tokenEnc, err := protocoltwo.Encrypt(sharedSecret, issuedToken)
		require.NoError(t, err)
		return statusOK(t, &ctaptypes.AuthenticatorClientPINResponse{PinUvAuthToken: tokenEnc})
	}}
	s := newTestSession(backend)

	token, err := s.GetPinToken(ctaptypes.PinUvAuthProtocolTwo, authnrCoseKey, pin)
	require.NoError(t, err)
	assert.Equal(t, issuedToken, token)

	number, cached := s.Token()
	assert.Equal(t, ctaptypes.PinUvAuthProtocolTwo, number)
	assert.Equal(t, issuedToken, cached)
}

func TestMakeCredentialUsesCachedToken(t *testing.T) {
	token := make([]byte, 32)
	_, err := rand.Read(token)
	require.NoError(t, err)

	clientData := []byte(`{"type":"webauthn.create"}`)
	authData := make([]byte, 37)
	authData[32] = byte(ctaptypes.AuthDataFlagUserPresent)

	backend := &fakeBackend{handler: func(payload []byte) []byte {
		require.Equal(t, byte(ctaptypes.AuthenticatorMakeCredential), payload[0])

		var req ctaptypes.AuthenticatorMakeCredentialRequest
		require.NoError(t, cbor.Unmarshal(payload[1:], &req))
		require.Equal(t, "example.com", req.RP.ID)
		require.Equal(t, ctaptypes.PinUvAuthProtocolTwo, req.PinUvAuthProtocol)

		// pinUvAuthParam must be HMAC(token, clientDataHash).
		mac := hmac.New(sha256.New, token)
		mac.Write(req.ClientDataHash)
		require.Equal(t, mac.Sum(nil), req.PinUvAuthParam)

		return statusOK(t, &ctaptypes.AuthenticatorMakeCredentialResponse{
			Format:      "packed",
			AuthDataRaw: authData,
		})
	}}
	s := newTestSession(backend)
	s.cacheToken(ctaptypes.PinUvAuthProtocolTwo, token)

	resp, err := s.MakeCredential(
		clientData,
		ctaptypes.PublicKeyCredentialRpEntity{ID: "example.com"},
		ctaptypes.PublicKeyCredentialUserEntity{ID: []byte{1}, Name: "user"},
		[]ctaptypes.PublicKeyCredentialParameters{
			{Type: ctaptypes.PublicKeyCredentialTypePublicKey, Algorithm: -7},
		},
		nil, nil, nil,
	)
	require.NoError(t, err)
	assert.Equal(t, "packed", resp.Format)
	require.NotNil(t, resp.AuthData)
	assert.True(t, resp.AuthData.Flags.UserPresent())
}

func TestGetAssertionIteratesCredentials(t *testing.T) {
	authData := make([]byte, 37)
	authData[32] = byte(ctaptypes.AuthDataFlagUserPresent)

	calls := 0
	backend := &fakeBackend{handler: func(payload []byte) []byte {
		calls++
		switch calls {
		case 1:
			require.Equal(t, byte(ctaptypes.AuthenticatorGetAssertion), payload[0])
			return statusOK(t, &ctaptypes.AuthenticatorGetAssertionResponse{
				Credential: ctaptypes.PublicKeyCredentialDescriptor{
					Type: ctaptypes.PublicKeyCredentialTypePublicKey, ID: []byte{1},
				},
				AuthDataRaw:         authData,
				Signature:           []byte{0xaa},
				NumberOfCredentials: 2,
			})
		default:
			require.Equal(t, []byte{byte(ctaptypes.AuthenticatorGetNextAssertion)}, payload)
			return statusOK(t, &ctaptypes.AuthenticatorGetAssertionResponse{
				Credential: ctaptypes.PublicKeyCredentialDescriptor{
					Type: ctaptypes.PublicKeyCredentialTypePublicKey, ID: []byte{2},
				},
				AuthDataRaw: authData,
				Signature:   []byte{0xbb},
			})
		}
	}}
	s := newTestSession(backend)

	var ids [][]byte
	for resp, err := range s.GetAssertion("example.com", []byte("cd"), nil, nil, nil) {
		require.NoError(t, err)
		ids = append(ids, resp.Credential.ID)
	}
	assert.Equal(t, [][]byte{{1}, {2}}, ids)
	assert.Equal(t, 2, calls)
}

func TestSelectionSwallowsUserCancel(t *testing.T) {
	backend := &fakeBackend{handler: func([]byte) []byte {
		return []byte{byte(ctaptypes.CTAP2_ERR_KEEPALIVE_CANCEL)}
	}}
	s := newTestSession(backend)
	assert.NoError(t, s.Selection(nil))

	backend.handler = func([]byte) []byte {
		return []byte{byte(ctaptypes.CTAP2_ERR_OPERATION_DENIED)}
	}
	assert.Error(t, s.Selection(nil))
}

func TestNewTouchState(t *testing.T) {
	fired := 0
	state := NewTouchState(func() { fired++ })

	state.OnKeepalive(session.StatusProcessing)
	assert.Zero(t, fired)

	state.OnKeepalive(session.StatusUpNeeded)
	state.OnKeepalive(session.StatusUpNeeded)
	assert.Equal(t, 1, fired)

	state.Cancel()
	assert.True(t, state.CancelRequested())
}

type fakeExchanger struct {
	apdus []iso7816.Apdu
	resp  []byte
}

func (f *fakeExchanger) SendAndReceive(command iso7816.Apdu) ([]byte, error) {
	f.apdus = append(f.apdus, command)
	return f.resp, nil
}

func TestCardBackendFraming(t *testing.T) {
	exchanger := &fakeExchanger{resp: []byte{byte(ctaptypes.CTAP2_OK), 0xa0}}
	backend := &cardBackend{exchanger: exchanger, closer: func() error { return nil }}

	resp, err := backend.sendCBOR([]byte{byte(ctaptypes.AuthenticatorGetInfo)}, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xa0}, resp)

	require.Len(t, exchanger.apdus, 1)
	apdu := exchanger.apdus[0]
	assert.EqualValues(t, claNfcCtap, apdu.Cla)
	assert.EqualValues(t, insNfcCtapMsg, apdu.Ins)
	assert.Equal(t, []byte{byte(ctaptypes.AuthenticatorGetInfo)}, apdu.Data)
}

func TestPinConstraints(t *testing.T) {
	_, err := padPin("123")
	assert.Error(t, err)

	padded, err := padPin("123456")
	require.NoError(t, err)
	assert.Len(t, padded, 64)
	assert.Equal(t, []byte("123456"), padded[:6])

	var errInvalid error = &CTAPError{StatusCode: ctaptypes.CTAP2_ERR_PIN_INVALID}
	assert.False(t, errors.Is(errInvalid, ErrUserCancelled))
}
