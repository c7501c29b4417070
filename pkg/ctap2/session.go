// Package ctap2 implements the CTAP2 command layer on top of either the
// CTAPHID transport or the smart-card APDU transport, including PIN/UV auth
// token management and the touch/cancellation flow.
package ctap2

import (
	"log/slog"

	"github.com/fxamacker/cbor/v2"

	"github.com/go-ctap/keylink/pkg/ctaphid"
	"github.com/go-ctap/keylink/pkg/ctaptypes"
	"github.com/go-ctap/keylink/pkg/iso7816"
	"github.com/go-ctap/keylink/pkg/options"
	"github.com/go-ctap/keylink/pkg/scp"
	"github.com/go-ctap/keylink/pkg/session"
)

// FidoAID selects the FIDO2/U2F applet on a smart card.
var FidoAID = []byte{0xa0, 0x00, 0x00, 0x06, 0x47, 0x2f, 0x00, 0x01}

// Session drives CTAP2 commands over one transport. It caches the PIN/UV auth
// token obtained through key agreement and drops it when the authenticator
// reports it invalid. A Session serves one logical exchange at a time.
type Session struct {
	logger  *slog.Logger
	encMode cbor.EncMode
	backend backend
	fw      *session.Session

	tokenProtocol  ctaptypes.PinUvAuthProtocol
	pinUvAuthToken []byte
}

// NewSession builds a CTAP2 session over an initialized CTAPHID transport,
// taking the firmware version from the INIT handshake.
func NewSession(transport *ctaphid.Transport, opts ...options.Option) *Session {
	oo := options.NewOptions(opts...)
	return &Session{
		logger:  oo.Logger,
		encMode: oo.EncMode,
		backend: &hidBackend{transport: transport},
		fw:      session.New(transport.Version()),
	}
}

// NewCardSession selects the FIDO applet over a smart-card protocol and
// builds a CTAP2 session on it. With WithScp03Keys or WithScp11bKeys every
// command is additionally wrapped in a secure channel. The applet select
// response does not carry a numeric firmware version, so the session reports
// the development marker unless a version override is supplied.
func NewCardSession(protocol *iso7816.Protocol, sessionOpts []session.SessionOption, opts ...options.Option) (*Session, error) {
	oo := options.NewOptions(opts...)

	selectResp, err := protocol.Select(FidoAID)
	if err != nil {
		return nil, err
	}

	fw, _ := session.ParseVersion(string(selectResp))

	var exchanger iso7816.Exchanger = protocol
	switch {
	case oo.Scp03Keys != nil:
		processor, err := scp.InitScp03(protocol, *oo.Scp03Keys, nil)
		if err != nil {
			return nil, err
		}
		exchanger = processor
	case oo.Scp11Keys != nil:
		processor, err := scp.InitScp11b(protocol, *oo.Scp11Keys)
		if err != nil {
			return nil, err
		}
		exchanger = processor
	}

	return &Session{
		logger:  oo.Logger,
		encMode: oo.EncMode,
		backend: &cardBackend{exchanger: exchanger, closer: protocol.Close},
		fw:      session.New(fw, sessionOpts...),
	}, nil
}

// Version reports the firmware version the session is gated on.
func (s *Session) Version() session.Version {
	return s.fw.Version()
}

// Supports reports whether the firmware version satisfies the feature gate.
func (s *Session) Supports(f session.Feature) bool {
	return s.fw.Supports(f)
}

// Require returns an UnsupportedFeatureError when the feature gate is not
// satisfied.
func (s *Session) Require(f session.Feature) error {
	return s.fw.Require(f)
}

func (s *Session) Close() error {
	return s.backend.close()
}

// sendCBOR marshals the request, transmits it with the command byte prefix
// and checks the response status code. A non-OK code is returned as a
// *CTAPError; codes reporting a stale PIN/UV token additionally drop the
// cached token.
func (s *Session) sendCBOR(cmd ctaptypes.Command, req any, state *session.CommandState) ([]byte, error) {
	payload := []byte{byte(cmd)}
	if req != nil {
		b, err := s.encMode.Marshal(req)
		if err != nil {
			return nil, err
		}
		payload = append(payload, b...)
	}

	resp, err := s.backend.sendCBOR(payload, state)
	if err != nil {
		return nil, err
	}
	if len(resp) == 0 {
		return nil, ErrShortResponse
	}

	if code := ctaptypes.StatusCode(resp[0]); code != ctaptypes.CTAP2_OK {
		if code == ctaptypes.CTAP2_ERR_PIN_AUTH_INVALID || code == ctaptypes.CTAP2_ERR_PUAT_REQUIRED {
			s.invalidateToken()
		}
		return nil, &CTAPError{Command: cmd, StatusCode: code}
	}
	return resp[1:], nil
}

func (s *Session) cacheToken(protocol ctaptypes.PinUvAuthProtocol, token []byte) {
	s.tokenProtocol = protocol
	s.pinUvAuthToken = token
}

func (s *Session) invalidateToken() {
	s.tokenProtocol = 0
	s.pinUvAuthToken = nil
}

// Token returns the cached PIN/UV auth token and its protocol, or nil when no
// valid token is held.
func (s *Session) Token() (ctaptypes.PinUvAuthProtocol, []byte) {
	return s.tokenProtocol, s.pinUvAuthToken
}

// NewTouchState builds a CommandState whose callback fires once when the
// authenticator first signals that it is waiting for user presence. The
// returned state can also be cancelled to abort the command.
func NewTouchState(onAwaitingTouch func()) *session.CommandState {
	state := &session.CommandState{}
	fired := false
	state.KeepaliveHandler = func(status byte) {
		if status == session.StatusUpNeeded && !fired {
			fired = true
			if onAwaitingTouch != nil {
				onAwaitingTouch()
			}
		}
	}
	return state
}
