// Package device ties the pieces together for USB security keys: HID
// discovery, channel setup and a convenience wrapper around the CTAP2
// session.
package device

import (
	"context"

	"github.com/go-ctap/keylink/pkg/ctap2"
	"github.com/go-ctap/keylink/pkg/ctaphid"
	"github.com/go-ctap/keylink/pkg/ctaptypes"
	"github.com/go-ctap/keylink/pkg/options"
	"github.com/go-ctap/keylink/pkg/session"
	"github.com/go-ctap/keylink/pkg/transport"
)

// fidoUsagePage identifies FIDO authenticators among HID devices.
const (
	fidoUsagePage = 0xf1d0
	fidoUsage     = 0x01
)

// Device is an open FIDO HID device with an established CTAPHID channel and a
// CTAP2 session on top of it.
type Device struct {
	Path string

	channel   transport.PacketChannel
	transport *ctaphid.Transport
	session   *ctap2.Session
	info      *ctaptypes.AuthenticatorGetInfoResponse
}

// New opens the HID device at path, performs the CTAPHID INIT handshake and
// fetches authenticator info.
func New(path string, opts ...options.Option) (*Device, error) {
	oo := options.NewOptions(opts...)
	ctx := context.WithValue(oo.Context, CtxKeyUseNamedPipe, oo.UseNamedPipe)

	raw, err := OpenPath(ctx, path)
	if err != nil {
		return nil, err
	}

	channel := newReportChannel(raw)
	t, err := ctaphid.NewTransport(channel, ctaphid.WithLogger(oo.Logger))
	if err != nil {
		_ = channel.Close()
		return nil, err
	}

	s := ctap2.NewSession(t, opts...)
	info, err := s.GetInfo()
	if err != nil {
		_ = channel.Close()
		return nil, err
	}

	return &Device{
		Path:      path,
		channel:   channel,
		transport: t,
		session:   s,
		info:      info,
	}, nil
}

func (d *Device) Close() error {
	return d.channel.Close()
}

// Info returns the cached authenticatorGetInfo response.
func (d *Device) Info() *ctaptypes.AuthenticatorGetInfoResponse {
	return d.info
}

// Session exposes the CTAP2 command layer.
func (d *Device) Session() *ctap2.Session {
	return d.session
}

// Transport exposes the CTAPHID framing layer.
func (d *Device) Transport() *ctaphid.Transport {
	return d.transport
}

// Ping echoes data off the device and verifies the response matches.
func (d *Device) Ping(ping []byte) error {
	pong, err := d.transport.Ping(ping)
	if err != nil {
		return err
	}
	if string(ping) != string(pong) {
		return ErrPingPongMismatch
	}
	return nil
}

// Wink asks the device to visually signal its presence. Optional; devices
// without the capability report a transport error.
func (d *Device) Wink() error {
	return d.transport.Wink()
}

// Lock takes the channel lock for up to 10 seconds; zero releases it.
func (d *Device) Lock(seconds uint8) error {
	return d.transport.Lock(seconds)
}

// Selection blocks until the user confirms presence on this device or ctx is
// cancelled. Cancellation is a normal outcome reported as nil.
func (d *Device) Selection(ctx context.Context) error {
	state := &session.CommandState{}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			state.Cancel()
		case <-done:
		}
	}()

	return d.session.Selection(state)
}

// GetPinUvAuthToken obtains a PIN/UV auth token with the given permissions,
// falling back to the legacy getPinToken flow on pre-2.1 authenticators. The
// token is cached on the session for subsequent commands.
func (d *Device) GetPinUvAuthToken(pin string, permissions ctaptypes.Permission, rpID string) ([]byte, error) {
	if len(d.info.PinUvAuthProtocols) == 0 {
		return nil, ErrNotSupported
	}
	number := d.info.PinUvAuthProtocols[0]

	keyAgreement, err := d.session.GetKeyAgreement(number)
	if err != nil {
		return nil, err
	}

	if d.info.Options[ctaptypes.OptionPinUvAuthToken] {
		return d.session.GetPinUvAuthTokenUsingPinWithPermissions(number, keyAgreement, pin, permissions, rpID)
	}
	return d.session.GetPinToken(number, keyAgreement, pin)
}
