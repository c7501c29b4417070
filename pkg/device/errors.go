package device

import "errors"

var (
	ErrPingPongMismatch       = errors.New("device: ping/pong mismatch")
	ErrPinUvAuthTokenRequired = errors.New("device: pinUvAuthToken required")
	ErrNotSupported           = errors.New("device: not supported")
	ErrNoDevices              = errors.New("device: no supported devices found")
)
