package ctap2

import (
	"errors"
	"fmt"

	"github.com/go-ctap/keylink/pkg/ctaptypes"
)

var (
	// ErrUserCancelled reports that the user aborted a touch-requiring
	// command. It is deliberately distinct from a timeout.
	ErrUserCancelled = errors.New("ctap2: cancelled by user")
	// ErrActionTimeout reports that the device gave up waiting for the user.
	ErrActionTimeout = errors.New("ctap2: user action timed out")

	ErrShortResponse = errors.New("ctap2: response without status code")
)

// CTAPError is a non-OK CTAP2 status code returned by the authenticator.
type CTAPError struct {
	Command    ctaptypes.Command
	StatusCode ctaptypes.StatusCode
}

func (e *CTAPError) Error() string {
	return fmt.Sprintf("ctap2: command %#02x failed with status %#02x", byte(e.Command), byte(e.StatusCode))
}

func (e *CTAPError) Unwrap() error {
	switch e.StatusCode {
	case ctaptypes.CTAP2_ERR_KEEPALIVE_CANCEL:
		return ErrUserCancelled
	case ctaptypes.CTAP2_ERR_USER_ACTION_TIMEOUT, ctaptypes.CTAP2_ERR_ACTION_TIMEOUT:
		return ErrActionTimeout
	default:
		return nil
	}
}
