package iso7816

import (
	"errors"
	"fmt"
)

var (
	ErrShortResponse             = errors.New("iso7816: response shorter than a status word")
	ErrApplicationNotAvailable   = errors.New("iso7816: the application could not be selected")
	ErrUnexpectedChainedResponse = errors.New("iso7816: unexpected response payload on chained block")
)

// ApduError carries the raw status word and whatever payload preceded it, so
// callers can apply their own policy (e.g. interpret remaining PIN attempts).
type ApduError struct {
	SW   uint16
	Data []byte
}

func (e *ApduError) Error() string {
	return fmt.Sprintf("iso7816: status word %04x", e.SW)
}
