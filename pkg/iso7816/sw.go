package iso7816

// Status words defined by ISO 7816-4 and the device applications.
const (
	SWSuccess             uint16 = 0x9000
	SWFileNotFound        uint16 = 0x6a82
	SWConditionsNotMet    uint16 = 0x6985
	SWAuthMethodBlocked   uint16 = 0x6983
	SWSecurityCondition   uint16 = 0x6982
	SWWrongData           uint16 = 0x6a80
	SWIncorrectParameters uint16 = 0x6b00
	SWInsNotSupported     uint16 = 0x6d00

	// SW1MoreData in the high status byte signals that SW2 more response
	// bytes are waiting to be fetched with a follow-up request.
	SW1MoreData byte = 0x61
)

// Response is a raw APDU response split into payload and trailing status
// word.
type Response struct {
	Data []byte
	SW   uint16
}

// ParseResponse splits raw card output into payload and status word.
func ParseResponse(raw []byte) (Response, error) {
	if len(raw) < 2 {
		return Response{}, ErrShortResponse
	}
	return Response{
		Data: raw[:len(raw)-2],
		SW:   uint16(raw[len(raw)-2])<<8 | uint16(raw[len(raw)-1]),
	}, nil
}

// SW1 returns the high byte of the status word.
func (r Response) SW1() byte {
	return byte(r.SW >> 8)
}

// SW2 returns the low byte of the status word.
func (r Response) SW2() byte {
	return byte(r.SW)
}
