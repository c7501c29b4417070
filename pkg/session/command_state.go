package session

import "sync"

// Keepalive status bytes sent by the device while an operation is pending.
const (
	StatusProcessing byte = 0x01
	StatusUpNeeded   byte = 0x02
)

// CommandState provides control over one ongoing device operation. The
// transport polls CancelRequested before every packet read and forwards each
// keepalive status byte through OnKeepalive, so an external layer (e.g. a UI
// showing a touch prompt) can observe progress and abort from another
// goroutine while the exchange itself stays a plain synchronous call.
type CommandState struct {
	mu        sync.Mutex
	cancelled bool

	// KeepaliveHandler, when set, receives every keepalive status byte.
	KeepaliveHandler func(status byte)
}

// Cancel requests cooperative cancellation of the ongoing command. The
// transport sends a single CANCEL packet and the call completes with either
// the device's response or a cancellation error.
func (s *CommandState) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = true
}

// CancelRequested reports whether Cancel has been called.
func (s *CommandState) CancelRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// OnKeepalive forwards a keepalive status byte to the handler, if any.
func (s *CommandState) OnKeepalive(status byte) {
	if s.KeepaliveHandler != nil {
		s.KeepaliveHandler(status)
	}
}
