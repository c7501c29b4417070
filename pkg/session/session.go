package session

// Session is the versioned lifecycle embedded by every concrete application
// protocol. It holds the version the running application reported and an
// optional override that substitutes an artificial version when the device
// reports the development firmware marker (0.0.0). The override is plain
// injected configuration so tests stay isolated from each other.
type Session struct {
	version  Version
	override *Version
}

// New creates a Session for an application reporting the given version.
func New(version Version, opts ...SessionOption) *Session {
	s := &Session{version: version}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type SessionOption func(*Session)

// WithVersionOverride substitutes v for the reported version, but only while
// the device reports development firmware. It has no effect on release
// firmware.
func WithVersionOverride(v Version) SessionOption {
	return func(s *Session) {
		s.override = &v
	}
}

// Version returns the effective application version: the override when set
// and the device reported the development marker, the reported version
// otherwise.
func (s *Session) Version() Version {
	if s.override != nil && s.version.IsZero() {
		return *s.override
	}
	return s.version
}

// Supports reports whether the session's version satisfies the feature gate.
func (s *Session) Supports(f Feature) bool {
	return f.SupportedBy(s.Version())
}

// Require returns an UnsupportedFeatureError unless the feature is supported.
func (s *Session) Require(f Feature) error {
	if !s.Supports(f) {
		return &UnsupportedFeatureError{Feature: f, Version: s.Version()}
	}
	return nil
}
