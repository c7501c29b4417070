// Package session provides the lifecycle shared by every device application:
// a reported firmware version, feature gating against it, and the command
// state object used to drive keepalive and cancellation of long-running
// operations.
package session

import (
	"fmt"
	"regexp"
	"strconv"
)

var versionStringPattern = regexp.MustCompile(`\b(\d{1,3})\.(\d{1,3})\.(\d{1,3})\b`)

// Version is the 3-part version number reported by the firmware and its
// applications. The zero value (0.0.0) marks development firmware, which
// passes every feature gate.
type Version struct {
	Major byte
	Minor byte
	Micro byte
}

// NewVersion creates a Version, validating that each component fits the
// supported range (0-127).
func NewVersion(major, minor, micro int) (Version, error) {
	for _, c := range []int{major, minor, micro} {
		if c < 0 || c > 127 {
			return Version{}, fmt.Errorf("session: version component %d out of supported range (0-127)", c)
		}
	}
	return Version{Major: byte(major), Minor: byte(minor), Micro: byte(micro)}, nil
}

// VersionFromBytes parses the 3-byte wire encoding used by the CTAPHID INIT
// response and the management application.
func VersionFromBytes(b []byte) (Version, error) {
	if len(b) < 3 {
		return Version{}, fmt.Errorf("session: version encoding must contain 3 bytes, got %d", len(b))
	}
	return Version{Major: b[0], Minor: b[1], Micro: b[2]}, nil
}

// ParseVersion extracts a version from a string such as
// "Firmware version 5.2.1".
func ParseVersion(s string) (Version, error) {
	m := versionStringPattern.FindStringSubmatch(s)
	if m == nil {
		return Version{}, fmt.Errorf("session: no version in %q", s)
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	micro, _ := strconv.Atoi(m[3])
	return NewVersion(major, minor, micro)
}

// Bytes returns the 3-byte wire encoding.
func (v Version) Bytes() []byte {
	return []byte{v.Major, v.Minor, v.Micro}
}

// Compare orders versions lexicographically by (major, minor, micro),
// returning -1, 0 or 1.
func (v Version) Compare(other Version) int {
	a := int(v.Major)<<16 | int(v.Minor)<<8 | int(v.Micro)
	b := int(other.Major)<<16 | int(other.Minor)<<8 | int(other.Micro)
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// IsAtLeast reports whether v >= major.minor.micro.
func (v Version) IsAtLeast(major, minor, micro int) bool {
	return v.Compare(Version{byte(major), byte(minor), byte(micro)}) >= 0
}

// IsLessThan reports whether v < major.minor.micro.
func (v Version) IsLessThan(major, minor, micro int) bool {
	return v.Compare(Version{byte(major), byte(minor), byte(micro)}) < 0
}

// IsZero reports whether v is the development firmware marker 0.0.0.
func (v Version) IsZero() bool {
	return v == Version{}
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Micro)
}
