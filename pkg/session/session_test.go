package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCompare(t *testing.T) {
	tests := []struct {
		a, b     Version
		expected int
	}{
		{Version{5, 2, 1}, Version{5, 2, 1}, 0},
		{Version{5, 2, 0}, Version{5, 2, 1}, -1},
		{Version{5, 3, 0}, Version{5, 2, 9}, 1},
		{Version{4, 9, 9}, Version{5, 0, 0}, -1},
		{Version{0, 0, 0}, Version{0, 0, 1}, -1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.a.Compare(tt.b), "%s vs %s", tt.a, tt.b)
	}

	assert.True(t, Version{5, 2, 1}.IsAtLeast(5, 2, 1))
	assert.False(t, Version{5, 2, 1}.IsAtLeast(5, 2, 2))
	assert.True(t, Version{5, 2, 1}.IsLessThan(5, 3, 0))
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("Firmware version 5.2.1")
	require.NoError(t, err)
	assert.Equal(t, Version{5, 2, 1}, v)

	_, err = ParseVersion("no version here")
	assert.Error(t, err)
}

func TestVersionFromBytes(t *testing.T) {
	v, err := VersionFromBytes([]byte{5, 4, 3})
	require.NoError(t, err)
	assert.Equal(t, Version{5, 4, 3}, v)
	assert.Equal(t, []byte{5, 4, 3}, v.Bytes())

	_, err = VersionFromBytes([]byte{5, 4})
	assert.Error(t, err)
}

func TestNewVersionRange(t *testing.T) {
	_, err := NewVersion(128, 0, 0)
	assert.Error(t, err)

	_, err = NewVersion(127, 127, 127)
	assert.NoError(t, err)
}

func TestFeatureGating(t *testing.T) {
	feature := NewFeature("PIN/UV auth protocol two", 5, 3, 0)

	assert.False(t, feature.SupportedBy(Version{5, 2, 9}))
	assert.True(t, feature.SupportedBy(Version{5, 3, 0}))
	assert.True(t, feature.SupportedBy(Version{5, 4, 0}))

	// Development firmware passes every gate.
	assert.True(t, feature.SupportedBy(Version{0, 1, 0}))
}

func TestSessionRequire(t *testing.T) {
	feature := NewFeature("credBlob", 5, 5, 0)

	s := New(Version{5, 4, 3})
	assert.False(t, s.Supports(feature))

	err := s.Require(feature)
	require.Error(t, err)

	var unsupported *UnsupportedFeatureError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "credBlob", unsupported.Feature.Name)
	assert.Equal(t, Version{5, 4, 3}, unsupported.Version)

	assert.NoError(t, New(Version{5, 5, 0}).Require(feature))
}

func TestVersionOverride(t *testing.T) {
	feature := NewFeature("largeBlobs", 5, 5, 0)

	// Override substitutes the version on development firmware only.
	dev := New(Version{0, 0, 0}, WithVersionOverride(Version{5, 4, 0}))
	assert.Equal(t, Version{5, 4, 0}, dev.Version())
	assert.False(t, dev.Supports(feature))

	release := New(Version{5, 6, 0}, WithVersionOverride(Version{5, 4, 0}))
	assert.Equal(t, Version{5, 6, 0}, release.Version())
	assert.True(t, release.Supports(feature))
}

func TestCommandState(t *testing.T) {
	var statuses []byte
	state := &CommandState{
		KeepaliveHandler: func(status byte) {
			statuses = append(statuses, status)
		},
	}

	assert.False(t, state.CancelRequested())
	state.Cancel()
	assert.True(t, state.CancelRequested())

	state.OnKeepalive(StatusProcessing)
	state.OnKeepalive(StatusUpNeeded)
	assert.Equal(t, []byte{StatusProcessing, StatusUpNeeded}, statuses)

	// A nil handler must not panic.
	(&CommandState{}).OnKeepalive(StatusProcessing)
}
