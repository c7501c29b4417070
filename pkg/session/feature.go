package session

import "fmt"

// Feature gates an application operation behind a minimum firmware version.
type Feature struct {
	Name            string
	RequiredVersion Version
}

// NewFeature declares a feature that requires at least major.minor.micro.
func NewFeature(name string, major, minor, micro int) Feature {
	return Feature{
		Name:            name,
		RequiredVersion: Version{byte(major), byte(minor), byte(micro)},
	}
}

// SupportedBy reports whether the feature is available on the given
// application version. Development firmware (major version 0) passes every
// gate.
func (f Feature) SupportedBy(v Version) bool {
	return v.Major == 0 || v.Compare(f.RequiredVersion) >= 0
}

// UnsupportedFeatureError is returned by Session.Require when the reported
// application version does not satisfy a feature gate.
type UnsupportedFeatureError struct {
	Feature Feature
	Version Version
}

func (e *UnsupportedFeatureError) Error() string {
	return fmt.Sprintf("session: %s requires firmware %s or later, device reports %s",
		e.Feature.Name, e.Feature.RequiredVersion, e.Version)
}
