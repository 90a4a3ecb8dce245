// Package iface defines interface descriptions: the named, versioned
// service contracts that servers register and clients attach to.
package iface

import (
	"fmt"
	"unicode"
)

// MaxNameLength is the longest interface name the broker will accept.
const MaxNameLength = 255

// Description identifies a service interface by name and version.
// Names are printable ASCII. Two descriptions are version-compatible
// iff their names match, their majors match, and the registered minor
// is greater than or equal to the requested minor.
type Description struct {
	Name  string
	Major uint16
	Minor uint16
}

func (d Description) String() string {
	return fmt.Sprintf("%s v%d.%d", d.Name, d.Major, d.Minor)
}

// CompatibleWith reports whether a server registered with this
// description satisfies a client request for `requested`: same name,
// same major, and this description's minor is at least the requested
// minor (minor downgrade from the caller's point of view is allowed).
func (d Description) CompatibleWith(requested Description) bool {
	return d.Name == requested.Name &&
		d.Major == requested.Major &&
		d.Minor >= requested.Minor
}

// ValidateName rejects names that are empty, too long, or contain
// control or high-bit bytes, per the registration algorithmic notes.
func ValidateName(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("interface name is empty")
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("interface name exceeds %d bytes", MaxNameLength)
	}
	for _, r := range name {
		if r > unicode.MaxASCII || unicode.IsControl(r) {
			return fmt.Errorf("interface name contains control or high-bit byte")
		}
	}
	return nil
}

// ValidateVersion rejects the 0.0 version, which registration treats
// as invalid regardless of name.
func ValidateVersion(major, minor uint16) error {
	if major == 0 && minor == 0 {
		return fmt.Errorf("interface version 0.0 is not allowed")
	}
	return nil
}

// Validate runs both name and version checks.
func (d Description) Validate() error {
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	return ValidateVersion(d.Major, d.Minor)
}

// IsForwardableTCPName reports whether the interface name carries the
// "_tcp" suffix that triggers the loopback-pid-to-peer-IP rewrite rule
// when registered or attached over a slave link.
func IsForwardableTCPName(name string) bool {
	return len(name) >= 4 && name[len(name)-4:] == "_tcp"
}
