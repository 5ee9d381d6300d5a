package domain

import (
	"fmt"
	"net/netip"
	"strings"
)

// Address is a parsed network address: either IPv4 or IPv6.
// A nil Address means the server published no usable address.
type Address interface {
	// String returns the canonical textual form.
	String() string
	// Addr returns the underlying netip value.
	Addr() netip.Addr
	isAddress()
}

// IPv4 is the IPv4 variant of Address.
type IPv4 struct{ addr netip.Addr }

// IPv6 is the IPv6 variant of Address.
type IPv6 struct{ addr netip.Addr }

func (a IPv4) String() string { return a.addr.String() }
func (a IPv4) Addr() netip.Addr { return a.addr }
func (IPv4) isAddress() {}
func (a IPv6) String() string { return a.addr.String() }
func (a IPv6) Addr() netip.Addr { return a.addr }
func (IPv6) isAddress() {}

// ParseAddress parses s as an IPv4 or IPv6 address.
// IPv4-mapped IPv6 addresses are unmapped to the IPv4 variant.
func ParseAddress(s string) (Address, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", s, err)
	}
	addr = addr.Unmap()
	if addr.Is4() {
		return IPv4{addr: addr}, nil
	}
	return IPv6{addr: addr}, nil
}

// ParseAddressOrNil is ParseAddress with unparsable input mapped to nil.
func ParseAddressOrNil(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		return nil
	}
	return a
}

// AddressEqual compares two addresses by canonical form. Two nil addresses
// are equal.
func AddressEqual(a, b Address) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.String() == b.String()
}

// AddressString returns the canonical form of a, or "" for nil.
func AddressString(a Address) string {
	if a == nil {
		return ""
	}
	return a.String()
}
