package netaddr

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
)

// ErrInvalidAddress is returned when a string is neither an IPv4 nor an IPv6 address.
var ErrInvalidAddress = errors.New("netaddr: invalid address")

// Family records how an address was written. It is only used for display.
type Family uint8

const (
	IPv6 Family = iota
	IPv4
)

// Value is a 128-bit address. IPv4 addresses are stored in their
// ::ffff:a.b.c.d mapped form so every comparison works on the same width.
type Value struct {
	hi     uint64
	lo     uint64
	family Family
}

// Parse reads a dotted-decimal IPv4 or colon-separated IPv6 address. The
// text must be the address alone: surrounding whitespace and zones are
// rejected.
func Parse(text string) (Value, error) {
	if text == "" || strings.Contains(text, "%") {
		return Value{}, fmt.Errorf("%w: %q", ErrInvalidAddress, text)
	}

	addr, err := netip.ParseAddr(text)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %q", ErrInvalidAddress, text)
	}

	return FromAddr(addr), nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(text string) Value {
	v, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return v
}

// FromAddr converts a netip.Addr, mapping IPv4 into the IPv6 space.
func FromAddr(addr netip.Addr) Value {
	family := IPv6
	if addr.Is4() {
		family = IPv4
	}

	b := addr.As16()
	var hi, lo uint64
	for i := 0; i < 8; i++ {
		hi = hi<<8 | uint64(b[i])
		lo = lo<<8 | uint64(b[i+8])
	}
	return Value{hi: hi, lo: lo, family: family}
}

// Family reports whether the address was written as IPv4 or IPv6.
func (v Value) Family() Family {
	return v.family
}

// Addr returns the address as a netip.Addr, unmapped when it was written as IPv4.
func (v Value) Addr() netip.Addr {
	var b [16]byte
	for i := 0; i < 8; i++ {
		b[7-i] = byte(v.hi >> (8 * i))
		b[15-i] = byte(v.lo >> (8 * i))
	}
	addr := netip.AddrFrom16(b)
	if v.family == IPv4 {
		return addr.Unmap()
	}
	return addr
}

// IP returns the 16-byte net.IP form for libraries that still take net.IP.
func (v Value) IP() net.IP {
	b := v.Addr().As16()
	return net.IP(b[:])
}

func (v Value) String() string {
	return v.Addr().String()
}

// Equal reports whether both values have the same 128-bit magnitude.
func (v Value) Equal(other Value) bool {
	return v.hi == other.hi && v.lo == other.lo
}

// Compare orders two addresses by magnitude and returns -1, 0 or 1.
func Compare(x, y Value) int {
	switch {
	case x.hi < y.hi:
		return -1
	case x.hi > y.hi:
		return 1
	case x.lo < y.lo:
		return -1
	case x.lo > y.lo:
		return 1
	default:
		return 0
	}
}

// Mask keeps the top bits of the address and clears the rest.
func (v Value) Mask(bits int) Value {
	out := Value{family: v.family}
	switch {
	case bits <= 0:
	case bits >= 128:
		out.hi, out.lo = v.hi, v.lo
	case bits <= 64:
		out.hi = v.hi &^ (^uint64(0) >> bits)
	default:
		out.hi = v.hi
		out.lo = v.lo &^ (^uint64(0) >> (bits - 64))
	}
	return out
}

// Next returns the address one above v, wrapping at the top of the space.
func (v Value) Next() Value {
	out := v
	out.lo++
	if out.lo == 0 {
		out.hi++
	}
	return out
}

// Prev returns the address one below v, wrapping at zero.
func (v Value) Prev() Value {
	out := v
	if out.lo == 0 {
		out.hi--
	}
	out.lo--
	return out
}
