package netaddr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidRange is returned for range descriptors that cannot be matched against.
var ErrInvalidRange = errors.New("netaddr: invalid range")

// ipv4PrefixOffset converts an IPv4 prefix length into the mapped 128-bit space.
const ipv4PrefixOffset = 96

// Kind tells which form a Range was built from.
type Kind uint8

const (
	KindCIDR Kind = iota
	KindExplicit
)

// Range is either a CIDR block or an explicit inclusive low/high pair.
type Range struct {
	kind Kind

	// CIDR form. bits is always relative to the 128-bit address.
	base Value
	bits int

	// Explicit form.
	low  Value
	high Value
}

// CIDR builds a subnet range. bits is relative to the 128-bit form, so an
// IPv4 /24 must be passed as 120.
func CIDR(base Value, bits int) (Range, error) {
	if bits < 0 || bits > 128 {
		return Range{}, fmt.Errorf("%w: prefix length %d out of range", ErrInvalidRange, bits)
	}
	return Range{kind: KindCIDR, base: base.Mask(bits), bits: bits}, nil
}

// Explicit builds an inclusive range. low must not be above high.
func Explicit(low, high Value) (Range, error) {
	if Compare(low, high) > 0 {
		return Range{}, fmt.Errorf("%w: low %s is above high %s", ErrInvalidRange, low, high)
	}
	return Range{kind: KindExplicit, low: low, high: high}, nil
}

// ParseCIDR reads "addr/len" or a bare address. IPv4 prefix lengths are
// 0..32 and get shifted into the mapped space; a bare address is a host range.
func ParseCIDR(text string) (Range, error) {
	addrPart, lenPart, hasLen := strings.Cut(text, "/")

	base, err := Parse(addrPart)
	if err != nil {
		return Range{}, fmt.Errorf("%w: %q: %w", ErrInvalidRange, text, err)
	}

	maxBits := 128
	if base.Family() == IPv4 {
		maxBits = 32
	}

	bits := maxBits
	if hasLen {
		if !isPrefixLength(lenPart) {
			return Range{}, fmt.Errorf("%w: %q: bad prefix length", ErrInvalidRange, text)
		}
		bits, err = strconv.Atoi(lenPart)
		if err != nil || bits > maxBits {
			return Range{}, fmt.Errorf("%w: %q: bad prefix length", ErrInvalidRange, text)
		}
	}

	if base.Family() == IPv4 {
		bits += ipv4PrefixOffset
	}
	return CIDR(base, bits)
}

// isPrefixLength accepts plain decimal digits without sign or leading zeros.
func isPrefixLength(s string) bool {
	if s == "" || len(s) > 3 || (len(s) > 1 && s[0] == '0') {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ParsePair reads an explicit [low, high] pair of address strings.
func ParsePair(low, high string) (Range, error) {
	lo, err := Parse(low)
	if err != nil {
		return Range{}, fmt.Errorf("%w: low: %w", ErrInvalidRange, err)
	}
	hi, err := Parse(high)
	if err != nil {
		return Range{}, fmt.Errorf("%w: high: %w", ErrInvalidRange, err)
	}
	return Explicit(lo, hi)
}

// ParseRange reads the configuration form of a range: one string is a CIDR
// or plain address, two strings are an explicit pair.
func ParseRange(parts ...string) (Range, error) {
	switch len(parts) {
	case 1:
		return ParseCIDR(parts[0])
	case 2:
		return ParsePair(parts[0], parts[1])
	default:
		return Range{}, fmt.Errorf("%w: expected 1 or 2 elements, got %d", ErrInvalidRange, len(parts))
	}
}

// Kind reports whether the range is a CIDR block or an explicit pair.
func (r Range) Kind() Kind {
	return r.kind
}

// Bounds returns the lowest and highest addresses covered by the range.
func (r Range) Bounds() (Value, Value) {
	if r.kind == KindExplicit {
		return r.low, r.high
	}
	last := r.base
	switch {
	case r.bits <= 0:
		last.hi, last.lo = ^uint64(0), ^uint64(0)
	case r.bits < 64:
		last.hi |= ^uint64(0) >> r.bits
		last.lo = ^uint64(0)
	case r.bits < 128:
		last.lo |= ^uint64(0) >> (r.bits - 64)
	}
	return r.base, last
}

// Contains reports whether addr falls inside the range, boundaries included.
func (r Range) Contains(addr Value) bool {
	switch r.kind {
	case KindCIDR:
		return addr.Mask(r.bits).Equal(r.base)
	case KindExplicit:
		return Compare(r.low, addr) <= 0 && Compare(addr, r.high) <= 0
	default:
		return false
	}
}

// Matches is the free-function form of Range.Contains.
func Matches(addr Value, r Range) bool {
	return r.Contains(addr)
}

func (r Range) String() string {
	if r.kind == KindExplicit {
		return r.low.String() + "-" + r.high.String()
	}
	if r.base.Family() == IPv4 && r.bits >= ipv4PrefixOffset {
		return fmt.Sprintf("%s/%d", r.base, r.bits-ipv4PrefixOffset)
	}
	return fmt.Sprintf("%s/%d", r.base, r.bits)
}
