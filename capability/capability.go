// Package capability implements the permission namespace: a fixed-width
// 256-bit capability space with pure bitmask operations. Bit meanings are
// immutable once published; new capabilities may only claim unused bits.
package capability

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// adminBit is the reserved admin-override position. A set with this bit
// implies every other capability.
const adminBit = 255

// Published capability bits. Positions are part of the external contract and
// must never be reassigned.
var (
	// Admin is the reserved override capability.
	Admin = Bit(adminBit)

	// Tokenize permits minting a token bound to a document.
	Tokenize = Bit(0)

	// Transfer permits transferring a bound token.
	Transfer = Bit(1)

	// ConfigureResolvers permits resolver configuration on behalf of the
	// owner.
	ConfigureResolvers = Bit(2)

	// Delegate permits authorizing executors on behalf of the owner.
	Delegate = Bit(3)
)

// Set is a 256-bit capability bitmask. The zero value is the empty set. Sets
// are values; all operations are pure and return new sets.
type Set struct {
	bits uint256.Int
}

// Bit returns the set containing only the capability at position n.
// Positions ≥256 wrap; callers are expected to stay within the space.
func Bit(n uint) Set {
	var s Set
	s.bits.Lsh(uint256.NewInt(1), n%256)
	return s
}

// FromHex parses a set from a hex-encoded bitmask.
func FromHex(s string) (Set, error) {
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	v, err := uint256.FromHex(s)
	if err != nil {
		return Set{}, fmt.Errorf("invalid capability set: %w", err)
	}
	return Set{bits: *v}, nil
}

// Compose folds a list of sets into one with bitwise OR.
func Compose(sets ...Set) Set {
	var out Set
	for _, s := range sets {
		out.bits.Or(&out.bits, &s.bits)
	}
	return out
}

// Has reports whether the set satisfies the required capabilities: true iff
// the admin bit is granted, or every required bit is present.
func (s Set) Has(required Set) bool {
	var masked uint256.Int
	masked.And(&s.bits, &Admin.bits)
	if !masked.IsZero() {
		return true
	}

	masked.And(&s.bits, &required.bits)
	return masked.Eq(&required.bits)
}

// Add returns the set with all capabilities of other set.
func (s Set) Add(other Set) Set {
	var out Set
	out.bits.Or(&s.bits, &other.bits)
	return out
}

// Remove returns the set with all capabilities of other cleared.
func (s Set) Remove(other Set) Set {
	var cleared, out Set
	cleared.bits.Not(&other.bits)
	out.bits.And(&s.bits, &cleared.bits)
	return out
}

// IsEmpty reports whether no capability is granted.
func (s Set) IsEmpty() bool {
	return s.bits.IsZero()
}

// Equal compares two sets for equality.
func (s Set) Equal(other Set) bool {
	return s.bits.Eq(&other.bits)
}

// String returns the hex-encoded bitmask.
func (s Set) String() string {
	return s.bits.Hex()
}

// Bytes returns the 32-byte big-endian bitmask.
func (s Set) Bytes() []byte {
	b := s.bits.Bytes32()
	return b[:]
}

// FromBytes parses a set from a big-endian byte slice of up to 32 bytes.
func FromBytes(raw []byte) (Set, error) {
	if len(raw) > 32 {
		return Set{}, fmt.Errorf("invalid capability set: %d bytes", len(raw))
	}
	var s Set
	s.bits.SetBytes(raw)
	return s, nil
}

// MarshalText implements encoding.TextMarshaler as the hex bitmask.
func (s Set) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Set) UnmarshalText(text []byte) error {
	parsed, err := FromHex(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
