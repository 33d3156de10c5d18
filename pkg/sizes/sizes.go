// Package sizes parses human-readable disk size tokens such as "128G".
package sizes

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// ErrInvalidFormat is returned when a size token is not <positive integer><K|M|G|T>.
var ErrInvalidFormat = errors.New("invalid size format")

var multipliers = map[byte]uint64{
	'K': 1 << 10,
	'M': 1 << 20,
	'G': 1 << 30,
	'T': 1 << 40,
}

// Spec is a parsed size token: a positive magnitude and a unit letter.
// The zero value is not a valid spec; obtain one through Parse.
type Spec struct {
	Magnitude uint64
	Unit      byte // one of K, M, G, T (normalized to upper case)
}

// Parse validates and normalizes a size token. The unit letter is
// case-insensitive. There is no fallback value on failure; callers must
// treat the error as fatal.
func Parse(text string) (Spec, error) {
	if len(text) < 2 {
		return Spec{}, fmt.Errorf("%w: %q (expected <number><K|M|G|T>)", ErrInvalidFormat, text)
	}

	unit := text[len(text)-1]
	if unit >= 'a' && unit <= 'z' {
		unit -= 'a' - 'A'
	}
	mult, ok := multipliers[unit]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %q (unit must be one of K, M, G, T)", ErrInvalidFormat, text)
	}

	magnitude, err := strconv.ParseUint(text[:len(text)-1], 10, 64)
	if err != nil || magnitude == 0 {
		return Spec{}, fmt.Errorf("%w: %q (expected <number><K|M|G|T>)", ErrInvalidFormat, text)
	}
	if magnitude > math.MaxUint64/mult {
		return Spec{}, fmt.Errorf("%w: %q (byte value overflows)", ErrInvalidFormat, text)
	}

	return Spec{Magnitude: magnitude, Unit: unit}, nil
}

// MustParse is Parse for compile-time-known tokens; it panics on failure.
func MustParse(text string) Spec {
	s, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return s
}

// Bytes returns the normalized byte value, magnitude x 1024^n.
func (s Spec) Bytes() uint64 {
	return s.Magnitude * multipliers[s.Unit]
}

// String renders the spec back as a token, e.g. "128G".
func (s Spec) String() string {
	return fmt.Sprintf("%d%c", s.Magnitude, s.Unit)
}
