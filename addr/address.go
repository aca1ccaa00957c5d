package addr

import (
	"errors"
	"strings"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Size is the length of a decoded address.
const Size = 32

// ErrInvalidAddress is returned for any text that is not an accepted address.
var ErrInvalidAddress = errors.New("invalid address")

// Address is an ed25519 public key.
type Address [Size]byte

// Decode returns the address encoded in text.
// Empty text, bad base58, a wrong length and off-curve keys are all ErrInvalidAddress.
func Decode(text string) (Address, error) {
	var a Address

	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return a, ErrInvalidAddress
	}

	buffer, err := base58.Decode(text)
	if err != nil {
		return a, ErrInvalidAddress
	}

	if len(buffer) != Size {
		return a, ErrInvalidAddress
	}

	if !OnCurve(buffer) {
		return a, ErrInvalidAddress
	}

	copy(a[:], buffer)
	return a, nil
}

// Valid checks if text is an accepted address.
func Valid(text string) bool {
	_, err := Decode(text)
	return err == nil
}

// OnCurve checks if b is the encoding of a point on the ed25519 curve.
func OnCurve(b []byte) bool {
	if len(b) != Size {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// Encode returns base58 encoded address.
func Encode(a Address) string {
	return base58.Encode(a[:])
}

func (a Address) String() string {
	return Encode(a)
}

// IsZero reports whether a is the all-zero address.
func (a Address) IsZero() bool {
	return a == Address{}
}

// TruncateForDisplay shortens text to its first and last 4 characters.
func TruncateForDisplay(text string) string {
	r := []rune(text)
	if len(r) < 8 {
		return text
	}
	return string(r[:4]) + "..." + string(r[len(r)-4:])
}
