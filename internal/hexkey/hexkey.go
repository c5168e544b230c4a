// Package hexkey converts the hexadecimal key and EUI strings used by
// The Things Network console into the byte arrays expected by the MAC stack.
//
// The console shows EUIs most significant byte first while the stack expects
// them least significant byte first. Keys are copied in the order shown.
package hexkey

import (
	"encoding/hex"
	"fmt"

	"github.com/pkg/errors"
)

// ErrInvalidHexString is returned when the input is empty, has an odd length
// or contains a non-hexadecimal character.
var ErrInvalidHexString = errors.New("invalid hex string")

// ParseForward decodes s into len(s)/2 bytes, keeping the byte order of the
// string (byte i holds the pair at offset 2*i).
func ParseForward(s string) ([]byte, error) {
	if err := validate(s); err != nil {
		return nil, err
	}

	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidHexString, err.Error())
	}
	return b, nil
}

// ParseReversed decodes s into len(s)/2 bytes in reversed byte order: the
// pair at offset 2*i ends up at position (len(s)-1-2*i)/2.
func ParseReversed(s string) ([]byte, error) {
	b, err := ParseForward(s)
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return b, nil
}

// ParseForwardInto decodes s into dst. The decoded length must match len(dst).
func ParseForwardInto(dst []byte, s string) error {
	b, err := ParseForward(s)
	if err != nil {
		return err
	}
	return copyExact(dst, b, s)
}

// ParseReversedInto decodes s in reversed byte order into dst. The decoded
// length must match len(dst).
func ParseReversedInto(dst []byte, s string) error {
	b, err := ParseReversed(s)
	if err != nil {
		return err
	}
	return copyExact(dst, b, s)
}

// FormatChipID formats the 48 bit factory identifier of the chip as the
// 16 character device EUI string: the upper 16 bits and the lower 32 bits,
// each zero-padded to 8 characters.
func FormatChipID(chipID uint64) string {
	return fmt.Sprintf("%08X%08X", uint16(chipID>>32), uint32(chipID))
}

func validate(s string) error {
	if len(s) == 0 {
		return errors.Wrap(ErrInvalidHexString, "empty string")
	}
	if len(s)%2 != 0 {
		return errors.Wrapf(ErrInvalidHexString, "odd length %d", len(s))
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return errors.Wrapf(ErrInvalidHexString, "invalid character %q at offset %d", c, i)
		}
	}
	return nil
}

func copyExact(dst, b []byte, s string) error {
	if len(b) != len(dst) {
		return errors.Wrapf(ErrInvalidHexString, "expected %d hex characters, got %d", len(dst)*2, len(s))
	}
	copy(dst, b)
	return nil
}
