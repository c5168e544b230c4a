package hexkey

import (
	"encoding/binary"
	"testing"

	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

func TestParse(t *testing.T) {
	Convey("Given a set of valid hex strings", t, func() {
		tests := []struct {
			In       string
			Forward  []byte
			Reversed []byte
		}{
			{"01", []byte{0x01}, []byte{0x01}},
			{"0102", []byte{0x01, 0x02}, []byte{0x02, 0x01}},
			{"70B3D57ED0000000", []byte{0x70, 0xb3, 0xd5, 0x7e, 0xd0, 0x00, 0x00, 0x00}, []byte{0x00, 0x00, 0x00, 0xd0, 0x7e, 0xd5, 0xb3, 0x70}},
			{"aBcDeF", []byte{0xab, 0xcd, 0xef}, []byte{0xef, 0xcd, 0xab}},
		}

		for _, test := range tests {
			Convey("Then "+test.In+" decodes in both byte orders", func() {
				f, err := ParseForward(test.In)
				So(err, ShouldBeNil)
				So(f, ShouldResemble, test.Forward)
				So(f, ShouldHaveLength, len(test.In)/2)

				r, err := ParseReversed(test.In)
				So(err, ShouldBeNil)
				So(r, ShouldResemble, test.Reversed)
				So(r, ShouldHaveLength, len(test.In)/2)
			})
		}
	})

	Convey("Given a set of malformed hex strings", t, func() {
		for _, in := range []string{"", "1", "123", "0G", "zz00", "01 2", "0x01"} {
			Convey("Then "+in+" is rejected by both parsers", func() {
				_, err := ParseForward(in)
				So(errors.Cause(err), ShouldEqual, ErrInvalidHexString)

				_, err = ParseReversed(in)
				So(errors.Cause(err), ShouldEqual, ErrInvalidHexString)
			})
		}
	})
}

func TestParseReversedIsReverseOfForward(t *testing.T) {
	Convey("Given the 32 character application key from the console", t, func() {
		s := "6757BB981D0E2671F40F534F6E4CD87F"

		Convey("Then ParseReversed equals the reversed output of ParseForward", func() {
			f, err := ParseForward(s)
			So(err, ShouldBeNil)
			r, err := ParseReversed(s)
			So(err, ShouldBeNil)

			for i := range f {
				So(r[len(r)-1-i], ShouldEqual, f[i])
			}
		})
	})
}

func TestParseInto(t *testing.T) {
	Convey("Given an 8 byte destination", t, func() {
		var eui [8]byte

		Convey("Then a 16 character string is decoded", func() {
			So(ParseReversedInto(eui[:], "0102030405060708"), ShouldBeNil)
			So(eui, ShouldResemble, [8]byte{8, 7, 6, 5, 4, 3, 2, 1})

			So(ParseForwardInto(eui[:], "0102030405060708"), ShouldBeNil)
			So(eui, ShouldResemble, [8]byte{1, 2, 3, 4, 5, 6, 7, 8})
		})

		Convey("Then a string of the wrong size is rejected", func() {
			err := ParseForwardInto(eui[:], "01020304")
			So(errors.Cause(err), ShouldEqual, ErrInvalidHexString)
		})
	})
}

func TestFormatChipID(t *testing.T) {
	Convey("Given a 48 bit chip id", t, func() {
		chipID := uint64(0x24_0A_C4_12_34_56)

		Convey("Then it is formatted as 16 uppercase characters", func() {
			So(FormatChipID(chipID), ShouldEqual, "0000240AC4123456")
		})

		Convey("Then parsing it reversed yields the chip id in little-endian order", func() {
			b, err := ParseReversed(FormatChipID(chipID))
			So(err, ShouldBeNil)
			So(b, ShouldHaveLength, 8)
			So(binary.LittleEndian.Uint64(b), ShouldEqual, chipID)
		})

		Convey("Then bits above 48 are ignored", func() {
			So(FormatChipID(0xFFFF_0000_0000_0001), ShouldEqual, "0000000000000001")
		})
	})
}
