package cart

import (
	"errors"
	"strings"
)

const (
	headerSize  = 0xC0
	titleOffset = 0xA0
	titleLen    = 12
	codeOffset  = 0xAC
	codeLen     = 4
	makerOffset = 0xB0
	makerLen    = 2
)

// Header holds the metadata fields the loader extracts from a ROM image.
// None of it affects emulated behavior; it exists for logging and display.
type Header struct {
	Title string
	Code  string
	Maker string
}

// ParseHeader reads the fixed-offset title/code/maker fields from a ROM
// image. It only validates that the image is large enough to contain
// them; checksum verification is not part of the console's external
// interface.
func ParseHeader(rom []byte) (Header, error) {
	if len(rom) < headerSize {
		return Header{}, errors.New("ROM too small to contain header")
	}
	return Header{
		Title: trimPadded(rom[titleOffset : titleOffset+titleLen]),
		Code:  trimPadded(rom[codeOffset : codeOffset+codeLen]),
		Maker: trimPadded(rom[makerOffset : makerOffset+makerLen]),
	}, nil
}

func trimPadded(b []byte) string {
	return strings.TrimRight(string(b), "\x00")
}
