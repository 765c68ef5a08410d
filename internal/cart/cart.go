// Package cart loads a cartridge ROM image and gives the bus direct
// access to its backing bytes plus a fixed-size SRAM pad. The cartridge
// itself does no address decoding; region selection, waitstates, and
// past-end-of-ROM open-bus behavior all live in internal/bus.
package cart

import "errors"

// MaxROMSize is the largest cartridge ROM image the bus's three waitstate
// windows can address (25-bit offset space, mirrored across windows).
const MaxROMSize = 32 * 1024 * 1024

// SRAMSize is the fixed size of the byte-addressable save RAM region.
const SRAMSize = 64 * 1024

// Image is a loaded cartridge: its ROM bytes, parsed header metadata, and
// battery-backed SRAM.
type Image struct {
	ROM    []byte
	Header Header
	SRAM   [SRAMSize]byte
}

// Load validates and wraps a ROM image. The image is kept as-is (not
// padded or truncated); the bus is responsible for masking offsets that
// fall past len(ROM).
func Load(rom []byte) (*Image, error) {
	if len(rom) == 0 {
		return nil, errors.New("empty ROM image")
	}
	if len(rom) > MaxROMSize {
		return nil, errors.New("ROM image exceeds maximum cartridge size")
	}
	h, err := ParseHeader(rom)
	if err != nil {
		// A header too small to parse is still a loadable (if unusual)
		// ROM; title/code/maker are metadata only, per the external
		// interface note that the loader extracts them optionally.
		h = Header{}
	}
	return &Image{ROM: rom, Header: h}, nil
}

// ReadByte returns the byte at offset, or (0, false) if offset lies at or
// past the end of the ROM image.
func (img *Image) ReadByte(offset uint32) (byte, bool) {
	if int(offset) >= len(img.ROM) {
		return 0, false
	}
	return img.ROM[offset], true
}

// ReadSRAM returns the byte at the given SRAM offset, wrapping within the
// fixed SRAM size.
func (img *Image) ReadSRAM(offset uint32) byte {
	return img.SRAM[offset%SRAMSize]
}

// WriteSRAM stores a byte at the given SRAM offset, wrapping within the
// fixed SRAM size.
func (img *Image) WriteSRAM(offset uint32, v byte) {
	img.SRAM[offset%SRAMSize] = v
}
