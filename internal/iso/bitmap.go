package iso

import (
	"encoding/hex"
	"fmt"
	"io"
)

// BitmapEncoding selects the wire form of the presence bitmap: raw bytes or
// the hex-text rendering some ASCII interchanges use.
type BitmapEncoding int

const (
	BitmapBinary BitmapEncoding = iota
	BitmapHex
)

func (e BitmapEncoding) String() string {
	if e == BitmapHex {
		return "hex"
	}
	return "binary"
}

// width returns the encoded size of one 64-bit bitmap half.
func (e BitmapEncoding) width() int {
	if e == BitmapHex {
		return 16
	}
	return 8
}

// packBitmap renders presence for field ids 2..128. Bit 1 is the extension
// bit: set exactly when any id above 64 is present, in which case a secondary
// bitmap follows the primary. Always recomputed from present ids; prior wire
// state is never consulted.
func packBitmap(ids []int, enc BitmapEncoding, extended bool) ([]byte, error) {
	var bits [16]byte
	secondary := false
	for _, id := range ids {
		if id < 2 || id > 128 || id == 65 {
			return nil, fmt.Errorf("%w: %d", ErrFieldRange, id)
		}
		if id > 64 {
			if !extended {
				return nil, fmt.Errorf("%w: %d (dialect has no extended bitmap)", ErrFieldRange, id)
			}
			secondary = true
		}
		bits[(id-1)/8] |= 0x80 >> ((id - 1) % 8)
	}
	if secondary {
		bits[0] |= 0x80
	}
	raw := bits[:8]
	if secondary {
		raw = bits[:16]
	}
	if enc == BitmapHex {
		out := make([]byte, hex.EncodedLen(len(raw)))
		hex.Encode(out, raw)
		return out, nil
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

// unpackBitmap recovers the present ids (2..128) from a wire bitmap at off.
func unpackBitmap(data []byte, off int, enc BitmapEncoding) ([]int, int, error) {
	raw, consumed, err := decodeBitmapHalf(data, off, enc)
	if err != nil {
		return nil, 0, err
	}
	full := make([]byte, 8, 16)
	copy(full, raw)
	if full[0]&0x80 != 0 {
		raw, n, err := decodeBitmapHalf(data, off+consumed, enc)
		if err != nil {
			return nil, 0, err
		}
		full = append(full, raw...)
		consumed += n
	}
	return bitmapIDs(full), consumed, nil
}

// readBitmap is the stream-mode twin of unpackBitmap.
func readBitmap(r io.Reader, enc BitmapEncoding) ([]int, error) {
	first, err := readExactly(r, enc.width())
	if err != nil {
		return nil, err
	}
	raw, _, err := decodeBitmapHalf(first, 0, enc)
	if err != nil {
		return nil, err
	}
	full := make([]byte, 8, 16)
	copy(full, raw)
	if full[0]&0x80 != 0 {
		second, err := readExactly(r, enc.width())
		if err != nil {
			return nil, err
		}
		raw, _, err := decodeBitmapHalf(second, 0, enc)
		if err != nil {
			return nil, err
		}
		full = append(full, raw...)
	}
	return bitmapIDs(full), nil
}

func decodeBitmapHalf(data []byte, off int, enc BitmapEncoding) ([]byte, int, error) {
	width := enc.width()
	if len(data) < off+width {
		return nil, 0, fmt.Errorf("%w: need %d bitmap bytes at offset %d", ErrTruncated, width, off)
	}
	if enc == BitmapBinary {
		return data[off : off+width], width, nil
	}
	raw := make([]byte, 8)
	if _, err := hex.Decode(raw, data[off:off+width]); err != nil {
		return nil, 0, fmt.Errorf("iso: invalid hex bitmap: %w", err)
	}
	return raw, width, nil
}

// bitmapIDs lists the set bits as field ids, skipping the extension bit.
func bitmapIDs(raw []byte) []int {
	ids := make([]int, 0, 16)
	for i, b := range raw {
		for j := 0; j < 8; j++ {
			id := i*8 + j + 1
			if id == 1 || id == 65 {
				continue
			}
			if b&(0x80>>j) != 0 {
				ids = append(ids, id)
			}
		}
	}
	return ids
}
