package channel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
)

var (
	ErrFrameTooLarge  = errors.New("channel: frame exceeds length prefix capacity")
	ErrBadFrameLength = errors.New("channel: invalid frame length prefix")
)

// Framing recovers message boundaries from a byte stream via an explicit
// length prefix. A Channel configured without a Framing instead relies on
// the packager consuming exactly its required bytes (self-delimiting mode).
type Framing interface {
	WriteFrame(w io.Writer, payload []byte) error
	ReadFrame(r io.Reader) ([]byte, error)
}

// defaultMaxFrame caps 4-byte-prefixed frames: the prefix can name ~4 GiB
// and the reader allocates the full frame up front, so an untrusted peer
// must not control that number unbounded. ISO interchanges stay far below
// this.
const defaultMaxFrame = 1 << 20

// BinaryFraming prefixes each payload with a big-endian byte count.
type BinaryFraming struct {
	Bytes    int // prefix width, 2 or 4
	MaxFrame int // largest accepted payload; 0 selects the width's default
}

func (f BinaryFraming) max() int {
	if f.Bytes == 4 {
		if f.MaxFrame > 0 {
			return f.MaxFrame
		}
		return defaultMaxFrame
	}
	cap16 := int(^uint16(0))
	if f.MaxFrame > 0 && f.MaxFrame < cap16 {
		return f.MaxFrame
	}
	return cap16
}

func (f BinaryFraming) WriteFrame(w io.Writer, payload []byte) error {
	if f.Bytes != 2 && f.Bytes != 4 {
		return fmt.Errorf("%w: binary prefix width %d", ErrBadFrameLength, f.Bytes)
	}
	if len(payload) > f.max() {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	prefix := make([]byte, f.Bytes)
	if f.Bytes == 2 {
		binary.BigEndian.PutUint16(prefix, uint16(len(payload)))
	} else {
		binary.BigEndian.PutUint32(prefix, uint32(len(payload)))
	}
	if _, err := w.Write(prefix); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func (f BinaryFraming) ReadFrame(r io.Reader) ([]byte, error) {
	if f.Bytes != 2 && f.Bytes != 4 {
		return nil, fmt.Errorf("%w: binary prefix width %d", ErrBadFrameLength, f.Bytes)
	}
	prefix := make([]byte, f.Bytes)
	if _, err := io.ReadFull(r, prefix); err != nil {
		return nil, err
	}
	var n uint64
	if f.Bytes == 2 {
		n = uint64(binary.BigEndian.Uint16(prefix))
	} else {
		n = uint64(binary.BigEndian.Uint32(prefix))
	}
	// The peer names the allocation size; bound it before trusting it.
	if n > uint64(f.max()) {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// ASCIIFraming prefixes each payload with a zero-padded decimal byte count.
type ASCIIFraming struct {
	Digits int // typically 4
}

func (f ASCIIFraming) WriteFrame(w io.Writer, payload []byte) error {
	if f.Digits <= 0 {
		return fmt.Errorf("%w: ascii prefix width %d", ErrBadFrameLength, f.Digits)
	}
	max := 1
	for i := 0; i < f.Digits; i++ {
		max *= 10
	}
	if len(payload) >= max {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	prefix := make([]byte, f.Digits)
	n := len(payload)
	for i := f.Digits - 1; i >= 0; i-- {
		prefix[i] = byte(n%10 + '0')
		n /= 10
	}
	if _, err := w.Write(prefix); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func (f ASCIIFraming) ReadFrame(r io.Reader) ([]byte, error) {
	if f.Digits <= 0 {
		return nil, fmt.Errorf("%w: ascii prefix width %d", ErrBadFrameLength, f.Digits)
	}
	prefix := make([]byte, f.Digits)
	if _, err := io.ReadFull(r, prefix); err != nil {
		return nil, err
	}
	n := 0
	for _, ch := range prefix {
		if ch < '0' || ch > '9' {
			return nil, fmt.Errorf("%w: %q", ErrBadFrameLength, prefix)
		}
		n = n*10 + int(ch-'0')
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// HexFraming prefixes each payload with a zero-padded hex byte count.
type HexFraming struct {
	Digits int // typically 4
}

func (f HexFraming) WriteFrame(w io.Writer, payload []byte) error {
	if f.Digits <= 0 {
		return fmt.Errorf("%w: hex prefix width %d", ErrBadFrameLength, f.Digits)
	}
	s := strconv.FormatInt(int64(len(payload)), 16)
	if len(s) > f.Digits {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	prefix := make([]byte, f.Digits)
	for i := range prefix {
		prefix[i] = '0'
	}
	copy(prefix[f.Digits-len(s):], s)
	if _, err := w.Write(prefix); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func (f HexFraming) ReadFrame(r io.Reader) ([]byte, error) {
	if f.Digits <= 0 {
		return nil, fmt.Errorf("%w: hex prefix width %d", ErrBadFrameLength, f.Digits)
	}
	prefix := make([]byte, f.Digits)
	if _, err := io.ReadFull(r, prefix); err != nil {
		return nil, err
	}
	n, err := strconv.ParseInt(string(prefix), 16, 32)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("%w: %q", ErrBadFrameLength, prefix)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
