package iso

import (
	"errors"
	"fmt"
	"io"
)

// LengthPolicy selects how a field's wire length is recovered: a fixed
// configured width, or a 2/3/4 digit count prefix preceding the value.
type LengthPolicy int

const (
	Fixed LengthPolicy = iota
	LL
	LLL
	LLLL
)

func (p LengthPolicy) prefixDigits() int {
	switch p {
	case LL:
		return 2
	case LLL:
		return 3
	case LLLL:
		return 4
	default:
		return 0
	}
}

func (p LengthPolicy) String() string {
	switch p {
	case Fixed:
		return "fixed"
	case LL:
		return "ll"
	case LLL:
		return "lll"
	case LLLL:
		return "llll"
	default:
		return fmt.Sprintf("lengthpolicy(%d)", int(p))
	}
}

// OverflowPolicy decides what Pack does with an over-long value. Truncate
// matches legacy interchanges that silently clip; Reject fails the pack.
type OverflowPolicy int

const (
	Truncate OverflowPolicy = iota
	Reject
)

// FieldCodec packs one field value to wire bytes and back. Implementations
// are configuration-only and safe for concurrent use.
//
// ReadField consumes exactly one encoded field (length prefix included) from
// a byte stream and returns the raw encoded bytes, so that
// Unpack(raw, 0) recovers the value. It exists for self-delimiting framing.
type FieldCodec interface {
	Pack(value []byte, policy OverflowPolicy) ([]byte, error)
	Unpack(data []byte, off int) (value []byte, consumed int, err error)
	ReadField(r io.Reader) ([]byte, error)
	String() string
}

// clip applies the overflow policy for a value measured in units (chars,
// digits or bytes depending on the codec).
func clip(value []byte, max int, policy OverflowPolicy) ([]byte, error) {
	if len(value) <= max {
		return value, nil
	}
	if policy == Reject {
		return nil, fmt.Errorf("%w: have %d, max %d", ErrValueTooLong, len(value), max)
	}
	return value[:max], nil
}

func packPrefix(n, digits int) []byte {
	out := make([]byte, digits)
	for i := digits - 1; i >= 0; i-- {
		out[i] = byte(n%10 + '0')
		n /= 10
	}
	return out
}

func parsePrefix(b []byte) (int, error) {
	n := 0
	for _, ch := range b {
		if ch < '0' || ch > '9' {
			return 0, fmt.Errorf("%w: %q", ErrBadLengthPrefix, b)
		}
		n = n*10 + int(ch-'0')
	}
	return n, nil
}

func readExactly(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrTruncated
		}
		return nil, err
	}
	return buf, nil
}

// ASCIICodec encodes text fields as ASCII characters. Fixed numeric fields
// left-pad with '0', fixed alphanumeric fields right-pad with spaces.
type ASCIICodec struct {
	Length  int
	Policy  LengthPolicy
	Numeric bool
}

// NewASCII returns an alphanumeric ASCII codec.
func NewASCII(length int, policy LengthPolicy) *ASCIICodec {
	return &ASCIICodec{Length: length, Policy: policy}
}

// NewNumeric returns a numeric-as-text ASCII codec.
func NewNumeric(length int, policy LengthPolicy) *ASCIICodec {
	return &ASCIICodec{Length: length, Policy: policy, Numeric: true}
}

func (c *ASCIICodec) Pack(value []byte, policy OverflowPolicy) ([]byte, error) {
	v, err := clip(value, c.Length, policy)
	if err != nil {
		return nil, err
	}
	if c.Policy == Fixed {
		return padText(v, c.Length, c.Numeric), nil
	}
	out := make([]byte, 0, c.Policy.prefixDigits()+len(v))
	out = append(out, packPrefix(len(v), c.Policy.prefixDigits())...)
	return append(out, v...), nil
}

func (c *ASCIICodec) Unpack(data []byte, off int) ([]byte, int, error) {
	raw, consumed, err := sliceField(data, off, c.Length, c.Policy)
	if err != nil {
		return nil, 0, err
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, consumed, nil
}

func (c *ASCIICodec) ReadField(r io.Reader) ([]byte, error) {
	return readField(r, c.Length, c.Policy)
}

func (c *ASCIICodec) String() string {
	if c.Numeric {
		return fmt.Sprintf("n-%d/%s", c.Length, c.Policy)
	}
	return fmt.Sprintf("ans-%d/%s", c.Length, c.Policy)
}

// EBCDICCodec mirrors ASCIICodec but translates to CP-037 on the wire,
// length prefix digits included. Values stay ASCII on the application side.
type EBCDICCodec struct {
	Length  int
	Policy  LengthPolicy
	Numeric bool
}

func NewEBCDIC(length int, policy LengthPolicy) *EBCDICCodec {
	return &EBCDICCodec{Length: length, Policy: policy}
}

func NewEBCDICNumeric(length int, policy LengthPolicy) *EBCDICCodec {
	return &EBCDICCodec{Length: length, Policy: policy, Numeric: true}
}

func (c *EBCDICCodec) Pack(value []byte, policy OverflowPolicy) ([]byte, error) {
	v, err := clip(value, c.Length, policy)
	if err != nil {
		return nil, err
	}
	if c.Policy == Fixed {
		return toEBCDIC(padText(v, c.Length, c.Numeric)), nil
	}
	out := toEBCDIC(packPrefix(len(v), c.Policy.prefixDigits()))
	return append(out, toEBCDIC(v)...), nil
}

func (c *EBCDICCodec) Unpack(data []byte, off int) ([]byte, int, error) {
	if c.Policy == Fixed {
		if len(data) < off+c.Length {
			return nil, 0, fmt.Errorf("%w: need %d bytes at offset %d", ErrTruncated, c.Length, off)
		}
		return fromEBCDIC(data[off : off+c.Length]), c.Length, nil
	}
	digits := c.Policy.prefixDigits()
	if len(data) < off+digits {
		return nil, 0, fmt.Errorf("%w: need %d prefix bytes at offset %d", ErrTruncated, digits, off)
	}
	n, err := parsePrefix(fromEBCDIC(data[off : off+digits]))
	if err != nil {
		return nil, 0, err
	}
	if len(data) < off+digits+n {
		return nil, 0, fmt.Errorf("%w: need %d value bytes at offset %d", ErrTruncated, n, off+digits)
	}
	return fromEBCDIC(data[off+digits : off+digits+n]), digits + n, nil
}

func (c *EBCDICCodec) ReadField(r io.Reader) ([]byte, error) {
	if c.Policy == Fixed {
		return readExactly(r, c.Length)
	}
	digits := c.Policy.prefixDigits()
	prefix, err := readExactly(r, digits)
	if err != nil {
		return nil, err
	}
	n, err := parsePrefix(fromEBCDIC(prefix))
	if err != nil {
		return nil, err
	}
	value, err := readExactly(r, n)
	if err != nil {
		return nil, err
	}
	return append(prefix, value...), nil
}

func (c *EBCDICCodec) String() string {
	if c.Numeric {
		return fmt.Sprintf("n-ebcdic-%d/%s", c.Length, c.Policy)
	}
	return fmt.Sprintf("ans-ebcdic-%d/%s", c.Length, c.Policy)
}

// BCDCodec packs decimal digits two per byte. Odd digit counts carry a zero
// pad nibble on the left. Length and variable prefixes count digits, with
// the prefix itself in ASCII on the wire.
type BCDCodec struct {
	Digits int
	Policy LengthPolicy
}

func NewBCD(digits int, policy LengthPolicy) *BCDCodec {
	return &BCDCodec{Digits: digits, Policy: policy}
}

func (c *BCDCodec) Pack(value []byte, policy OverflowPolicy) ([]byte, error) {
	v, err := clip(value, c.Digits, policy)
	if err != nil {
		return nil, err
	}
	if c.Policy == Fixed {
		v = padText(v, c.Digits, true)
		return bcdEncode(v)
	}
	enc, err := bcdEncode(v)
	if err != nil {
		return nil, err
	}
	out := packPrefix(len(v), c.Policy.prefixDigits())
	return append(out, enc...), nil
}

func (c *BCDCodec) Unpack(data []byte, off int) ([]byte, int, error) {
	if c.Policy == Fixed {
		width := bcdBytes(c.Digits)
		if len(data) < off+width {
			return nil, 0, fmt.Errorf("%w: need %d bytes at offset %d", ErrTruncated, width, off)
		}
		v, err := bcdDecode(data[off:off+width], c.Digits)
		if err != nil {
			return nil, 0, err
		}
		return v, width, nil
	}
	digits := c.Policy.prefixDigits()
	if len(data) < off+digits {
		return nil, 0, fmt.Errorf("%w: need %d prefix bytes at offset %d", ErrTruncated, digits, off)
	}
	n, err := parsePrefix(data[off : off+digits])
	if err != nil {
		return nil, 0, err
	}
	width := bcdBytes(n)
	if len(data) < off+digits+width {
		return nil, 0, fmt.Errorf("%w: need %d value bytes at offset %d", ErrTruncated, width, off+digits)
	}
	v, err := bcdDecode(data[off+digits:off+digits+width], n)
	if err != nil {
		return nil, 0, err
	}
	return v, digits + width, nil
}

func (c *BCDCodec) ReadField(r io.Reader) ([]byte, error) {
	if c.Policy == Fixed {
		return readExactly(r, bcdBytes(c.Digits))
	}
	prefix, err := readExactly(r, c.Policy.prefixDigits())
	if err != nil {
		return nil, err
	}
	n, err := parsePrefix(prefix)
	if err != nil {
		return nil, err
	}
	value, err := readExactly(r, bcdBytes(n))
	if err != nil {
		return nil, err
	}
	return append(prefix, value...), nil
}

func (c *BCDCodec) String() string {
	return fmt.Sprintf("bcd-%d/%s", c.Digits, c.Policy)
}

// BinaryCodec carries raw bytes. Fixed fields right-pad with 0x00; variable
// prefixes count bytes.
type BinaryCodec struct {
	Length int
	Policy LengthPolicy
}

func NewBinary(length int, policy LengthPolicy) *BinaryCodec {
	return &BinaryCodec{Length: length, Policy: policy}
}

func (c *BinaryCodec) Pack(value []byte, policy OverflowPolicy) ([]byte, error) {
	v, err := clip(value, c.Length, policy)
	if err != nil {
		return nil, err
	}
	if c.Policy == Fixed {
		out := make([]byte, c.Length)
		copy(out, v)
		return out, nil
	}
	out := make([]byte, 0, c.Policy.prefixDigits()+len(v))
	out = append(out, packPrefix(len(v), c.Policy.prefixDigits())...)
	return append(out, v...), nil
}

func (c *BinaryCodec) Unpack(data []byte, off int) ([]byte, int, error) {
	raw, consumed, err := sliceField(data, off, c.Length, c.Policy)
	if err != nil {
		return nil, 0, err
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, consumed, nil
}

func (c *BinaryCodec) ReadField(r io.Reader) ([]byte, error) {
	return readField(r, c.Length, c.Policy)
}

func (c *BinaryCodec) String() string {
	return fmt.Sprintf("b-%d/%s", c.Length, c.Policy)
}

// sliceField extracts one byte-counted field from a buffer.
func sliceField(data []byte, off, length int, policy LengthPolicy) ([]byte, int, error) {
	if policy == Fixed {
		if len(data) < off+length {
			return nil, 0, fmt.Errorf("%w: need %d bytes at offset %d", ErrTruncated, length, off)
		}
		return data[off : off+length], length, nil
	}
	digits := policy.prefixDigits()
	if len(data) < off+digits {
		return nil, 0, fmt.Errorf("%w: need %d prefix bytes at offset %d", ErrTruncated, digits, off)
	}
	n, err := parsePrefix(data[off : off+digits])
	if err != nil {
		return nil, 0, err
	}
	if len(data) < off+digits+n {
		return nil, 0, fmt.Errorf("%w: need %d value bytes at offset %d", ErrTruncated, n, off+digits)
	}
	return data[off+digits : off+digits+n], digits + n, nil
}

// readField consumes one byte-counted field from a stream, prefix included.
func readField(r io.Reader, length int, policy LengthPolicy) ([]byte, error) {
	if policy == Fixed {
		return readExactly(r, length)
	}
	prefix, err := readExactly(r, policy.prefixDigits())
	if err != nil {
		return nil, err
	}
	n, err := parsePrefix(prefix)
	if err != nil {
		return nil, err
	}
	value, err := readExactly(r, n)
	if err != nil {
		return nil, err
	}
	return append(prefix, value...), nil
}

func padText(v []byte, width int, numeric bool) []byte {
	out := make([]byte, width)
	if numeric {
		for i := 0; i < width-len(v); i++ {
			out[i] = '0'
		}
		copy(out[width-len(v):], v)
		return out
	}
	copy(out, v)
	for i := len(v); i < width; i++ {
		out[i] = ' '
	}
	return out
}

func bcdBytes(digits int) int {
	return (digits + 1) / 2
}

func bcdEncode(digits []byte) ([]byte, error) {
	out := make([]byte, bcdBytes(len(digits)))
	// Odd counts shift right by one nibble, leaving a zero pad nibble first.
	nibble := len(digits) % 2
	for i, ch := range digits {
		if ch < '0' || ch > '9' {
			return nil, fmt.Errorf("%w: %q in BCD value", ErrBadDigit, ch)
		}
		pos := i + nibble
		if pos%2 == 0 {
			out[pos/2] = (ch - '0') << 4
		} else {
			out[pos/2] |= ch - '0'
		}
	}
	return out, nil
}

func bcdDecode(data []byte, digits int) ([]byte, error) {
	out := make([]byte, 0, digits)
	nibble := digits % 2
	for pos := nibble; pos < digits+nibble; pos++ {
		b := data[pos/2]
		var d byte
		if pos%2 == 0 {
			d = b >> 4
		} else {
			d = b & 0x0F
		}
		if d > 9 {
			return nil, fmt.Errorf("%w: nibble 0x%X in BCD value", ErrBadDigit, d)
		}
		out = append(out, d+'0')
	}
	return out, nil
}
