package iso

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/isolink/internal/testutil/testlog"
)

func TestASCIIFixedPadding(t *testing.T) {
	testlog.Start(t)
	num := NewNumeric(6, Fixed)
	b, err := num.Pack([]byte("42"), Truncate)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if string(b) != "000042" {
		t.Fatalf("numeric pad got %q", b)
	}
	ans := NewASCII(8, Fixed)
	b, err = ans.Pack([]byte("TERM1"), Truncate)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if string(b) != "TERM1   " {
		t.Fatalf("ans pad got %q", b)
	}
}

func TestOverflowPolicy(t *testing.T) {
	testlog.Start(t)
	c := NewASCII(4, Fixed)
	b, err := c.Pack([]byte("ABCDEFG"), Truncate)
	if err != nil {
		t.Fatalf("lenient pack: %v", err)
	}
	if len(b) != 4 || string(b) != "ABCD" {
		t.Fatalf("lenient pack got %q", b)
	}
	if _, err := c.Pack([]byte("ABCDEFG"), Reject); !errors.Is(err, ErrValueTooLong) {
		t.Fatalf("strict pack err=%v", err)
	}
}

func TestASCIIVariableRoundTrip(t *testing.T) {
	testlog.Start(t)
	c := NewNumeric(19, LL)
	b, err := c.Pack([]byte("4111111111111111"), Truncate)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if string(b[:2]) != "16" {
		t.Fatalf("prefix got %q", b[:2])
	}
	v, n, err := c.Unpack(b, 0)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if n != len(b) || string(v) != "4111111111111111" {
		t.Fatalf("round trip got %q consumed=%d", v, n)
	}
}

func TestBadLengthPrefix(t *testing.T) {
	testlog.Start(t)
	c := NewASCII(25, LL)
	if _, _, err := c.Unpack([]byte("AB12345"), 0); !errors.Is(err, ErrBadLengthPrefix) {
		t.Fatalf("err=%v", err)
	}
}

func TestTruncatedBuffer(t *testing.T) {
	testlog.Start(t)
	fixed := NewASCII(10, Fixed)
	if _, _, err := fixed.Unpack([]byte("short"), 0); !errors.Is(err, ErrTruncated) {
		t.Fatalf("fixed err=%v", err)
	}
	variable := NewASCII(25, LL)
	if _, _, err := variable.Unpack([]byte("09abc"), 0); !errors.Is(err, ErrTruncated) {
		t.Fatalf("variable err=%v", err)
	}
}

func TestBCDRoundTrip(t *testing.T) {
	testlog.Start(t)
	c := NewBCD(6, Fixed)
	b, err := c.Pack([]byte("123456"), Truncate)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if !bytes.Equal(b, []byte{0x12, 0x34, 0x56}) {
		t.Fatalf("encoded got %x", b)
	}
	v, n, err := c.Unpack(b, 0)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if n != 3 || string(v) != "123456" {
		t.Fatalf("round trip got %q consumed=%d", v, n)
	}
}

func TestBCDOddDigitsPadNibble(t *testing.T) {
	testlog.Start(t)
	c := NewBCD(5, Fixed)
	b, err := c.Pack([]byte("12345"), Truncate)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if !bytes.Equal(b, []byte{0x01, 0x23, 0x45}) {
		t.Fatalf("encoded got %x", b)
	}
	v, _, err := c.Unpack(b, 0)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if string(v) != "12345" {
		t.Fatalf("round trip got %q", v)
	}
}

func TestBCDRejectsNonDigits(t *testing.T) {
	testlog.Start(t)
	c := NewBCD(4, Fixed)
	if _, err := c.Pack([]byte("12A4"), Truncate); !errors.Is(err, ErrBadDigit) {
		t.Fatalf("err=%v", err)
	}
}

func TestBCDVariable(t *testing.T) {
	testlog.Start(t)
	c := NewBCD(11, LL)
	b, err := c.Pack([]byte("987654321"), Truncate)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if string(b[:2]) != "09" {
		t.Fatalf("prefix got %q", b[:2])
	}
	v, n, err := c.Unpack(b, 0)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if n != len(b) || string(v) != "987654321" {
		t.Fatalf("round trip got %q", v)
	}
}

func TestEBCDICRoundTrip(t *testing.T) {
	testlog.Start(t)
	c := NewEBCDIC(10, Fixed)
	b, err := c.Pack([]byte("AB12"), Truncate)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	// 'A' and '1' must be CP-037, not ASCII.
	if b[0] != 0xC1 || b[2] != 0xF1 {
		t.Fatalf("encoded got %x", b)
	}
	v, n, err := c.Unpack(b, 0)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if n != 10 || string(v) != "AB12      " {
		t.Fatalf("round trip got %q", v)
	}
}

func TestEBCDICVariablePrefixOnWire(t *testing.T) {
	testlog.Start(t)
	c := NewEBCDIC(25, LL)
	b, err := c.Pack([]byte("HELLO"), Truncate)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if b[0] != 0xF0 || b[1] != 0xF5 {
		t.Fatalf("prefix got %x", b[:2])
	}
	v, _, err := c.Unpack(b, 0)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if string(v) != "HELLO" {
		t.Fatalf("round trip got %q", v)
	}
}

func TestBinaryFixedPadsZero(t *testing.T) {
	testlog.Start(t)
	c := NewBinary(8, Fixed)
	b, err := c.Pack([]byte{0xDE, 0xAD}, Truncate)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if !bytes.Equal(b, []byte{0xDE, 0xAD, 0, 0, 0, 0, 0, 0}) {
		t.Fatalf("encoded got %x", b)
	}
}

func TestReadFieldConsumesExactly(t *testing.T) {
	testlog.Start(t)
	c := NewASCII(25, LL)
	packed, err := c.Pack([]byte("STREAMED"), Truncate)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	buf := bytes.NewBuffer(append(packed, []byte("TRAILING")...))
	raw, err := c.ReadField(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(raw, packed) {
		t.Fatalf("raw got %q", raw)
	}
	if buf.String() != "TRAILING" {
		t.Fatalf("overconsumed, remaining %q", buf.String())
	}
	v, _, err := c.Unpack(raw, 0)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if string(v) != "STREAMED" {
		t.Fatalf("value got %q", v)
	}
}
