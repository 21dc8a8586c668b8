package iso

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Declarative dialect descriptions. Loading is all-or-nothing: any bad
// record fails construction, never a later pack or unpack.

type dialectDoc struct {
	Name     string     `toml:"name"`
	Overflow string     `toml:"overflow"`
	MTI      mtiDoc     `toml:"mti"`
	Bitmap   bitmapDoc  `toml:"bitmap"`
	Fields   []fieldDoc `toml:"field"`
}

type mtiDoc struct {
	Repr   string `toml:"repr"`
	Length int    `toml:"length"`
}

type bitmapDoc struct {
	Encoding string `toml:"encoding"`
	Extended bool   `toml:"extended"`
}

type fieldDoc struct {
	ID     int    `toml:"id"`
	Name   string `toml:"name"`
	Repr   string `toml:"repr"`
	Length int    `toml:"length"`
	Prefix string `toml:"prefix"`
}

// LoadPackager builds a packager from a TOML dialect description on disk.
func LoadPackager(path string) (*Packager, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("iso: dialect load failed (%s): %w", path, err)
	}
	p, err := ParsePackager(data)
	if err != nil {
		return nil, fmt.Errorf("iso: dialect %s: %w", path, err)
	}
	return p, nil
}

// ParsePackager builds a packager from TOML dialect description bytes.
func ParsePackager(data []byte) (*Packager, error) {
	var doc dialectDoc
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadDialect, err)
	}
	if doc.Name == "" {
		return nil, fmt.Errorf("%w: missing name", ErrBadDialect)
	}
	if len(doc.Fields) == 0 {
		return nil, fmt.Errorf("%w: no fields", ErrBadDialect)
	}

	overflow := Truncate
	switch doc.Overflow {
	case "", "truncate":
	case "reject":
		overflow = Reject
	default:
		return nil, fmt.Errorf("%w: overflow %q", ErrBadDialect, doc.Overflow)
	}

	encoding := BitmapBinary
	switch doc.Bitmap.Encoding {
	case "", "binary":
	case "hex":
		encoding = BitmapHex
	default:
		return nil, fmt.Errorf("%w: bitmap encoding %q", ErrBadDialect, doc.Bitmap.Encoding)
	}

	mtiRepr := doc.MTI.Repr
	if mtiRepr == "" {
		mtiRepr = "n"
	}
	mtiLen := doc.MTI.Length
	if mtiLen == 0 {
		mtiLen = 4
	}
	mti, err := codecFor(mtiRepr, mtiLen, "fixed")
	if err != nil {
		return nil, fmt.Errorf("%w: mti: %v", ErrBadDialect, err)
	}

	p := NewPackager(PackagerConfig{
		Name:     doc.Name,
		MTI:      mti,
		Bitmap:   encoding,
		Extended: doc.Bitmap.Extended,
		Overflow: overflow,
	})
	for i, f := range doc.Fields {
		codec, err := codecFor(f.Repr, f.Length, f.Prefix)
		if err != nil {
			return nil, fmt.Errorf("%w: field[%d] id=%d: %v", ErrBadDialect, i, f.ID, err)
		}
		if err := p.Register(f.ID, f.Name, codec); err != nil {
			return nil, fmt.Errorf("%w: field[%d]: %v", ErrBadDialect, i, err)
		}
	}
	return p, nil
}

func codecFor(repr string, length int, prefix string) (FieldCodec, error) {
	if length <= 0 {
		return nil, fmt.Errorf("invalid length %d", length)
	}
	var policy LengthPolicy
	switch prefix {
	case "", "fixed":
		policy = Fixed
	case "ll":
		policy = LL
	case "lll":
		policy = LLL
	case "llll":
		policy = LLLL
	default:
		return nil, fmt.Errorf("invalid prefix %q", prefix)
	}
	switch repr {
	case "n":
		return NewNumeric(length, policy), nil
	case "ans":
		return NewASCII(length, policy), nil
	case "n-ebcdic":
		return NewEBCDICNumeric(length, policy), nil
	case "ans-ebcdic":
		return NewEBCDIC(length, policy), nil
	case "bcd":
		return NewBCD(length, policy), nil
	case "b":
		return NewBinary(length, policy), nil
	default:
		return nil, fmt.Errorf("invalid repr %q", repr)
	}
}
