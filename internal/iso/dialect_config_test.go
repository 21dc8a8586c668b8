package iso

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/isolink/internal/testutil/testlog"
)

const bcdDialect = `
name = "acquirer-bcd"
overflow = "reject"

[mti]
repr = "bcd"
length = 4

[bitmap]
encoding = "binary"
extended = true

[[field]]
id = 2
name = "pan"
repr = "bcd"
length = 19
prefix = "ll"

[[field]]
id = 11
name = "system trace audit number"
repr = "bcd"
length = 6

[[field]]
id = 41
name = "card acceptor terminal id"
repr = "ans-ebcdic"
length = 8
`

func TestParsePackagerRoundTrip(t *testing.T) {
	testlog.Start(t)
	p, err := ParsePackager([]byte(bcdDialect))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Name() != "acquirer-bcd" {
		t.Fatalf("name got %q", p.Name())
	}
	if p.FieldName(11) != "system trace audit number" {
		t.Fatalf("field name got %q", p.FieldName(11))
	}

	m := NewMessage()
	m.SetMTI("0200")
	m.SetString(2, "4111111111111111")
	m.SetString(11, "000123")
	m.SetString(41, "TERM0001")
	b, err := p.Pack(m)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	got, n, err := p.Unpack(b)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if n != len(b) || !m.Equal(got) {
		t.Fatalf("round trip mismatch, consumed %d of %d", n, len(b))
	}
}

func TestParsePackagerStrictOverflow(t *testing.T) {
	testlog.Start(t)
	p, err := ParsePackager([]byte(bcdDialect))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	m := NewMessage()
	m.SetMTI("0200")
	m.SetString(11, "0001234")
	if _, err := p.Pack(m); !errors.Is(err, ErrValueTooLong) {
		t.Fatalf("err=%v", err)
	}
}

func TestParsePackagerAllOrNothing(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"empty":        ``,
		"no fields":    "name = \"x\"\n",
		"bad repr":     "name = \"x\"\n[[field]]\nid = 2\nrepr = \"utf8\"\nlength = 4\n",
		"bad prefix":   "name = \"x\"\n[[field]]\nid = 2\nrepr = \"n\"\nlength = 4\nprefix = \"l\"\n",
		"bad length":   "name = \"x\"\n[[field]]\nid = 2\nrepr = \"n\"\nlength = 0\n",
		"bad id":       "name = \"x\"\n[[field]]\nid = 65\nrepr = \"n\"\nlength = 4\n",
		"bad toml":     "name = [[[",
		"bad overflow": "name = \"x\"\noverflow = \"clamp\"\n[[field]]\nid = 2\nrepr = \"n\"\nlength = 4\n",
	}
	for label, doc := range cases {
		if _, err := ParsePackager([]byte(doc)); !errors.Is(err, ErrBadDialect) {
			t.Fatalf("%s: err=%v", label, err)
		}
	}
}

func TestLoadPackagerFromDisk(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "dialect.toml")
	if err := os.WriteFile(path, []byte(bcdDialect), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	p, err := LoadPackager(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.Name() != "acquirer-bcd" {
		t.Fatalf("name got %q", p.Name())
	}
	if _, err := LoadPackager(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("missing file load succeeded")
	}
}
