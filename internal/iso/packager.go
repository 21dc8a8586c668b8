package iso

import (
	"fmt"
	"io"
	"sync/atomic"
)

type entry struct {
	name  string
	codec FieldCodec
	sub   *Packager
}

// PackagerConfig describes one dialect's framing-independent wire shape.
// A nil MTI makes a headerless packager for nested message fields.
type PackagerConfig struct {
	Name     string
	MTI      FieldCodec
	Bitmap   BitmapEncoding
	Extended bool
	Overflow OverflowPolicy
}

// Packager maps field ids to codecs and packs whole Messages. The table is
// immutable once the packager has packed or unpacked anything; a Packager is
// safe for concurrent use after construction.
type Packager struct {
	name     string
	mti      FieldCodec
	bitmap   BitmapEncoding
	extended bool
	policy   OverflowPolicy
	entries  map[int]entry
	frozen   atomic.Bool
}

func NewPackager(cfg PackagerConfig) *Packager {
	return &Packager{
		name:     cfg.Name,
		mti:      cfg.MTI,
		bitmap:   cfg.Bitmap,
		extended: cfg.Extended,
		policy:   cfg.Overflow,
		entries:  make(map[int]entry),
	}
}

func (p *Packager) Name() string {
	return p.name
}

// FieldName returns the registered descriptive name for id, or "".
func (p *Packager) FieldName(id int) string {
	return p.entries[id].name
}

// Register adds a scalar field codec for id.
func (p *Packager) Register(id int, name string, codec FieldCodec) error {
	return p.register(id, entry{name: name, codec: codec})
}

// RegisterNested adds a nested-message field: envelope frames the packed sub
// bytes on the wire, sub packs and unpacks the inner message.
func (p *Packager) RegisterNested(id int, name string, envelope FieldCodec, sub *Packager) error {
	return p.register(id, entry{name: name, codec: envelope, sub: sub})
}

func (p *Packager) register(id int, e entry) error {
	if p.frozen.Load() {
		return fmt.Errorf("iso: packager %q is frozen", p.name)
	}
	if id < 2 || id > 128 || id == 65 {
		return fmt.Errorf("%w: %d", ErrFieldRange, id)
	}
	if id > 64 && !p.extended {
		return fmt.Errorf("%w: %d (dialect has no extended bitmap)", ErrFieldRange, id)
	}
	if _, dup := p.entries[id]; dup {
		return fmt.Errorf("iso: duplicate registration for field %d", id)
	}
	if e.codec == nil {
		return fmt.Errorf("%w: %d", ErrNoFieldCodec, id)
	}
	p.entries[id] = e
	return nil
}

// Pack encodes m: MTI, freshly recomputed bitmap, then every present field
// in ascending id order. m must not be mutated for the duration of the call.
func (p *Packager) Pack(m *Message) ([]byte, error) {
	p.frozen.Store(true)
	out := make([]byte, 0, 64)
	if p.mti != nil {
		if m.MTI() == "" {
			return nil, fmt.Errorf("%w: empty", ErrInvalidMTI)
		}
		b, err := p.mti.Pack([]byte(m.MTI()), Reject)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidMTI, m.MTI())
		}
		out = append(out, b...)
	}
	ids := m.FieldIDs()
	bm, err := packBitmap(ids, p.bitmap, p.extended)
	if err != nil {
		return nil, err
	}
	out = append(out, bm...)
	for _, id := range ids {
		b, err := p.packField(m, id)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

func (p *Packager) packField(m *Message, id int) ([]byte, error) {
	e, ok := p.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNoFieldCodec, id)
	}
	if e.sub != nil {
		sub, err := m.Composite(id)
		if err != nil {
			return nil, err
		}
		raw, err := e.sub.Pack(sub)
		if err != nil {
			return nil, fmt.Errorf("iso: field %d (%s): %w", id, e.name, err)
		}
		b, err := e.codec.Pack(raw, Reject)
		if err != nil {
			return nil, fmt.Errorf("iso: field %d (%s): %w", id, e.name, err)
		}
		return b, nil
	}
	v, ok := m.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: field %d (%s) holds a nested message", ErrNotComposite, id, e.name)
	}
	b, err := e.codec.Pack(v, p.policy)
	if err != nil {
		return nil, fmt.Errorf("iso: field %d (%s): %w", id, e.name, err)
	}
	return b, nil
}

// Unpack decodes one message from data and reports the bytes consumed.
// Nothing is returned on failure; a partially decoded message is discarded.
func (p *Packager) Unpack(data []byte) (*Message, int, error) {
	p.frozen.Store(true)
	m := NewMessage()
	off := 0
	if p.mti != nil {
		v, n, err := p.mti.Unpack(data, 0)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrInvalidMTI, err)
		}
		m.SetMTI(string(v))
		off = n
	}
	ids, n, err := unpackBitmap(data, off, p.bitmap)
	if err != nil {
		return nil, 0, err
	}
	off += n
	for _, id := range ids {
		n, err := p.unpackField(m, id, data, off)
		if err != nil {
			return nil, 0, err
		}
		off += n
	}
	return m, off, nil
}

func (p *Packager) unpackField(m *Message, id int, data []byte, off int) (int, error) {
	e, ok := p.entries[id]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrNoFieldCodec, id)
	}
	v, n, err := e.codec.Unpack(data, off)
	if err != nil {
		return 0, fmt.Errorf("iso: field %d (%s): %w", id, e.name, err)
	}
	if e.sub == nil {
		m.fields[id] = Leaf(v)
		return n, nil
	}
	sub, consumed, err := e.sub.Unpack(v)
	if err != nil {
		return 0, fmt.Errorf("iso: field %d (%s): %w", id, e.name, err)
	}
	if consumed != len(v) {
		return 0, fmt.Errorf("iso: field %d (%s): %d trailing bytes after nested message", id, e.name, len(v)-consumed)
	}
	m.SetComposite(id, sub)
	return n, nil
}

// UnpackFrom decodes one message directly from a byte stream, consuming
// exactly the bytes the dialect requires. It backs self-delimiting framing
// where the transport carries no message boundaries of its own.
func (p *Packager) UnpackFrom(r io.Reader) (*Message, error) {
	p.frozen.Store(true)
	m := NewMessage()
	if p.mti != nil {
		raw, err := p.mti.ReadField(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMTI, err)
		}
		v, _, err := p.mti.Unpack(raw, 0)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMTI, err)
		}
		m.SetMTI(string(v))
	}
	ids, err := readBitmap(r, p.bitmap)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		e, ok := p.entries[id]
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrNoFieldCodec, id)
		}
		raw, err := e.codec.ReadField(r)
		if err != nil {
			return nil, fmt.Errorf("iso: field %d (%s): %w", id, e.name, err)
		}
		if _, err := p.unpackField(m, id, raw, 0); err != nil {
			return nil, err
		}
	}
	return m, nil
}
