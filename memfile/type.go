package memfile

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/eaburns/memlower/flowgraph"
	"github.com/pkg/errors"
)

// ParseType parses a type written the way flowgraph prints types,
// such as i64, f32, *i8 addrspace(1), <4 x i32>, [3 x i16], or {i8, i32}.
// An addrspace suffix binds to the innermost pointer.
func ParseType(s string) (flowgraph.Type, error) {
	p := &typeParser{text: s}
	t, err := p.typ()
	if err != nil {
		return nil, err
	}
	p.space()
	if p.pos < len(p.text) {
		return nil, p.errorf("unexpected %q", p.text[p.pos:])
	}
	return t, nil
}

type typeParser struct {
	text string
	pos  int
}

func (p *typeParser) errorf(format string, args ...interface{}) error {
	args = append([]interface{}{p.text, p.pos}, args...)
	return errors.Errorf("type %q: offset %d: "+format, args...)
}

func (p *typeParser) space() {
	for p.pos < len(p.text) && p.text[p.pos] == ' ' {
		p.pos++
	}
}

func (p *typeParser) accept(tok string) bool {
	p.space()
	if strings.HasPrefix(p.text[p.pos:], tok) {
		p.pos += len(tok)
		return true
	}
	return false
}

func (p *typeParser) expect(tok string) error {
	if !p.accept(tok) {
		if p.pos >= len(p.text) {
			return p.errorf("expected %q, got end of type", tok)
		}
		return p.errorf("expected %q", tok)
	}
	return nil
}

func (p *typeParser) number() (int, error) {
	p.space()
	start := p.pos
	for p.pos < len(p.text) && unicode.IsDigit(rune(p.text[p.pos])) {
		p.pos++
	}
	if start == p.pos {
		return 0, p.errorf("expected a number")
	}
	n, err := strconv.Atoi(p.text[start:p.pos])
	if err != nil {
		return 0, p.errorf("%s", err)
	}
	return n, nil
}

func (p *typeParser) typ() (flowgraph.Type, error) {
	switch {
	case p.accept("*"):
		elem, err := p.typ()
		if err != nil {
			return nil, err
		}
		t := &flowgraph.AddrType{Elem: elem}
		if p.accept("addrspace(") {
			if t.Space, err = p.number(); err != nil {
				return nil, err
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
		}
		return t, nil
	case p.accept("<"):
		n, elem, err := p.sequence(">")
		if err != nil {
			return nil, err
		}
		switch elem.Kind() {
		case flowgraph.IntKind, flowgraph.FloatKind, flowgraph.AddrKind:
		default:
			return nil, p.errorf("vector of non-scalar %s", elem)
		}
		return &flowgraph.VectorType{Elem: elem, Len: n}, nil
	case p.accept("["):
		n, elem, err := p.sequence("]")
		if err != nil {
			return nil, err
		}
		return &flowgraph.ArrayType{Elem: elem, Len: n}, nil
	case p.accept("{"):
		t := &flowgraph.StructType{}
		if p.accept("}") {
			return t, nil
		}
		for {
			f, err := p.typ()
			if err != nil {
				return nil, err
			}
			t.Fields = append(t.Fields, f)
			if p.accept("}") {
				return t, nil
			}
			if err := p.expect(","); err != nil {
				return nil, err
			}
		}
	case p.accept("i"):
		n, err := p.number()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, p.errorf("zero-width integer")
		}
		return &flowgraph.IntType{Size: n}, nil
	case p.accept("f"):
		n, err := p.number()
		if err != nil {
			return nil, err
		}
		if n != 16 && n != 32 && n != 64 {
			return nil, p.errorf("bad float size %d", n)
		}
		return &flowgraph.FloatType{Size: n}, nil
	case p.pos >= len(p.text):
		return nil, p.errorf("expected a type, got end of type")
	default:
		return nil, p.errorf("expected a type")
	}
}

// sequence parses the "N x T" body of a vector or array type
// and the closing token.
func (p *typeParser) sequence(end string) (int, flowgraph.Type, error) {
	n, err := p.number()
	if err != nil {
		return 0, nil, err
	}
	if err := p.expect("x"); err != nil {
		return 0, nil, err
	}
	elem, err := p.typ()
	if err != nil {
		return 0, nil, err
	}
	if err := p.expect(end); err != nil {
		return 0, nil, err
	}
	return n, elem, nil
}
