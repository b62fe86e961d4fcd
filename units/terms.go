package units

import (
	"fmt"
	"strconv"
	"strings"
)

// term is one UCUM atom raised to an integer exponent, e.g. m2 or s-1.
type term struct {
	atom     string
	exponent int
}

// terms is a product of terms in order of first appearance. Atoms are
// unique and exponents are never zero.
type terms []term

func (t terms) mul(o terms) terms {
	out := make(terms, len(t), len(t)+len(o))
	copy(out, t)
	for _, x := range o {
		found := false
		for i := range out {
			if out[i].atom == x.atom {
				out[i].exponent += x.exponent
				found = true
				break
			}
		}
		if !found {
			out = append(out, x)
		}
	}
	kept := out[:0]
	for _, x := range out {
		if x.exponent != 0 {
			kept = append(kept, x)
		}
	}
	return kept
}

func (t terms) inverse() terms {
	out := make(terms, len(t))
	for i, x := range t {
		out[i] = term{atom: x.atom, exponent: -x.exponent}
	}
	return out
}

// String renders t as mul-separated numerator and denominator, e.g.
// kg.m/(s2.A). The empty product renders as "1".
func (t terms) String() string {
	var num, den []string
	for _, x := range t {
		switch {
		case x.exponent > 0:
			num = append(num, formatTerm(x.atom, x.exponent))
		case x.exponent < 0:
			den = append(den, formatTerm(x.atom, -x.exponent))
		}
	}
	n := strings.Join(num, ".")
	if n == "" {
		n = "1"
	}
	if len(den) == 0 {
		return n
	}
	d := strings.Join(den, ".")
	if len(den) > 1 {
		d = "(" + d + ")"
	}
	return n + "/" + d
}

func formatTerm(atom string, exponent int) string {
	if exponent == 1 {
		return atom
	}
	return atom + strconv.Itoa(exponent)
}

// parseTerms decomposes a UCUM unit expression into its terms. It covers
// the multiplication, division and grouping syntax; atoms are not checked
// against the UCUM tables.
func parseTerms(unit string) (terms, error) {
	p := &termParser{s: strings.TrimSpace(unit)}
	if p.s == "" {
		return nil, nil
	}
	t, err := p.expr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.s) {
		return nil, fmt.Errorf("unexpected %q at offset %d in unit %q", p.s[p.pos], p.pos, p.s)
	}
	return t, nil
}

type termParser struct {
	s   string
	pos int
}

func (p *termParser) peek() byte {
	if p.pos >= len(p.s) {
		return 0
	}
	return p.s[p.pos]
}

func (p *termParser) expr() (terms, error) {
	var acc terms
	op := byte('.')
	if p.peek() == '/' {
		p.pos++
		op = '/'
	}
	for {
		c, err := p.component()
		if err != nil {
			return nil, err
		}
		if op == '/' {
			c = c.inverse()
		}
		acc = acc.mul(c)

		switch p.peek() {
		case '.', '/':
			op = p.s[p.pos]
			p.pos++
		default:
			return acc, nil
		}
	}
}

func (p *termParser) component() (terms, error) {
	if p.peek() == '(' {
		p.pos++
		t, err := p.expr()
		if err != nil {
			return nil, err
		}
		if p.peek() != ')' {
			return nil, fmt.Errorf("missing ')' in unit %q", p.s)
		}
		p.pos++
		return t, nil
	}

	start := p.pos
	if err := p.skipAtom(); err != nil {
		return nil, err
	}
	atom := p.s[start:p.pos]
	if atom == "" {
		return nil, fmt.Errorf("empty term at offset %d in unit %q", start, p.s)
	}
	base, exponent := splitExponent(atom)
	if base == "1" && exponent == 1 {
		return nil, nil
	}
	return terms{{atom: base, exponent: exponent}}, nil
}

// skipAtom advances past one atom. Square brackets and annotations may
// contain operator characters.
func (p *termParser) skipAtom() error {
	for p.pos < len(p.s) {
		switch c := p.s[p.pos]; c {
		case '.', '/', '(', ')':
			return nil
		case '[', '{':
			closing := byte(']')
			if c == '{' {
				closing = '}'
			}
			end := strings.IndexByte(p.s[p.pos:], closing)
			if end < 0 {
				return fmt.Errorf("unterminated %q in unit %q", c, p.s)
			}
			p.pos += end + 1
		default:
			p.pos++
		}
	}
	return nil
}

// splitExponent splits a trailing signed exponent from atom. Numeric
// factors such as 10*3 and bare numbers carry no exponent.
func splitExponent(atom string) (string, int) {
	annotation := ""
	if i := strings.IndexByte(atom, '{'); i > 0 {
		atom, annotation = atom[:i], atom[i:]
	}
	if strings.ContainsAny(atom, "*^{") {
		return atom + annotation, 1
	}
	i := len(atom)
	for i > 0 && atom[i-1] >= '0' && atom[i-1] <= '9' {
		i--
	}
	if i == len(atom) || i == 0 {
		return atom + annotation, 1
	}
	if atom[i-1] == '+' || atom[i-1] == '-' {
		i--
	}
	if i == 0 {
		return atom + annotation, 1
	}
	exponent, err := strconv.Atoi(atom[i:])
	if err != nil {
		return atom + annotation, 1
	}
	return atom[:i] + annotation, exponent
}
