// Copyright 2025 The elzar Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// lexLine splits one source line into tokens. Punctuation lexes as single
// characters, words and numbers as maximal runs, quoted strings as one
// token including the quotes. A ';' starts a comment running to the end of
// the line.
func lexLine(s string) ([]string, error) {
	var toks []string
	for i := 0; i < len(s); {
		ch := s[i]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\r':
			i++
		case ch == ';':
			return toks, nil
		case strings.IndexByte("()[]{}<>,:=", ch) >= 0:
			toks = append(toks, string(ch))
			i++
		case ch == '"':
			j := strings.IndexByte(s[i+1:], '"')
			if j < 0 {
				return nil, errors.New("unterminated string")
			}
			toks = append(toks, s[i:i+j+2])
			i += j + 2
		case ch == '%' || ch == '@' || ch == '!':
			j := i + 1
			for j < len(s) && isWordByte(s[j]) {
				j++
			}
			if j == i+1 {
				return nil, errors.Errorf("dangling %q", ch)
			}
			toks = append(toks, s[i:j])
			i = j
		case ch == '-' || (ch >= '0' && ch <= '9'):
			j := i + 1
			for j < len(s) && isNumByte(s[j], s[j-1]) {
				j++
			}
			toks = append(toks, s[i:j])
			i = j
		case isWordByte(ch):
			j := i + 1
			for j < len(s) && isWordByte(s[j]) {
				j++
			}
			toks = append(toks, s[i:j])
			i = j
		default:
			return nil, errors.Errorf("unexpected character %q", ch)
		}
	}
	return toks, nil
}

func isWordByte(ch byte) bool {
	return ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' ||
		ch >= '0' && ch <= '9' || ch == '_' || ch == '.' || ch == '$'
}

func isNumByte(ch, prev byte) bool {
	if ch >= '0' && ch <= '9' || ch == '.' || ch == 'x' || ch == 'X' ||
		ch >= 'a' && ch <= 'f' || ch >= 'A' && ch <= 'F' {
		return true
	}
	// Exponent sign.
	if (ch == '+' || ch == '-') && (prev == 'e' || prev == 'E') {
		return true
	}
	return false
}

// cursor walks one line's tokens.
type cursor struct {
	p    *parser
	toks []string
	pos  int
}

func (c *cursor) next() (string, error) {
	if c.pos >= len(c.toks) {
		return "", c.p.errf("unexpected end of line")
	}
	t := c.toks[c.pos]
	c.pos++
	return t, nil
}

func (c *cursor) peek() string {
	if c.pos >= len(c.toks) {
		return ""
	}
	return c.toks[c.pos]
}

func (c *cursor) peekIs(s string) bool { return c.peek() == s }

func (c *cursor) expect(s string) error {
	t, err := c.next()
	if err != nil {
		return err
	}
	if t != s {
		return c.p.errf("expected %q, got %q", s, t)
	}
	return nil
}

func (c *cursor) end() error {
	if c.pos != len(c.toks) {
		return c.p.errf("trailing %q", c.toks[c.pos])
	}
	return nil
}

func (c *cursor) global() (string, error) {
	t, err := c.next()
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(t, "@") {
		return "", c.p.errf("expected @name, got %q", t)
	}
	return t[1:], nil
}

func (c *cursor) local() (string, error) {
	t, err := c.next()
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(t, "%") {
		return "", c.p.errf("expected %%name, got %q", t)
	}
	return t[1:], nil
}

func (c *cursor) typ() (*Type, error) {
	t, err := c.next()
	if err != nil {
		return nil, err
	}
	switch t {
	case "void":
		return Void, nil
	case "float":
		return Float, nil
	case "double":
		return Double, nil
	case "ptr":
		return Ptr, nil
	case "label":
		return Label, nil
	case "<":
		n, err := c.intLit()
		if err != nil {
			return nil, err
		}
		if err := c.expect("x"); err != nil {
			return nil, err
		}
		elem, err := c.typ()
		if err != nil {
			return nil, err
		}
		if err := c.expect(">"); err != nil {
			return nil, err
		}
		return VecOf(elem, n), nil
	case "{":
		var fields []*Type
		for !c.peekIs("}") {
			if len(fields) > 0 {
				if err := c.expect(","); err != nil {
					return nil, err
				}
			}
			f, err := c.typ()
			if err != nil {
				return nil, err
			}
			fields = append(fields, f)
		}
		c.next() // "}"
		return StructOf(fields...), nil
	}
	if strings.HasPrefix(t, "i") {
		if bits, err := strconv.Atoi(t[1:]); err == nil && bits > 0 {
			return IntType(bits), nil
		}
	}
	return nil, c.p.errf("expected type, got %q", t)
}

// value reads one operand reference and resolves it with the given type.
func (c *cursor) value(t *Type) (Value, error) {
	tok, err := c.next()
	if err != nil {
		return nil, err
	}
	return c.p.resolve(tok, t)
}

// typedValue reads "<type> <ref>".
func (c *cursor) typedValue() (Value, error) {
	t, err := c.typ()
	if err != nil {
		return nil, err
	}
	return c.value(t)
}

func (c *cursor) intLit() (int, error) {
	t, err := c.next()
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(t, 0, 64)
	if err != nil {
		return 0, c.p.errf("expected integer, got %q", t)
	}
	return int(n), nil
}

func (c *cursor) intList() ([]int, error) {
	if err := c.expect("["); err != nil {
		return nil, err
	}
	var ns []int
	for !c.peekIs("]") {
		if len(ns) > 0 {
			if err := c.expect(","); err != nil {
				return nil, err
			}
		}
		n, err := c.intLit()
		if err != nil {
			return nil, err
		}
		ns = append(ns, n)
	}
	c.next() // "]"
	return ns, nil
}
