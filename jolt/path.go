package jolt

import (
	"fmt"
	"strconv"
	"strings"
)

// splitPath splits s on unescaped sep outside parentheses and brackets.
func splitPath(s string, sep byte) []string {
	var (
		parts []string
		depth int
		start int
	)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\\':
			i++
		case c == '(' || c == '[':
			depth++
		case c == ')' || c == ']':
			depth--
		case c == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

// parseLevelRef reads the inside of "(N,rest)"; rest may be empty.
func parseLevelRef(s string) (int, string, error) {
	if !strings.HasPrefix(s, "(") || !strings.HasSuffix(s, ")") {
		return 0, "", fmt.Errorf("malformed reference %q", s)
	}
	inner := s[1 : len(s)-1]
	head, rest, _ := strings.Cut(inner, ",")
	n, err := strconv.Atoi(strings.TrimSpace(head))
	if err != nil || n < 0 {
		return 0, "", fmt.Errorf("malformed level in %q", s)
	}
	return n, strings.TrimSpace(rest), nil
}

func lookupPath(rest string) []string {
	if rest == "" {
		return nil
	}
	return strings.Split(rest, ".")
}

type pieceKind int

const (
	pieceLiteral pieceKind = iota
	pieceCapture
	pieceLookup
)

// piece is part of an output key: literal text, "&(N,M)" or "@(N,path)".
type piece struct {
	kind  pieceKind
	text  string
	level int
	group int
	path  []string
}

func (p piece) eval(frames stack) (string, error) {
	switch p.kind {
	case pieceCapture:
		return frames.capture(p.level, p.group)
	case pieceLookup:
		v, ok := frames.lookup(p.level, p.path)
		if !ok {
			return "", fmt.Errorf("@(%d,%s) not found", p.level, strings.Join(p.path, "."))
		}
		return keyString(v), nil
	}
	return p.text, nil
}

// closingParen returns the index of the ')' matching the '(' at s[open].
func closingParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func parsePieces(s string) ([]piece, error) {
	var (
		out []piece
		lit strings.Builder
	)
	flush := func() {
		if lit.Len() > 0 {
			out = append(out, piece{kind: pieceLiteral, text: lit.String()})
			lit.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			i++
			lit.WriteByte(s[i])
		case c == '&':
			flush()
			p := piece{kind: pieceCapture}
			switch {
			case i+1 < len(s) && s[i+1] == '(':
				end := closingParen(s, i+1)
				if end < 0 {
					return nil, specErrorf("unclosed reference in %q", s)
				}
				level, rest, err := parseLevelRef(s[i+1 : end+1])
				if err != nil {
					return nil, specErrorf("%v", err)
				}
				p.level = level
				if rest != "" {
					if p.group, err = strconv.Atoi(rest); err != nil {
						return nil, specErrorf("malformed capture group in %q", s)
					}
				}
				i = end
			default:
				j := i + 1
				for j < len(s) && s[j] >= '0' && s[j] <= '9' {
					j++
				}
				if j > i+1 {
					p.level, _ = strconv.Atoi(s[i+1 : j])
				}
				i = j - 1
			}
			out = append(out, p)
		case c == '@' && i+1 < len(s) && s[i+1] == '(':
			flush()
			end := closingParen(s, i+1)
			if end < 0 {
				return nil, specErrorf("unclosed reference in %q", s)
			}
			level, rest, err := parseLevelRef(s[i+1 : end+1])
			if err != nil {
				return nil, specErrorf("%v", err)
			}
			out = append(out, piece{kind: pieceLookup, level: level, path: lookupPath(rest)})
			i = end
		default:
			lit.WriteByte(c)
		}
	}
	flush()
	return out, nil
}

func evalPieces(pieces []piece, frames stack) (string, error) {
	var sb strings.Builder
	for _, p := range pieces {
		s, err := p.eval(frames)
		if err != nil {
			return "", err
		}
		sb.WriteString(s)
	}
	return sb.String(), nil
}

type elemKind int

const (
	elemKey elemKind = iota
	elemIndex
	elemAppend
)

type outElem struct {
	kind   elemKind
	pieces []piece
}

// outPath is a compiled shift destination such as "categories[]" or "[&1].value".
type outPath []outElem

func parseOutPath(s string) (outPath, error) {
	if strings.TrimSpace(s) == "" {
		return nil, specErrorf("empty output path")
	}
	var out outPath
	for _, seg := range splitPath(s, '.') {
		key, bracket := seg, ""
		if strings.HasSuffix(seg, "]") {
			open := strings.LastIndex(seg, "[")
			if open < 0 || (open > 0 && seg[open-1] == '\\') {
				return nil, specErrorf("malformed index in %q", s)
			}
			key, bracket = seg[:open], seg[open:]
		}
		if key != "" {
			pieces, err := parsePieces(key)
			if err != nil {
				return nil, err
			}
			out = append(out, outElem{kind: elemKey, pieces: pieces})
		}
		switch {
		case bracket == "[]":
			out = append(out, outElem{kind: elemAppend})
		case bracket != "":
			pieces, err := parsePieces(bracket[1 : len(bracket)-1])
			if err != nil {
				return nil, err
			}
			out = append(out, outElem{kind: elemIndex, pieces: pieces})
		case key == "":
			return nil, specErrorf("empty segment in %q", s)
		}
	}
	return out, nil
}

type target struct {
	kind  elemKind
	key   string
	index int
}

func (p outPath) resolve(frames stack) ([]target, error) {
	out := make([]target, len(p))
	for i, e := range p {
		out[i].kind = e.kind
		switch e.kind {
		case elemKey:
			key, err := evalPieces(e.pieces, frames)
			if err != nil {
				return nil, err
			}
			out[i].key = key
		case elemIndex:
			raw, err := evalPieces(e.pieces, frames)
			if err != nil {
				return nil, err
			}
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("index %q is not a non-negative integer", raw)
			}
			out[i].index = n
		}
	}
	return out, nil
}

// put writes value at path inside container and returns the new container.
// Writing a key that already holds a value turns it into a list.
func put(container any, path []target, value any) (any, error) {
	t, last := path[0], len(path) == 1
	switch t.kind {
	case elemKey:
		var m map[string]any
		switch c := container.(type) {
		case nil:
			m = make(map[string]any)
		case map[string]any:
			m = c
		default:
			return nil, fmt.Errorf("cannot write key %q into %T", t.key, container)
		}
		if last {
			existing, present := m[t.key]
			switch {
			case !present:
				m[t.key] = value
			default:
				if l, ok := existing.([]any); ok {
					m[t.key] = append(l, value)
				} else {
					m[t.key] = []any{existing, value}
				}
			}
			return m, nil
		}
		child, err := put(m[t.key], path[1:], value)
		if err != nil {
			return nil, err
		}
		m[t.key] = child
		return m, nil
	default:
		var l []any
		switch c := container.(type) {
		case nil:
		case []any:
			l = c
		default:
			return nil, fmt.Errorf("cannot index into %T", container)
		}
		i := t.index
		if t.kind == elemAppend {
			i = len(l)
		}
		for len(l) <= i {
			l = append(l, nil)
		}
		if last {
			l[i] = value
			return l, nil
		}
		child, err := put(l[i], path[1:], value)
		if err != nil {
			return nil, err
		}
		l[i] = child
		return l, nil
	}
}
