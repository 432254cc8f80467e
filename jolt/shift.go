package jolt

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

type lhsKind int

const (
	lhsLiteral lhsKind = iota
	lhsPattern
	lhsAt
	lhsDollar
	lhsHash
)

type shiftNode struct {
	lhs  string
	kind lhsKind

	patterns []*regexp.Regexp // lhsPattern alternatives
	level    int              // lhsAt, lhsDollar
	group    int              // lhsDollar
	path     []string         // lhsAt
	literal  string           // lhsHash

	outputs []outPath  // leaf destinations
	child   *shiftSpec // nested spec
}

// shiftSpec is one compiled level of a shift spec.
type shiftSpec struct {
	literals map[string]*shiftNode
	patterns []*shiftNode
	specials []*shiftNode
}

// hasUnescaped reports whether s contains c not preceded by a backslash.
func hasUnescaped(s string, c byte) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' {
			i++
			continue
		}
		if s[i] == c {
			return true
		}
	}
	return false
}

func compileShift(spec map[string]any) (*shiftSpec, error) {
	s := &shiftSpec{literals: make(map[string]*shiftNode)}
	keys := sortedKeys(spec)
	for _, k := range keys {
		n, err := compileShiftNode(k, spec[k])
		if err != nil {
			return nil, err
		}
		switch n.kind {
		case lhsLiteral:
			for _, alt := range splitPath(k, '|') {
				s.literals[unescape(alt)] = n
			}
		case lhsPattern:
			s.patterns = append(s.patterns, n)
		default:
			s.specials = append(s.specials, n)
		}
	}
	// a bare "*" is tried after every more specific pattern
	sort.SliceStable(s.patterns, func(i, j int) bool {
		return s.patterns[i].lhs != "*" && s.patterns[j].lhs == "*"
	})
	return s, nil
}

func compileShiftNode(key string, value any) (*shiftNode, error) {
	n := &shiftNode{lhs: key}
	switch {
	case strings.HasPrefix(key, "@"):
		n.kind = lhsAt
		rest := key[1:]
		switch {
		case rest == "":
		case strings.HasPrefix(rest, "("):
			level, path, err := parseLevelRef(rest)
			if err != nil {
				return nil, specErrorf("%v", err)
			}
			n.level, n.path = level, lookupPath(path)
		default:
			level, err := strconv.Atoi(rest)
			if err != nil {
				return nil, specErrorf("malformed key %q", key)
			}
			n.level = level
		}
	case strings.HasPrefix(key, "$"):
		n.kind = lhsDollar
		rest := key[1:]
		switch {
		case rest == "":
		case strings.HasPrefix(rest, "("):
			level, group, err := parseLevelRef(rest)
			if err != nil {
				return nil, specErrorf("%v", err)
			}
			n.level = level
			if group != "" {
				if n.group, err = strconv.Atoi(group); err != nil {
					return nil, specErrorf("malformed key %q", key)
				}
			}
		default:
			level, err := strconv.Atoi(rest)
			if err != nil {
				return nil, specErrorf("malformed key %q", key)
			}
			n.level = level
		}
	case strings.HasPrefix(key, "#"):
		n.kind = lhsHash
		n.literal = key[1:]
	case hasUnescaped(key, '*'):
		n.kind = lhsPattern
		for _, alt := range splitPath(key, '|') {
			n.patterns = append(n.patterns, wildcardPattern(alt))
		}
	default:
		n.kind = lhsLiteral
	}

	switch v := value.(type) {
	case string:
		p, err := parseOutPath(v)
		if err != nil {
			return nil, err
		}
		n.outputs = []outPath{p}
	case []any:
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, specErrorf("output list of %q must hold strings", key)
			}
			p, err := parseOutPath(s)
			if err != nil {
				return nil, err
			}
			n.outputs = append(n.outputs, p)
		}
	case map[string]any:
		if n.kind == lhsHash || n.kind == lhsDollar {
			return nil, specErrorf("%q must map to an output path", key)
		}
		child, err := compileShift(v)
		if err != nil {
			return nil, err
		}
		n.child = child
	default:
		return nil, specErrorf("value of %q must be a path, a list of paths or an object", key)
	}
	return n, nil
}

// wildcardPattern turns "rating-*" into ^rating-(.*)$; escaped stars are literal.
func wildcardPattern(alt string) *regexp.Regexp {
	var (
		sb  strings.Builder
		lit strings.Builder
	)
	sb.WriteString("^")
	for i := 0; i < len(alt); i++ {
		switch c := alt[i]; {
		case c == '\\' && i+1 < len(alt):
			i++
			lit.WriteByte(alt[i])
		case c == '*':
			sb.WriteString(regexp.QuoteMeta(lit.String()))
			lit.Reset()
			sb.WriteString("(.*?)")
		default:
			lit.WriteByte(c)
		}
	}
	sb.WriteString(regexp.QuoteMeta(lit.String()))
	sb.WriteString("$")
	return regexp.MustCompile(sb.String())
}

func (n *shiftNode) match(key string) ([]string, bool) {
	for _, re := range n.patterns {
		if m := re.FindStringSubmatch(key); m != nil {
			return m, true
		}
	}
	return nil, false
}

func (s *shiftSpec) transform(input any) (any, error) {
	w := &writer{}
	if err := s.apply(input, rootStack(input), w); err != nil {
		return nil, err
	}
	return w.root, nil
}

type writer struct {
	root any
}

func (w *writer) write(p outPath, value any, frames stack) error {
	targets, err := p.resolve(frames)
	if err != nil {
		return err
	}
	root, err := put(w.root, targets, value)
	if err != nil {
		return err
	}
	w.root = root
	return nil
}

// apply walks in, the input reached at frames[0].
func (s *shiftSpec) apply(in any, frames stack, w *writer) error {
	for _, n := range s.specials {
		cur := frames[0]
		switch n.kind {
		case lhsAt:
			data, ok := frames.lookup(n.level, n.path)
			if !ok {
				continue
			}
			if err := n.emit(data, frames.push(frame{key: cur.key, caps: cur.caps, value: data}), w); err != nil {
				return err
			}
		case lhsDollar:
			key, err := frames.capture(n.level, n.group)
			if err != nil {
				return err
			}
			if err := n.emit(key, frames.push(frame{key: key, caps: []string{key}, value: key}), w); err != nil {
				return err
			}
		case lhsHash:
			lit := n.literal
			if err := n.emit(lit, frames.push(frame{key: lit, caps: []string{lit}, value: lit}), w); err != nil {
				return err
			}
		}
	}

	switch v := in.(type) {
	case nil:
		return nil
	case map[string]any:
		for _, k := range sortedKeys(v) {
			if err := s.match(k, v[k], frames, w); err != nil {
				return err
			}
		}
	case []any:
		for i, e := range v {
			if err := s.match(strconv.Itoa(i), e, frames, w); err != nil {
				return err
			}
		}
	default:
		// a scalar is matched against the keys as if it were one
		return s.match(keyString(v), nil, frames, w)
	}
	return nil
}

func (s *shiftSpec) match(key string, value any, frames stack, w *writer) error {
	if n, ok := s.literals[key]; ok {
		return n.emit(value, frames.push(frame{key: key, caps: []string{key}, value: value}), w)
	}
	for _, n := range s.patterns {
		if caps, ok := n.match(key); ok {
			return n.emit(value, frames.push(frame{key: key, caps: caps, value: value}), w)
		}
	}
	return nil
}

func (n *shiftNode) emit(value any, frames stack, w *writer) error {
	if n.child != nil {
		return n.child.apply(value, frames, w)
	}
	for _, p := range n.outputs {
		if err := w.write(p, value, frames); err != nil {
			return err
		}
	}
	return nil
}
