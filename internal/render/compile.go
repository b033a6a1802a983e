package render

import (
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z][A-Za-z0-9_.]*)\s*\}\}`)

type tokenKind int

const (
	tokenLiteral tokenKind = iota
	tokenVariable
)

type token struct {
	kind tokenKind
	// text is the literal text, or for variables the raw placeholder as written.
	text string
	key  string
}

// compiled is a template part split into literal and variable tokens.
type compiled struct {
	tokens []token
	keys   []string
}

func compile(src string) compiled {
	var c compiled
	seen := make(map[string]bool)

	pos := 0
	for _, m := range placeholderPattern.FindAllStringSubmatchIndex(src, -1) {
		if m[0] > pos {
			c.tokens = append(c.tokens, token{kind: tokenLiteral, text: src[pos:m[0]]})
		}
		key := src[m[2]:m[3]]
		c.tokens = append(c.tokens, token{kind: tokenVariable, text: src[m[0]:m[1]], key: key})
		if !seen[key] {
			seen[key] = true
			c.keys = append(c.keys, key)
		}
		pos = m[1]
	}
	if pos < len(src) {
		c.tokens = append(c.tokens, token{kind: tokenLiteral, text: src[pos:]})
	}

	return c
}

// execute substitutes values; lookup returns false for keys without a value,
// whose placeholders are emitted unchanged.
func (c compiled) execute(lookup func(key string) (string, bool)) (string, []string) {
	var b strings.Builder
	var unresolved []string

	for _, t := range c.tokens {
		if t.kind == tokenLiteral {
			b.WriteString(t.text)
			continue
		}
		v, ok := lookup(t.key)
		if !ok {
			unresolved = append(unresolved, t.key)
			b.WriteString(t.text)
			continue
		}
		b.WriteString(v)
	}

	return b.String(), unresolved
}
