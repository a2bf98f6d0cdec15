package shell

import (
	"strings"

	"github.com/go-pkgz/stringutils"
)

// statementKeywords are offered at the start of a statement
var statementKeywords = []string{
	"SELECT", "DELETE", "CREATE", "DROP", "ATTACH", "DETACH", "EXPLAIN", "PRAGMA", "WITH",
	"UPDATE", "ALTER", "BEGIN", "END", "COMMIT", "ROLLBACK",
}

// tableKeywords are followed by a table name
var tableKeywords = []string{"FROM", "JOIN", "INTO", "UPDATE", "TABLE"}

// Completer implements readline.AutoCompleter for sql and dot-commands
type Completer struct {
	Tables func() []string // table names, called on demand
}

// Do returns completion candidates for the word before pos. Candidates are the remaining parts of
// the matched items, the second value is the length of the word they complete.
func (c *Completer) Do(line []rune, pos int) ([][]rune, int) {
	if pos > len(line) {
		pos = len(line)
	}
	text := string(line[:pos])

	if strings.HasPrefix(strings.TrimLeft(text, " \t"), ".") {
		cmd := strings.TrimLeft(text, " \t")
		if strings.ContainsAny(cmd, " \t") {
			return nil, 0
		}
		names := make([]string, 0, len(dotCommands))
		for _, d := range dotCommands {
			names = append(names, d.name)
		}
		return suffixes(matchPrefix(names, cmd), cmd), len([]rune(cmd))
	}

	word := currentWord(text)
	prev := prevToken(strings.TrimSuffix(text, word))

	switch {
	case (prev.kind == tokSpace || prev.text == ";" || prev.text == "(") && word != "":
		// start of a statement or a sub-select
		if prev.text == "(" {
			return c.complete([]string{"SELECT", "WITH"}, word)
		}
		return c.complete(statementKeywords, word)
	case prev.kind == tokKeyword && stringutils.Contains(strings.ToUpper(prev.text), tableKeywords):
		if c.Tables == nil {
			return nil, 0
		}
		matched := matchPrefix(c.Tables(), word)
		return suffixes(matched, word), len([]rune(word))
	}
	return nil, 0
}

// complete matches keywords, all-lowercase input gets lowercase keywords
func (c *Completer) complete(items []string, word string) ([][]rune, int) {
	matched := matchPrefix(items, word)
	if word == strings.ToLower(word) {
		matched = stringutils.Map(matched, strings.ToLower)
	}
	return suffixes(matched, word), len([]rune(word))
}

// matchPrefix returns items starting with prefix, case-insensitive
func matchPrefix(items []string, prefix string) []string {
	return stringutils.Filter(items, func(s string) bool {
		return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
	})
}

// suffixes cuts the typed prefix off the matched items and adds a trailing space
func suffixes(items []string, prefix string) [][]rune {
	if len(items) == 0 {
		return nil
	}
	res := make([][]rune, 0, len(items))
	for _, s := range items {
		res = append(res, []rune(s[len(prefix):]+" "))
	}
	return res
}

// currentWord returns the word right before the cursor, empty if the cursor follows a non-word rune
func currentWord(text string) string {
	rs := []rune(text)
	i := len(rs)
	for i > 0 && isWordRune(rs[i-1]) {
		i--
	}
	return string(rs[i:])
}

// prevToken returns the last meaningful token of text. Empty text gives a space token,
// so the start of input looks like the start of a statement.
func prevToken(text string) token {
	toks := tokenize(text)
	for i := len(toks) - 1; i >= 0; i-- {
		if toks[i].kind != tokSpace && toks[i].kind != tokComment {
			return toks[i]
		}
	}
	return token{kind: tokSpace}
}
