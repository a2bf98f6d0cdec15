package shell

import (
	"strings"
	"unicode"

	"github.com/fatih/color"
)

type tokenKind int

const (
	tokSpace tokenKind = iota
	tokWord
	tokKeyword
	tokIdent // quoted identifier
	tokNumber
	tokString
	tokBlob
	tokComment
	tokParam
	tokPunct
)

type token struct {
	kind tokenKind
	text string
}

// keywords is the set of sqlite keywords
var keywords = func() map[string]bool {
	list := []string{
		"ABORT", "ACTION", "ADD", "AFTER", "ALL", "ALTER", "ALWAYS", "ANALYZE", "AND", "AS", "ASC",
		"ATTACH", "AUTOINCREMENT", "BEFORE", "BEGIN", "BETWEEN", "BY", "CASCADE", "CASE", "CAST",
		"CHECK", "COLLATE", "COLUMN", "COMMIT", "CONFLICT", "CONSTRAINT", "CREATE", "CROSS", "CURRENT",
		"CURRENT_DATE", "CURRENT_TIME", "CURRENT_TIMESTAMP", "DATABASE", "DEFAULT", "DEFERRABLE",
		"DEFERRED", "DELETE", "DESC", "DETACH", "DISTINCT", "DO", "DROP", "EACH", "ELSE", "END",
		"ESCAPE", "EXCEPT", "EXCLUDE", "EXCLUSIVE", "EXISTS", "EXPLAIN", "FAIL", "FILTER", "FIRST",
		"FOLLOWING", "FOR", "FOREIGN", "FROM", "FULL", "GENERATED", "GLOB", "GROUP", "GROUPS", "HAVING",
		"IF", "IGNORE", "IMMEDIATE", "IN", "INDEX", "INDEXED", "INITIALLY", "INNER", "INSERT", "INSTEAD",
		"INTERSECT", "INTO", "IS", "ISNULL", "JOIN", "KEY", "LAST", "LEFT", "LIKE", "LIMIT", "MATCH",
		"MATERIALIZED", "NATURAL", "NO", "NOT", "NOTHING", "NOTNULL", "NULL", "NULLS", "OF", "OFFSET",
		"ON", "OR", "ORDER", "OTHERS", "OUTER", "OVER", "PARTITION", "PLAN", "PRAGMA", "PRECEDING",
		"PRIMARY", "QUERY", "RAISE", "RANGE", "RECURSIVE", "REFERENCES", "REGEXP", "REINDEX", "RELEASE",
		"RENAME", "REPLACE", "RESTRICT", "RETURNING", "RIGHT", "ROLLBACK", "ROW", "ROWS", "SAVEPOINT",
		"SELECT", "SET", "STRICT", "TABLE", "TEMP", "TEMPORARY", "THEN", "TIES", "TO", "TRANSACTION",
		"TRIGGER", "UNBOUNDED", "UNION", "UNIQUE", "UPDATE", "USING", "VACUUM", "VALUES", "VIEW",
		"VIRTUAL", "WHEN", "WHERE", "WINDOW", "WITH", "WITHOUT",
	}
	res := make(map[string]bool, len(list))
	for _, k := range list {
		res[k] = true
	}
	return res
}()

// tokenize splits sql into tokens. Concatenated token texts always give back the input,
// unterminated strings and comments run to the end of the input.
func tokenize(sql string) []token {
	var res []token
	rs := []rune(sql)
	for i := 0; i < len(rs); {
		start := i
		kind := tokPunct
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			kind = tokSpace
			for i < len(rs) && unicode.IsSpace(rs[i]) {
				i++
			}
		case r == '-' && peek(rs, i+1) == '-':
			kind = tokComment
			for i < len(rs) && rs[i] != '\n' {
				i++
			}
		case r == '/' && peek(rs, i+1) == '*':
			kind = tokComment
			i += 2
			for i < len(rs) && (rs[i] != '*' || peek(rs, i+1) != '/') {
				i++
			}
			i = min(i+2, len(rs))
		case (r == 'x' || r == 'X') && peek(rs, i+1) == '\'':
			kind = tokBlob
			i = skipQuoted(rs, i+1, '\'')
		case r == '\'':
			kind = tokString
			i = skipQuoted(rs, i, '\'')
		case r == '"' || r == '`':
			kind = tokIdent
			i = skipQuoted(rs, i, r)
		case r == '[':
			kind = tokIdent
			for i < len(rs) && rs[i] != ']' {
				i++
			}
			i = min(i+1, len(rs))
		case isDigit(r) || (r == '.' && isDigit(peek(rs, i+1))):
			kind = tokNumber
			i = skipNumber(rs, i)
		case r == '?':
			kind = tokParam
			i++
			for i < len(rs) && isDigit(rs[i]) {
				i++
			}
		case (r == ':' || r == '@' || r == '$') && isWordRune(peek(rs, i+1)):
			kind = tokParam
			i++
			for i < len(rs) && isWordRune(rs[i]) {
				i++
			}
		case isWordRune(r):
			kind = tokWord
			for i < len(rs) && isWordRune(rs[i]) {
				i++
			}
			if keywords[strings.ToUpper(string(rs[start:i]))] {
				kind = tokKeyword
			}
		default:
			i++
		}
		res = append(res, token{kind: kind, text: string(rs[start:i])})
	}
	return res
}

// hasParams reports whether sql refers to bind parameters
func hasParams(sql string) bool {
	for _, t := range tokenize(sql) {
		if t.kind == tokParam {
			return true
		}
	}
	return false
}

func skipQuoted(rs []rune, i int, q rune) int {
	i++ // opening quote
	for i < len(rs) {
		if rs[i] == q {
			if peek(rs, i+1) == q { // doubled quote is an escaped one
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return i
}

func skipNumber(rs []rune, i int) int {
	if rs[i] == '0' && (peek(rs, i+1) == 'x' || peek(rs, i+1) == 'X') {
		i += 2
		for i < len(rs) && (isDigit(rs[i]) || strings.ContainsRune("abcdefABCDEF", rs[i])) {
			i++
		}
		return i
	}
	for i < len(rs) && (isDigit(rs[i]) || rs[i] == '.' || rs[i] == '_') {
		i++
	}
	if i < len(rs) && (rs[i] == 'e' || rs[i] == 'E') {
		j := i + 1
		if j < len(rs) && (rs[j] == '+' || rs[j] == '-') {
			j++
		}
		if j < len(rs) && isDigit(rs[j]) {
			i = j
			for i < len(rs) && isDigit(rs[i]) {
				i++
			}
		}
	}
	return i
}

func peek(rs []rune, i int) rune {
	if i < len(rs) {
		return rs[i]
	}
	return 0
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func isWordRune(r rune) bool { return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) }

// Highlighter colorizes sql with ansi sequences
type Highlighter struct {
	enabled bool
	styles  map[tokenKind]*color.Color
}

// NewHighlighter makes a highlighter, disabled one returns sql as is
func NewHighlighter(enabled bool) *Highlighter {
	style := func(attrs ...color.Attribute) *color.Color {
		c := color.New(attrs...)
		c.EnableColor() // colors are decided by the shell, not by color.NoColor
		return c
	}
	return &Highlighter{
		enabled: enabled,
		styles: map[tokenKind]*color.Color{
			tokKeyword: style(color.FgBlue, color.Bold),
			tokNumber:  style(color.FgYellow, color.Bold),
			tokString:  style(color.FgMagenta, color.Bold),
			tokBlob:    style(color.FgMagenta, color.Bold),
			tokComment: style(color.FgGreen, color.Bold),
			tokParam:   style(color.FgMagenta, color.Bold),
		},
	}
}

// Enabled reports whether the highlighter produces colors
func (h *Highlighter) Enabled() bool { return h.enabled }

// Highlight returns sql with ansi colors
func (h *Highlighter) Highlight(sql string) string {
	if !h.enabled {
		return sql
	}
	var b strings.Builder
	for _, t := range tokenize(sql) {
		if c, ok := h.styles[t.kind]; ok {
			b.WriteString(c.Sprint(t.text))
			continue
		}
		b.WriteString(t.text)
	}
	return b.String()
}

// Paint implements readline.Painter, dot-commands are not highlighted
func (h *Highlighter) Paint(line []rune, _ int) []rune {
	if !h.enabled || len(line) == 0 || line[0] == '.' {
		return line
	}
	return []rune(h.Highlight(string(line)))
}
