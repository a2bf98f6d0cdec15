package shell

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

var ansiRe = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(s string) string { return ansiRe.ReplaceAllString(s, "") }

func TestTokenize(t *testing.T) {
	tbl := []struct {
		sql string
		exp []token
	}{
		{"SELECT a", []token{{tokKeyword, "SELECT"}, {tokSpace, " "}, {tokWord, "a"}}},
		{"select 'it''s'", []token{{tokKeyword, "select"}, {tokSpace, " "}, {tokString, "'it''s'"}}},
		{`"a b".c`, []token{{tokIdent, `"a b"`}, {tokPunct, "."}, {tokWord, "c"}}},
		{"[x y]`z`", []token{{tokIdent, "[x y]"}, {tokIdent, "`z`"}}},
		{"1.5e3 .5 0x1F 7", []token{{tokNumber, "1.5e3"}, {tokSpace, " "}, {tokNumber, ".5"}, {tokSpace, " "},
			{tokNumber, "0x1F"}, {tokSpace, " "}, {tokNumber, "7"}}},
		{"X'0a' x", []token{{tokBlob, "X'0a'"}, {tokSpace, " "}, {tokWord, "x"}}},
		{"a -- note\nb", []token{{tokWord, "a"}, {tokSpace, " "}, {tokComment, "-- note"}, {tokSpace, "\n"}, {tokWord, "b"}}},
		{"/* c */1", []token{{tokComment, "/* c */"}, {tokNumber, "1"}}},
		{"?1 ? :name @p $v", []token{{tokParam, "?1"}, {tokSpace, " "}, {tokParam, "?"}, {tokSpace, " "},
			{tokParam, ":name"}, {tokSpace, " "}, {tokParam, "@p"}, {tokSpace, " "}, {tokParam, "$v"}}},
		{"a>=b;", []token{{tokWord, "a"}, {tokPunct, ">"}, {tokPunct, "="}, {tokWord, "b"}, {tokPunct, ";"}}},
		{"'open", []token{{tokString, "'open"}}},
		{"/* open", []token{{tokComment, "/* open"}}},
		{"имя", []token{{tokWord, "имя"}}},
	}
	for _, tt := range tbl {
		t.Run(tt.sql, func(t *testing.T) {
			assert.Equal(t, tt.exp, tokenize(tt.sql))
		})
	}
}

func TestTokenize_Lossless(t *testing.T) {
	for _, sql := range []string{
		"SELECT * FROM t WHERE a = 'x' -- c",
		"CREATE TABLE \"t\"(a INTEGER, b TEXT) /* tail",
		"select x'ab', 1e+5, :p, ?, [weird ident",
		"",
	} {
		var b strings.Builder
		for _, tok := range tokenize(sql) {
			b.WriteString(tok.text)
		}
		assert.Equal(t, sql, b.String())
	}
}

func TestHasParams(t *testing.T) {
	assert.True(t, hasParams("SELECT ?"))
	assert.True(t, hasParams("SELECT * FROM t WHERE a = :a"))
	assert.True(t, hasParams("SELECT @x"))
	assert.True(t, hasParams("SELECT $x"))
	assert.False(t, hasParams("SELECT '?', ':a', \"@x\""))
	assert.False(t, hasParams("SELECT 1 -- what?"))
}

func TestHighlighter(t *testing.T) {
	sql := "SELECT name, 42 FROM t WHERE s = 'x' -- note"

	plain := NewHighlighter(false)
	assert.Equal(t, sql, plain.Highlight(sql))
	assert.Equal(t, []rune(sql), plain.Paint([]rune(sql), 0))
	assert.False(t, plain.Enabled())

	hl := NewHighlighter(true)
	res := hl.Highlight(sql)
	assert.NotEqual(t, sql, res)
	assert.Contains(t, res, "\x1b[")
	assert.Equal(t, sql, stripANSI(res))
	assert.NotContains(t, stripANSI(hl.Highlight("name")), "\x1b[", "identifiers are not colored")
	assert.Equal(t, "name", hl.Highlight("name"))

	assert.Equal(t, []rune(".schema select"), hl.Paint([]rune(".schema select"), 3), "dot-commands are not painted")
	assert.Equal(t, sql, stripANSI(string(hl.Paint([]rune(sql), 0))))
}
