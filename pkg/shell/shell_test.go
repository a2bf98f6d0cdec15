package shell

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/liteshell/pkg/config"
	"github.com/umputun/liteshell/pkg/extension"
	"github.com/umputun/liteshell/pkg/settings"
)

func TestShell_Table(t *testing.T) {
	sh, out := prepShell(t, Params{})
	ctx := context.Background()

	require.NoError(t, sh.Execute(ctx, "CREATE TABLE t(id INTEGER, name TEXT, score REAL, data BLOB); "+
		"INSERT INTO t VALUES (1, 'foo', 1.5, X'0a0b'), (2, NULL, 2, NULL)"))
	assert.Equal(t, "2 rows affected\n", out.String())
	out.Reset()

	require.NoError(t, sh.Execute(ctx, "SELECT * FROM t ORDER BY id"))
	exp := "┌" + strings.Repeat("─", 27) + "┐\n" +
		"│ id │ name │ score │ data  │\n" +
		"╞" + strings.Repeat("═", 27) + "╡\n" +
		"│ 1  │ foo  │ 1.5   │ 0a 0b │\n" +
		"│ 2  │ NULL │ 2.0   │ NULL  │\n" +
		"└" + strings.Repeat("─", 27) + "┘\n"
	assert.Equal(t, exp, out.String())
	out.Reset()

	require.NoError(t, sh.Execute(ctx, "SELECT name FROM t WHERE id > 10"))
	assert.Equal(t, "┌──────┐\n│ name │\n╞══════╡\n└──────┘\n", out.String(), "empty result keeps the header")
	out.Reset()

	require.NoError(t, sh.Execute(ctx, "UPDATE t SET name = 'bar' WHERE id = 2"))
	assert.Equal(t, "1 row affected\n", out.String())
	out.Reset()

	require.NoError(t, sh.Execute(ctx, "SELECT 'a\nb' AS v, '日本' AS w"))
	assert.Contains(t, out.String(), "│ a\\nb │ 日本 │")
}

func TestShell_Modes(t *testing.T) {
	sh, out := prepShell(t, Params{})
	ctx := context.Background()
	require.NoError(t, sh.Execute(ctx, "CREATE TABLE t(id INTEGER, name TEXT, data BLOB, r REAL)"))
	require.NoError(t, sh.Execute(ctx, "INSERT INTO t VALUES (1, 'it''s', X'0aff', 3), (2, NULL, NULL, 0.25)"))
	out.Reset()

	require.NoError(t, sh.Execute(ctx, ".mode"))
	assert.Equal(t, "table\n", out.String())
	out.Reset()

	require.NoError(t, sh.Execute(ctx, ".mode sql people"))
	assert.Equal(t, config.ModeSQL, sh.Mode())
	require.NoError(t, sh.Execute(ctx, "SELECT * FROM t ORDER BY id"))
	assert.Equal(t, "INSERT INTO people VALUES(1, 'it''s', X'0aff', 3.0);\n"+
		"INSERT INTO people VALUES(2, NULL, NULL, 0.25);\n", out.String())
	out.Reset()

	require.NoError(t, sh.Execute(ctx, ".mode CSV"))
	require.NoError(t, sh.Execute(ctx, "SELECT id, name FROM t ORDER BY id"))
	assert.Equal(t, "id,name\n1,it's\n2,\n", out.String())
	out.Reset()
	require.NoError(t, sh.Execute(ctx, "SELECT id, name FROM t WHERE id < 0"))
	assert.Equal(t, "id,name\n", out.String())
	out.Reset()

	require.NoError(t, sh.Execute(ctx, ".mode null"))
	require.NoError(t, sh.Execute(ctx, "SELECT * FROM t"))
	require.NoError(t, sh.Execute(ctx, "DELETE FROM t WHERE id = 1"))
	assert.Empty(t, out.String())

	err := sh.Execute(ctx, ".mode fancy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown mode "fancy"`)
	assert.Equal(t, config.ModeNull, sh.Mode())
}

func TestShell_DotCommands(t *testing.T) {
	sh, out := prepShell(t, Params{})
	ctx := context.Background()
	require.NoError(t, sh.Execute(ctx, "CREATE TABLE b(x); CREATE TABLE a(y TEXT)"))

	require.NoError(t, sh.Execute(ctx, ".tables"))
	assert.Equal(t, "a\nb\n", out.String())
	out.Reset()

	require.NoError(t, sh.Execute(ctx, ".schema a"))
	assert.Equal(t, "CREATE TABLE a(y TEXT)\n", out.String())
	out.Reset()

	require.NoError(t, sh.Execute(ctx, "CREATE TABLE c(x INTEGER, y TEXT DEFAULT 'a,b', z REAL CHECK (z > 0))"))
	require.NoError(t, sh.Execute(ctx, ".schema c"))
	assert.Equal(t, "CREATE TABLE c(\n  x INTEGER,\n  y TEXT DEFAULT 'a,b',\n  z REAL CHECK (z > 0)\n)\n", out.String())
	out.Reset()
	require.NoError(t, sh.Execute(ctx, "DROP TABLE c"))

	err := sh.Execute(ctx, ".schema")
	require.EqualError(t, err, "provide a table name")
	err = sh.Execute(ctx, ".schema nope")
	require.EqualError(t, err, "table nope does not exist")

	require.NoError(t, sh.Execute(ctx, ".help"))
	assert.Contains(t, out.String(), ".csv NAME FILE")
	assert.Contains(t, out.String(), ".quit")

	assert.ErrorIs(t, sh.Execute(ctx, ".quit"), ErrQuit)
	assert.ErrorIs(t, sh.Execute(ctx, "  .exit"), ErrQuit)
	err = sh.Execute(ctx, ".nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command .nope")

	tables, err := sh.Tables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tables)
	res, _ := sh.Completer(ctx).Do([]rune("select * from "), 14)
	assert.Equal(t, [][]rune{[]rune("a "), []rune("b ")}, res)
}

func TestShell_SQLErrors(t *testing.T) {
	sh, out := prepShell(t, Params{})
	ctx := context.Background()

	assert.ErrorIs(t, sh.Execute(ctx, "SELECT ?"), ErrBindParams)
	assert.ErrorIs(t, sh.Execute(ctx, "CREATE TABLE x(a); INSERT INTO x VALUES(:a)"), ErrBindParams)
	_, err := sh.Tables(ctx)
	require.NoError(t, err)
	tables, _ := sh.Tables(ctx)
	assert.Empty(t, tables, "nothing executed when any statement needs parameters")

	require.NoError(t, sh.Execute(ctx, "SELECT '?' AS q"))
	assert.Contains(t, out.String(), "│ ? │")

	require.Error(t, sh.Execute(ctx, "SELEC 1"))
	require.Error(t, sh.Execute(ctx, "SELECT * FROM nope"))
	require.NoError(t, sh.Execute(ctx, "  "))
	require.NoError(t, sh.Execute(ctx, "-- just a comment"))
}

func TestShell_AttachCSV(t *testing.T) {
	sh, out := prepShell(t, Params{})
	ctx := context.Background()
	dir := t.TempDir()
	fname := filepath.Join(dir, "people.csv")
	require.NoError(t, os.WriteFile(fname, []byte("id,name\n1,alice\n2,bob\n"), 0o600))

	require.NoError(t, sh.Execute(ctx, ".csv people "+fname))
	assert.Equal(t, "table people attached\n", out.String())
	out.Reset()

	require.NoError(t, sh.Execute(ctx, ".mode csv"))
	require.NoError(t, sh.Execute(ctx, "SELECT name FROM people WHERE id = 2"))
	assert.Equal(t, "name\nbob\n", out.String())
	out.Reset()

	require.NoError(t, sh.Execute(ctx, ".csv raw "+fname+" header=false"))
	out.Reset()
	require.NoError(t, sh.Execute(ctx, "SELECT count(*) AS n FROM raw"))
	assert.Equal(t, "n\n3\n", out.String())

	require.Error(t, sh.Execute(ctx, ".csv only"))
	err := sh.Execute(ctx, ".csv missing "+filepath.Join(dir, "nope.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "can't attach csv")
}

func TestShell_Hints(t *testing.T) {
	st, err := settings.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	sh, out := prepShell(t, Params{Settings: st})
	ctx := context.Background()

	require.NoError(t, sh.Execute(ctx, `CREATE TABLE t(payload TEXT); INSERT INTO t VALUES('{ "a" : [1, 2] }')`))
	out.Reset()

	require.NoError(t, sh.Execute(ctx, ".hint payload"))
	assert.Equal(t, "none\n", out.String())
	out.Reset()

	require.NoError(t, sh.Execute(ctx, ".hint payload json"))
	require.NoError(t, sh.Execute(ctx, ".hint"))
	assert.Equal(t, "payload json\n", out.String())
	out.Reset()

	require.NoError(t, sh.Execute(ctx, "SELECT payload FROM t"))
	assert.Contains(t, out.String(), `│ {"a":[1,2]} │`)
	out.Reset()

	require.NoError(t, sh.Execute(ctx, ".hint payload none"))
	require.NoError(t, sh.Execute(ctx, "SELECT payload FROM t"))
	assert.Contains(t, out.String(), `│ { "a" : [1, 2] } │`)

	require.Error(t, sh.Execute(ctx, ".hint payload yaml"))

	noStore, _ := prepShell(t, Params{})
	require.Error(t, noStore.Execute(ctx, ".hint payload json"))
}

func TestShell_Pager(t *testing.T) {
	var paged []string
	pager := func(_ context.Context, content string) error {
		paged = append(paged, content)
		return nil
	}
	sh, out := prepShell(t, Params{PagerRows: 2, Pager: pager})
	ctx := context.Background()
	query := "WITH RECURSIVE c(n) AS (SELECT 1 UNION ALL SELECT n + 1 FROM c WHERE n < %d) SELECT n FROM c"

	require.NoError(t, sh.Execute(ctx, strings.Replace(query, "%d", "2", 1)))
	assert.Empty(t, paged)
	assert.Contains(t, out.String(), "│ 2 │")
	out.Reset()

	require.NoError(t, sh.Execute(ctx, strings.Replace(query, "%d", "3", 1)))
	require.Len(t, paged, 1)
	assert.Contains(t, paged[0], "│ 3 │")
	assert.Empty(t, out.String())

	require.NoError(t, sh.Execute(ctx, ".mode csv"))
	require.NoError(t, sh.Execute(ctx, strings.Replace(query, "%d", "3", 1)))
	assert.Len(t, paged, 1, "only table output is paged")
}

func TestShell_Color(t *testing.T) {
	plain, plainOut := prepShell(t, Params{})
	colored, colorOut := prepShell(t, Params{Color: true})
	ctx := context.Background()

	query := "SELECT 1 AS n, NULL AS z, 'x' AS s"
	require.NoError(t, plain.Execute(ctx, query))
	require.NoError(t, colored.Execute(ctx, query))
	assert.NotContains(t, plainOut.String(), "\x1b[")
	assert.Contains(t, colorOut.String(), "\x1b[")
	assert.Equal(t, plainOut.String(), stripANSI(colorOut.String()))

	require.NoError(t, colored.Execute(ctx, "CREATE TABLE t(a INTEGER)"))
	colorOut.Reset()
	require.NoError(t, colored.Execute(ctx, ".schema t"))
	assert.Equal(t, "CREATE TABLE t(a INTEGER)\n", stripANSI(colorOut.String()))
	assert.NotEqual(t, "CREATE TABLE t(a INTEGER)\n", colorOut.String())
}

func TestNew(t *testing.T) {
	_, err := New(context.Background(), Params{})
	require.Error(t, err)

	db := openDB(t)
	_, err = New(context.Background(), Params{DB: db, Mode: "fancy"})
	require.Error(t, err)

	sh, err := New(context.Background(), Params{DB: db})
	require.NoError(t, err)
	assert.Equal(t, config.ModeTable, sh.Mode())
	require.NoError(t, sh.Execute(context.Background(), "SELECT 1"), "nil output is discarded")
}

func TestSplitStatements(t *testing.T) {
	tbl := []struct {
		sql string
		exp []string
	}{
		{"SELECT 1", []string{"SELECT 1"}},
		{"SELECT 1; SELECT ';' ;", []string{"SELECT 1", "SELECT ';'"}},
		{";;", nil},
		{"SELECT 1; -- trailing", []string{"SELECT 1"}},
		{"CREATE TRIGGER tr AFTER INSERT ON t BEGIN INSERT INTO l VALUES(1); UPDATE c SET n = n + 1; END; SELECT 2",
			[]string{"CREATE TRIGGER tr AFTER INSERT ON t BEGIN INSERT INTO l VALUES(1); UPDATE c SET n = n + 1; END", "SELECT 2"}},
	}
	for _, tt := range tbl {
		t.Run(tt.sql, func(t *testing.T) {
			assert.Equal(t, tt.exp, splitStatements(tt.sql))
		})
	}
}

func TestShell_Trigger(t *testing.T) {
	sh, out := prepShell(t, Params{Mode: config.ModeCSV})
	ctx := context.Background()
	require.NoError(t, sh.Execute(ctx, "CREATE TABLE t(a); CREATE TABLE l(a); "+
		"CREATE TRIGGER tr AFTER INSERT ON t BEGIN INSERT INTO l VALUES(new.a * 10); END; "+
		"INSERT INTO t VALUES(4)"))
	out.Reset()
	require.NoError(t, sh.Execute(ctx, "SELECT a FROM l"))
	assert.Equal(t, "a\n40\n", out.String())
}

func prepShell(t *testing.T, p Params) (*Shell, *bytes.Buffer) {
	t.Helper()
	ext, err := extension.Load()
	require.NoError(t, err)
	t.Cleanup(func() { _ = ext.Close() })

	out := &bytes.Buffer{}
	p.DB = openDB(t)
	p.Out = out
	if p.PagerRows == 0 {
		p.PagerRows = 100
	}
	sh, err := New(context.Background(), p)
	require.NoError(t, err)
	return sh, out
}

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}
