package shell

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/chzyer/readline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/liteshell/pkg/config"
)

type lineResp struct {
	line string
	err  error
}

// fakeReader returns prepared lines, then io.EOF
type fakeReader struct {
	lines  []lineResp
	closed bool
}

func (f *fakeReader) Readline() (string, error) {
	if len(f.lines) == 0 {
		return "", io.EOF
	}
	r := f.lines[0]
	f.lines = f.lines[1:]
	return r.line, r.err
}

func (f *fakeReader) Close() error {
	f.closed = true
	return nil
}

func TestShell_Repl(t *testing.T) {
	ctx := context.Background()

	t.Run("quit stops the loop", func(t *testing.T) {
		sh, out := prepShell(t, Params{Mode: config.ModeCSV})
		rd := &fakeReader{lines: []lineResp{{line: "SELECT 1 AS x"}, {line: "SELECT nope"}, {line: ".quit"}, {line: "SELECT 2 AS y"}}}
		errOut := &bytes.Buffer{}
		require.NoError(t, sh.Repl(ctx, rd, errOut))
		assert.Equal(t, "x\n1\n", out.String())
		assert.Contains(t, errOut.String(), "Error: ")
		assert.Contains(t, errOut.String(), "nope")
		assert.Len(t, rd.lines, 1, "line after .quit is not read")
		assert.True(t, rd.closed)
	})

	t.Run("eof", func(t *testing.T) {
		sh, out := prepShell(t, Params{Mode: config.ModeCSV})
		rd := &fakeReader{lines: []lineResp{{line: "SELECT 1 AS x"}}}
		require.NoError(t, sh.Repl(ctx, rd, io.Discard))
		assert.Equal(t, "x\n1\n", out.String())
	})

	t.Run("interrupt", func(t *testing.T) {
		sh, out := prepShell(t, Params{Mode: config.ModeCSV})
		rd := &fakeReader{lines: []lineResp{
			{line: "SELECT 3", err: readline.ErrInterrupt}, // drops the typed line
			{line: "SELECT 1 AS x"},
			{line: "", err: readline.ErrInterrupt},
			{line: "SELECT 2 AS y"},
		}}
		require.NoError(t, sh.Repl(ctx, rd, io.Discard))
		assert.Equal(t, "x\n1\n", out.String())
		assert.Len(t, rd.lines, 1)
	})

	t.Run("read error", func(t *testing.T) {
		sh, _ := prepShell(t, Params{})
		rd := &fakeReader{lines: []lineResp{{err: errors.New("tty gone")}}}
		err := sh.Repl(ctx, rd, io.Discard)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "tty gone")
	})

	t.Run("canceled", func(t *testing.T) {
		sh, _ := prepShell(t, Params{})
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := sh.Repl(cctx, &fakeReader{lines: []lineResp{{line: "SELECT 1"}}}, io.Discard)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestShell_RunScript(t *testing.T) {
	ctx := context.Background()

	t.Run("multi-line statements and dot-commands", func(t *testing.T) {
		sh, out := prepShell(t, Params{})
		script := `
CREATE TABLE t(a); -- comment
INSERT INTO t
  VALUES (1),
         (2);
.mode csv
SELECT a
FROM t ORDER BY a;
SELECT 'x;y' AS v
`
		require.NoError(t, sh.RunScript(ctx, strings.NewReader(script)))
		assert.Equal(t, "2 rows affected\na\n1\n2\nv\nx;y\n", out.String())
	})

	t.Run("first error stops", func(t *testing.T) {
		sh, out := prepShell(t, Params{Mode: config.ModeCSV})
		err := sh.RunScript(ctx, strings.NewReader("SELECT 1 AS a;\n\nSELEC 2;\nSELECT 3 AS b;\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "line 3")
		assert.Equal(t, "a\n1\n", out.String())
	})

	t.Run("quit", func(t *testing.T) {
		sh, out := prepShell(t, Params{Mode: config.ModeCSV})
		require.NoError(t, sh.RunScript(ctx, strings.NewReader("SELECT 1 AS a;\n.quit\nSELECT 2 AS b;\n")))
		assert.Equal(t, "a\n1\n", out.String())
	})

	t.Run("trigger body", func(t *testing.T) {
		sh, out := prepShell(t, Params{Mode: config.ModeCSV})
		script := "CREATE TABLE t(a);\nCREATE TABLE l(a);\nCREATE TRIGGER tr AFTER INSERT ON t BEGIN\n" +
			"  INSERT INTO l VALUES(new.a);\nEND;\nINSERT INTO t VALUES(7);\nSELECT a FROM l;\n"
		require.NoError(t, sh.RunScript(ctx, strings.NewReader(script)))
		assert.Equal(t, "1 row affected\na\n7\n", out.String())
	})
}

func TestStatementComplete(t *testing.T) {
	assert.True(t, statementComplete("SELECT 1;"))
	assert.True(t, statementComplete("SELECT 1; -- done\n"))
	assert.False(t, statementComplete("SELECT 1"))
	assert.False(t, statementComplete("SELECT 'a;"))
	assert.False(t, statementComplete("CREATE TRIGGER tr AFTER INSERT ON t BEGIN\n INSERT INTO l VALUES(1);\n"))
	assert.True(t, statementComplete("CREATE TRIGGER tr AFTER INSERT ON t BEGIN\n INSERT INTO l VALUES(1);\nEND;"))
}
