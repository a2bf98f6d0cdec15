package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/chzyer/readline"
)

// LineReader reads user input line by line, implemented by *readline.Instance
type LineReader interface {
	Readline() (string, error)
	Close() error
}

// ReplParams defines interactive session parameters
type ReplParams struct {
	Prompt  string
	History string // history file, empty disables history
	Stdin   io.ReadCloser
	Stdout  io.Writer
	Stderr  io.Writer
}

// NewLineReader makes readline instance with sql highlighting and completion
func (s *Shell) NewLineReader(ctx context.Context, p ReplParams) (*readline.Instance, error) {
	cfg := &readline.Config{
		Prompt:          p.Prompt,
		HistoryFile:     p.History,
		HistoryLimit:    1000,
		AutoComplete:    s.Completer(ctx),
		Painter:         s.hl,
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
		Stdin:           p.Stdin,
		Stdout:          p.Stdout,
		Stderr:          p.Stderr,

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	}
	rl, err := readline.NewEx(cfg)
	if err != nil {
		return nil, fmt.Errorf("can't init readline: %w", err)
	}
	return rl, nil
}

// filterInput drops ctrl-z, suspending the shell leaves the terminal in raw mode
func filterInput(r rune) (rune, bool) {
	if r == readline.CharCtrlZ {
		return r, false
	}
	return r, true
}

// Repl executes lines from rd until EOF, interrupt on an empty line or .quit.
// Errors of executed lines are reported to errOut and don't stop the loop.
func (s *Shell) Repl(ctx context.Context, rd LineReader, errOut io.Writer) error {
	defer rd.Close()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := rd.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			if line == "" {
				return nil
			}
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return fmt.Errorf("can't read input: %w", err)
		}

		if err := s.Execute(ctx, line); err != nil {
			if errors.Is(err, ErrQuit) {
				return nil
			}
			log.Printf("[DEBUG] failed %q: %v", line, err)
			_, _ = fmt.Fprintf(errOut, "Error: %v\n", err)
		}
	}
}

// RunScript executes statements read from r, used for piped input. Statements may span lines and
// end with a semicolon, dot-commands take a single line. The first error stops the script.
func (s *Shell) RunScript(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var buf strings.Builder
	lineNum, startLine := 0, 0
	exec := func() error {
		stmt := buf.String()
		buf.Reset()
		if err := s.Execute(ctx, stmt); err != nil {
			if errors.Is(err, ErrQuit) {
				return err
			}
			return fmt.Errorf("line %d: %w", startLine, err)
		}
		return nil
	}

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if buf.Len() == 0 {
			if strings.TrimSpace(line) == "" {
				continue
			}
			startLine = lineNum
			if strings.HasPrefix(strings.TrimSpace(line), ".") {
				buf.WriteString(line)
				if err := exec(); err != nil {
					return quitOK(err)
				}
				continue
			}
		}
		buf.WriteString(line)
		buf.WriteString("\n")
		if statementComplete(buf.String()) {
			if err := exec(); err != nil {
				return quitOK(err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("can't read script: %w", err)
	}
	if strings.TrimSpace(buf.String()) != "" {
		return quitOK(exec())
	}
	return nil
}

func quitOK(err error) error {
	if errors.Is(err, ErrQuit) {
		return nil
	}
	return err
}

// statementComplete reports whether sql ends with a semicolon outside of strings and trigger bodies
func statementComplete(sql string) bool {
	toks := tokenize(sql)
	for i := len(toks) - 1; i >= 0; i-- {
		t := toks[i]
		if t.kind == tokSpace || (t.kind == tokComment && strings.HasPrefix(t.text, "--")) {
			continue
		}
		if t.kind != tokPunct || t.text != ";" {
			return false
		}
		// the last statement has to be closed, not swallowed by a trigger body
		stmts := splitStatements(sql)
		return len(stmts) > 0 && !strings.HasSuffix(strings.TrimSpace(stmts[len(stmts)-1]), ";")
	}
	return false
}
