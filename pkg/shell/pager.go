package shell

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/term"
)

// Pager shows long output page by page
type Pager func(ctx context.Context, content string) error

// LessPager pipes content to less, writing to the terminal directly
func LessPager(ctx context.Context, content string) error {
	cmd := exec.CommandContext(ctx, "less")
	cmd.Env = append(os.Environ(), "LESSCHARSET=UTF-8")
	cmd.Stdin = strings.NewReader(content)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("can't run pager: %w", err)
	}
	return nil
}

// IsTerminal reports whether w is a terminal
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd())) //nolint:gosec // fd fits int
}
