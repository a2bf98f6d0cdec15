package shell

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/fatih/color"
	json "github.com/goccy/go-json"
	"golang.org/x/text/width"

	"github.com/umputun/liteshell/pkg/config"
	"github.com/umputun/liteshell/pkg/settings"
)

// renderer writes query results in one of the output modes
type renderer interface {
	row(vals []any) error
	finish(ctx context.Context) error
}

// newRenderer makes a renderer for the current mode and result columns
func (s *Shell) newRenderer(cols []string, hints map[string]settings.Hint) renderer {
	switch s.mode {
	case config.ModeNull:
		return &nullRenderer{}
	case config.ModeSQL:
		return &sqlRenderer{out: s.Out, table: s.insertTable, hl: s.hl}
	case config.ModeCSV:
		w := csv.NewWriter(s.Out)
		return &csvRenderer{w: w, header: cols}
	default:
		tr := &tableRenderer{out: s.Out, pager: s.Pager, pagerRows: s.PagerRows, style: newTableStyle(s.hl.Enabled())}
		tr.setHeader(cols, hints)
		return tr
	}
}

type nullRenderer struct{}

func (nullRenderer) row([]any) error              { return nil }
func (nullRenderer) finish(context.Context) error { return nil }

type csvRenderer struct {
	w      *csv.Writer
	header []string
}

func (r *csvRenderer) row(vals []any) error {
	if r.header != nil {
		if err := r.w.Write(r.header); err != nil {
			return fmt.Errorf("can't write csv header: %w", err)
		}
		r.header = nil
	}
	rec := make([]string, len(vals))
	for i, v := range vals {
		switch v := v.(type) {
		case nil:
			rec[i] = ""
		case []byte:
			rec[i] = string(v)
		default:
			rec[i] = formatValue(v)
		}
	}
	if err := r.w.Write(rec); err != nil {
		return fmt.Errorf("can't write csv record: %w", err)
	}
	return nil
}

func (r *csvRenderer) finish(context.Context) error {
	if r.header != nil { // no rows, header only
		if err := r.w.Write(r.header); err != nil {
			return fmt.Errorf("can't write csv header: %w", err)
		}
	}
	r.w.Flush()
	return r.w.Error()
}

type sqlRenderer struct {
	out   io.Writer
	table string
	hl    *Highlighter
}

func (r *sqlRenderer) row(vals []any) error {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = sqlLiteral(v)
	}
	stmt := fmt.Sprintf("INSERT INTO %s VALUES(%s);", r.table, strings.Join(parts, ", "))
	if _, err := fmt.Fprintln(r.out, r.hl.Highlight(stmt)); err != nil {
		return fmt.Errorf("can't write row: %w", err)
	}
	return nil
}

func (r *sqlRenderer) finish(context.Context) error { return nil }

// sqlLiteral formats a value as sql literal
func sqlLiteral(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return "X'" + hex.EncodeToString(v) + "'"
	case int64, float64, bool:
		return formatValue(v)
	default:
		return "'" + strings.ReplaceAll(formatValue(v), "'", "''") + "'"
	}
}

type cell struct {
	text  string
	style *color.Color
}

type tableStyle struct {
	header, null, number *color.Color
}

// newTableStyle makes cell styles, nil styles leave text as is
func newTableStyle(enabled bool) tableStyle {
	if !enabled {
		return tableStyle{}
	}
	style := func(attrs ...color.Attribute) *color.Color {
		c := color.New(attrs...)
		c.EnableColor()
		return c
	}
	return tableStyle{header: style(color.Bold), null: style(color.FgHiBlack), number: style(color.FgYellow)}
}

// tableRenderer collects all rows to size columns, long results go to the pager
type tableRenderer struct {
	out       io.Writer
	pager     Pager
	pagerRows int
	style     tableStyle

	header []cell
	json   []bool // columns with json hint
	rows   [][]cell
}

func (r *tableRenderer) setHeader(cols []string, hints map[string]settings.Hint) {
	r.header = make([]cell, len(cols))
	r.json = make([]bool, len(cols))
	for i, c := range cols {
		r.header[i] = cell{text: c, style: r.style.header}
		r.json[i] = hints[c] == settings.HintJSON
	}
}

func (r *tableRenderer) row(vals []any) error {
	cells := make([]cell, len(vals))
	for i, v := range vals {
		switch v := v.(type) {
		case nil:
			cells[i] = cell{text: "NULL", style: r.style.null}
		case int64, float64:
			cells[i] = cell{text: formatValue(v), style: r.style.number}
		case []byte:
			if i < len(r.json) && r.json[i] {
				cells[i] = cell{text: escapeCell(compactJSON(string(v)))}
				continue
			}
			cells[i] = cell{text: hexBytes(v)}
		default:
			text := formatValue(v)
			if i < len(r.json) && r.json[i] {
				text = compactJSON(text)
			}
			cells[i] = cell{text: escapeCell(text)}
		}
	}
	r.rows = append(r.rows, cells)
	return nil
}

func (r *tableRenderer) finish(ctx context.Context) error {
	out := r.render()
	if r.pager != nil && r.pagerRows >= 0 && len(r.rows) > r.pagerRows {
		return r.pager(ctx, out)
	}
	if _, err := io.WriteString(r.out, out); err != nil {
		return fmt.Errorf("can't write table: %w", err)
	}
	return nil
}

// render draws the table with box characters, header separated by a double line
func (r *tableRenderer) render() string {
	widths := make([]int, len(r.header))
	for i, c := range r.header {
		widths[i] = displayWidth(c.text)
	}
	for _, row := range r.rows {
		for i, c := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], displayWidth(c.text))
			}
		}
	}

	inner := len(widths) - 1 // vertical lines between columns
	for _, w := range widths {
		inner += w + 2
	}
	inner = max(inner, 0)

	var b strings.Builder
	line := func(cells []cell) {
		b.WriteString("│")
		for i, w := range widths {
			if i > 0 {
				b.WriteString("│")
			}
			var c cell
			if i < len(cells) {
				c = cells[i]
			}
			text := c.text
			if c.style != nil {
				text = c.style.Sprint(c.text)
			}
			b.WriteString(" " + text + strings.Repeat(" ", w-displayWidth(c.text)) + " ")
		}
		b.WriteString("│\n")
	}

	b.WriteString("┌" + strings.Repeat("─", inner) + "┐\n")
	line(r.header)
	b.WriteString("╞" + strings.Repeat("═", inner) + "╡\n")
	for _, row := range r.rows {
		line(row)
	}
	b.WriteString("└" + strings.Repeat("─", inner) + "┘\n")
	return b.String()
}

// formatValue formats a scanned value for display
func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return formatReal(v)
	case string:
		return v
	case []byte:
		return string(v)
	case bool:
		if v {
			return "1"
		}
		return "0"
	case time.Time:
		return v.Format("2006-01-02 15:04:05.999999999-07:00")
	default:
		return fmt.Sprint(v)
	}
}

// formatReal keeps a fractional part on integral values, so reals don't look like integers
func formatReal(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatFloat(f, 'f', 1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// hexBytes formats a blob as space separated hex bytes
func hexBytes(b []byte) string {
	parts := make([]string, len(b))
	for i, c := range b {
		parts[i] = fmt.Sprintf("%02x", c)
	}
	return strings.Join(parts, " ")
}

// compactJSON removes insignificant whitespace, invalid json is returned unchanged
func compactJSON(s string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(s)); err != nil {
		return s
	}
	return buf.String()
}

var cellEscaper = strings.NewReplacer("\r\n", `\n`, "\n", `\n`, "\r", `\r`, "\t", `\t`)

// escapeCell keeps a cell on a single line
func escapeCell(s string) string { return cellEscaper.Replace(s) }

// displayWidth returns the number of terminal columns s takes, wide east asian runes take two
func displayWidth(s string) int {
	res := 0
	for _, r := range s {
		switch {
		case unicode.Is(unicode.Mn, r), unicode.Is(unicode.Me, r), r == '\u200b':
		case width.LookupRune(r).Kind() == width.EastAsianWide, width.LookupRune(r).Kind() == width.EastAsianFullwidth:
			res += 2
		default:
			res++
		}
	}
	return res
}
