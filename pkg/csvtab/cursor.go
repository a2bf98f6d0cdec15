package csvtab

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"strconv"
	"strings"

	"modernc.org/sqlite/vtab"
)

// Cursor is a single scan over the table. It owns its reader and file handle.
// Rowid is the 1-based ordinal of the data row in the file, not counting the header.
type Cursor struct {
	table *Table
	rdr   *Reader

	row   Row
	rowid int64
	eof   bool
	err   error // terminal, returned by every following Next

	seek    int64 // wanted rowid, 0 scans all rows
	filters []eqFilter
	closed  bool
}

type eqFilter struct {
	col int
	val Value
}

// Filter starts a new scan, closing the previous one if any, and positions the cursor
// at the first matching row.
func (c *Cursor) Filter(idxNum int, idxStr string, vals []vtab.Value) error {
	if c.closed {
		return &IOError{File: c.table.cfg.Filename, Err: errors.New("cursor is closed")}
	}
	c.reset()

	argv := vals
	if idxNum&planRowid != 0 {
		if len(argv) == 0 {
			return fmt.Errorf("can't filter %s: missing rowid argument", c.table.name)
		}
		rowid, ok := rowidArg(argv[0])
		argv = argv[1:]
		if !ok || rowid <= 0 {
			c.eof = true // no row can match
			return nil
		}
		c.seek = rowid
	}
	if idxNum&planColumnEq != 0 {
		filters, err := parseFilters(idxStr, argv, len(c.table.schema))
		if err != nil {
			return fmt.Errorf("can't filter %s: %w", c.table.name, err)
		}
		c.filters = filters
	}

	rdr, err := OpenReader(c.table.cfg)
	if err != nil {
		var cerr *ConfigError
		if errors.As(err, &cerr) {
			// the file was fine when the table was created
			err = &IOError{File: c.table.cfg.Filename, Err: err}
		}
		return c.fail(err)
	}
	if c.table.cfg.Header {
		rdr.Expect(len(c.table.schema))
	}
	c.rdr = rdr
	return c.advance()
}

// Next moves to the next matching row. Parse and io errors are terminal.
func (c *Cursor) Next() error {
	if c.err != nil {
		return c.err
	}
	if c.eof {
		return nil
	}
	return c.advance()
}

// Eof reports whether the cursor is past the last row
func (c *Cursor) Eof() bool { return c.eof || c.rdr == nil }

// Column returns the value of column i in the current row. Absent fields, hidden and out of range
// columns are NULL.
func (c *Cursor) Column(i int) (vtab.Value, error) {
	if c.Eof() || i < 0 || i >= len(c.table.schema) || i >= len(c.row) {
		return nil, nil
	}
	return Coerce(c.row[i], c.table.schema[i].Affinity).Driver(), nil
}

// Rowid returns the ordinal of the current row
func (c *Cursor) Rowid() (int64, error) { return c.rowid, nil }

// Close releases the file handle, valid at any position and safe to call more than once
func (c *Cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.eof = true
	c.row = nil
	if c.rdr == nil {
		return nil
	}
	err := c.rdr.Close()
	c.rdr = nil
	return err
}

func (c *Cursor) reset() {
	if c.rdr != nil {
		if err := c.rdr.Close(); err != nil {
			log.Printf("[WARN] can't close reader for %s: %v", c.table.name, err)
		}
		c.rdr = nil
	}
	c.row, c.rowid, c.eof, c.err = nil, 0, false, nil
	c.seek, c.filters = 0, nil
}

// advance reads rows until one passes the rowid and column filters or the file ends
func (c *Cursor) advance() error {
	for {
		if c.seek > 0 && c.rowid >= c.seek {
			c.eof, c.row = true, nil
			return nil
		}
		row, err := c.rdr.Next()
		if errors.Is(err, io.EOF) {
			c.eof, c.row = true, nil
			return nil
		}
		if err != nil {
			return c.fail(err)
		}
		c.rowid++
		if c.seek > 0 && c.rowid != c.seek {
			continue
		}
		if !c.matches(row) {
			continue
		}
		c.row = row
		return nil
	}
}

// matches rejects a row only if it definitely fails one of the equality filters
func (c *Cursor) matches(row Row) bool {
	for _, f := range c.filters {
		var v Value
		if f.col < len(row) {
			v = Coerce(row[f.col], c.table.schema[f.col].Affinity)
		}
		if eq, known := equalValues(v, f.val); known && !eq {
			return false
		}
	}
	return true
}

// fail records the terminal error. The engine drops error messages returned from xNext,
// so the error is logged here as well.
func (c *Cursor) fail(err error) error {
	c.err, c.eof, c.row = err, true, nil
	if c.rdr != nil {
		_ = c.rdr.Close()
	}
	log.Printf("[WARN] csv table %s: %v", c.table.name, err)
	return err
}

// rowidArg converts the right side of "rowid = ?" to an integer the way sqlite compares it
// with the integer rowid. ok is false if no rowid can be equal to it.
func rowidArg(v vtab.Value) (int64, bool) {
	switch tv := v.(type) {
	case int64:
		return tv, true
	case float64:
		if tv != math.Trunc(tv) || tv > math.MaxInt64 || tv < math.MinInt64 {
			return 0, false
		}
		return int64(tv), true
	case string:
		s := strings.TrimSpace(tv)
		if n, ok := parseInteger(s); ok {
			return n, true
		}
		if x, ok := parseReal(s); ok {
			return rowidArg(x)
		}
	case bool:
		if tv {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// parseFilters pairs column indexes from idxStr with constraint values
func parseFilters(idxStr string, vals []vtab.Value, ncols int) ([]eqFilter, error) {
	if idxStr == "" {
		return nil, nil
	}
	parts := strings.Split(idxStr, ",")
	if len(parts) > len(vals) {
		return nil, fmt.Errorf("plan %q expects %d values, got %d", idxStr, len(parts), len(vals))
	}
	res := make([]eqFilter, 0, len(parts))
	for i, p := range parts {
		col, err := strconv.Atoi(p)
		if err != nil || col < 0 || col >= ncols {
			return nil, fmt.Errorf("bad column %q in plan %q", p, idxStr)
		}
		res = append(res, eqFilter{col: col, val: FromDriver(vals[i])})
	}
	return res, nil
}
