package csvtab

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/pierrec/lz4/v4"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// Field is a single raw CSV value. Quoted is set when the value was enclosed in quotes,
// which distinguishes an empty quoted string from a missing value.
type Field struct {
	Text   string
	Quoted bool
}

// IsNull reports whether the field carries no value at all, i.e. it is empty and unquoted.
func (f Field) IsNull() bool { return !f.Quoted && f.Text == "" }

// Row is one parsed CSV record
type Row []Field

// Texts returns raw texts of all fields
func (r Row) Texts() []string {
	res := make([]string, len(r))
	for i, f := range r {
		res[i] = f.Text
	}
	return res
}

func (r Row) blank() bool { return len(r) == 1 && r[0].IsNull() }

// Reader streams CSV records from a file. Only the record being parsed is kept in memory.
// Reader is not safe for concurrent use, each cursor owns its own.
type Reader struct {
	cfg    SourceConfig
	file   *os.File
	br     *bufio.Reader
	header Row
	width  int // expected number of fields per record, 0 disables the check
	line   int // current line, 1-based
	err    error
	closed bool

	blanks   []int // lines of blank records not returned yet
	held     Row   // record read after blanks, returned once they are out
	heldLine int
	lastByte byte // invalid utf-8 byte read as rawByte
}

const (
	endField = iota
	endRecord
	endFile
)

// rawByte is returned by readRune for a byte that is not valid utf-8, the byte itself is kept in lastByte
const rawByte rune = -1

// OpenReader opens the source described by cfg. If cfg.Header is set, the header record
// is consumed and available with Header, so the first Next call returns the first data row.
func OpenReader(cfg SourceConfig) (*Reader, error) {
	fh, err := os.Open(cfg.Filename)
	if err != nil {
		return nil, &ConfigError{Msg: fmt.Sprintf("can't open %s", cfg.Filename), Err: err}
	}
	if st, err := fh.Stat(); err == nil && st.IsDir() {
		_ = fh.Close()
		return nil, &ConfigError{Msg: fmt.Sprintf("%s is a directory", cfg.Filename)}
	}

	var src io.Reader = fh
	if cfg.Compression == CompressionLZ4 {
		src = lz4.NewReader(src)
	}
	if cfg.Encoding != "" && cfg.Encoding != "utf-8" {
		enc, err := htmlindex.Get(cfg.Encoding)
		if err != nil {
			_ = fh.Close()
			return nil, &ConfigError{Msg: fmt.Sprintf("unsupported encoding %q", cfg.Encoding), Err: err}
		}
		src = transform.NewReader(src, enc.NewDecoder())
	}

	r := &Reader{cfg: cfg, file: fh, br: bufio.NewReaderSize(src, 64*1024), line: 1}
	if err := r.skipBOM(); err != nil {
		_ = r.Close()
		return nil, err
	}

	if cfg.Header {
		hdr, err := r.readHeader()
		if err != nil && !errors.Is(err, io.EOF) {
			_ = r.Close()
			return nil, err
		}
		r.header = hdr
	}
	return r, nil
}

// readHeader returns the first non-blank record
func (r *Reader) readHeader() (Row, error) {
	for {
		row, err := r.readRecord()
		if err != nil {
			return nil, err
		}
		if row != nil {
			return row, nil
		}
	}
}

// Header returns the header record, nil if the config has no header or the file is empty
func (r *Reader) Header() Row { return r.header }

// Expect enables the field count check, every following record must have n fields
func (r *Reader) Expect(n int) { r.width = n }

// Line returns the current line number
func (r *Reader) Line() int { return r.line }

// Next returns the next record or io.EOF at the end of the source. A blank line is a record with
// a single empty field, blank lines at the end of the source are ignored.
// Any error other than io.EOF is a *ParseError or an *IOError and is returned again by
// all following calls.
func (r *Reader) Next() (Row, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.closed {
		return nil, &IOError{File: r.cfg.Filename, Err: os.ErrClosed}
	}
	if len(r.blanks) > 0 {
		line := r.blanks[0]
		r.blanks = r.blanks[1:]
		return r.check(Row{Field{}}, line)
	}
	if r.held != nil {
		row := r.held
		r.held = nil
		return r.check(row, r.heldLine)
	}

	for {
		start := r.line
		row, err := r.readRecord()
		if err != nil {
			r.err = err // pending blank lines are trailing ones
			return nil, err
		}
		if row == nil {
			r.blanks = append(r.blanks, start)
			continue
		}
		if len(r.blanks) == 0 {
			return r.check(row, start)
		}
		r.held, r.heldLine = row, start
		line := r.blanks[0]
		r.blanks = r.blanks[1:]
		return r.check(Row{Field{}}, line)
	}
}

// check verifies the field count of the record read at line
func (r *Reader) check(row Row, line int) (Row, error) {
	if r.width > 0 && len(row) != r.width {
		r.err = &ParseError{File: r.cfg.Filename, Line: line,
			Msg: fmt.Sprintf("expected %d fields, got %d", r.width, len(row))}
		return nil, r.err
	}
	return row, nil
}

// Close releases the file handle. It is safe to call more than once.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if err := r.file.Close(); err != nil {
		return &IOError{File: r.cfg.Filename, Err: err}
	}
	return nil
}

// readRecord returns nil row for a blank line
func (r *Reader) readRecord() (Row, error) {
	var row Row
	for {
		f, end, err := r.readField()
		if err != nil {
			return nil, err
		}
		if len(row) == 0 && end != endField && f.IsNull() {
			if end == endFile {
				return nil, io.EOF
			}
			return nil, nil
		}
		row = append(row, f)
		if end != endField {
			return row, nil
		}
	}
}

func (r *Reader) readField() (Field, int, error) {
	c, err := r.readRune()
	if errors.Is(err, io.EOF) {
		return Field{}, endFile, nil
	}
	if err != nil {
		return Field{}, endFile, err
	}

	if c == r.cfg.Quote {
		return r.readQuoted()
	}

	buf := []byte{}
	for {
		switch c {
		case r.cfg.Delimiter:
			return Field{Text: string(buf)}, endField, nil
		case '\n':
			return Field{Text: string(buf)}, endRecord, nil
		case '\r':
			if err := r.skipLF(); err != nil {
				return Field{}, endFile, err
			}
			return Field{Text: string(buf)}, endRecord, nil
		}
		buf = r.appendRune(buf, c)
		if c, err = r.readRune(); err != nil {
			if errors.Is(err, io.EOF) {
				return Field{Text: string(buf)}, endFile, nil
			}
			return Field{}, endFile, err
		}
	}
}

// readQuoted reads the rest of a quoted field, the opening quote is already consumed
func (r *Reader) readQuoted() (Field, int, error) {
	start := r.line
	buf := []byte{}
	for {
		c, err := r.readRune()
		if errors.Is(err, io.EOF) {
			return Field{}, endFile, &ParseError{File: r.cfg.Filename, Line: start, Msg: "unterminated quoted field"}
		}
		if err != nil {
			return Field{}, endFile, err
		}
		if c != r.cfg.Quote {
			buf = r.appendRune(buf, c)
			continue
		}

		// closing quote or the first half of an escaped one
		n, err := r.readRune()
		if errors.Is(err, io.EOF) {
			return Field{Text: string(buf), Quoted: true}, endFile, nil
		}
		if err != nil {
			return Field{}, endFile, err
		}
		switch n {
		case r.cfg.Quote:
			buf = utf8.AppendRune(buf, n)
		case r.cfg.Delimiter:
			return Field{Text: string(buf), Quoted: true}, endField, nil
		case '\n':
			return Field{Text: string(buf), Quoted: true}, endRecord, nil
		case '\r':
			if err := r.skipLF(); err != nil {
				return Field{}, endFile, err
			}
			return Field{Text: string(buf), Quoted: true}, endRecord, nil
		default:
			return Field{}, endFile, &ParseError{File: r.cfg.Filename, Line: r.line,
				Msg: fmt.Sprintf("unexpected %q after closing quote", n)}
		}
	}
}

// readRune returns the next rune, or rawByte for a byte which is not valid utf-8
func (r *Reader) readRune() (rune, error) {
	c, size, err := r.br.ReadRune()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, io.EOF
		}
		return 0, &IOError{File: r.cfg.Filename, Err: err}
	}
	if c == utf8.RuneError && size == 1 {
		_ = r.br.UnreadRune()
		if r.lastByte, err = r.br.ReadByte(); err != nil {
			return 0, &IOError{File: r.cfg.Filename, Err: err}
		}
		return rawByte, nil
	}
	if c == '\n' {
		r.line++
	}
	return c, nil
}

// appendRune appends c as read by readRune, invalid bytes are kept as is
func (r *Reader) appendRune(buf []byte, c rune) []byte {
	if c == rawByte {
		return append(buf, r.lastByte)
	}
	return utf8.AppendRune(buf, c)
}

// skipLF consumes '\n' following '\r', a lone '\r' terminates the line by itself
func (r *Reader) skipLF() error {
	c, _, err := r.br.ReadRune()
	if err != nil {
		if errors.Is(err, io.EOF) {
			r.line++
			return nil
		}
		return &IOError{File: r.cfg.Filename, Err: err}
	}
	r.line++
	if c != '\n' {
		_ = r.br.UnreadRune()
	}
	return nil
}

func (r *Reader) skipBOM() error {
	c, _, err := r.br.ReadRune()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &IOError{File: r.cfg.Filename, Err: err}
	}
	if c != '\uFEFF' {
		_ = r.br.UnreadRune()
	}
	return nil
}
