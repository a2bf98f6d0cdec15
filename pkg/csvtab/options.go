package csvtab

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-pkgz/fileutils"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/text/encoding/htmlindex"
)

// DefaultSampleSize is the number of data rows examined by schema inference.
const DefaultSampleSize = 50

// Compression of the source file
const (
	CompressionNone = "none"
	CompressionLZ4  = "lz4"
)

// SourceConfig describes a CSV source and its dialect. It is validated once, by ParseArgs,
// and never changed afterwards.
type SourceConfig struct {
	Filename    string
	Header      bool
	Delimiter   rune
	Quote       rune
	Encoding    string // canonical encoding name, "utf-8" by default
	Compression string // CompressionNone or CompressionLZ4
	SampleSize  int
}

// DefaultSourceConfig returns config with all defaults set, except for the file name.
func DefaultSourceConfig() SourceConfig {
	return SourceConfig{
		Header:      true,
		Delimiter:   ',',
		Quote:       '"',
		Encoding:    "utf-8",
		Compression: CompressionNone,
		SampleSize:  DefaultSampleSize,
	}
}

// ParseArgs builds SourceConfig from the module arguments of CREATE VIRTUAL TABLE ... USING csv(...),
// i.e. from everything after module, database and table names. Each argument is key=value,
// the value may be single or double quoted. All problems are reported together as a ConfigError.
func ParseArgs(args []string) (SourceConfig, error) {
	res := DefaultSourceConfig()
	compression := "auto"
	errs := new(multierror.Error)
	seen := map[string]bool{}

	for _, arg := range args {
		key, val, ok := strings.Cut(arg, "=")
		key = strings.ToLower(strings.TrimSpace(key))
		if !ok {
			errs = multierror.Append(errs, fmt.Errorf("argument %q is not key=value", strings.TrimSpace(arg)))
			continue
		}
		if seen[key] {
			errs = multierror.Append(errs, fmt.Errorf("duplicate argument %q", key))
			continue
		}
		seen[key] = true
		val = unquote(strings.TrimSpace(val))

		switch key {
		case "filename":
			res.Filename = val
		case "header":
			b, err := parseBool(val)
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("bad header value: %w", err))
				continue
			}
			res.Header = b
		case "delimiter":
			r, err := parseChar(val)
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("bad delimiter: %w", err))
				continue
			}
			res.Delimiter = r
		case "quote":
			r, err := parseChar(val)
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("bad quote: %w", err))
				continue
			}
			res.Quote = r
		case "encoding":
			enc, err := htmlindex.Get(val)
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("unsupported encoding %q", val))
				continue
			}
			name, err := htmlindex.Name(enc)
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("unsupported encoding %q: %w", val, err))
				continue
			}
			res.Encoding = name
		case "compression":
			switch v := strings.ToLower(val); v {
			case "auto", CompressionNone, CompressionLZ4:
				compression = v
			default:
				errs = multierror.Append(errs, fmt.Errorf("unsupported compression %q", val))
			}
		case "sample":
			n, err := strconv.Atoi(val)
			if err != nil || n <= 0 {
				errs = multierror.Append(errs, fmt.Errorf("sample should be a positive integer, got %q", val))
				continue
			}
			res.SampleSize = n
		default:
			errs = multierror.Append(errs, fmt.Errorf("unknown argument %q", key))
		}
	}

	if res.Filename == "" {
		errs = multierror.Append(errs, fmt.Errorf("filename is required"))
	} else if !fileutils.IsFile(res.Filename) {
		errs = multierror.Append(errs, fmt.Errorf("file %q not found", res.Filename))
	}
	if res.Delimiter == res.Quote {
		errs = multierror.Append(errs, fmt.Errorf("delimiter and quote can't be the same character %q", res.Delimiter))
	}

	res.Compression = compression
	if compression == "auto" {
		res.Compression = CompressionNone
		if strings.HasSuffix(strings.ToLower(res.Filename), ".lz4") {
			res.Compression = CompressionLZ4
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		return SourceConfig{}, &ConfigError{Msg: "invalid arguments", Err: err}
	}
	return res, nil
}

// unquote strips matching single or double quotes, collapsing doubled inner quotes as sql does
func unquote(s string) string {
	if len(s) < 2 {
		return s
	}
	q := s[0]
	if (q != '\'' && q != '"') || s[len(s)-1] != q {
		return s
	}
	return strings.ReplaceAll(s[1:len(s)-1], string([]byte{q, q}), string(q))
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0":
		return false, nil
	}
	return false, fmt.Errorf("%q is not a boolean", s)
}

// parseChar accepts a single character, plus \t and "tab" for the tab delimiter
func parseChar(s string) (rune, error) {
	switch strings.ToLower(s) {
	case `\t`, "tab":
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("%q should be a single character", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || r == '\n' || r == '\r' {
		return 0, fmt.Errorf("%q can't be used", s)
	}
	return r, nil
}
