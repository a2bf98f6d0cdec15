package csvtab

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Affinity is the declared type of a column
type Affinity int

// Column affinities. AffinityText is the zero value and the fallback for columns with no sampled values.
const (
	AffinityText Affinity = iota
	AffinityInteger
	AffinityReal
)

func (a Affinity) String() string {
	switch a {
	case AffinityInteger:
		return "INTEGER"
	case AffinityReal:
		return "REAL"
	}
	return "TEXT"
}

// Column describes a single column of the virtual table
type Column struct {
	Name     string
	Index    int
	Affinity Affinity
}

// Schema is the ordered list of columns, computed once and never changed afterwards
type Schema []Column

// DeclareSQL renders the statement passed to the engine to declare the table shape.
// The table name in it is ignored by the engine.
func (s Schema) DeclareSQL() string {
	cols := make([]string, len(s))
	for i, c := range s {
		cols[i] = quoteIdent(c.Name) + " " + c.Affinity.String()
	}
	return "CREATE TABLE x(" + strings.Join(cols, ", ") + ")"
}

// Names returns column names in order
func (s Schema) Names() []string {
	res := make([]string, len(s))
	for i, c := range s {
		res[i] = c.Name
	}
	return res
}

// InferSchema reads the head of the source and derives column names and affinities.
// With header the first record gives names, otherwise columns are named column1..columnN after
// the width of the first non-blank record. Up to cfg.SampleSize data rows are examined, per column:
// only integers makes INTEGER, only numbers makes REAL, anything else (or nothing at all) is TEXT.
func InferSchema(cfg SourceConfig) (Schema, error) {
	rdr, err := OpenReader(cfg)
	if err != nil {
		return nil, err
	}
	defer rdr.Close() //nolint

	var names []string
	var first Row
	if cfg.Header {
		if len(rdr.Header()) == 0 {
			return nil, &ConfigError{Msg: fmt.Sprintf("%s is empty, no columns to declare", cfg.Filename)}
		}
		names = dedupNames(rdr.Header().Texts())
		rdr.Expect(len(names))
	} else {
		first, err = rdr.Next()
		for err == nil && first.blank() { // leading blank lines don't define the width
			first, err = rdr.Next()
		}
		if errors.Is(err, io.EOF) {
			return nil, &ConfigError{Msg: fmt.Sprintf("%s is empty, no columns to declare", cfg.Filename)}
		}
		if err != nil {
			return nil, err
		}
		names = make([]string, len(first))
		for i := range first {
			names[i] = "column" + strconv.Itoa(i+1)
		}
	}

	samplers := make([]affinitySampler, len(names))
	sampleSize := cfg.SampleSize
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	sampled := 0
	if first != nil {
		sampleRow(samplers, first)
		sampled++
	}
	for sampled < sampleSize {
		row, err := rdr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		sampleRow(samplers, row)
		sampled++
	}

	res := make(Schema, len(names))
	for i, name := range names {
		res[i] = Column{Name: name, Index: i, Affinity: samplers[i].affinity()}
	}
	return res, nil
}

// affinitySampler tracks what kind of values a column had so far
type affinitySampler struct {
	seen     bool
	integers bool // all seen values are integers
	numbers  bool // all seen values are numbers
}

func (a *affinitySampler) add(s string) {
	if !a.seen {
		a.seen, a.integers, a.numbers = true, true, true
	}
	if a.integers {
		if _, ok := parseInteger(s); !ok {
			a.integers = false
		}
	}
	if a.numbers && !a.integers {
		if _, ok := parseReal(s); !ok {
			a.numbers = false
		}
	}
}

func (a *affinitySampler) affinity() Affinity {
	switch {
	case !a.seen:
		return AffinityText
	case a.integers:
		return AffinityInteger
	case a.numbers:
		return AffinityReal
	}
	return AffinityText
}

// sampleRow feeds non-empty values to samplers, extra fields of headerless rows are ignored
func sampleRow(samplers []affinitySampler, row Row) {
	for i, f := range row {
		if i >= len(samplers) {
			return
		}
		if f.Text == "" {
			continue
		}
		samplers[i].add(f.Text)
	}
}

// dedupNames trims header names, replaces empty ones with columnN and makes them unique
// case-insensitively by suffixing _2, _3 and so on.
func dedupNames(names []string) []string {
	res := make([]string, len(names))
	used := make(map[string]bool, len(names))
	for i, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			n = "column" + strconv.Itoa(i+1)
		}
		name := n
		for k := 2; used[strings.ToLower(name)]; k++ {
			name = n + "_" + strconv.Itoa(k)
		}
		used[strings.ToLower(name)] = true
		res[i] = name
	}
	return res
}

// quoteIdent makes sql identifier out of any string
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
