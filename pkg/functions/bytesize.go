// Package functions provides custom scalar sql functions for data display.
package functions

import (
	"database/sql/driver"
	"fmt"
	"math"
	"strconv"
	"strings"

	"modernc.org/sqlite"
)

// ByteSizeName is the sql name of the byte size formatting function
const ByteSizeName = "fmt_byte_size"

var byteUnits = []string{"B", "kB", "MB", "GB", "TB", "PB", "EB"}

// FormatByteSize formats n with decimal (power of 1000) units, e.g. 1500 is "1.5 kB" and 1000000 is "1 MB".
// The value gets one decimal place unless it is an exact multiple of the unit.
func FormatByteSize(n int64) string {
	sign := ""
	a := uint64(n)
	if n < 0 {
		sign = "-"
		a = uint64(-(n + 1)) + 1 // no overflow for math.MinInt64
	}

	unit, div := 0, uint64(1)
	for unit < len(byteUnits)-1 && a/div >= 1000 {
		div *= 1000
		unit++
	}

	if a%div == 0 {
		return fmt.Sprintf("%s%d %s", sign, a/div, byteUnits[unit])
	}
	text := strconv.FormatFloat(float64(a)/float64(div), 'f', 1, 64)
	if strings.HasPrefix(text, "1000") && unit < len(byteUnits)-1 { // rounded up to the next unit
		div *= 1000
		unit++
		text = strconv.FormatFloat(float64(a)/float64(div), 'f', 1, 64)
	}
	return fmt.Sprintf("%s%s %s", sign, text, byteUnits[unit])
}

// Register adds all functions to the driver, they are available to connections opened afterwards.
// It fails if the functions were registered already.
func Register() error {
	if err := sqlite.RegisterDeterministicScalarFunction(ByteSizeName, 1, byteSize); err != nil {
		return fmt.Errorf("can't register %s: %w", ByteSizeName, err)
	}
	return nil
}

// byteSize is the sql wrapper of FormatByteSize. NULL gives NULL, reals are truncated,
// text must hold an integer.
func byteSize(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%s expects one argument, got %d", ByteSizeName, len(args))
	}
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case int64:
		return FormatByteSize(v), nil
	case float64:
		if math.IsNaN(v) || v >= math.MaxInt64 || v < math.MinInt64 {
			return nil, fmt.Errorf("%s: %v is out of integer range", ByteSizeName, v)
		}
		return FormatByteSize(int64(v)), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %q is not an integer", ByteSizeName, v)
		}
		return FormatByteSize(n), nil
	}
	return nil, fmt.Errorf("%s: unsupported argument type %T", ByteSizeName, args[0])
}
