package csvtab

import "fmt"

// ConfigError reports invalid module arguments or an unusable source file.
// A table is never created when this error is returned.
type ConfigError struct {
	Msg string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("csv config: %s: %v", e.Msg, e.Err)
	}
	return "csv config: " + e.Msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ParseError reports malformed CSV content, like an unterminated quoted field
// or a row with a field count different from the header.
type ParseError struct {
	File string
	Line int // 1-based line where the failing record starts
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("csv parse: %s:%d: %s", e.File, e.Line, e.Msg)
}

// IOError reports a failure to read the source after it was opened successfully.
type IOError struct {
	File string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("csv io: %s: %v", e.File, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
