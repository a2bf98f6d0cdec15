// Package config loads the shell configuration file. Both yaml and toml formats are supported,
// the format is picked by the file extension.
package config

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-pkgz/fileutils"
	"github.com/go-pkgz/stringutils"
	"github.com/hashicorp/go-multierror"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Output modes
const (
	ModeNull  = "null"
	ModeTable = "table"
	ModeSQL   = "sql"
	ModeCSV   = "csv"
)

// Modes lists all supported output modes
var Modes = []string{ModeNull, ModeTable, ModeSQL, ModeCSV}

// defaults
const (
	DefaultPrompt    = "> "
	DefaultPagerRows = 100
	DefaultHistory   = "~/.liteshell_history"
	DefaultSettings  = "~/.liteshell_settings.db"
)

// Config defines the top-level config object
type Config struct {
	Mode      string   `yaml:"mode" toml:"mode"`             // output mode, one of Modes
	History   string   `yaml:"history" toml:"history"`       // history file, "none" disables history
	Settings  string   `yaml:"settings" toml:"settings"`     // settings database with column hints
	Prompt    string   `yaml:"prompt" toml:"prompt"`         // input prompt
	PagerRows int      `yaml:"pager_rows" toml:"pager_rows"` // table output with more rows goes to pager, negative disables pager
	Color     *bool    `yaml:"color" toml:"color"`           // colorized output, on by default
	Init      []string `yaml:"init" toml:"init"`             // statements executed on start
	Tables    []Table  `yaml:"tables" toml:"tables"`         // csv files attached as virtual tables on start
}

// Table defines a csv file attached as a virtual table
type Table struct {
	Name      string `yaml:"name" toml:"name"`
	File      string `yaml:"file" toml:"file"`
	Header    *bool  `yaml:"header" toml:"header"`
	Delimiter string `yaml:"delimiter" toml:"delimiter"`
	Encoding  string `yaml:"encoding" toml:"encoding"`
}

// Overrides defines values passed from cli, non-empty ones replace config values
type Overrides struct {
	Mode     string
	History  string
	Settings string
	NoColor  bool
	Init     []string
	Tables   []Table
}

// New loads config from fname. Missing file is not an error, defaults are used in this case.
// Overrides are applied after loading, and the result is validated.
func New(fname string, overrides *Overrides) (*Config, error) {
	log.Printf("[DEBUG] request to load config %q", fname)
	res := &Config{}

	if fname != "" && fileutils.IsFile(fname) {
		data, err := os.ReadFile(fname) // nolint
		if err != nil {
			return nil, fmt.Errorf("can't read config %s: %w", fname, err)
		}
		if err = unmarshal(fname, data, res); err != nil {
			return nil, fmt.Errorf("can't unmarshal config: %w", err)
		}
		log.Printf("[INFO] config loaded from %s, %d tables", fname, len(res.Tables))
	} else {
		log.Printf("[DEBUG] no config file %s found, using defaults", fname)
	}

	res.applyDefaults()
	res.applyOverrides(overrides)

	if err := res.checkConfig(); err != nil {
		return nil, fmt.Errorf("config %s is invalid: %w", fname, err)
	}
	return res, nil
}

// ColorEnabled reports whether output should be colorized
func (c *Config) ColorEnabled() bool { return c.Color == nil || *c.Color }

// Args returns csv module arguments for the table
func (t Table) Args() []string {
	res := []string{"filename=" + quote(t.File)}
	if t.Header != nil {
		res = append(res, fmt.Sprintf("header=%t", *t.Header))
	}
	if t.Delimiter != "" {
		res = append(res, "delimiter="+quote(t.Delimiter))
	}
	if t.Encoding != "" {
		res = append(res, "encoding="+quote(t.Encoding))
	}
	return res
}

// CreateSQL returns statement creating the virtual table
func (t Table) CreateSQL() string {
	return fmt.Sprintf(`CREATE VIRTUAL TABLE "%s" USING csv(%s)`, strings.ReplaceAll(t.Name, `"`, `""`),
		strings.Join(t.Args(), ", "))
}

// ParseTable parses "name=path" cli value
func ParseTable(s string) (Table, error) {
	name, file, ok := strings.Cut(s, "=")
	name, file = strings.TrimSpace(name), strings.TrimSpace(file)
	if !ok || name == "" || file == "" {
		return Table{}, fmt.Errorf("invalid table %q, expected name=path", s)
	}
	return Table{Name: name, File: file}, nil
}

// ExpandPath expands leading ~ to the home directory
func ExpandPath(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("can't get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

// unmarshal decodes yaml or toml config, guessing format by file extension
func unmarshal(fname string, data []byte, res *Config) error {
	switch ext := strings.ToLower(filepath.Ext(fname)); ext {
	case ".yml", ".yaml", "":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true) // strict mode, fail on unknown fields
		if err := dec.Decode(res); err != nil {
			return fmt.Errorf("can't unmarshal yaml config %s: %w", fname, err)
		}
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(res); err != nil {
			return fmt.Errorf("can't unmarshal toml config %s: %w", fname, err)
		}
	default:
		return fmt.Errorf("unknown config format %s", fname)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeTable
	}
	if c.Prompt == "" {
		c.Prompt = DefaultPrompt
	}
	if c.PagerRows == 0 {
		c.PagerRows = DefaultPagerRows
	}
	if c.History == "" {
		c.History = DefaultHistory
	}
	if c.Settings == "" {
		c.Settings = DefaultSettings
	}
}

func (c *Config) applyOverrides(o *Overrides) {
	if o == nil {
		return
	}
	if o.Mode != "" {
		c.Mode = o.Mode
	}
	if o.History != "" {
		c.History = o.History
	}
	if o.Settings != "" {
		c.Settings = o.Settings
	}
	if o.NoColor {
		off := false
		c.Color = &off
	}
	c.Init = append(c.Init, o.Init...)
	c.Tables = append(c.Tables, o.Tables...)
}

// checkConfig validates mode and tables, reporting all problems together
func (c *Config) checkConfig() error {
	errs := new(multierror.Error)
	if !stringutils.Contains(c.Mode, Modes) {
		errs = multierror.Append(errs, fmt.Errorf("unknown mode %q, expected one of %s", c.Mode, strings.Join(Modes, ", ")))
	}

	names := make(map[string]bool)
	for i, t := range c.Tables {
		if t.Name == "" {
			errs = multierror.Append(errs, fmt.Errorf("table #%d has no name", i+1))
			continue
		}
		if names[strings.ToLower(t.Name)] {
			errs = multierror.Append(errs, fmt.Errorf("duplicate table name %q", t.Name))
		}
		names[strings.ToLower(t.Name)] = true
		if t.File == "" {
			errs = multierror.Append(errs, fmt.Errorf("table %q has no file", t.Name))
		}
	}
	return errs.ErrorOrNil()
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
