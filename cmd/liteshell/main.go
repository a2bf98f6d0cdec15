package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/stringutils"
	"github.com/hashicorp/go-multierror"
	"github.com/jessevdk/go-flags"
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/umputun/liteshell/pkg/config"
	"github.com/umputun/liteshell/pkg/extension"
	"github.com/umputun/liteshell/pkg/settings"
	"github.com/umputun/liteshell/pkg/shell"
)

type options struct {
	PositionalArgs struct {
		Database string `positional-arg-name:"database" description:"sqlite database file, in-memory database if not set"`
	} `positional-args:"yes" positional-optional:"yes"`

	Config string   `short:"f" long:"config" env:"LITESHELL_CONFIG" description:"config file, yaml or toml" default:"~/.liteshell.yml"`
	Cmd    []string `short:"c" long:"cmd" description:"execute statement or dot-command and exit, can be repeated"`

	// overrides
	Mode     string   `short:"m" long:"mode" env:"LITESHELL_MODE" description:"output mode" choice:"null" choice:"table" choice:"sql" choice:"csv"`
	CSV      []string `long:"csv" description:"attach csv file as virtual table, name=path"`
	History  string   `long:"history" env:"LITESHELL_HISTORY" description:"history file, none disables history"`
	Settings string   `long:"settings" env:"LITESHELL_SETTINGS" description:"settings database with display hints, none disables hints"`
	NoColor  bool     `long:"no-color" description:"disable colors"`

	Version bool `long:"version" description:"show version"`
	Dbg     bool `long:"dbg" description:"debug mode"`
}

var revision = "latest"

func main() {
	var opts options
	p := flags.NewParser(&opts, flags.PrintErrors|flags.PassDoubleDash|flags.HelpFlag)
	if _, err := p.Parse(); err != nil {
		os.Exit(1)
	}
	if opts.Version {
		fmt.Printf("liteshell %s\n", revision)
		os.Exit(0)
	}
	setupLog(opts.Dbg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts, os.Stdin, os.Stdout); err != nil {
		if opts.Dbg {
			log.Panicf("[ERROR] %v", err)
		}
		fmt.Fprintf(os.Stderr, "failed, %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, in io.Reader, out io.Writer) error {
	conf, err := loadConfig(opts)
	if err != nil {
		return err
	}

	ext, err := extension.Load()
	if err != nil {
		return fmt.Errorf("can't load csv extension: %w", err)
	}
	defer ext.Close()

	dbPath := opts.PositionalArgs.Database
	if dbPath == "" {
		dbPath = ":memory:"
	}
	if dbPath, err = config.ExpandPath(dbPath); err != nil {
		return err
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("can't open database %s: %w", dbPath, err)
	}
	defer db.Close()
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("can't connect to database %s: %w", dbPath, err)
	}
	defer conn.Close()
	log.Printf("[DEBUG] database %s opened", dbPath)

	store := openSettings(conf.Settings)
	if store != nil {
		defer store.Close()
	}

	interactive := shell.IsTerminal(out)
	params := shell.Params{
		DB:        conn,
		Out:       out,
		Mode:      conf.Mode,
		Color:     conf.ColorEnabled() && interactive,
		PagerRows: conf.PagerRows,
		Settings:  store,
	}
	if interactive {
		params.Pager = shell.LessPager
	}
	sh, err := shell.New(ctx, params)
	if err != nil {
		return fmt.Errorf("can't make shell: %w", err)
	}

	if err = attachTables(ctx, sh, conf.Tables); err != nil {
		return err
	}
	for _, stmt := range conf.Init {
		if err = sh.Execute(ctx, stmt); err != nil {
			return fmt.Errorf("init statement %q failed: %w", stmt, err)
		}
	}

	if len(opts.Cmd) > 0 {
		for _, c := range opts.Cmd {
			if err = sh.Execute(ctx, c); err != nil {
				if errors.Is(err, shell.ErrQuit) {
					return nil
				}
				return fmt.Errorf("%q failed: %w", c, err)
			}
		}
		return nil
	}

	if f, ok := in.(*os.File); !ok || !shell.IsTerminal(f) {
		return sh.RunScript(ctx, in)
	}

	fmt.Fprintf(out, "liteshell %s, enter .help for usage hints\n", revision)
	history := ""
	if conf.History != "none" {
		if history, err = config.ExpandPath(conf.History); err != nil {
			return err
		}
	}
	rl, err := sh.NewLineReader(ctx, shell.ReplParams{Prompt: conf.Prompt, History: history})
	if err != nil {
		return err
	}
	return sh.Repl(ctx, rl, os.Stderr)
}

// loadConfig reads config file and applies cli overrides
func loadConfig(opts options) (*config.Config, error) {
	overrides := config.Overrides{
		Mode:     opts.Mode,
		History:  opts.History,
		Settings: opts.Settings,
		NoColor:  opts.NoColor,
	}
	errs := new(multierror.Error)
	for _, c := range opts.CSV {
		tbl, err := config.ParseTable(c)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		overrides.Tables = append(overrides.Tables, tbl)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("bad --csv value: %w", err)
	}

	confFile, err := config.ExpandPath(opts.Config)
	if err != nil {
		return nil, fmt.Errorf("can't expand config path %q: %w", opts.Config, err)
	}
	conf, err := config.New(confFile, &overrides)
	if err != nil {
		return nil, fmt.Errorf("can't load config %q: %w", confFile, err)
	}
	return conf, nil
}

// openSettings opens settings store, failures are not fatal, the shell works without hints
func openSettings(path string) *settings.Store {
	if path == "" || path == "none" {
		return nil
	}
	p, err := config.ExpandPath(path)
	if err != nil {
		log.Printf("[WARN] can't expand settings path %s: %v", path, err)
		return nil
	}
	store, err := settings.New(p)
	if err != nil {
		log.Printf("[WARN] settings are not available: %v", err)
		return nil
	}
	return store
}

// attachTables creates virtual tables from config, tables already present in the database are kept
func attachTables(ctx context.Context, sh *shell.Shell, tables []config.Table) error {
	if len(tables) == 0 {
		return nil
	}
	existing, err := sh.Tables(ctx)
	if err != nil {
		return err
	}
	existing = stringutils.Map(existing, strings.ToLower)
	for _, t := range tables {
		if stringutils.Contains(strings.ToLower(t.Name), existing) {
			log.Printf("[INFO] table %s already exists, not attached", t.Name)
			continue
		}
		if err := sh.AttachTable(ctx, t.CreateSQL()); err != nil {
			return fmt.Errorf("can't attach table %s: %w", t.Name, err)
		}
		log.Printf("[DEBUG] table %s attached from %s", t.Name, t.File)
	}
	return nil
}

func setupLog(dbg bool) {
	logOpts := []lgr.Option{lgr.Out(io.Discard), lgr.Err(os.Stderr)} // errors only by default
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError, lgr.Out(os.Stderr)}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))

	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
