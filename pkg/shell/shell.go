// Package shell executes sql statements and dot-commands entered by the user and renders results.
package shell

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/go-pkgz/stringutils"

	"github.com/umputun/liteshell/pkg/config"
	"github.com/umputun/liteshell/pkg/settings"
)

// ErrQuit returned by Execute on .quit and .exit
var ErrQuit = errors.New("quit")

// ErrBindParams returned for statements referring to bind parameters
var ErrBindParams = errors.New("cannot run queries that require bind parameters")

// DB is a connection used by the shell, implemented by *sql.Conn and *sql.DB.
// The shell relies on a single underlying connection, so temp tables and pragmas stay visible.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Params defines shell parameters
type Params struct {
	DB        DB
	Out       io.Writer
	Mode      string
	Color     bool
	PagerRows int   // negative disables the pager
	Pager     Pager // nil disables the pager
	Settings  *settings.Store
}

// Shell executes user input
type Shell struct {
	Params
	hl          *Highlighter
	mode        string
	insertTable string
	appID       uint32
}

type dotCommand struct {
	name  string
	usage string
	help  string
}

var dotCommands = []dotCommand{
	{".tables", ".tables", "list tables"},
	{".schema", ".schema TABLE", "show the CREATE statement of a table"},
	{".mode", ".mode [null|table|sql|csv] [TABLE]", "show or set output mode, TABLE names inserts in sql mode"},
	{".csv", ".csv NAME FILE [key=value ...]", "attach csv file as virtual table NAME"},
	{".hint", ".hint [COLUMN [json|none]]", "list, show or set display hint of a column"},
	{".help", ".help", "show this help"},
	{".quit", ".quit", "exit the shell"},
	{".exit", ".exit", "exit the shell"},
}

// New makes a shell. The application id of the database is read once to look up display hints.
func New(ctx context.Context, p Params) (*Shell, error) {
	if p.DB == nil {
		return nil, errors.New("no database")
	}
	if p.Out == nil {
		p.Out = io.Discard
	}
	if p.Mode == "" {
		p.Mode = config.ModeTable
	}
	if !stringutils.Contains(p.Mode, config.Modes) {
		return nil, fmt.Errorf("unknown mode %q", p.Mode)
	}
	appID, err := settings.AppID(ctx, p.DB)
	if err != nil {
		return nil, err
	}
	log.Printf("[DEBUG] database application id %#x", appID)
	return &Shell{Params: p, hl: NewHighlighter(p.Color), mode: p.Mode, insertTable: "tbl", appID: appID}, nil
}

// Mode returns the current output mode
func (s *Shell) Mode() string { return s.mode }

// Highlighter returns the sql highlighter used by the shell
func (s *Shell) Highlighter() *Highlighter { return s.hl }

// Completer returns completer with table names taken from the database
func (s *Shell) Completer(ctx context.Context) *Completer {
	return &Completer{Tables: func() []string {
		tables, err := s.Tables(ctx)
		if err != nil {
			log.Printf("[DEBUG] can't list tables for completion: %v", err)
			return nil
		}
		return tables
	}}
}

// Execute runs a dot-command or sql statements from the line
func (s *Shell) Execute(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if strings.HasPrefix(line, ".") {
		return s.dotCommand(ctx, line)
	}

	stmts := splitStatements(line)
	for _, stmt := range stmts {
		if hasParams(stmt) {
			return ErrBindParams
		}
	}
	for _, stmt := range stmts {
		if err := s.runStatement(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Tables returns table names ordered by name
func (s *Shell) Tables(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, "SELECT name FROM sqlite_schema WHERE type = 'table' ORDER BY name ASC")
	if err != nil {
		return nil, fmt.Errorf("can't list tables: %w", err)
	}
	defer rows.Close()

	var res []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("can't scan table name: %w", err)
		}
		res = append(res, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("can't list tables: %w", err)
	}
	return res, nil
}

func (s *Shell) dotCommand(ctx context.Context, line string) error {
	cmd, rest, _ := strings.Cut(line, " ")
	args := strings.Fields(rest)
	switch cmd {
	case ".tables":
		tables, err := s.Tables(ctx)
		if err != nil {
			return err
		}
		for _, t := range tables {
			s.printf("%s\n", t)
		}
		return nil
	case ".schema":
		return s.schema(ctx, strings.TrimSpace(rest))
	case ".mode":
		return s.setMode(args)
	case ".csv":
		return s.attachCSV(ctx, args)
	case ".hint":
		return s.hint(args)
	case ".help":
		for _, d := range dotCommands {
			s.printf("%-40s %s\n", d.usage, d.help)
		}
		return nil
	case ".quit", ".exit":
		return ErrQuit
	}
	return fmt.Errorf("unknown command %s, try .help", cmd)
}

func (s *Shell) schema(ctx context.Context, name string) error {
	if name == "" {
		return errors.New("provide a table name")
	}
	var stmt sql.NullString
	err := s.DB.QueryRowContext(ctx, "SELECT sql FROM sqlite_schema WHERE type = 'table' AND name = ?", name).Scan(&stmt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("table %s does not exist", name)
	}
	if err != nil {
		return fmt.Errorf("can't get schema of %s: %w", name, err)
	}
	if !stmt.Valid {
		return fmt.Errorf("table %s has no schema", name)
	}
	s.printf("%s\n", s.hl.Highlight(formatSchema(stmt.String)))
	return nil
}

func (s *Shell) setMode(args []string) error {
	if len(args) == 0 {
		s.printf("%s\n", s.mode)
		return nil
	}
	mode := strings.ToLower(args[0])
	if !stringutils.Contains(mode, config.Modes) {
		return fmt.Errorf("unknown mode %q, expected one of %s", args[0], strings.Join(config.Modes, ", "))
	}
	s.mode = mode
	if len(args) > 1 {
		s.insertTable = args[1]
	}
	log.Printf("[DEBUG] output mode %s", s.mode)
	return nil
}

// attachCSV creates csv virtual table, extra arguments are passed to the module as is
func (s *Shell) attachCSV(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: .csv NAME FILE [key=value ...]")
	}
	tbl, err := config.ParseTable(args[0] + "=" + args[1])
	if err != nil {
		return err
	}
	stmt := tbl.CreateSQL()
	if len(args) > 2 {
		stmt = strings.TrimSuffix(stmt, ")") + ", " + strings.Join(args[2:], ", ") + ")"
	}
	if err := s.AttachTable(ctx, stmt); err != nil {
		return err
	}
	s.printf("table %s attached\n", tbl.Name)
	return nil
}

// AttachTable runs CREATE VIRTUAL TABLE statement
func (s *Shell) AttachTable(ctx context.Context, stmt string) error {
	log.Printf("[DEBUG] %s", stmt)
	if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("can't attach csv: %w", err)
	}
	return nil
}

func (s *Shell) hint(args []string) error {
	if s.Settings == nil {
		return errors.New("settings store is not available")
	}
	switch len(args) {
	case 0:
		entries, err := s.Settings.List(s.appID)
		if err != nil {
			return err
		}
		for _, e := range entries {
			s.printf("%s %s\n", e.Column, e.Hint)
		}
		return nil
	case 1:
		h, err := s.Settings.Get(s.appID, args[0])
		if errors.Is(err, settings.ErrNotFound) {
			s.printf("none\n")
			return nil
		}
		if err != nil {
			return err
		}
		s.printf("%s\n", h)
		return nil
	}
	h, err := settings.ParseHint(args[1])
	if err != nil {
		return err
	}
	return s.Settings.Set(s.appID, args[0], h)
}

func (s *Shell) runStatement(ctx context.Context, stmt string) error {
	if !returnsRows(stmt) {
		res, err := s.DB.ExecContext(ctx, stmt)
		if err != nil {
			return err
		}
		if isDML(stmt) {
			if n, err := res.RowsAffected(); err == nil && s.mode != config.ModeNull {
				s.printf("%d %s affected\n", n, plural(n, "row", "rows"))
			}
		}
		return nil
	}

	rows, err := s.DB.QueryContext(ctx, stmt)
	if err != nil {
		return err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("can't get columns: %w", err)
	}
	if len(cols) == 0 {
		for rows.Next() { //nolint:revive // drain
		}
		return rows.Err()
	}

	rnd := s.newRenderer(cols, s.hints())
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("can't scan row: %w", err)
		}
		if err := rnd.row(vals); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return rnd.finish(ctx)
}

// hints returns display hints of the database, errors are logged and ignored
func (s *Shell) hints() map[string]settings.Hint {
	if s.Settings == nil {
		return nil
	}
	res, err := s.Settings.Hints(s.appID)
	if err != nil {
		log.Printf("[WARN] can't load display hints: %v", err)
		return nil
	}
	return res
}

func (s *Shell) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(s.Out, format, args...)
}

// splitStatements splits sql on semicolons outside of strings, comments and trigger bodies
func splitStatements(sql string) []string {
	var res []string
	var cur strings.Builder
	var words []string // keywords of the current statement
	flush := func() {
		if stmt := strings.TrimSpace(cur.String()); stmt != "" && !onlyComments(stmt) {
			res = append(res, stmt)
		}
		cur.Reset()
		words = words[:0]
	}
	for _, t := range tokenize(sql) {
		if t.kind == tokPunct && t.text == ";" {
			// trigger body statements end with semicolons, the trigger itself ends with END;
			if inTriggerBody(words) && (len(words) == 0 || words[len(words)-1] != "END") {
				cur.WriteString(t.text)
				continue
			}
			flush()
			continue
		}
		if t.kind == tokKeyword {
			words = append(words, strings.ToUpper(t.text))
		}
		cur.WriteString(t.text)
	}
	flush()
	return res
}

func inTriggerBody(words []string) bool {
	return len(words) > 2 && words[0] == "CREATE" &&
		stringutils.Contains("TRIGGER", words) && stringutils.Contains("BEGIN", words)
}

func onlyComments(stmt string) bool {
	for _, t := range tokenize(stmt) {
		if t.kind != tokSpace && t.kind != tokComment {
			return false
		}
	}
	return true
}

// firstKeyword returns the upper-cased first word of the statement
func firstKeyword(stmt string) string {
	for _, t := range tokenize(stmt) {
		switch t.kind {
		case tokSpace, tokComment:
			continue
		case tokKeyword, tokWord:
			return strings.ToUpper(t.text)
		}
		return ""
	}
	return ""
}

// returnsRows reports whether the statement produces a result set
func returnsRows(stmt string) bool {
	if stringutils.Contains(firstKeyword(stmt), []string{"SELECT", "WITH", "PRAGMA", "VALUES", "EXPLAIN"}) {
		return true
	}
	for _, t := range tokenize(stmt) {
		if t.kind == tokKeyword && strings.EqualFold(t.text, "RETURNING") {
			return true
		}
	}
	return false
}

func isDML(stmt string) bool {
	return stringutils.Contains(firstKeyword(stmt), []string{"INSERT", "UPDATE", "DELETE", "REPLACE"})
}

func plural(n int64, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
