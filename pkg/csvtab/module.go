// Package csvtab implements a read-only virtual table module exposing a CSV file as a table.
// Usage from sql: CREATE VIRTUAL TABLE t USING csv(filename='data.csv', header=true).
package csvtab

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"modernc.org/sqlite/vtab"
)

// ErrClosed returned by Create and Connect after the module was closed
var ErrClosed = errors.New("csv module is closed")

// Module is the vtab.Module implementation. It keeps a catalog of schemas inferred on create,
// so connecting to an existing table from another connection doesn't read the file again.
// Module is safe for concurrent use, the engine calls it from every connection of the pool.
type Module struct {
	mu      sync.Mutex
	catalog map[string]Schema
	tables  map[*Table]struct{} // live, connected tables
	closed  bool
}

// NewModule makes a module with an empty catalog
func NewModule() *Module {
	return &Module{catalog: map[string]Schema{}, tables: map[*Table]struct{}{}}
}

// Create is called on CREATE VIRTUAL TABLE. It always infers the schema, replacing a stale catalog entry.
func (m *Module) Create(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.open(ctx, args, true)
}

// Connect is called when a connection first uses an existing table. It reuses the cataloged schema
// and infers only when there is nothing in the catalog, e.g. for a table persisted by another process.
func (m *Module) Connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.open(ctx, args, false)
}

// Close disconnects all live tables and forgets the catalog. Create and Connect fail afterwards.
func (m *Module) Close() error {
	m.mu.Lock()
	tables := make([]*Table, 0, len(m.tables))
	for t := range m.tables {
		tables = append(tables, t)
	}
	m.closed = true
	m.catalog = map[string]Schema{}
	m.mu.Unlock()

	for _, t := range tables {
		if err := t.Disconnect(); err != nil {
			return fmt.Errorf("can't disconnect %s: %w", t.name, err)
		}
	}
	return nil
}

// Tables returns the number of live tables
func (m *Module) Tables() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tables)
}

func (m *Module) open(ctx vtab.Context, args []string, create bool) (vtab.Table, error) {
	if len(args) < 3 {
		return nil, &ConfigError{Msg: fmt.Sprintf("unexpected module arguments %v", args)}
	}
	dbName, tblName := args[1], args[2]

	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	cfg, err := ParseArgs(args[3:])
	if err != nil {
		return nil, err
	}

	key := catalogKey(dbName, tblName, args[3:])
	m.mu.Lock()
	schema, found := m.catalog[key]
	m.mu.Unlock()

	if create || !found {
		if schema, err = InferSchema(cfg); err != nil {
			return nil, err
		}
		log.Printf("[DEBUG] csv table %s.%s inferred from %s, columns: %s", dbName, tblName, cfg.Filename, schema.DeclareSQL())
	}

	if err = ctx.Declare(schema.DeclareSQL()); err != nil {
		return nil, fmt.Errorf("can't declare table %s: %w", tblName, err)
	}

	t := &Table{mod: m, key: key, name: tblName, cfg: cfg, schema: schema, size: fileSize(cfg.Filename)}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	m.catalog[key] = schema
	m.tables[t] = struct{}{}
	return t, nil
}

// forget removes table from the live set and, if drop is set, its schema from the catalog
func (m *Module) forget(t *Table, drop bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tables, t)
	if drop {
		delete(m.catalog, t.key)
	}
}

func catalogKey(db, table string, args []string) string {
	norm := make([]string, len(args))
	for i, a := range args {
		norm[i] = strings.TrimSpace(a)
	}
	return strings.ToLower(db) + "." + strings.ToLower(table) + "(" + strings.Join(norm, ",") + ")"
}
