package csvtab

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"

	"modernc.org/sqlite/vtab"
)

// query plan flags passed from BestIndex to Filter in idxNum
const (
	planRowid    = 1 << iota // argv[0] is the wanted rowid
	planColumnEq             // idxStr lists columns compared for equality with the remaining argv
)

type tableState int

const (
	stateConnected tableState = iota
	stateDisconnected
	stateDestroyed
)

// ErrTableGone returned by Open on a disconnected or destroyed table
var ErrTableGone = errors.New("csv table is disconnected")

// Table is a single connected virtual table. Schema and config never change after creation.
type Table struct {
	mod    *Module
	key    string
	name   string
	cfg    SourceConfig
	schema Schema
	size   int64 // file size at connect time, used for cost estimation

	mu    sync.Mutex
	state tableState
}

// Schema returns the table columns
func (t *Table) Schema() Schema { return t.schema }

// Config returns the validated source config
func (t *Table) Config() SourceConfig { return t.cfg }

// BestIndex picks the scan plan. Every plan reads the file sequentially, so the cost always grows
// with the file size. Rowid equality is handled completely by the cursor and omitted from the host
// re-check. Column equality is used to skip rows early, but the host still re-checks it,
// as the cursor compares values without collations and affinity conversions.
func (t *Table) BestIndex(info *vtab.IndexInfo) error {
	fullCost := 1000 + float64(t.size)
	rows := t.size/64 + 1

	plan, argc := 0, 0
	var cols []string
	for i, c := range info.Constraints {
		if !c.Usable || c.Op != vtab.OpEQ {
			continue
		}
		if c.Column < 0 && plan&planRowid == 0 {
			plan |= planRowid
			info.Constraints[i].ArgIndex = 0
			info.Constraints[i].Omit = true
		}
	}
	if plan&planRowid != 0 {
		argc = 1
	}
	for i, c := range info.Constraints {
		if !c.Usable || c.Op != vtab.OpEQ || c.Column < 0 || c.Column >= len(t.schema) {
			continue
		}
		plan |= planColumnEq
		info.Constraints[i].ArgIndex = argc
		argc++
		cols = append(cols, strconv.Itoa(c.Column))
	}

	info.IdxNum = int64(plan)
	info.IdxStr = strings.Join(cols, ",")
	switch {
	case plan&planRowid != 0:
		info.EstimatedCost = fullCost / 2
		info.EstimatedRows = 1
		info.IdxFlags = vtab.IndexScanUnique
	case plan&planColumnEq != 0:
		info.EstimatedCost = fullCost * 0.9
		info.EstimatedRows = rows/10 + 1
	default:
		info.EstimatedCost = fullCost
		info.EstimatedRows = rows
	}
	return nil
}

// Open makes a new cursor. The cursor does no I/O until Filter is called.
func (t *Table) Open() (vtab.Cursor, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != stateConnected {
		return nil, ErrTableGone
	}
	return &Cursor{table: t}, nil
}

// Disconnect releases the table, the schema stays in the module catalog for the next connect
func (t *Table) Disconnect() error {
	t.mu.Lock()
	if t.state != stateConnected {
		t.mu.Unlock()
		return nil
	}
	t.state = stateDisconnected
	t.mu.Unlock()
	t.mod.forget(t, false)
	log.Printf("[DEBUG] csv table %s disconnected", t.name)
	return nil
}

// Destroy is called on DROP TABLE, the schema is removed from the module catalog
func (t *Table) Destroy() error {
	t.mu.Lock()
	if t.state == stateDestroyed {
		t.mu.Unlock()
		return nil
	}
	t.state = stateDestroyed
	t.mu.Unlock()
	t.mod.forget(t, true)
	log.Printf("[DEBUG] csv table %s destroyed", t.name)
	return nil
}

func fileSize(name string) int64 {
	st, err := os.Stat(name)
	if err != nil {
		return 0
	}
	return st.Size()
}
