// Package extension registers the csv virtual table module and custom functions with the sqlite driver.
//
// The driver keeps registrations in a process-wide registry with no way to remove them, so the module
// is registered once, as a dispatcher forwarding to the module state owned by the active Extension.
// Closing the Extension disconnects its tables; CREATE VIRTUAL TABLE ... USING csv fails until the next Load.
package extension

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"modernc.org/sqlite/vtab"

	"github.com/umputun/liteshell/pkg/csvtab"
	"github.com/umputun/liteshell/pkg/functions"
)

// ModuleName is the name used in CREATE VIRTUAL TABLE ... USING <name>(...)
const ModuleName = "csv"

// ErrNotLoaded returned by the dispatcher when no Extension is active
var ErrNotLoaded = errors.New("csv extension is not loaded")

var (
	registerOnce sync.Once
	registerErr  error

	mu     sync.Mutex
	active *Extension
)

// Extension is a handle of the loaded extension
type Extension struct {
	mod *csvtab.Module
}

// Load registers the module and functions with the driver, once per process, and returns the active
// handle. Calling Load again returns the same handle until it is closed.
// Registration affects connections opened after the first Load only.
func Load() (*Extension, error) {
	registerOnce.Do(func() {
		if err := vtab.RegisterModule(nil, ModuleName, dispatcher{}); err != nil {
			registerErr = fmt.Errorf("can't register %s module: %w", ModuleName, err)
			return
		}
		if err := functions.Register(); err != nil {
			registerErr = err
			return
		}
		log.Printf("[DEBUG] %s module and functions registered", ModuleName)
	})
	if registerErr != nil {
		return nil, registerErr
	}

	mu.Lock()
	defer mu.Unlock()
	if active == nil {
		active = &Extension{mod: csvtab.NewModule()}
	}
	return active, nil
}

// Module returns the csv module state owned by the extension
func (e *Extension) Module() *csvtab.Module { return e.mod }

// Close disconnects all csv tables created through this handle and deactivates it
func (e *Extension) Close() error {
	mu.Lock()
	if active == e {
		active = nil
	}
	mu.Unlock()
	if err := e.mod.Close(); err != nil {
		return fmt.Errorf("can't close %s module: %w", ModuleName, err)
	}
	return nil
}

// dispatcher is the module registered with the driver, it forwards to the active extension
type dispatcher struct{}

func (dispatcher) Create(ctx vtab.Context, args []string) (vtab.Table, error) {
	mod, err := current()
	if err != nil {
		return nil, err
	}
	return mod.Create(ctx, args)
}

func (dispatcher) Connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	mod, err := current()
	if err != nil {
		return nil, err
	}
	return mod.Connect(ctx, args)
}

func current() (*csvtab.Module, error) {
	mu.Lock()
	defer mu.Unlock()
	if active == nil {
		return nil, ErrNotLoaded
	}
	return active.mod, nil
}
