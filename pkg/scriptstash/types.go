package scriptstash

import (
	"github.com/scriptstash/scriptstash/internal/engine"
	"github.com/scriptstash/scriptstash/internal/inventory"
)

// Type aliases re-export the core types as the public API. Users import
// "github.com/scriptstash/scriptstash/pkg/scriptstash" and use
// scriptstash.Result, scriptstash.Record, etc.

type Record = inventory.Record
type Entry = inventory.Entry
type Pointer = inventory.Pointer

type Mode = engine.Mode
type State = engine.State
type Result = engine.Result
type EntryAction = engine.EntryAction
type SyncConflictError = engine.SyncConflictError

const (
	ModeSync = engine.ModeSync
	ModePush = engine.ModePush
	ModePull = engine.ModePull
)
