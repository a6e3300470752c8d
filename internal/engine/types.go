package engine

import (
	"fmt"

	"github.com/scriptstash/scriptstash/internal/inventory"
)

// State names one phase of a sync operation. Cancellation is observed on
// state transitions, never mid-call.
type State string

const (
	StateIdle             State = "IDLE"
	StateResolvingPointer State = "RESOLVING_POINTER"
	StateFetching         State = "FETCHING"
	StateReconciling      State = "RECONCILING"
	StatePushing          State = "PUSHING"
	StateDone             State = "DONE"
	StateFailed           State = "FAILED"
)

// Mode selects the entry point into the sync state machine.
type Mode string

const (
	// ModeSync reconciles both ways and pushes the merged record.
	ModeSync Mode = "sync"
	// ModePush is ModeSync invoked for publishing: it still fetches and
	// reconciles first, because publishing without reconciling risks
	// silently discarding another device's concurrent changes.
	ModePush Mode = "push"
	// ModePull skips the pushing phase: remote state is adopted, local
	// advantage is discarded except for never-published entries.
	ModePull Mode = "pull"
)

// EntryAction records what the reconcile phase decided for one entry.
type EntryAction struct {
	Name   string
	Action string // "adopted", "updated", "kept", "dropped", "pending", "published"
}

// Result holds the outcome of one completed sync operation.
type Result struct {
	State   State
	Mode    Mode
	Record  *inventory.Record
	Pointer *inventory.Pointer
	// Published lists scripts whose documents were created this run.
	Published []string
	// Actions is the per-entry reconcile trace.
	Actions []EntryAction
	// PushedMapping reports whether the mapping document was written.
	PushedMapping bool
	// CreatedMapping reports whether a fresh mapping document was created.
	CreatedMapping bool
	// Retried reports that a concurrent writer forced a second
	// fetch/reconcile/push cycle.
	Retried bool
}

// SyncConflictError is terminal for one invocation: the remote moved again
// after the single permitted re-fetch cycle. No local state is persisted.
type SyncConflictError struct {
	DocumentID string
}

func (e *SyncConflictError) Error() string {
	return fmt.Sprintf("sync conflict on mapping document %s: remote changed during both push attempts; rerun sync", e.DocumentID)
}
