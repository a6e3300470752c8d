// Package engine orchestrates synchronization of the local inventory with
// the remote mapping document. One sync operation walks the state machine
// IDLE → RESOLVING_POINTER → FETCHING → RECONCILING → PUSHING → DONE, with
// FAILED reachable from any non-terminal state. Local state is persisted
// only on DONE; every failure leaves both sides untouched.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/scriptstash/scriptstash/internal/discovery"
	"github.com/scriptstash/scriptstash/internal/inventory"
	"github.com/scriptstash/scriptstash/internal/remote"
	"github.com/scriptstash/scriptstash/internal/store"
)

const mappingFilename = "mapping.json"

func scriptFilename(name string) string {
	return name + ".py"
}

// Remote is the document store surface the engine consumes.
type Remote interface {
	Create(ctx context.Context, filename, content, description string, private bool) (id, revision string, err error)
	Update(ctx context.Context, id, filename, content, ifRevision string) (revision string, err error)
	Get(ctx context.Context, id string) (*remote.Document, error)
	Delete(ctx context.Context, id string) error
	ListOwned(ctx context.Context) ([]remote.DocumentInfo, error)
}

// Engine runs sync operations. Within one operation remote calls are
// sequential: each depends on the revision observed by the previous one.
type Engine struct {
	Store  *store.Store
	Remote Remote
	Finder *discovery.Finder

	// Owner is recorded in the pointer when a mapping document is adopted
	// or created.
	Owner string
	// Private controls the visibility of documents the engine creates.
	Private bool
	// StaleLockAge overrides the advisory-lock staleness threshold.
	// Zero means the store default.
	StaleLockAge time.Duration

	Logger *log.Logger
}

func (e *Engine) logf(format string, args ...any) {
	if e.Logger == nil {
		e.Logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}
	e.Logger.Printf(format, args...)
}

// Run executes one sync operation in the given mode. The advisory lock is
// held for the whole operation and released on every exit path.
func (e *Engine) Run(ctx context.Context, mode Mode) (*Result, error) {
	lock, err := e.Store.AcquireLock(e.StaleLockAge)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Release() }()

	result := &Result{Mode: mode, State: StateIdle}
	res, err := e.run(ctx, mode, result)
	if err != nil {
		result.State = StateFailed
		return result, err
	}
	return res, nil
}

func (e *Engine) run(ctx context.Context, mode Mode, result *Result) (*Result, error) {
	local, err := e.Store.Load()
	if err != nil {
		return nil, err
	}

	// RESOLVING_POINTER
	result.State = StateResolvingPointer
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pointer, err := e.Store.LoadPointer()
	if err != nil {
		return nil, err
	}

	var remoteRec *inventory.Record
	if pointer == nil {
		pointer, remoteRec, err = e.discover(ctx)
		if err != nil {
			return nil, err
		}
	}

	working := local
	attempt := 0
	for {
		// FETCHING
		result.State = StateFetching
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if pointer != nil && remoteRec == nil {
			remoteRec, err = e.fetchMapping(ctx, pointer.DocumentID)
			if errors.Is(err, remote.ErrNotFound) {
				// Stale pointer: the document vanished. Rediscover.
				e.logf("Mapping document %s is gone, rediscovering", pointer.DocumentID)
				pointer, remoteRec, err = e.discover(ctx)
			}
			if err != nil {
				return nil, err
			}
		}

		// RECONCILING
		result.State = StateReconciling
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		outcome := Reconcile(working, remoteRec, mode)
		merged := outcome.Merged
		result.Actions = outcome.Actions

		if mode == ModePull {
			return e.finish(result, merged, pointer)
		}

		// PUSHING
		result.State = StatePushing
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := e.publishPending(ctx, outcome.ToCreate, merged, result); err != nil {
			return nil, err
		}

		if pointer == nil {
			if len(merged.Entries) == 0 && mode != ModePush {
				// First-time local-only state: nothing to record remotely.
				return e.finish(result, merged, nil)
			}
			newPointer, err := e.createMapping(ctx, merged)
			if err != nil {
				return nil, err
			}
			result.CreatedMapping = true
			result.PushedMapping = true
			return e.finish(result, merged, newPointer)
		}

		if !inventory.EntriesEqual(merged, remoteRec) {
			content, err := inventory.EncodeRemote(merged)
			if err != nil {
				return nil, err
			}
			rev, err := e.Remote.Update(ctx, pointer.DocumentID, mappingFilename, string(content), merged.Revision)
			if errors.Is(err, remote.ErrRevisionMismatch) {
				// A concurrent writer moved the document. One full
				// re-fetch/re-merge/push cycle is permitted before the
				// conflict becomes terminal.
				if attempt >= 1 {
					return nil, &SyncConflictError{DocumentID: pointer.DocumentID}
				}
				attempt++
				result.Retried = true
				e.logf("Mapping document %s moved during push, retrying once", pointer.DocumentID)
				working = merged // keep document ids from scripts published above
				remoteRec = nil
				continue
			}
			if err != nil {
				return nil, err
			}
			merged.Revision = rev
			result.PushedMapping = true
		}

		return e.finish(result, merged, pointer)
	}
}

// discover runs inventory discovery. A missing mapping is not an error at
// this level: it is the empty remote baseline of a first-time install.
func (e *Engine) discover(ctx context.Context) (*inventory.Pointer, *inventory.Record, error) {
	res, err := e.Finder.Discover(ctx)
	if errors.Is(err, discovery.ErrNoMappingFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	p := res.Pointer
	return &p, res.Record, nil
}

// fetchMapping gets and validates the pointed-to mapping document.
func (e *Engine) fetchMapping(ctx context.Context, documentID string) (*inventory.Record, error) {
	doc, err := e.Remote.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	rec, err := inventory.DecodeRemote([]byte(doc.Content))
	if err != nil {
		return nil, fmt.Errorf("mapping document %s: %w", documentID, err)
	}
	rec.Revision = doc.Revision
	return rec, nil
}

// publishPending creates one remote document per never-published entry
// with a cached body. Entries without a cached body stay pending: there is
// nothing to publish yet.
func (e *Engine) publishPending(ctx context.Context, names []string, merged *inventory.Record, result *Result) error {
	for _, name := range names {
		body, err := e.Store.CachedScript(name)
		if errors.Is(err, store.ErrScriptNotCached) {
			e.logf("Script '%s' has no cached body, leaving unpublished", name)
			continue
		}
		if err != nil {
			return err
		}
		id, _, err := e.Remote.Create(ctx, scriptFilename(name), body, discovery.ScriptDescription(name), e.Private)
		if err != nil {
			return fmt.Errorf("publishing script '%s': %w", name, err)
		}
		entry := merged.Entries[name]
		entry.DocumentID = id
		entry.UpdatedAt = inventory.Now()
		merged.Entries[name] = entry
		result.Published = append(result.Published, name)
	}
	return nil
}

// createMapping publishes a fresh mapping document carrying the sentinel
// description and returns its pointer.
func (e *Engine) createMapping(ctx context.Context, merged *inventory.Record) (*inventory.Pointer, error) {
	content, err := inventory.EncodeRemote(merged)
	if err != nil {
		return nil, err
	}
	id, rev, err := e.Remote.Create(ctx, mappingFilename, string(content), discovery.MappingSentinel, e.Private)
	if err != nil {
		return nil, fmt.Errorf("creating mapping document: %w", err)
	}
	merged.Revision = rev
	e.logf("Created mapping document %s", id)
	return &inventory.Pointer{DocumentID: id, Owner: e.Owner, AdoptedAt: inventory.Now()}, nil
}

// finish is the DONE transition: the merged record and pointer are
// persisted atomically, and only here.
func (e *Engine) finish(result *Result, merged *inventory.Record, pointer *inventory.Pointer) (*Result, error) {
	if err := e.Store.Save(merged); err != nil {
		return nil, err
	}
	if pointer != nil {
		if err := e.Store.SavePointer(pointer); err != nil {
			return nil, err
		}
	}
	result.State = StateDone
	result.Record = merged
	result.Pointer = pointer
	return result, nil
}
