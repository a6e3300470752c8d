package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/scriptstash/scriptstash/internal/inventory"
	"github.com/scriptstash/scriptstash/internal/remote"
	"github.com/scriptstash/scriptstash/internal/store"
)

// ErrScriptNotFound means no inventory entry carries the requested name.
var ErrScriptNotFound = errors.New("script not found in inventory")

// Stage caches a script body and records (or refreshes) its inventory
// entry without touching the remote. A subsequent push publishes it.
func (e *Engine) Stage(name, body string, tags []string) error {
	if err := inventory.ValidateName(name); err != nil {
		return err
	}

	lock, err := e.Store.AcquireLock(e.StaleLockAge)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	rec, err := e.Store.Load()
	if err != nil {
		return err
	}
	if _, err := e.Store.CacheScript(name, body); err != nil {
		return err
	}

	now := inventory.Now()
	entry, ok := rec.Entries[name]
	if !ok {
		entry = inventory.Entry{ScriptName: name, CreatedAt: now}
	}
	entry.UpdatedAt = now
	if tags != nil {
		entry.Tags = tags
	}
	rec.Entries[name] = entry

	return e.Store.Save(rec)
}

// PushScript replaces the remote document of an already-published script
// with the cached local body and bumps the entry's timestamp. Unpublished
// scripts go through a sync instead.
func (e *Engine) PushScript(ctx context.Context, name string) error {
	lock, err := e.Store.AcquireLock(e.StaleLockAge)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	rec, err := e.Store.Load()
	if err != nil {
		return err
	}
	entry, ok := rec.Entries[name]
	if !ok {
		return fmt.Errorf("script '%s': %w", name, ErrScriptNotFound)
	}
	if !entry.Published() {
		return fmt.Errorf("script '%s' has never been published; run a sync first", name)
	}

	body, err := e.Store.CachedScript(name)
	if err != nil {
		return err
	}
	// Script documents are not revision-guarded: last writer wins, and the
	// entry timestamp carries that ordering into the mapping merge.
	if _, err := e.Remote.Update(ctx, entry.DocumentID, scriptFilename(name), body, ""); err != nil {
		return fmt.Errorf("pushing script '%s': %w", name, err)
	}

	entry.UpdatedAt = inventory.Now()
	rec.Entries[name] = entry
	return e.Store.Save(rec)
}

// RemoveScript deletes a script everywhere: its remote document
// (best-effort), its mapping entry on both sides, and its cached body.
// The mapping document is updated directly because the merge rules are
// additive and would otherwise resurrect the entry on the next sync.
func (e *Engine) RemoveScript(ctx context.Context, name string) error {
	lock, err := e.Store.AcquireLock(e.StaleLockAge)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	rec, err := e.Store.Load()
	if err != nil {
		return err
	}
	entry, ok := rec.Entries[name]
	if !ok {
		return fmt.Errorf("script '%s': %w", name, ErrScriptNotFound)
	}

	if entry.Published() {
		if err := e.Remote.Delete(ctx, entry.DocumentID); err != nil && !errors.Is(err, remote.ErrNotFound) {
			e.logf("Could not delete document %s for script '%s': %v", entry.DocumentID, name, err)
		}
	}

	pointer, err := e.Store.LoadPointer()
	if err != nil {
		return err
	}
	if pointer != nil {
		if err := e.removeFromMapping(ctx, pointer.DocumentID, name); err != nil {
			return err
		}
	}

	delete(rec.Entries, name)
	if err := e.Store.RemoveScript(name); err != nil {
		return err
	}
	return e.Store.Save(rec)
}

// removeFromMapping drops one entry from the remote mapping document under
// the usual revision guard, with the same single-retry policy as a sync.
func (e *Engine) removeFromMapping(ctx context.Context, documentID, name string) error {
	for attempt := 0; ; attempt++ {
		remoteRec, err := e.fetchMapping(ctx, documentID)
		if errors.Is(err, remote.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, ok := remoteRec.Entries[name]; !ok {
			return nil
		}
		delete(remoteRec.Entries, name)

		content, err := inventory.EncodeRemote(remoteRec)
		if err != nil {
			return err
		}
		_, err = e.Remote.Update(ctx, documentID, mappingFilename, string(content), remoteRec.Revision)
		if errors.Is(err, remote.ErrRevisionMismatch) {
			if attempt >= 1 {
				return &SyncConflictError{DocumentID: documentID}
			}
			e.logf("Mapping document %s moved during removal, retrying once", documentID)
			continue
		}
		return err
	}
}

// EnsureScript returns the local path of a script body, fetching and
// caching it from the remote when absent (or when force is set). It is the
// resolution step behind run and edit.
func (e *Engine) EnsureScript(ctx context.Context, name string, force bool) (string, error) {
	rec, err := e.Store.Load()
	if err != nil {
		return "", err
	}
	entry, ok := rec.Entries[name]
	if !ok {
		return "", fmt.Errorf("script '%s': %w", name, ErrScriptNotFound)
	}

	if !force {
		path, err := e.Store.ScriptPath(name)
		if err != nil {
			return "", err
		}
		if _, statErr := e.Store.CachedScript(name); statErr == nil {
			return path, nil
		} else if !errors.Is(statErr, store.ErrScriptNotCached) {
			return "", statErr
		}
	}

	if !entry.Published() {
		return "", fmt.Errorf("script '%s' has no cached body and no remote document", name)
	}
	doc, err := e.Remote.Get(ctx, entry.DocumentID)
	if err != nil {
		return "", fmt.Errorf("fetching script '%s': %w", name, err)
	}
	return e.Store.CacheScript(name, doc.Content)
}
