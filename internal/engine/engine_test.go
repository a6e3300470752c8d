package engine

import (
	"context"
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"github.com/scriptstash/scriptstash/internal/discovery"
	"github.com/scriptstash/scriptstash/internal/inventory"
	"github.com/scriptstash/scriptstash/internal/remote"
	"github.com/scriptstash/scriptstash/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRemote is an in-memory document store with revision tracking and an
// If-Match guard, mirroring the real client's contract.
type fakeDoc struct {
	description string
	filename    string
	content     string
	revision    string
	updatedAt   time.Time
}

type fakeRemote struct {
	docs    map[string]*fakeDoc
	nextID  int
	nextRev int
	// onUpdate runs before the revision check on every Update, so tests
	// can simulate a concurrent writer moving the document.
	onUpdate func(id string, d *fakeDoc)
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{docs: make(map[string]*fakeDoc)}
}

func (f *fakeRemote) bumpRev() string {
	f.nextRev++
	return fmt.Sprintf("rev%d", f.nextRev)
}

func (f *fakeRemote) Create(ctx context.Context, filename, content, description string, private bool) (string, string, error) {
	f.nextID++
	id := fmt.Sprintf("doc%d", f.nextID)
	d := &fakeDoc{
		description: description,
		filename:    filename,
		content:     content,
		revision:    f.bumpRev(),
		updatedAt:   time.Now().UTC(),
	}
	f.docs[id] = d
	return id, d.revision, nil
}

func (f *fakeRemote) Get(ctx context.Context, id string) (*remote.Document, error) {
	d, ok := f.docs[id]
	if !ok {
		return nil, remote.ErrNotFound
	}
	return &remote.Document{
		ID:          id,
		Description: d.description,
		Content:     d.content,
		Revision:    d.revision,
		UpdatedAt:   d.updatedAt,
	}, nil
}

func (f *fakeRemote) Update(ctx context.Context, id, filename, content, ifRevision string) (string, error) {
	d, ok := f.docs[id]
	if !ok {
		return "", remote.ErrNotFound
	}
	if f.onUpdate != nil {
		f.onUpdate(id, d)
	}
	if ifRevision != "" && ifRevision != d.revision {
		return "", fmt.Errorf("update %s: %w", id, remote.ErrRevisionMismatch)
	}
	d.content = content
	d.revision = f.bumpRev()
	d.updatedAt = time.Now().UTC()
	return d.revision, nil
}

func (f *fakeRemote) Delete(ctx context.Context, id string) error {
	if _, ok := f.docs[id]; !ok {
		return remote.ErrNotFound
	}
	delete(f.docs, id)
	return nil
}

func (f *fakeRemote) ListOwned(ctx context.Context) ([]remote.DocumentInfo, error) {
	var out []remote.DocumentInfo
	for id, d := range f.docs {
		out = append(out, remote.DocumentInfo{
			ID:          id,
			Description: d.description,
			Revision:    d.revision,
			UpdatedAt:   d.updatedAt,
		})
	}
	return out, nil
}

func (f *fakeRemote) seedMapping(t *testing.T, rec *inventory.Record) string {
	t.Helper()
	content, err := inventory.EncodeRemote(rec)
	require.NoError(t, err)
	id, _, err := f.Create(context.Background(), "mapping.json", string(content), discovery.MappingSentinel, true)
	require.NoError(t, err)
	return id
}

func (f *fakeRemote) mappingRecord(t *testing.T, id string) *inventory.Record {
	t.Helper()
	d, ok := f.docs[id]
	require.True(t, ok, "mapping document %s exists", id)
	rec, err := inventory.DecodeRemote([]byte(d.content))
	require.NoError(t, err)
	return rec
}

func newTestEngine(t *testing.T, fr *fakeRemote) *Engine {
	t.Helper()
	quiet := log.New(io.Discard, "", 0)
	st, err := store.New(t.TempDir(), quiet)
	require.NoError(t, err)
	return &Engine{
		Store:        st,
		Remote:       fr,
		Finder:       discovery.NewFinder(fr, "octocat", quiet),
		Owner:        "octocat",
		Private:      true,
		StaleLockAge: time.Minute,
		Logger:       quiet,
	}
}

func TestSyncFreshInstallAdoptsRemote(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fr := newFakeRemote()
	mappingID := fr.seedMapping(t, recordWith(entryAt("hello", "d-h", ts)))
	e := newTestEngine(t, fr)

	res, err := e.Run(context.Background(), ModeSync)
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.Contains(t, res.Record.Entries, "hello")
	assert.False(t, res.PushedMapping, "identical merged state needs no push")

	rec, err := e.Store.Load()
	require.NoError(t, err)
	assert.Contains(t, rec.Entries, "hello")
	assert.NotEmpty(t, rec.Revision)

	pointer, err := e.Store.LoadPointer()
	require.NoError(t, err)
	require.NotNil(t, pointer)
	assert.Equal(t, mappingID, pointer.DocumentID)
	assert.Equal(t, "octocat", pointer.Owner)
}

func TestSyncEmptyBothSidesIsNoOp(t *testing.T) {
	fr := newFakeRemote()
	e := newTestEngine(t, fr)

	res, err := e.Run(context.Background(), ModeSync)
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.Empty(t, res.Record.Entries)
	assert.Empty(t, fr.docs, "nothing was created remotely")

	pointer, err := e.Store.LoadPointer()
	require.NoError(t, err)
	assert.Nil(t, pointer)
}

func TestPushCreatesMappingDocument(t *testing.T) {
	fr := newFakeRemote()
	e := newTestEngine(t, fr)

	res, err := e.Run(context.Background(), ModePush)
	require.NoError(t, err)
	assert.True(t, res.CreatedMapping)

	pointer, err := e.Store.LoadPointer()
	require.NoError(t, err)
	require.NotNil(t, pointer)
	assert.Equal(t, discovery.MappingSentinel, fr.docs[pointer.DocumentID].description)
}

func TestSyncPublishesStagedScript(t *testing.T) {
	fr := newFakeRemote()
	e := newTestEngine(t, fr)

	body := "print('hi')\n"
	require.NoError(t, e.Stage("greet", body, []string{"demo"}))

	res, err := e.Run(context.Background(), ModeSync)
	require.NoError(t, err)
	assert.Equal(t, []string{"greet"}, res.Published)
	assert.True(t, res.CreatedMapping)

	rec, err := e.Store.Load()
	require.NoError(t, err)
	entry := rec.Entries["greet"]
	require.True(t, entry.Published())
	assert.Equal(t, body, fr.docs[entry.DocumentID].content)
	assert.Equal(t, discovery.ScriptDescription("greet"), fr.docs[entry.DocumentID].description)

	pointer, err := e.Store.LoadPointer()
	require.NoError(t, err)
	require.NotNil(t, pointer)
	remoteRec := fr.mappingRecord(t, pointer.DocumentID)
	assert.Equal(t, entry.DocumentID, remoteRec.Entries["greet"].DocumentID)
}

func TestSyncMergesDisjointLocalAndRemote(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fr := newFakeRemote()
	mappingID := fr.seedMapping(t, recordWith(entryAt("beta", "d-b", ts)))
	e := newTestEngine(t, fr)
	require.NoError(t, e.Stage("alpha", "print('a')\n", nil))

	res, err := e.Run(context.Background(), ModeSync)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"alpha", "beta"}, res.Record.Names())
	assert.True(t, res.PushedMapping)

	remoteRec := fr.mappingRecord(t, mappingID)
	require.ElementsMatch(t, []string{"alpha", "beta"}, remoteRec.Names())
	assert.True(t, remoteRec.Entries["alpha"].Published())
}

func TestSyncRetriesOnceOnRevisionMismatch(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fr := newFakeRemote()
	mappingID := fr.seedMapping(t, recordWith(entryAt("beta", "d-b", ts)))
	e := newTestEngine(t, fr)
	require.NoError(t, e.Stage("alpha", "print('a')\n", nil))

	fired := false
	fr.onUpdate = func(id string, d *fakeDoc) {
		if !fired && id == mappingID {
			fired = true
			d.revision = fr.bumpRev()
		}
	}

	res, err := e.Run(context.Background(), ModeSync)
	require.NoError(t, err)
	assert.True(t, res.Retried)
	assert.True(t, fired)
	require.ElementsMatch(t, []string{"alpha", "beta"}, fr.mappingRecord(t, mappingID).Names())
	// The retry must reuse the document published on the first pass.
	assert.Equal(t, []string{"alpha"}, res.Published)
}

func TestSyncConflictAfterSecondMismatch(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fr := newFakeRemote()
	mappingID := fr.seedMapping(t, recordWith(entryAt("beta", "d-b", ts)))
	e := newTestEngine(t, fr)
	require.NoError(t, e.Stage("alpha", "print('a')\n", nil))

	fr.onUpdate = func(id string, d *fakeDoc) {
		if id == mappingID {
			d.revision = fr.bumpRev()
		}
	}

	res, err := e.Run(context.Background(), ModeSync)
	require.Error(t, err)
	var conflict *SyncConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, mappingID, conflict.DocumentID)
	assert.Equal(t, StateFailed, res.State)

	// No partial merge may be persisted on failure.
	rec, loadErr := e.Store.Load()
	require.NoError(t, loadErr)
	assert.False(t, rec.Entries["alpha"].Published(), "local entry still unpublished")
	assert.NotContains(t, rec.Entries, "beta")
	pointer, loadErr := e.Store.LoadPointer()
	require.NoError(t, loadErr)
	assert.Nil(t, pointer)
}

func TestSyncStalePointerRediscovers(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fr := newFakeRemote()
	mappingID := fr.seedMapping(t, recordWith(entryAt("hello", "d-h", ts)))
	e := newTestEngine(t, fr)
	require.NoError(t, e.Store.SavePointer(&inventory.Pointer{DocumentID: "gone", Owner: "octocat"}))

	res, err := e.Run(context.Background(), ModeSync)
	require.NoError(t, err)
	assert.Contains(t, res.Record.Entries, "hello")

	pointer, err := e.Store.LoadPointer()
	require.NoError(t, err)
	require.NotNil(t, pointer)
	assert.Equal(t, mappingID, pointer.DocumentID)
}

func TestSyncAmbiguousMappingSurfaces(t *testing.T) {
	fr := newFakeRemote()
	fr.seedMapping(t, inventory.NewRecord())
	fr.seedMapping(t, inventory.NewRecord())
	e := newTestEngine(t, fr)

	_, err := e.Run(context.Background(), ModeSync)
	var amb *discovery.AmbiguousMappingError
	require.ErrorAs(t, err, &amb)
	assert.Len(t, amb.Candidates, 2)
}

func TestPullDropsLocalOnlyPublished(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fr := newFakeRemote()
	mappingID := fr.seedMapping(t, inventory.NewRecord())
	e := newTestEngine(t, fr)
	require.NoError(t, e.Store.Save(recordWith(entryAt("mine", "d-m", ts))))

	res, err := e.Run(context.Background(), ModePull)
	require.NoError(t, err)
	assert.NotContains(t, res.Record.Entries, "mine")
	assert.False(t, res.PushedMapping)

	// Pull never writes remotely.
	remoteRec := fr.mappingRecord(t, mappingID)
	assert.Empty(t, remoteRec.Entries)
}

func TestRunRefusesWhenLockHeld(t *testing.T) {
	e := newTestEngine(t, newFakeRemote())
	lock, err := e.Store.AcquireLock(time.Minute)
	require.NoError(t, err)
	defer func() { _ = lock.Release() }()

	_, err = e.Run(context.Background(), ModeSync)
	assert.ErrorIs(t, err, store.ErrSyncInProgress)
}

func TestRunObservesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := newTestEngine(t, newFakeRemote())

	res, err := e.Run(ctx, ModeSync)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateFailed, res.State)
}

func TestEnsureScriptFetchesWhenNotCached(t *testing.T) {
	fr := newFakeRemote()
	e := newTestEngine(t, fr)

	id, _, err := fr.Create(context.Background(), "fetchme.py", "print('remote')\n", discovery.ScriptDescription("fetchme"), true)
	require.NoError(t, err)
	ts := inventory.Now()
	require.NoError(t, e.Store.Save(recordWith(entryAt("fetchme", id, ts))))

	path, err := e.EnsureScript(context.Background(), "fetchme", false)
	require.NoError(t, err)
	body, err := e.Store.CachedScript("fetchme")
	require.NoError(t, err)
	assert.Equal(t, "print('remote')\n", body)
	assert.NotEmpty(t, path)
}

func TestEnsureScriptPrefersCacheUnlessForced(t *testing.T) {
	fr := newFakeRemote()
	e := newTestEngine(t, fr)

	id, _, err := fr.Create(context.Background(), "tool.py", "print('v2')\n", discovery.ScriptDescription("tool"), true)
	require.NoError(t, err)
	require.NoError(t, e.Store.Save(recordWith(entryAt("tool", id, inventory.Now()))))
	_, err = e.Store.CacheScript("tool", "print('v1')\n")
	require.NoError(t, err)

	_, err = e.EnsureScript(context.Background(), "tool", false)
	require.NoError(t, err)
	body, _ := e.Store.CachedScript("tool")
	assert.Equal(t, "print('v1')\n", body)

	_, err = e.EnsureScript(context.Background(), "tool", true)
	require.NoError(t, err)
	body, _ = e.Store.CachedScript("tool")
	assert.Equal(t, "print('v2')\n", body)
}

func TestEnsureScriptUnknownName(t *testing.T) {
	e := newTestEngine(t, newFakeRemote())
	_, err := e.EnsureScript(context.Background(), "nope", false)
	assert.ErrorIs(t, err, ErrScriptNotFound)
}

func TestPushScriptUpdatesRemoteBody(t *testing.T) {
	fr := newFakeRemote()
	e := newTestEngine(t, fr)
	require.NoError(t, e.Stage("tool", "print('v1')\n", nil))
	_, err := e.Run(context.Background(), ModeSync)
	require.NoError(t, err)

	rec, _ := e.Store.Load()
	before := rec.Entries["tool"].UpdatedAt

	_, err = e.Store.CacheScript("tool", "print('v2')\n")
	require.NoError(t, err)
	require.NoError(t, e.PushScript(context.Background(), "tool"))

	rec, _ = e.Store.Load()
	entry := rec.Entries["tool"]
	assert.Equal(t, "print('v2')\n", fr.docs[entry.DocumentID].content)
	assert.False(t, entry.UpdatedAt.Before(before))
}

func TestPushScriptRequiresPublishedEntry(t *testing.T) {
	e := newTestEngine(t, newFakeRemote())
	require.NoError(t, e.Stage("draft", "print('d')\n", nil))
	err := e.PushScript(context.Background(), "draft")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "never been published")
}

func TestRemoveScriptDeletesEverywhere(t *testing.T) {
	fr := newFakeRemote()
	e := newTestEngine(t, fr)
	require.NoError(t, e.Stage("gone", "print('g')\n", nil))
	_, err := e.Run(context.Background(), ModeSync)
	require.NoError(t, err)

	rec, _ := e.Store.Load()
	docID := rec.Entries["gone"].DocumentID
	pointer, _ := e.Store.LoadPointer()
	require.NotNil(t, pointer)

	require.NoError(t, e.RemoveScript(context.Background(), "gone"))

	assert.NotContains(t, fr.docs, docID, "script document deleted")
	assert.NotContains(t, fr.mappingRecord(t, pointer.DocumentID).Entries, "gone")
	rec, _ = e.Store.Load()
	assert.NotContains(t, rec.Entries, "gone")
	_, err = e.Store.CachedScript("gone")
	assert.ErrorIs(t, err, store.ErrScriptNotCached)
}

func TestRemoveScriptUnknownName(t *testing.T) {
	e := newTestEngine(t, newFakeRemote())
	err := e.RemoveScript(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrScriptNotFound)
}
