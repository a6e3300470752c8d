// Package discovery locates an existing mapping document among the
// owner's remote documents. It is the bootstrap path for a fresh
// installation with no pointer, and the recovery path when the pointed-to
// document has vanished.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/scriptstash/scriptstash/internal/inventory"
	"github.com/scriptstash/scriptstash/internal/remote"
)

// MappingSentinel is the exact description reserved for mapping record
// documents. It is the discovery discriminator: matching is by description
// equality, never by file name or content sniffing, so user-authored
// documents cannot be mistaken for a mapping record. The literal is
// versioned so a future schema can coexist with v1 records during
// migration.
const MappingSentinel = "[scriptstash] mapping record v1"

// ScriptDescription returns the description used for a script's document.
// Script descriptions always carry the script name and so can never equal
// the sentinel.
func ScriptDescription(name string) string {
	return "[scriptstash] " + name
}

// ErrNoMappingFound means no owned document carries the sentinel
// description. The caller creates a fresh mapping document.
var ErrNoMappingFound = errors.New("no mapping record found among owned documents")

// Candidate describes one document carrying the sentinel description.
type Candidate struct {
	DocumentID string
	UpdatedAt  time.Time
	Revision   string
}

// AmbiguousMappingError reports multiple sentinel documents. This happens
// when two devices raced to create a mapping before either discovered the
// other's. Picking one silently could orphan another device's data
// permanently, so all candidates are surfaced for the operator to choose
// from.
type AmbiguousMappingError struct {
	Candidates []Candidate
}

func (e *AmbiguousMappingError) Error() string {
	return fmt.Sprintf("found %d documents claiming to be the mapping record; refusing to pick one automatically", len(e.Candidates))
}

// Remote is the slice of the document client discovery needs.
type Remote interface {
	ListOwned(ctx context.Context) ([]remote.DocumentInfo, error)
	Get(ctx context.Context, id string) (*remote.Document, error)
}

// Finder searches the owner's documents for a mapping record.
type Finder struct {
	remote Remote
	owner  string
	logger *log.Logger
}

// NewFinder creates a Finder scoped to the given owner identity.
// If logger is nil, a default logger writing to stderr is used.
func NewFinder(r Remote, owner string, logger *log.Logger) *Finder {
	if logger == nil {
		logger = log.New(os.Stderr, "[discovery] ", log.LstdFlags)
	}
	return &Finder{remote: r, owner: owner, logger: logger}
}

// Result is an adopted mapping document: its pointer, its parsed record
// (with the fetched revision set), and the raw content it was parsed from.
type Result struct {
	Pointer inventory.Pointer
	Record  *inventory.Record
}

// Discover lists owned documents and adopts the unique one carrying the
// sentinel description. Candidates whose content does not parse as a
// well-formed mapping record are logged and excluded rather than failing
// discovery outright.
func (f *Finder) Discover(ctx context.Context) (*Result, error) {
	docs, err := f.remote.ListOwned(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing owned documents: %w", err)
	}

	var valid []Candidate
	records := make(map[string]*inventory.Record)
	for _, doc := range docs {
		if doc.Description != MappingSentinel {
			continue
		}
		rec, revision, err := f.fetchRecord(ctx, doc.ID)
		if err != nil {
			if remote.Retryable(err) || errors.Is(err, remote.ErrAuthenticationFailed) {
				return nil, err
			}
			f.logger.Printf("Excluding malformed mapping candidate %s: %v", doc.ID, err)
			continue
		}
		valid = append(valid, Candidate{DocumentID: doc.ID, UpdatedAt: doc.UpdatedAt, Revision: revision})
		records[doc.ID] = rec
	}

	switch len(valid) {
	case 0:
		return nil, ErrNoMappingFound
	case 1:
		return f.adopt(valid[0], records[valid[0].DocumentID]), nil
	}

	// Newest first, for display; the ordering carries no adoption policy.
	sort.Slice(valid, func(i, j int) bool {
		return valid[i].UpdatedAt.After(valid[j].UpdatedAt)
	})
	return nil, &AmbiguousMappingError{Candidates: valid}
}

// Adopt fetches and validates one specific document as the mapping record.
// It is the resolution path after the operator chose among ambiguous
// candidates.
func (f *Finder) Adopt(ctx context.Context, documentID string) (*Result, error) {
	rec, revision, err := f.fetchRecord(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("adopting mapping document %s: %w", documentID, err)
	}
	return f.adopt(Candidate{DocumentID: documentID, Revision: revision}, rec), nil
}

func (f *Finder) adopt(c Candidate, rec *inventory.Record) *Result {
	rec.Revision = c.Revision
	return &Result{
		Pointer: inventory.Pointer{
			DocumentID: c.DocumentID,
			Owner:      f.owner,
			AdoptedAt:  inventory.Now(),
		},
		Record: rec,
	}
}

func (f *Finder) fetchRecord(ctx context.Context, id string) (*inventory.Record, string, error) {
	doc, err := f.remote.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	rec, err := inventory.DecodeRemote([]byte(doc.Content))
	if err != nil {
		return nil, "", err
	}
	return rec, doc.Revision, nil
}
