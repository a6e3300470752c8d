package inventory

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Record is the authoritative inventory: script names mapped to the remote
// documents holding their source. Revision is the version token of the
// remote mapping document observed on the last fetch. It is local knowledge
// and never part of the remote document content.
type Record struct {
	Entries  map[string]Entry `json:"entries"`
	Revision string           `json:"-"`
}

// Entry records one script in the inventory.
type Entry struct {
	// ScriptName duplicates the map key so the remote document round-trips
	// without losing information.
	ScriptName string    `json:"script_name"`
	DocumentID string    `json:"document_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Tags       []string  `json:"tags,omitempty"`
}

// Published reports whether the script has a remote document of its own.
func (e Entry) Published() bool {
	return e.DocumentID != ""
}

// NewRecord returns an empty record with no observed revision.
func NewRecord() *Record {
	return &Record{Entries: make(map[string]Entry)}
}

// Now returns the current UTC time truncated to second precision, the
// resolution entry timestamps are stored and compared at.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// Names returns the entry names in sorted order.
func (r *Record) Names() []string {
	names := make([]string, 0, len(r.Entries))
	for name := range r.Entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	out := &Record{
		Entries:  make(map[string]Entry, len(r.Entries)),
		Revision: r.Revision,
	}
	for name, e := range r.Entries {
		if e.Tags != nil {
			e.Tags = append([]string(nil), e.Tags...)
		}
		out.Entries[name] = e
	}
	return out
}

// EntriesEqual reports whether two records carry the same entries,
// ignoring the observed revision.
func EntriesEqual(a, b *Record) bool {
	if len(a.Entries) != len(b.Entries) {
		return false
	}
	for name, ea := range a.Entries {
		eb, ok := b.Entries[name]
		if !ok || !entryEqual(ea, eb) {
			return false
		}
	}
	return true
}

func entryEqual(a, b Entry) bool {
	if a.ScriptName != b.ScriptName || a.DocumentID != b.DocumentID {
		return false
	}
	if !a.CreatedAt.Equal(b.CreatedAt) || !a.UpdatedAt.Equal(b.UpdatedAt) {
		return false
	}
	if len(a.Tags) != len(b.Tags) {
		return false
	}
	for i := range a.Tags {
		if a.Tags[i] != b.Tags[i] {
			return false
		}
	}
	return true
}

// ValidateName checks a script name key: non-empty, no path separators.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("script name must not be empty")
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("script name '%s' must not contain path separators", name)
	}
	return nil
}

// Validate checks a record for semantic correctness. Returns a list of
// validation error messages (empty if valid).
func Validate(r *Record) []string {
	var errs []string
	for name, e := range r.Entries {
		if err := ValidateName(name); err != nil {
			errs = append(errs, err.Error())
			continue
		}
		if e.ScriptName != "" && e.ScriptName != name {
			errs = append(errs, fmt.Sprintf("entry '%s': script_name '%s' does not match its key", name, e.ScriptName))
		}
	}
	return errs
}

// ValidationError holds multiple validation failures.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("mapping record validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// remoteRecord is the wire shape of the mapping document content.
type remoteRecord struct {
	Entries map[string]Entry `json:"entries"`
}

// DecodeRemote parses remote mapping document content. The minimal valid
// content is {"entries":{}}. Entries with a missing script_name are
// normalized from their map key.
func DecodeRemote(data []byte) (*Record, error) {
	var rr remoteRecord
	if err := json.Unmarshal(data, &rr); err != nil {
		return nil, fmt.Errorf("parsing mapping record: %w", err)
	}
	r := &Record{Entries: rr.Entries}
	if r.Entries == nil {
		r.Entries = make(map[string]Entry)
	}
	for name, e := range r.Entries {
		if e.ScriptName == "" {
			e.ScriptName = name
			r.Entries[name] = e
		}
	}
	if errs := Validate(r); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	return r, nil
}

// EncodeRemote serializes a record as remote mapping document content.
// The observed revision is deliberately excluded.
func EncodeRemote(r *Record) ([]byte, error) {
	rr := remoteRecord{Entries: r.Entries}
	if rr.Entries == nil {
		rr.Entries = make(map[string]Entry)
	}
	data, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling mapping record: %w", err)
	}
	return append(data, '\n'), nil
}
