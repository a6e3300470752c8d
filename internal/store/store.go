// Package store owns the on-disk state of one installation: the mapping
// record, the remote document pointer, and cached script bodies. All live
// under a single root directory. Writes are atomic (temp file + rename) so
// a crash mid-write never corrupts existing state.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/scriptstash/scriptstash/internal/inventory"
)

const (
	mappingFileName = "mapping.json"
	pointerFileName = "pointer.json"
	scriptsDirName  = "scripts"
	scriptExt       = ".py"
)

// ErrScriptNotCached is returned when a script body has no local copy.
var ErrScriptNotCached = errors.New("script not cached locally")

// CorruptStateError reports local state that exists but cannot be parsed.
// It is fatal: the operator must intervene, since guessing risks data loss.
type CorruptStateError struct {
	Path string
	Err  error
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("corrupt local state at %s: %s (refusing to reset; repair or remove the file manually)", e.Path, e.Err)
}

func (e *CorruptStateError) Unwrap() error {
	return e.Err
}

// Store provides durable access to the mapping record, the pointer, and
// cached script bodies.
type Store struct {
	root   string
	logger *log.Logger
}

// New creates a Store rooted at dir, creating the directory layout if
// needed. If logger is nil, a default logger writing to stderr is used.
func New(dir string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}
	if err := os.MkdirAll(filepath.Join(dir, scriptsDirName), 0755); err != nil {
		return nil, fmt.Errorf("creating state directory %s: %w", dir, err)
	}
	return &Store{root: dir, logger: logger}, nil
}

// Root returns the state directory path.
func (s *Store) Root() string {
	return s.root
}

// localRecord is the on-disk envelope of the mapping record. Unlike the
// remote document content it carries the last observed revision.
type localRecord struct {
	Entries  map[string]inventory.Entry `json:"entries"`
	Revision string                     `json:"revision,omitempty"`
}

// Load reads the mapping record. A missing file yields an empty record
// with no revision. A present but unparsable file is a CorruptStateError.
func (s *Store) Load() (*inventory.Record, error) {
	path := s.mappingPath()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return inventory.NewRecord(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading mapping record %s: %w", path, err)
	}

	var lr localRecord
	if err := json.Unmarshal(data, &lr); err != nil {
		return nil, &CorruptStateError{Path: path, Err: err}
	}
	r := &inventory.Record{Entries: lr.Entries, Revision: lr.Revision}
	if r.Entries == nil {
		r.Entries = make(map[string]inventory.Entry)
	}
	if errs := inventory.Validate(r); len(errs) > 0 {
		return nil, &CorruptStateError{Path: path, Err: &inventory.ValidationError{Errors: errs}}
	}
	return r, nil
}

// Save writes the mapping record atomically.
func (s *Store) Save(r *inventory.Record) error {
	lr := localRecord{Entries: r.Entries, Revision: r.Revision}
	if lr.Entries == nil {
		lr.Entries = make(map[string]inventory.Entry)
	}
	data, err := json.MarshalIndent(lr, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling mapping record: %w", err)
	}
	return s.writeAtomic(s.mappingPath(), append(data, '\n'), 0644)
}

// LoadPointer reads the remote document pointer. Returns nil when no
// pointer has been persisted yet.
func (s *Store) LoadPointer() (*inventory.Pointer, error) {
	path := s.pointerPath()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading pointer %s: %w", path, err)
	}

	var p inventory.Pointer
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, &CorruptStateError{Path: path, Err: err}
	}
	if p.DocumentID == "" {
		return nil, &CorruptStateError{Path: path, Err: errors.New("pointer has no document_id")}
	}
	return &p, nil
}

// SavePointer writes the pointer atomically.
func (s *Store) SavePointer(p *inventory.Pointer) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling pointer: %w", err)
	}
	return s.writeAtomic(s.pointerPath(), append(data, '\n'), 0644)
}

// CacheScript stores a local copy of a script body for offline execution
// and pre-push diffing.
func (s *Store) CacheScript(name, content string) (string, error) {
	path, err := s.ScriptPath(name)
	if err != nil {
		return "", err
	}
	if err := s.writeAtomic(path, []byte(content), 0644); err != nil {
		return "", err
	}
	return path, nil
}

// CachedScript reads the locally cached body of a script.
func (s *Store) CachedScript(name string) (string, error) {
	path, err := s.ScriptPath(name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("script '%s': %w", name, ErrScriptNotCached)
	}
	if err != nil {
		return "", fmt.Errorf("reading cached script %s: %w", path, err)
	}
	return string(data), nil
}

// RemoveScript deletes the cached body of a script, if any.
func (s *Store) RemoveScript(name string) error {
	path, err := s.ScriptPath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing cached script %s: %w", path, err)
	}
	return nil
}

// ScriptPath returns the cache path for a script after validating the name
// cannot escape the scripts directory.
func (s *Store) ScriptPath(name string) (string, error) {
	if err := inventory.ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.root, scriptsDirName, name+scriptExt), nil
}

func (s *Store) mappingPath() string {
	return filepath.Join(s.root, mappingFileName)
}

func (s *Store) pointerPath() string {
	return filepath.Join(s.root, pointerFileName)
}

// writeAtomic writes data via a temp file in the destination directory and
// renames it into place.
func (s *Store) writeAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("setting temp file mode: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file to %s: %w", path, err)
	}

	success = true
	return nil
}
