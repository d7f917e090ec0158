// Package store persists the mapping from display-set identity to saved
// layout. It knows nothing about the Wayland protocol.
package store

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/waykeep/waykeep/internal/display"
	"github.com/waykeep/waykeep/internal/identity"
)

// ErrCorrupt marks a store file that exists but cannot be understood. It is
// surfaced instead of silently discarded so a bad file never costs the user
// their saved layouts through an accidental overwrite.
var ErrCorrupt = errors.New("layout store is corrupt")

//go:embed layouts.schema.json
var schemaText string

var layoutSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaText))
	if err != nil {
		panic(fmt.Sprintf("embedded layout schema unreadable: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("layouts.schema.json", doc); err != nil {
		panic(fmt.Sprintf("embedded layout schema rejected: %v", err))
	}
	s, err := c.Compile("layouts.schema.json")
	if err != nil {
		panic(fmt.Sprintf("embedded layout schema does not compile: %v", err))
	}
	return s
}

// fileFormat is the on-disk shape. Unknown fields in a future format are
// ignored on load; the schema only constrains the fields it knows.
type fileFormat struct {
	Version int                       `json:"version"`
	Layouts map[string]display.Layout `json:"layouts"`
}

const formatVersion = 1

// Store is the in-memory layout store bound to its backing file. It is
// owned by the reconciler and not safe for concurrent mutation; the only
// cross-goroutine access is the watcher reading the last-written hash.
type Store struct {
	path    string
	layouts map[identity.SetID]display.Layout

	mu        sync.Mutex
	savedHash [sha256.Size]byte
	hasSaved  bool
}

// Load reads the store from path. A missing file is a normal first run and
// yields an empty store; an unreadable or unparseable file is an error.
func Load(path string) (*Store, error) {
	s := &Store{
		path:    path,
		layouts: make(map[identity.SetID]display.Layout),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read layout store %s: %w", path, err)
	}

	layouts, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	s.layouts = layouts
	s.rememberWritten(data)
	return s, nil
}

func decode(data []byte) (map[identity.SetID]display.Layout, error) {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if err := layoutSchema.Validate(inst); err != nil {
		return nil, err
	}
	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		return nil, err
	}
	layouts := make(map[identity.SetID]display.Layout, len(ff.Layouts))
	for key, layout := range ff.Layouts {
		layouts[identity.SetID(key)] = layout
	}
	return layouts, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Len returns the number of saved layouts.
func (s *Store) Len() int {
	return len(s.layouts)
}

// Get looks up the layout for a display set. Absence is a normal outcome:
// it means the set has never been seen.
func (s *Store) Get(id identity.SetID) (display.Layout, bool) {
	l, ok := s.layouts[id]
	return l, ok
}

// Put records the layout for a display set in memory. Last write wins.
func (s *Store) Put(id identity.SetID, l display.Layout) {
	s.layouts[id] = l
}

// Save flushes the store to disk. The write goes to a temp file in the same
// directory followed by a rename, so a crash mid-write leaves the previous
// file intact.
func (s *Store) Save() error {
	ff := fileFormat{
		Version: formatVersion,
		Layouts: make(map[string]display.Layout, len(s.layouts)),
	}
	for id, l := range s.layouts {
		ff.Layouts[string(id)] = l
	}

	data, err := json.MarshalIndent(ff, "", "  ")
	if err != nil {
		return fmt.Errorf("encode layout store: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state directory %s: %w", dir, err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write layout store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace layout store: %w", err)
	}
	s.rememberWritten(data)
	return nil
}

// Reload re-reads the backing file and replaces the in-memory layouts. The
// current contents are kept on any error.
func (s *Store) Reload() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.layouts = make(map[identity.SetID]display.Layout)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read layout store %s: %w", s.path, err)
	}
	layouts, err := decode(data)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	s.layouts = layouts
	s.rememberWritten(data)
	return nil
}

func (s *Store) rememberWritten(data []byte) {
	s.mu.Lock()
	s.savedHash = sha256.Sum256(data)
	s.hasSaved = true
	s.mu.Unlock()
}

// isOwnContent reports whether the file currently holds exactly what the
// store last wrote or read, meaning a change event was our own doing.
func (s *Store) isOwnContent() bool {
	s.mu.Lock()
	saved, ok := s.savedHash, s.hasSaved
	s.mu.Unlock()
	if !ok {
		return false
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return false
	}
	return sha256.Sum256(data) == saved
}
