// Package tracelog persists root run records to a single JSON document.
//
// The document shape is {"traces": [RunRecord, ...]}, pretty-printed.
// Run values (inputs, outputs, extra, events) pass through the codec on
// save and are revived on load, so secrets never reach disk in clear text.
// A missing or corrupt document loads as an empty store. A loaded run that
// carries both an error and outputs keeps the error.
package tracelog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/pithecene-io/workbench/codec"
	"github.com/pithecene-io/workbench/log"
	"github.com/pithecene-io/workbench/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// document is the on-disk shape.
type document struct {
	Traces []*types.RunRecord `json:"traces"`
}

// Store is an ordered collection of root run records backed by one file.
// It has a single owner; no locking is performed.
type Store struct {
	path   string
	codec  *codec.Codec
	logger *log.Logger
	traces []*types.RunRecord
}

// Open loads the store at path. Load failures are logged and yield an
// empty store; they are never returned.
func Open(path string, c *codec.Codec, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	s := &Store{path: path, codec: c, logger: logger}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("trace log unreadable, starting empty", map[string]any{
				"path":  path,
				"error": err.Error(),
			})
		}
		return s
	}

	traces, err := Parse(data, c, logger)
	if err != nil {
		logger.Warn("trace log corrupt, starting empty", map[string]any{
			"path":  path,
			"error": err.Error(),
		})
		return s
	}
	s.traces = traces
	return s
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// AddTrace appends the record for src if it is a root run.
// Non-root runs return nil and leave the store unchanged.
func (s *Store) AddTrace(src types.RecordSource) *types.RunRecord {
	if src == nil {
		return nil
	}
	rec := src.Record()
	if rec == nil || !rec.IsRoot() {
		return nil
	}
	s.traces = append(s.traces, rec)
	return rec
}

// Traces returns the stored records in insertion order.
// The slice is a copy; the records are shared.
func (s *Store) Traces() []*types.RunRecord {
	out := make([]*types.RunRecord, len(s.traces))
	copy(out, s.traces)
	return out
}

// Len returns the number of stored traces.
func (s *Store) Len() int {
	return len(s.traces)
}

// Find returns the root record with the given id, or nil.
func (s *Store) Find(id uuid.UUID) *types.RunRecord {
	for _, r := range s.traces {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// Save writes the full store to its path. The write goes to a temporary
// sibling first and is renamed into place.
func (s *Store) Save() error {
	data, err := Marshal(s.traces, s.codec)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create trace log dir: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write trace log: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace trace log: %w", err)
	}

	s.logger.Debug("trace log saved", map[string]any{
		"path":   s.path,
		"traces": len(s.traces),
	})
	return nil
}

// Marshal encodes traces as the pretty-printed trace log document.
func Marshal(traces []*types.RunRecord, c *codec.Codec) ([]byte, error) {
	doc := document{Traces: make([]*types.RunRecord, len(traces))}
	for i, r := range traces {
		doc.Traces[i] = Encode(r, c)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode trace log: %w", err)
	}
	return data, nil
}

// Parse decodes a trace log document. Values that fail to revive keep
// their encoded form and are logged; structural errors are returned.
func Parse(data []byte, c *codec.Codec, logger *log.Logger) ([]*types.RunRecord, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode trace log: %w", err)
	}

	traces := make([]*types.RunRecord, 0, len(doc.Traces))
	for _, r := range doc.Traces {
		if r == nil || !r.IsRoot() {
			continue
		}
		if err := r.Validate(); err != nil {
			logger.Warn("dropping outputs of errored runs", map[string]any{
				"run_id": r.ID.String(),
				"error":  err.Error(),
			})
			r.Walk(func(n *types.RunRecord) bool {
				if n.Error != nil {
					n.Outputs = nil
				}
				return true
			})
		}
		Decode(r, c, logger)
		traces = append(traces, r)
	}
	return traces, nil
}

// Encode returns a copy of r whose value maps hold codec representations.
func Encode(r *types.RunRecord, c *codec.Codec) *types.RunRecord {
	out := *r
	out.Inputs = dumpMap(r.Inputs, c)
	out.Outputs = dumpMap(r.Outputs, c)
	out.Extra = dumpMap(r.Extra, c)
	if r.Events != nil {
		out.Events = make([]types.Event, len(r.Events))
		for i, e := range r.Events {
			out.Events[i] = dumpMap(e, c)
		}
	}
	if r.ChildRuns != nil {
		out.ChildRuns = make([]*types.RunRecord, len(r.ChildRuns))
		for i, child := range r.ChildRuns {
			out.ChildRuns[i] = Encode(child, c)
		}
	}
	return &out
}

func dumpMap(m map[string]any, c *codec.Codec) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = c.Dump(v)
	}
	return out
}

// Decode revives values in r and its children in place. Values that fail
// to revive are kept as stored.
func Decode(r *types.RunRecord, c *codec.Codec, logger *log.Logger) {
	r.Inputs = loadMap(r.ID, "inputs", r.Inputs, c, logger)
	r.Outputs = loadMap(r.ID, "outputs", r.Outputs, c, logger)
	r.Extra = loadMap(r.ID, "extra", r.Extra, c, logger)
	for i, e := range r.Events {
		r.Events[i] = loadMap(r.ID, "events", e, c, logger)
	}
	for _, child := range r.ChildRuns {
		Decode(child, c, logger)
	}
}

func loadMap(id uuid.UUID, section string, m map[string]any, c *codec.Codec, logger *log.Logger) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		revived, err := c.Load(v)
		if err != nil {
			logger.Debug("trace value kept encoded", map[string]any{
				"run_id":  id.String(),
				"section": section,
				"key":     k,
				"error":   err.Error(),
			})
			out[k] = v
			continue
		}
		out[k] = revived
	}
	return out
}
