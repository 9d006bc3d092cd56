// Package environment implements the ordered, metadata-carrying parameter
// map that flows from a build's initial parameters down through every step
// and async sub-session it spawns.
package environment

import (
	"encoding/json"
	"errors"
	"sort"

	"github.com/sciagent/sci-agent/internal/ordered"
)

// ErrRedefined is returned by Define when a name is defined a second time
// with final set.
var ErrRedefined = errors.New("environment: variable already defined")

// ErrReadOnly is returned by Set when the name is flagged read-only.
var ErrReadOnly = errors.New("environment: variable is read-only")

// Config carries the metadata recorded alongside a parameter's value. It
// never carries the value itself, so that two parameters with identical
// metadata can share a Config without aliasing mutable state.
type Config struct {
	Description string `json:"description"`
	ReadOnly    bool   `json:"read_only"`
	Source      string `json:"source"`
}

// Environment is an ordered mapping from parameter name to value, plus an
// auxiliary metadata record per name. Iteration order of Values follows
// insertion order; Config lookups are unordered since only the
// serialized/pretty-printed values need a stable order.
type Environment struct {
	values *ordered.Map[string, any]
	config map[string]Config
}

// New returns an empty Environment.
func New() *Environment {
	return &Environment{
		values: ordered.NewMap[string, any](0),
		config: make(map[string]Config),
	}
}

// wireDocument is the wire form used by Serialize/Deserialize, matching the
// original implementation's {"c": config, "v": values} shape exactly.
type wireDocument struct {
	Config map[string]Config `json:"c"`
	Values *ordered.Map[string, any] `json:"v"`
}

// Define registers metadata for name. If value is non-nil it is also stored.
// When final is true and name has already been defined, Define returns
// ErrRedefined and leaves the environment unchanged.
func (e *Environment) Define(name string, value any, description string, readOnly bool, source string, final bool) error {
	if final {
		if _, exists := e.config[name]; exists {
			return ErrRedefined
		}
	}
	if value != nil {
		e.values.Set(name, value)
	}
	e.config[name] = Config{
		Description: description,
		ReadOnly:    readOnly,
		Source:      source,
	}
	return nil
}

// Set assigns value to name, honouring any read-only flag recorded for it.
func (e *Environment) Set(name string, value any) error {
	if cfg, ok := e.config[name]; ok && cfg.ReadOnly {
		return ErrReadOnly
	}
	e.values.Set(name, value)
	return nil
}

// Get retrieves the current value for name.
func (e *Environment) Get(name string) (any, bool) {
	return e.values.Get(name)
}

// Contains reports whether name has a value set.
func (e *Environment) Contains(name string) bool {
	return e.values.Contains(name)
}

// ConfigFor returns the metadata recorded for name, if any.
func (e *Environment) ConfigFor(name string) (Config, bool) {
	cfg, ok := e.config[name]
	return cfg, ok
}

// Range iterates the values in insertion order.
func (e *Environment) Range(f func(name string, value any) error) error {
	return e.values.Range(f)
}

// Merge copies every non-read-only value from other into e. When other is
// itself an *Environment, the metadata for each copied name is copied too;
// a plain map carries no metadata to copy. This is the intended contract of
// the original's env.merge (see Design Notes: the source's own loop variable
// reference outside its range was a bug, not an intended narrower copy).
func (e *Environment) Merge(other *Environment) {
	if other == nil {
		return
	}
	other.Range(func(k string, v any) error {
		if cfg, ok := e.config[k]; ok && cfg.ReadOnly {
			return nil
		}
		e.values.Set(k, v)
		if cfg, ok := other.config[k]; ok {
			e.config[k] = cfg
		}
		return nil
	})
}

// MergeMap copies every non-read-only value from a plain map into e, without
// touching config metadata (a plain map carries none).
func (e *Environment) MergeMap(other map[string]any) {
	if other == nil {
		return
	}
	for k, v := range other {
		if cfg, ok := e.config[k]; ok && cfg.ReadOnly {
			continue
		}
		e.values.Set(k, v)
	}
}

// Names returns the defined parameter names in sorted order, matching the
// original's sorted pretty-printing.
func (e *Environment) Names() []string {
	names := make([]string, 0, e.values.Len())
	e.values.Range(func(k string, _ any) error {
		names = append(names, k)
		return nil
	})
	sort.Strings(names)
	return names
}

// Serialize produces the {c, v} document used for the wire form and for
// AsyncJob snapshots.
func (e *Environment) Serialize() map[string]any {
	cfgCopy := make(map[string]Config, len(e.config))
	for k, v := range e.config {
		cfgCopy[k] = v
	}
	return map[string]any{
		"c": cfgCopy,
		"v": e.values,
	}
}

// MarshalJSON implements json.Marshaler, producing the {c, v} wire shape.
func (e *Environment) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireDocument{Config: e.config, Values: e.values})
}

// UnmarshalJSON implements json.Unmarshaler, the inverse of MarshalJSON.
func (e *Environment) UnmarshalJSON(b []byte) error {
	doc := wireDocument{Values: ordered.NewMap[string, any](0)}
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}
	e.config = doc.Config
	if e.config == nil {
		e.config = make(map[string]Config)
	}
	e.values = doc.Values
	if e.values == nil {
		e.values = ordered.NewMap[string, any](0)
	}
	return nil
}
