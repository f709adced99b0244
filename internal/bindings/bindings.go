// Package bindings loads the file that maps scenario names to the qualified
// names of the automated tests implementing them.
//
// The file is YAML:
//
//	storage: Shop.Specs.dll
//	bindings:
//	  Add an item: Shop.Specs.CartFeature.AddAnItem
//	  Remove <item>: Shop.Specs.CartFeature.RemoveItem
package bindings

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Binding file errors.
var (
	ErrEmptyTarget = errors.New("binding has an empty test name")
	// ErrDuplicateScenario is returned when two scenario names are equal
	// once surrounding whitespace is removed.
	ErrDuplicateScenario = errors.New("scenario is bound more than once")
)

// Bindings is a loaded binding file.
type Bindings struct {
	// Storage is the test container recorded on automated test cases. It
	// overrides the configured value when set.
	Storage string            `yaml:"storage"`
	Tests   map[string]string `yaml:"bindings"`

	trimmed map[string]string
}

// Load reads a binding file. A missing file returns an error wrapping
// os.ErrNotExist so callers can treat it as "no automation".
func Load(path string) (*Bindings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading bindings %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes binding file content.
func Parse(data []byte) (*Bindings, error) {
	var b Bindings
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decoding bindings: %w", err)
	}
	b.trimmed = make(map[string]string, len(b.Tests))
	names := make([]string, 0, len(b.Tests))
	for name := range b.Tests {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		target := b.Tests[name]
		if strings.TrimSpace(target) == "" {
			return nil, fmt.Errorf("%w: %q", ErrEmptyTarget, name)
		}
		key := strings.TrimSpace(name)
		if _, dup := b.trimmed[key]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateScenario, key)
		}
		b.trimmed[key] = target
	}
	return &b, nil
}

// Lookup returns the automated test bound to a scenario. Scenario names are
// matched exactly, then ignoring surrounding whitespace.
func (b *Bindings) Lookup(scenario string) (string, bool) {
	if b == nil {
		return "", false
	}
	if name, ok := b.Tests[scenario]; ok {
		return name, true
	}
	name, ok := b.trimmed[strings.TrimSpace(scenario)]
	return name, ok
}

// Len returns the number of bindings.
func (b *Bindings) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Tests)
}
