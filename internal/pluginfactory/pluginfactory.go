// Package pluginfactory implements the plugin manifest and process-wide
// registrar described in SPEC_FULL.md section 4, grounded on
// original_source's PluginManifest/PluginRegistrar: a Manifest plus a
// Constructor is registered under each plugin's name (cmd/ipfixprobe-exportd
// registers the basic and quic plugins in its run function), and plugins
// named on the options boundary are then resolved through this registry.
package pluginfactory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/CESNET/ipfixprobe-go/internal/pluginrt"
)

// Manifest is the Go equivalent of original_source's PluginManifest: the
// metadata a plugin declares about itself, independent of any particular
// flow or runtime instance.
type Manifest struct {
	Name          string
	Description   string
	PluginVersion string
	APIVersion    string
	Usage         func() string
}

// Constructor builds a fresh pluginrt.ProcessPlugin instance from a raw
// option string (parsed internally by the plugin via internal/optparse).
type Constructor func(options string) (pluginrt.ProcessPlugin, error)

type entry struct {
	manifest    Manifest
	constructor Constructor
}

// Factory is a process-wide registrar of plugin constructors keyed by
// name, matching PluginRegistrar<Derived, Factory>'s getInstance()
// singleton pattern but without the self-registering static-initializer
// trick templates give C++: plugins are registered by an explicit Register
// call from the program that uses them.
type Factory struct {
	mu      sync.RWMutex
	entries map[string]entry
}

var global = &Factory{entries: make(map[string]entry)}

// Global returns the process-wide factory instance.
func Global() *Factory { return global }

// Register adds a plugin under manifest.Name. Calling Register twice for
// the same name is a fatal configuration error, matching the uniqueness
// PluginRegistrar's factory enforces.
func (f *Factory) Register(manifest Manifest, ctor Constructor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, dup := f.entries[manifest.Name]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicatePlugin, manifest.Name)
	}
	f.entries[manifest.Name] = entry{manifest: manifest, constructor: ctor}
	return nil
}

// Construct resolves name to its registered constructor and builds a
// plugin instance from options.
func (f *Factory) Construct(name, options string) (pluginrt.ProcessPlugin, error) {
	f.mu.RLock()
	e, ok := f.entries[name]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlugin, name)
	}
	return e.constructor(options)
}

// Manifest returns the registered manifest for name.
func (f *Factory) Manifest(name string) (Manifest, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	e, ok := f.entries[name]
	return e.manifest, ok
}

// Names returns every registered plugin name, sorted (PluginManifest's
// operator< sorts by name; this mirrors that for listing/usage output).
func (f *Factory) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.entries))
	for n := range f.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
