package plugin

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/starbridge-project/starbridge/internal/cache"
	"github.com/starbridge-project/starbridge/internal/protocol"
)

// hookEntry binds one plugin's handler for one hook, in activation order.
type hookEntry struct {
	plugin string
	fn     HookFunc
}

// Info describes a registered plugin for the API and CLI surfaces.
type Info struct {
	Name    string   `json:"name"`
	Depends []string `json:"depends"`
	Hooks   []string `json:"hooks"`
	Active  bool     `json:"active"`
}

// Registry owns the plugin set, their activation order, and the dispatch
// pipeline. Process is its single hot-path entry point: hand it an inbound
// frame and it answers whether the frame may be forwarded.
type Registry struct {
	mu        sync.RWMutex
	plugins   map[string]Plugin
	order     []string
	hooks     map[string][]hookEntry
	activated bool

	cache  *cache.DecodeCache
	logger zerolog.Logger
}

// NewRegistry creates a Registry dispatching through the given decode cache.
func NewRegistry(c *cache.DecodeCache) *Registry {
	return &Registry{
		plugins: make(map[string]Plugin),
		hooks:   make(map[string][]hookEntry),
		cache:   c,
		logger:  log.With().Str("component", "plugin_registry").Logger(),
	}
}

// Register adds a plugin descriptor. All registration happens before
// Resolve/Activate at startup.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if name == "" {
		return fmt.Errorf("plugin has no name")
	}
	if _, exists := r.plugins[name]; exists {
		return fmt.Errorf("duplicate plugin name %q", name)
	}
	r.plugins[name] = p
	r.logger.Debug().Str("plugin", name).Strs("depends", p.Depends()).Msg("plugin registered")
	return nil
}

// Resolve computes the activation order. A cycle or an unknown dependency
// name fails here, before any plugin is instantiated into the pipeline.
func (r *Registry) Resolve() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, err := Resolve(r.plugins)
	if err != nil {
		return err
	}
	r.order = order
	r.logger.Info().Strs("order", order).Msg("plugin dependencies resolved")
	return nil
}

// Activate runs each plugin's Activate in activation order, injecting
// exactly the dependency instances it declared, then rebuilds the hook
// dispatch table. An activation failure is fatal to startup.
func (r *Registry) Activate() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.order == nil {
		return fmt.Errorf("plugin dependencies not resolved")
	}
	for _, name := range r.order {
		p := r.plugins[name]
		deps := make(map[string]Plugin, len(p.Depends()))
		for _, d := range p.Depends() {
			deps[d] = r.plugins[d]
		}
		if err := p.Activate(deps); err != nil {
			return fmt.Errorf("activating plugin %s: %w", name, err)
		}
		r.logger.Info().Str("plugin", name).Msg("plugin activated")
	}
	r.activated = true
	r.rebuildHooksLocked()
	return nil
}

// Deactivate runs Deactivate in reverse activation order and empties the
// dispatch table.
func (r *Registry) Deactivate() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.order) - 1; i >= 0; i-- {
		name := r.order[i]
		r.plugins[name].Deactivate()
		r.logger.Info().Str("plugin", name).Msg("plugin deactivated")
	}
	r.activated = false
	r.rebuildHooksLocked()
}

// rebuildHooksLocked recomputes the hook dispatch table from the active
// set. Done on activation changes, never per frame.
func (r *Registry) rebuildHooksLocked() {
	r.hooks = make(map[string][]hookEntry)
	if !r.activated {
		return
	}
	for _, name := range r.order {
		for hook, fn := range r.plugins[name].Hooks() {
			r.hooks[hook] = append(r.hooks[hook], hookEntry{plugin: name, fn: fn})
		}
	}
}

// Process routes one inbound frame through the dispatch pipeline and
// reports whether it may be forwarded. Frame types with no registered hook
// return true immediately, skipping decode entirely — the pipeline's main
// performance lever. Otherwise the frame is decoded through the cache and
// every registered hook runs in activation order; the verdict is the AND of
// all hook results, with no short-circuit so later plugins still observe
// vetoed frames.
func (r *Registry) Process(f *protocol.Frame, c Conn) bool {
	hook := protocol.HookName(f.Type)
	if hook == "" {
		return true
	}

	r.mu.RLock()
	entries := r.hooks[hook]
	r.mu.RUnlock()
	if len(entries) == 0 {
		return true
	}

	r.cache.Decode(f)

	forward := true
	for _, e := range entries {
		if !r.invoke(e, hook, f, c) {
			forward = false
		}
	}
	return forward
}

// invoke runs a single hook, converting a panic into a fail-open true so
// one broken extension can never stop traffic.
func (r *Registry) invoke(e hookEntry, hook string, f *protocol.Frame, c Conn) (pass bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().
				Str("action", hook).
				Str("plugin", e.plugin).
				Interface("panic", rec).
				Msg("plugin hook panicked, failing open")
			pass = true
		}
	}()
	return e.fn(f, c)
}

// OverridesHook reports whether any active plugin registered the hook.
func (r *Registry) OverridesHook(hook string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hooks[hook]) > 0
}

// Order returns the activation order.
func (r *Registry) Order() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// List returns descriptor info for every registered plugin, in activation
// order when resolved.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := r.order
	if names == nil {
		names = make([]string, 0, len(r.plugins))
		for name := range r.plugins {
			names = append(names, name)
		}
		sort.Strings(names)
	}

	infos := make([]Info, 0, len(names))
	for _, name := range names {
		p := r.plugins[name]
		hooks := make([]string, 0, len(p.Hooks()))
		for hook := range p.Hooks() {
			hooks = append(hooks, hook)
		}
		sort.Strings(hooks)
		infos = append(infos, Info{
			Name:    name,
			Depends: p.Depends(),
			Hooks:   hooks,
			Active:  r.activated,
		})
	}
	return infos
}

// CacheStats exposes the decode cache snapshot for the API and CLI.
func (r *Registry) CacheStats() cache.Stats {
	return r.cache.Snapshot()
}
