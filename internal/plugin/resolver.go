package plugin

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnresolvedDependency is returned when the dependency graph cannot be
// reduced to an activation order: either a cycle exists or a plugin names a
// dependency that was never registered. It is fatal — no plugin activates.
var ErrUnresolvedDependency = errors.New("unresolved plugin dependencies")

// Resolve computes an activation order over the registered plugins such
// that every plugin appears after all of its dependencies. Iterative
// topological sort: each round takes every plugin whose pending dependency
// set is empty, appends it, and strikes its name from the others. A round
// that makes no progress while plugins remain means a cycle or an unknown
// name; sorting the ready set keeps the result deterministic for a fixed
// input.
func Resolve(plugins map[string]Plugin) ([]string, error) {
	pending := make(map[string]map[string]struct{}, len(plugins))
	for name, p := range plugins {
		deps := make(map[string]struct{}, len(p.Depends()))
		for _, d := range p.Depends() {
			deps[d] = struct{}{}
		}
		pending[name] = deps
	}

	order := make([]string, 0, len(plugins))
	for len(pending) > 0 {
		ready := make([]string, 0, len(pending))
		for name, deps := range pending {
			if len(deps) == 0 {
				ready = append(ready, name)
			}
		}
		if len(ready) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrUnresolvedDependency, describeStalled(pending))
		}
		sort.Strings(ready)

		for _, name := range ready {
			order = append(order, name)
			delete(pending, name)
		}
		for _, deps := range pending {
			for _, name := range ready {
				delete(deps, name)
			}
		}
	}
	return order, nil
}

// describeStalled renders the remaining plugins and their unsatisfied
// dependencies for the startup failure message.
func describeStalled(pending map[string]map[string]struct{}) string {
	names := make([]string, 0, len(pending))
	for name := range pending {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		deps := make([]string, 0, len(pending[name]))
		for d := range pending[name] {
			deps = append(deps, d)
		}
		sort.Strings(deps)
		parts = append(parts, fmt.Sprintf("%s (waiting on %s)", name, strings.Join(deps, ", ")))
	}
	return strings.Join(parts, "; ")
}
