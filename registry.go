package assembly

import (
	"sort"
)

// binding is what a key resolves to inside one scope.
type binding struct {
	owner    string
	node     *node
	external producer
}

func (b binding) producer() producer {
	if b.node != nil {
		return b.node.produce
	}
	return b.external
}

type missingEntry struct {
	consumer *node
	index    int
	dep      Dependency
}

// Registry maps keys to producers for one scope. A nested registry falls
// back to its parent for keys it does not bind.
type Registry struct {
	parent   *Registry
	bindings map[Key]binding
	// absent is the shadow map of optional keys with no provider, mapped to
	// the consumers that accepted the absence.
	absent  map[Key][]string
	missing []missingEntry
}

func newRegistry(parent *Registry) *Registry {
	return &Registry{
		parent:   parent,
		bindings: make(map[Key]binding, 32),
		absent:   make(map[Key][]string),
	}
}

// Register binds key to n. A second binding for key in the same scope is a
// *DuplicateKeyError naming both declaring beans.
func (r *Registry) Register(key Key, owner string, n *node) error {
	return r.bind(key, binding{owner: owner, node: n})
}

// registerExternal binds key to a producer outside the bean graph.
func (r *Registry) registerExternal(key Key, name string, p producer) error {
	return r.bind(key, binding{owner: "external " + name, external: p})
}

func (r *Registry) bind(key Key, b binding) error {
	if existing, ok := r.bindings[key]; ok {
		return &DuplicateKeyError{Key: key, First: existing.owner, Second: b.owner}
	}
	r.bindings[key] = b
	return nil
}

// lookup searches this scope, then the parent chain. depth counts the scopes
// climbed.
func (r *Registry) lookup(key Key) (binding, int, bool) {
	depth := 0
	for scope := r; scope != nil; scope = scope.parent {
		if b, ok := scope.bindings[key]; ok {
			return b, depth, true
		}
		depth++
	}
	return binding{}, 0, false
}

// Has reports whether key resolves in this scope or a parent.
func (r *Registry) Has(key Key) bool {
	_, _, ok := r.lookup(key)
	return ok
}

// Keys returns the keys bound in this scope, sorted by their rendering.
func (r *Registry) Keys() []Key {
	keys := make([]Key, 0, len(r.bindings))
	for k := range r.bindings {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Absent returns the optional keys that had no provider.
func (r *Registry) Absent() []Key {
	keys := make([]Key, 0, len(r.absent))
	for k := range r.absent {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// resolve fills the producers of consumer. Misses are recorded in the ledger
// rather than failing, so a build reports every missing dependency at once.
func (r *Registry) resolve(consumer *node) {
	for i, dep := range consumer.deps {
		b, depth, ok := r.lookup(dep.Key)
		if !ok {
			r.missing = append(r.missing, missingEntry{consumer: consumer, index: i, dep: dep})
			continue
		}
		consumer.producers[i] = hop(depth, b.producer())
		if depth == 0 && b.node != nil {
			consumer.edges[i] = b.node
		}
	}
}

// resolveOrdering resolves the ordering-only edges of b. A bean naming
// itself is skipped.
func (r *Registry) resolveOrdering(b *bean) []MissingEntry {
	var missing []MissingEntry
	for _, key := range b.desc.DependsOn {
		target, depth, ok := r.lookup(key)
		if !ok {
			missing = append(missing, MissingEntry{
				Bean:     b.name(),
				Target:   "ordering dependency of bean " + b.name(),
				Position: -1,
				Key:      key,
			})
			continue
		}
		if depth > 0 || target.node == nil || target.node.bean == b {
			continue
		}
		b.after = append(b.after, target.node.bean)
	}
	return missing
}

// drain empties the ledger. Optional misses get the absent producer; every
// other miss becomes an entry of the returned error.
func (r *Registry) drain() *MissingDependencyError {
	var entries []MissingEntry
	for _, m := range r.missing {
		if m.dep.Optional {
			m.consumer.producers[m.index] = absent
			r.absent[m.dep.Key] = append(r.absent[m.dep.Key], m.consumer.bean.name())
			continue
		}
		entries = append(entries, MissingEntry{
			Bean:     m.consumer.bean.name(),
			Target:   m.consumer.label(),
			Position: m.index,
			Key:      m.dep.Key,
		})
	}
	r.missing = nil
	if len(entries) == 0 {
		return nil
	}
	return &MissingDependencyError{Entries: entries}
}
