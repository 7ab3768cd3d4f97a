package assembly

import (
	"sort"
)

// OperationList names one of the six ordered lifecycle lists.
type OperationList int

const (
	InitPre OperationList = iota
	InitPost
	StartPre
	StartPost
	StopPre
	StopPost
	operationLists
)

func (l OperationList) String() string {
	switch l {
	case InitPre:
		return "init-pre"
	case InitPost:
		return "init-post"
	case StartPre:
		return "start-pre"
	case StartPost:
		return "start-post"
	case StopPre:
		return "stop-pre"
	case StopPost:
		return "stop-post"
	default:
		return "unknown"
	}
}

// listFor maps a phase and ordering to its list.
func listFor(phase Phase, ordering Ordering) OperationList {
	base := InitPre
	switch phase {
	case PhaseStart:
		base = StartPre
	case PhaseStop:
		base = StopPre
	}
	if ordering == Post {
		return base + 1
	}
	return base
}

// Operation is one scheduled lifecycle callback.
type Operation struct {
	Bean     string
	Callback string
	Phase    Phase
	Ordering Ordering

	bean *bean
	fn   CallbackFunc
}

// constructOp is the synthetic init-pre operation of eager singletons.
const constructOp = "construct"

func constructNothing(*LifetimeContext, any) error { return nil }

// findCycles runs a depth-first search over constructor, member and ordering
// edges. A node met again while still on the path closes a cycle.
func findCycles(beans []*bean) []error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[*bean]int, len(beans))
	var path []*bean
	var cycles []error

	var visit func(b *bean)
	visit = func(b *bean) {
		state[b] = visiting
		path = append(path, b)
		for _, dep := range dependencies(b, true) {
			switch state[dep] {
			case visiting:
				cycles = append(cycles, cycleFrom(path, dep))
			case unvisited:
				visit(dep)
			}
		}
		path = path[:len(path)-1]
		state[b] = done
	}
	for _, b := range beans {
		if state[b] == unvisited {
			visit(b)
		}
	}
	return cycles
}

// cycleFrom cuts the cycle starting at start out of path. The error lists the
// beans in dependency order: each bean depends on the next, the last on the first.
func cycleFrom(path []*bean, start *bean) error {
	i := len(path) - 1
	for path[i] != start {
		i--
	}
	names := make([]string, 0, len(path)-i)
	for _, b := range path[i:] {
		names = append(names, b.name())
	}
	return &CyclicDependencyError{Cycle: names}
}

// dependencies lists the same-scope beans b depends on, in declared order:
// constructor parameters, members, then ordering edges. Self references are
// kept only when selfLoops is set.
func dependencies(b *bean, selfLoops bool) []*bean {
	var deps []*bean
	add := func(dep *bean) {
		if dep == b && !selfLoops {
			return
		}
		deps = append(deps, dep)
	}
	for _, n := range append([]*node{b.node}, b.members...) {
		for _, e := range n.edges {
			if e != nil {
				add(e.bean)
			}
		}
	}
	for _, dep := range b.after {
		add(dep)
	}
	return deps
}

// precedence sorts beans stably: framework realms first, in the order the
// realms were first declared, then the application realm.
func precedence(beans []*bean, realmOrder map[string]int) []*bean {
	sorted := append([]*bean(nil), beans...)
	rank := func(b *bean) int {
		if !b.desc.Owner.Framework {
			return len(realmOrder)
		}
		return realmOrder[b.desc.Owner.Name]
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return rank(sorted[i]) < rank(sorted[j])
	})
	return sorted
}

// dependencyOrder appends every bean after all its dependencies with a
// post-order DFS. A bean is appended once; self loops carry no constraint.
func dependencyOrder(sorted []*bean) []*bean {
	visited := make(map[*bean]bool, len(sorted))
	order := make([]*bean, 0, len(sorted))
	var visit func(b *bean)
	visit = func(b *bean) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, dep := range dependencies(b, false) {
			visit(dep)
		}
		order = append(order, b)
	}
	for _, b := range sorted {
		visit(b)
	}
	return order
}

// schedule classifies every callback into the six lists. Init lists and
// start-pre follow dependency order; start-post and both stop lists are
// built by prepending so they run in reverse dependency order.
func schedule(order []*bean) [operationLists][]Operation {
	var lists [operationLists][]Operation
	for _, b := range order {
		d := b.desc
		if d.Eager && d.Cardinality == Singleton && d.Source.Kind != SourceInstance {
			lists[InitPre] = append(lists[InitPre], Operation{
				Bean: d.Name, Callback: constructOp, Phase: PhaseInitialize, Ordering: Pre,
				bean: b, fn: constructNothing,
			})
		}
		for _, cb := range d.Callbacks {
			op := Operation{
				Bean: d.Name, Callback: cb.Name, Phase: cb.Phase, Ordering: cb.Ordering,
				bean: b, fn: cb.Fn,
			}
			l := listFor(cb.Phase, cb.Ordering)
			switch l {
			case InitPre, InitPost, StartPre:
				lists[l] = append(lists[l], op)
			default:
				lists[l] = append([]Operation{op}, lists[l]...)
			}
		}
	}
	return lists
}
