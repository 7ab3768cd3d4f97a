package assembly

import (
	"fmt"
)

// producer yields a value for one dependency slot, evaluated against the
// frame of the lifetime that runs it.
type producer func(f *frame) (any, error)

// frame is the runtime view a producer runs against: the lifetime's store,
// the frame of the parent lifetime, and a construction hook for telemetry.
type frame struct {
	store       *Store
	parent      *frame
	constructed func(bean string)
}

// absent is the producer of an optional dependency with no provider.
func absent(*frame) (any, error) { return Absent, nil }

// hop evaluates p against the frame depth levels up.
func hop(depth int, p producer) producer {
	if depth == 0 {
		return p
	}
	return func(f *frame) (any, error) {
		for i := 0; i < depth; i++ {
			if f.parent == nil {
				return nil, ErrNoParentLifetime
			}
			f = f.parent
		}
		return p(f)
	}
}

// bean groups the nodes of one declared bean.
type bean struct {
	desc    *BeanDescriptor
	index   int
	node    *node
	members []*node
	// after holds resolved ordering-only edges, in declared order.
	after []*bean
}

func (b *bean) name() string { return b.desc.Name }

// node is one resolvable production point: a bean or one of its members.
type node struct {
	bean      *bean
	member    *Member
	deps      []Dependency
	producers []producer
	// edges holds the same-scope node feeding each slot, nil for external,
	// parent-scope or absent producers.
	edges    []*node
	callable producer
	composed int
	slot     int
}

func newNode(b *bean, m *Member) *node {
	deps := b.desc.Dependencies
	if m != nil {
		deps = m.Dependencies
	}
	return &node{
		bean:      b,
		member:    m,
		deps:      deps,
		producers: make([]producer, len(deps)),
		edges:     make([]*node, len(deps)),
		slot:      -1,
	}
}

// label renders the node for diagnostics, e.g. "constructor NewDb(*Logger)".
func (n *node) label() string {
	if n.member != nil {
		return n.bean.desc.memberTarget(n.member)
	}
	return n.bean.desc.target()
}

// produce is the producer other nodes hold for n. It defers to the composed
// callable, which exists by the time anything runs.
func (n *node) produce(f *frame) (any, error) {
	return n.callable(f)
}

// compose builds the node's callable once. Every producer must be resolved:
// composing with a nil producer is an engine bug and panics.
func (n *node) compose() {
	if n.callable != nil {
		return
	}
	for i, p := range n.producers {
		if p == nil {
			panic(fmt.Sprintf("assembly: composing %s with unresolved parameter %d", n.label(), i+1))
		}
	}
	n.composed++

	if n.member != nil {
		n.callable = n.arguments
		return
	}

	d := n.bean.desc
	switch {
	case d.Cardinality == Stateless:
		n.callable = func(*frame) (any, error) { return NoInstance, nil }
	case d.Source.Kind == SourceInstance:
		instance := d.Source.Instance
		n.callable = func(*frame) (any, error) { return instance, nil }
	case d.Cardinality == PerRequest:
		n.callable = n.construct
	default:
		n.callable = n.singleton
	}
}

// arguments invokes the producers in declared order.
func (n *node) arguments(f *frame) (any, error) {
	args := make([]any, len(n.producers))
	for i, p := range n.producers {
		v, err := p(f)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

// construct builds a new value and injects its members.
func (n *node) construct(f *frame) (any, error) {
	b := n.bean
	args, err := n.arguments(f)
	if err != nil {
		return nil, err
	}
	value, err := b.desc.Source.Construct(args.([]any))
	if err != nil {
		return nil, &InitializationError{Bean: b.name(), Err: err}
	}
	for _, m := range b.members {
		margs, err := m.callable(f)
		if err != nil {
			return nil, err
		}
		if err := m.member.Inject(value, margs.([]any)); err != nil {
			return nil, &InitializationError{Bean: b.name(), Err: fmt.Errorf("member %s: %w", m.member.Name, err)}
		}
	}
	if f.constructed != nil {
		f.constructed(b.name())
	}
	return value, nil
}

// singleton reads the node's slot, constructing and publishing the value on
// first use. A request for the slot from the goroutine constructing it is a
// cycle the build could not see, e.g. a constructor resolving its own key.
func (n *node) singleton(f *frame) (any, error) {
	if v, ok := f.store.load(n.slot); ok {
		return v, nil
	}
	g := goid()
	if f.store.builder(n.slot) == g {
		return nil, &CyclicDependencyError{Cycle: []string{n.bean.name()}}
	}
	unlock := f.store.lock(n.slot)
	defer unlock()
	if v, ok := f.store.load(n.slot); ok {
		return v, nil
	}
	defer f.store.building(n.slot, g)()
	v, err := n.construct(f)
	if err != nil {
		return nil, err
	}
	f.store.Write(n.slot, v)
	return v, nil
}

// peek returns the bean value without constructing it. ok is false for a
// singleton that was never constructed in f.
func (n *node) peek(f *frame) (any, bool) {
	d := n.bean.desc
	switch {
	case d.Cardinality != Singleton:
		return NoInstance, true
	case d.Source.Kind == SourceInstance:
		return d.Source.Instance, true
	default:
		return f.store.load(n.slot)
	}
}

// instance returns the value lifecycle callbacks receive, constructing a
// singleton if needed. Non-singleton beans have no lifetime-level instance.
func (n *node) instance(f *frame) (any, error) {
	if n.bean.desc.Cardinality != Singleton {
		return NoInstance, nil
	}
	return n.callable(f)
}
